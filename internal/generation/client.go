package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// submitTimeout bounds one provider call. Generations routinely take tens of
// seconds; anything past this is treated as a failure.
const submitTimeout = 120 * time.Second

// ErrGenerationFailed wraps every provider-side failure, including timeouts.
// Detect with errors.Is; the wrapped message carries the provider reason.
var ErrGenerationFailed = errors.New("generation failed")

// ErrProviderRejected is the deterministic subset of ErrGenerationFailed:
// input the provider refuses outright (malformed params, policy refusal).
// Resubmitting the same request fails the same way, so it is never retried.
var ErrProviderRejected = fmt.Errorf("%w: rejected", ErrGenerationFailed)

// Descriptor is one fully resolved generation request.
type Descriptor struct {
	TaskID   uuid.UUID
	Endpoint string
	Prompt   string
	Width    int
	Height   int
	Steps    int
}

// Result is the provider's normalized success response. ActualCost is zero
// when the provider does not report billing per request.
type Result struct {
	ImageURL       string
	ContentType    string
	ActualCost     decimal.Decimal
	ProviderTaskID string
}

// Client submits generation tasks to the image provider's synchronous REST
// endpoints. It performs exactly one attempt per Submit call; retry policy
// belongs to the caller.
type Client struct {
	httpClient *http.Client
	apiKey     string
}

func NewClient(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: submitTimeout},
		apiKey:     apiKey,
	}
}

type submitRequest struct {
	Prompt    string     `json:"prompt"`
	ImageSize submitSize `json:"image_size"`
	NumSteps  int        `json:"num_inference_steps,omitempty"`
	NumImages int        `json:"num_images"`
}

type submitSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
	Images    []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"images"`
	Cost  *decimal.Decimal `json:"cost,omitempty"`
	Error string           `json:"error,omitempty"`
}

// Submit runs one bounded synchronous call. A timeout or transport error maps
// to ErrGenerationFailed like any provider rejection; no ledger or storage
// side effects happen here.
func (c *Client) Submit(ctx context.Context, d Descriptor) (*Result, error) {
	if d.Prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrGenerationFailed)
	}

	body, err := json.Marshal(submitRequest{
		Prompt:    d.Prompt,
		ImageSize: submitSize{Width: d.Width, Height: d.Height},
		NumSteps:  d.Steps,
		NumImages: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Key "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: timeout", ErrGenerationFailed)
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGenerationFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		base := ErrGenerationFailed
		if isDeterministic(resp.StatusCode) {
			base = ErrProviderRejected
		}
		return nil, fmt.Errorf("%w: provider status %d: %s", base, resp.StatusCode, truncate(raw, 512))
	}

	var out submitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid provider response: %v", ErrGenerationFailed, err)
	}
	if out.Error != "" {
		// An error payload on a 2xx is the provider refusing the content.
		return nil, fmt.Errorf("%w: %s", ErrProviderRejected, out.Error)
	}
	if len(out.Images) == 0 || out.Images[0].URL == "" {
		return nil, fmt.Errorf("%w: provider returned no images", ErrGenerationFailed)
	}

	res := &Result{
		ImageURL:       out.Images[0].URL,
		ContentType:    out.Images[0].ContentType,
		ProviderTaskID: out.RequestID,
	}
	if out.Cost != nil {
		res.ActualCost = *out.Cost
	}
	return res, nil
}

// isDeterministic reports whether a status repeats for the same request.
// 408 and 429 are transient despite being 4xx.
func isDeterministic(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
