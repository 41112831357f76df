package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func descriptorFor(endpoint string) Descriptor {
	return Descriptor{
		TaskID:   uuid.New(),
		Endpoint: endpoint,
		Prompt:   "a lighthouse at dusk",
		Width:    1024,
		Height:   1024,
		Steps:    4,
	}
}

func TestSubmitSuccess(t *testing.T) {
	var gotReq submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Key test-key" {
			t.Errorf("auth header: got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"request_id": "req_123",
			"images": []map[string]string{
				{"url": "https://cdn.provider/out.png", "content_type": "image/png"},
			},
			"cost": "0.0058",
		})
	}))
	defer srv.Close()

	c := NewClient("test-key")
	res, err := c.Submit(context.Background(), descriptorFor(srv.URL))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if gotReq.Prompt != "a lighthouse at dusk" || gotReq.NumImages != 1 {
		t.Errorf("request payload: %+v", gotReq)
	}
	if gotReq.ImageSize.Width != 1024 || gotReq.ImageSize.Height != 1024 {
		t.Errorf("image_size: %+v", gotReq.ImageSize)
	}
	if res.ImageURL != "https://cdn.provider/out.png" {
		t.Errorf("image url: got %s", res.ImageURL)
	}
	if res.ProviderTaskID != "req_123" {
		t.Errorf("provider task id: got %s", res.ProviderTaskID)
	}
	if !res.ActualCost.Equal(decimal.RequireFromString("0.0058")) {
		t.Errorf("cost: got %s", res.ActualCost)
	}
}

func TestSubmitProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "nsfw content rejected"})
	}))
	defer srv.Close()

	c := NewClient("test-key")
	_, err := c.Submit(context.Background(), descriptorFor(srv.URL))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got: %v", err)
	}
	// A content refusal is deterministic; retrying it would be a second paid
	// call for the same answer.
	if !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected ErrProviderRejected, got: %v", err)
	}
}

// Retryable and deterministic statuses map to different sentinels: 429 and
// 5xx can clear up on retry, a 422 never does.
func TestSubmitNon2xxStatus(t *testing.T) {
	cases := []struct {
		name         string
		status       int
		wantRejected bool
	}{
		{"rate limited", http.StatusTooManyRequests, false},
		{"server error", http.StatusInternalServerError, false},
		{"unprocessable", http.StatusUnprocessableEntity, true},
		{"forbidden", http.StatusForbidden, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tc.name, tc.status)
			}))
			defer srv.Close()

			c := NewClient("test-key")
			_, err := c.Submit(context.Background(), descriptorFor(srv.URL))
			if !errors.Is(err, ErrGenerationFailed) {
				t.Fatalf("expected ErrGenerationFailed, got: %v", err)
			}
			if got := errors.Is(err, ErrProviderRejected); got != tc.wantRejected {
				t.Errorf("ErrProviderRejected: got %v, want %v (error: %v)", got, tc.wantRejected, err)
			}
		})
	}
}

func TestSubmitNoImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"request_id": "req_1", "images": []any{}})
	}))
	defer srv.Close()

	c := NewClient("test-key")
	_, err := c.Submit(context.Background(), descriptorFor(srv.URL))
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got: %v", err)
	}
}

func TestSubmitEmptyPrompt(t *testing.T) {
	c := NewClient("")
	d := descriptorFor("https://unused.test")
	d.Prompt = ""
	if _, err := c.Submit(context.Background(), d); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got: %v", err)
	}
}

func TestSubmitTransportError(t *testing.T) {
	// Closed server: connection refused maps to ErrGenerationFailed.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient("")
	if _, err := c.Submit(context.Background(), descriptorFor(srv.URL)); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got: %v", err)
	}
}
