package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const ctxModelKey contextKey = "parsed_model"

// ModelRegistry is the subset of the model registry this middleware needs.
type ModelRegistry interface {
	Has(id string) bool
}

// parsedModel is stored in context so the handler can read the model id
// without re-parsing the body.
type parsedModel struct {
	Model string `json:"model"`
}

// ModelFromCtx returns the model id parsed by ModelCheck, or "".
func ModelFromCtx(ctx context.Context) string {
	if m, ok := ctx.Value(ctxModelKey).(*parsedModel); ok {
		return m.Model
	}
	return ""
}

// ModelCheck rejects generation requests for unknown models before the
// handler runs. Reads the body to extract "model", then replaces r.Body so
// downstream handlers can re-read it.
func ModelCheck(reg ModelRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedModel
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.Model == "" {
				http.Error(w, `{"error":"model is required"}`, http.StatusBadRequest)
				return
			}
			if !reg.Has(peek.Model) {
				http.Error(w, fmt.Sprintf(`{"error":"unknown model %q"}`, peek.Model), http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), ctxModelKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
