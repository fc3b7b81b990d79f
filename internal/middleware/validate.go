package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/campusquest/backend/internal/models"
)

const maxBodyBytes = 1 << 20

// BodyValidator checks a raw JSON body against a named schema.
type BodyValidator interface {
	Validate(schema string, body []byte) error
}

// ValidateBody rejects requests whose body does not match schema. It reads
// the body, then replaces r.Body so downstream handlers can re-read it.
func ValidateBody(v BodyValidator, schema string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			r.Body.Close()
			if err != nil {
				WriteError(w, nil, models.E(models.ErrValidation, "failed to read body"))
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			if err := v.Validate(schema, bodyBytes); err != nil {
				WriteError(w, nil, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
