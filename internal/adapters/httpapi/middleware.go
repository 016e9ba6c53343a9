package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/atviraknyga/bookapi/internal/core/usecase"
	"github.com/atviraknyga/bookapi/internal/requestctx"
)

// bindRequestContext creates the per-request ambient context and scopes it to
// this request's execution. The binding dies with the request context, so
// nothing can leak across requests.
func (h *Handler) bindRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := requestctx.New(uuid.New().String())
		w.Header().Set("X-Request-ID", rc.RequestID)
		next.ServeHTTP(w, r.WithContext(requestctx.With(r.Context(), rc)))
	})
}

// requireAPIKey authenticates the caller via X-API-Key or a bearer token and
// binds the resolved user id as the ambient actor.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		if rc, ok := requestctx.From(r.Context()); ok {
			rc.SetActorID(apiKey.UserID)
		}
		next.ServeHTTP(w, r)
	})
}
