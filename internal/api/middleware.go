package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cinesense/journey-engine/internal/auth"
	"github.com/cinesense/journey-engine/internal/logging"
	"github.com/cinesense/journey-engine/internal/metrics"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// userIDFromContext returns the bearer identity, if any.
func userIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// RequestID propagates or generates X-Request-ID and stores it for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := logging.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs each request and records its metrics under the chi
// route pattern.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(status), duration)

		logging.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Msg("Request completed")
	})
}

// Identity reads an optional bearer token. Requests without one pass through
// anonymously; an invalid token is rejected. With no secret configured the
// header is ignored.
func Identity(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if secret == "" || header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				respondError(w, r, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "authorization header must use the Bearer scheme", nil)
				return
			}
			userID, err := auth.ValidateJWT(secret, token)
			if err != nil {
				logging.Ctx(r.Context()).Warn().Err(err).Msg("Rejected bearer token")
				respondError(w, r, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "invalid token", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}

// RequireToken rejects anonymous requests when a secret is configured. It
// must run after Identity.
func RequireToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				if _, ok := userIDFromContext(r.Context()); !ok {
					respondError(w, r, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "authorization header is required", nil)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
