package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
)

// actorKey is the context key under which the authenticated credential view
// is stored. A missing value means the request carried no valid credential.
type actorKeyType struct{}

var actorKey actorKeyType

// actorFrom extracts the authenticated actor from the request context, or
// nil when unauthenticated.
func actorFrom(r *http.Request) *model.APIKeyView {
	actor, _ := r.Context().Value(actorKey).(*model.APIKeyView)
	return actor
}

// sessionValidator is the slice of the session service the middleware needs.
type sessionValidator interface {
	Validate(token string) bool
}

// keyVerifier is the slice of the key store the middleware needs.
type keyVerifier interface {
	Verify(ctx context.Context, rawKey string) (*model.APIKeyView, error)
}

// authMiddleware resolves the Authorization bearer value into an actor. A
// valid panel session token acts as an admin-tier credential; otherwise the
// value is verified as an API key. Resolution failures leave the actor nil
// so each handler's authorization check produces the right status, rather
// than rejecting here.
func authMiddleware(sessions sessionValidator, keys keyVerifier, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if sessions.Validate(bearer) {
			actor := &model.APIKeyView{ID: "panel-session", Kind: model.KeyKindAdmin}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
			return
		}

		view, err := keys.Verify(r.Context(), bearer)
		if err != nil {
			logger.Error("key verification failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if view == nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, view)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return token, token != ""
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
