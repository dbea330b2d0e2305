package server

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lubereport/internal/api"
)

// Principal is the caller, as read from its backend token.
type Principal struct {
	UserID   int64
	Username string
	Role     string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware requires a backend token on every API route except
// health and the OpenAPI document. The signature is left to the backend;
// only the shape and the expiry are checked here. The token is then
// forwarded on every backend call made for the request.
func newAuthMiddleware(basePath string, now func() time.Time) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			claims, err := api.TokenClaims(token)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			if claims.Expired(now()) {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "token_expired", "token expired, log in again", nil))
				return
			}
			ctx := api.WithToken(req.Context(), token)
			ctx = withPrincipal(ctx, Principal{UserID: claims.UserID, Username: claims.Username, Role: claims.Role})
			logger := zerolog.Ctx(ctx).With().Str("user", claims.Username).Logger()
			ctx = logger.WithContext(ctx)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// newRequestLogger attaches a per-request logger to the context and logs
// each response.
func newRequestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			requestID := req.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			logger := base.With().
				Str("request_id", requestID).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote", req.RemoteAddr).
				Logger()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			rec.Header().Set("X-Request-Id", requestID)
			start := time.Now()
			next.ServeHTTP(rec, req.WithContext(logger.WithContext(req.Context())))
			event := logger.Info()
			if rec.status >= 500 {
				event = logger.Error()
			}
			event.Int("status", rec.status).Dur("elapsed", time.Since(start)).Msg("request")
		})
	}
}
