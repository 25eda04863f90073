package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dalemusser/stratalog/internal/app/system/jsonutil"
	"go.uber.org/zap"
)

// APIKeyAuth returns middleware that validates API key authentication.
//
// Callers present the key as "Authorization: Bearer <api-key>". Ingestion
// services that submit log records on behalf of their users go through
// this check:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(auth.APIKeyAuth(appCfg.APIKey, logger))
//	    r.Mount("/api/logs", logapi.Routes(h))
//	})
//
// A missing or wrong key gets 401. An unconfigured key rejects everything.
func APIKeyAuth(validKey string, logger *zap.Logger) func(http.Handler) http.Handler {
	if validKey == "" {
		logger.Warn("API key not configured - all API requests will be rejected")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validKey == "" {
				logger.Warn("API request rejected: API key not configured",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				jsonutil.Unauthorized(w, "API authentication not configured")
				return
			}

			providedKey, ok := bearerToken(r)
			if !ok {
				logger.Debug("API request rejected: missing or malformed Authorization header",
					zap.String("path", r.URL.Path))
				jsonutil.Unauthorized(w, "expected Authorization: Bearer <api-key>")
				return
			}

			if subtle.ConstantTimeCompare([]byte(providedKey), []byte(validKey)) != 1 {
				logger.Warn("API request rejected: invalid API key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				jsonutil.Unauthorized(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
