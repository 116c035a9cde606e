package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"portfolio-clearinghouse/internal/logger"

	"github.com/pquerna/otp/totp"
)

const (
	headerAPIKey = "X-API-Key"
	headerTOTP   = "X-TOTP"
)

// Authenticator checks the shared API key and, when a TOTP secret is
// configured, a current one-time code as a second factor.
type Authenticator struct {
	apiKey     []byte
	totpSecret string
}

// NewAuthenticator creates an Authenticator. An empty totpSecret disables
// the second factor.
func NewAuthenticator(apiKey, totpSecret string) *Authenticator {
	return &Authenticator{apiKey: []byte(apiKey), totpSecret: totpSecret}
}

// Middleware rejects requests without valid credentials: 401 when the key
// is missing, 403 when the key or code is wrong.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerAPIKey)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "API key is missing")
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), a.apiKey) != 1 {
			a.reject(r, "invalid api key")
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		if a.totpSecret != "" {
			code := r.Header.Get(headerTOTP)
			if code == "" || !totp.Validate(code, a.totpSecret) {
				a.reject(r, "invalid totp")
				writeError(w, http.StatusForbidden, "Invalid or missing one-time code")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) reject(r *http.Request, reason string) {
	slog.Warn("request rejected",
		append(logger.LogWithTrace(r.Context()),
			"component", "auth",
			"reason", reason,
			"path", r.URL.Path,
			"remote", r.RemoteAddr)...)
}
