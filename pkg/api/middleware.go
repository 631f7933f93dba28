package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/config"
	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// statusRecorder captures response details for access logging
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.statusCode == 0 {
		sr.statusCode = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// corsMiddleware adds CORS headers for the configured origins
func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed := matchOrigin(origin, allowedOrigins); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// matchOrigin returns the header value to allow, or empty for none
func matchOrigin(origin string, allowed []string) string {
	for _, candidate := range allowed {
		if candidate == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(candidate, origin) {
			return origin
		}
	}
	return ""
}

// jsonMiddleware sets JSON content type
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags each request with an ID, honoring one the
// caller already set
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
			r.Header.Set("X-Request-ID", requestID)
		}

		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs API requests with their final status
func loggingMiddleware(next http.Handler, logger types.Logger, enabled bool) http.Handler {
	if !enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &statusRecorder{ResponseWriter: w}

		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path = path + "?" + r.URL.RawQuery
		}

		next.ServeHTTP(recorder, r)

		fields := []interface{}{
			"method", r.Method,
			"path", path,
			"status", recorder.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", recorder.bytes,
			"remote_addr", r.RemoteAddr,
		}
		if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
			fields = append(fields, "request_id", requestID)
		}

		switch {
		case recorder.statusCode >= 500:
			logger.Error("API request failed", fields...)
		case recorder.statusCode >= 400:
			logger.Warn("API request error", fields...)
		default:
			logger.Info("API request", fields...)
		}
	})
}

// basicAuthMiddleware enforces basic auth against the configured
// username and bcrypt password hash
func basicAuthMiddleware(next http.Handler, username, passwordHash string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !checkCredentials(user, pass, username, passwordHash) {
			w.Header().Set("WWW-Authenticate", `Basic realm="earnd API"`)
			respondErrorWithCode(w, http.StatusUnauthorized, "Unauthorized", "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkCredentials verifies a username and password pair
func checkCredentials(user, pass, username, passwordHash string) bool {
	userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
	passMatch := config.ComparePasswords(passwordHash, pass)
	return userMatch && passMatch
}
