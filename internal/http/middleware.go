package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pilotage/internal/log"
)

const (
	HeaderRequestID   = "X-Request-ID"
	SessionCookieName = "pilotage_session"
)

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// middleware wraps every route with request tracing, logging, security
// headers and, for mutating methods, the per-client rate limit.
func (s *Server) middleware(next http.Handler) http.Handler {
	withLogger := log.Middleware(s.logger, func(r *http.Request) string {
		return r.Header.Get(HeaderRequestID)
	})

	inner := withLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		clientIP := extractClientIP(r)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		applySecurityHeaders(rw)

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			log.FromContextOr(r.Context(), s.logger).WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			rw.Header().Set("Retry-After", "60")
			writeErrorCode(rw, http.StatusTooManyRequests, CodeRateLimited, "too many requests, retry later")
		} else {
			next.ServeHTTP(rw, r)
		}

		s.structured.LogHTTPEnd(r.Context(), r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		r.Header.Set(HeaderRequestID, id)
		w.Header().Set(HeaderRequestID, id)
		inner.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// protected rejects requests without a live session.
func (s *Server) protected(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.gate.Validate(sessionToken(r)); err != nil {
			log.FromContextOr(r.Context(), s.logger).InfoContext(r.Context(), "Unauthorized request",
				log.FieldPath, r.URL.Path, log.FieldError, err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="pilotage"`)
			writeError(w, err)
			return
		}
		next(w, r)
	})
}

// sessionToken reads the bearer token, falling back to the session cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) sessionCookie(value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
	if value == "" {
		c.MaxAge = -1
	} else {
		c.Expires = expires
		c.MaxAge = int(expires.Sub(s.now()).Seconds())
	}
	return c
}

// positionParam parses the {position} path segment.
func positionParam(r *http.Request) (int, error) {
	v := r.PathValue("position")
	pos, err := strconv.Atoi(v)
	if err != nil {
		return 0, errBadRequestf("position must be an integer, got %q", v)
	}
	return pos, nil
}
