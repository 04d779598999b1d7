package daemon

import (
	"encoding/json"
	stdErrors "errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-ai/mcprt/internal/api"
	"github.com/mozilla-ai/mcprt/internal/auth"
	"github.com/mozilla-ai/mcprt/internal/core"
	"github.com/mozilla-ai/mcprt/internal/errors"
	"github.com/mozilla-ai/mcprt/internal/ratelimit"
)

const (
	// HeaderRequestID carries the request identifier in both directions.
	HeaderRequestID = "X-Request-ID"

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"

	maxRequestIDLength = 128
)

// requestContext assigns each request an identifier, honoring a client supplied one,
// and logs the outcome once the request completes.
func requestContext(logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received := time.Now()

			id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(core.WithRequestID(r.Context(), id)))

			logger.Debug(
				"Request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(received),
				"requestID", id,
			)
		})
	}
}

// authenticate rejects requests without valid credentials.
// Public paths and the session refresh route are exempt.
func (a *APIServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rel := a.relativePath(r.URL.Path)
		if !a.authenticator.Enabled() || rel == api.PathRefresh || a.authenticator.IsPublic(rel) {
			next.ServeHTTP(w, r)
			return
		}

		p, err := a.authenticator.Authenticate(r)
		if err != nil {
			status := http.StatusUnauthorized
			if !stdErrors.Is(err, errors.ErrAuthentication) {
				a.logger.Error("Authentication error", "path", r.URL.Path, "error", err)
				status = http.StatusInternalServerError
			}
			if challenge := a.authenticator.Challenge(); challenge != "" {
				w.Header().Set("WWW-Authenticate", challenge)
			}
			a.logger.Debug("Rejected unauthenticated request", "path", r.URL.Path, "error", err)
			writeProblem(w, status, err.Error(), api.AuthenticationFailure)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// rateLimit applies the fixed-window budget per client and route.
func (a *APIServer) rateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := a.limiter.Allow(ratelimit.Key(clientIdentity(r), a.relativePath(r.URL.Path)))

		h := w.Header()
		h.Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
		h.Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
		h.Set(HeaderRateLimitReset, strconv.FormatInt(d.Reset.Unix(), 10))

		if !d.Allowed {
			retry := max(int(math.Ceil(d.Wait().Seconds())), 1)
			h.Set("Retry-After", strconv.Itoa(retry))
			writeProblem(
				w,
				http.StatusTooManyRequests,
				errors.ErrRateLimited.Error()+", retry after "+strconv.Itoa(retry)+"s",
				api.RateLimitExceeded,
			)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIdentity prefers the authenticated subject and falls back to the remote host.
func clientIdentity(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.Mode != "" {
		return p.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeProblem writes an RFC 9457 problem document for requests rejected by middleware.
func writeProblem(w http.ResponseWriter, status int, detail string, errType api.ErrorType) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set(api.HeaderErrorType, string(errType))
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(huma.ErrorModel{
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}
