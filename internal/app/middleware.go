package app

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")

				app.serverErrorResponse(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// rateLimit throttles callers per client address. A limiter that cannot
// answer lets the request through.
func (app *application) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		d, err := app.limiter.Allow(r.Context(), clientAddr(r))
		if err != nil {
			app.logger.Warn("rate limiter unavailable", "error", err, "request_id", middleware.GetReqID(r.Context()))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			app.rateLimitExceededResponse(w, r, d.RetryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// identifyRequester resolves who is calling. A bearer token wins over the
// session; a caller with neither gets a guest identity bound to its session.
func (app *application) identifyRequester(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header := r.Header.Get("Authorization"); header != "" {
			requesterID, ok := app.bearerSubject(header)
			if !ok {
				app.invalidBearerTokenResponse(w, r)
				return
			}

			next.ServeHTTP(w, contextSetRequesterID(r, requesterID))
			return
		}

		requesterID := app.sessionManager.GetString(r.Context(), SessionKeyRequesterId.String())
		if requesterID == "" {
			requesterID = "guest-" + uuid.NewString()
			app.sessionManager.Put(r.Context(), SessionKeyRequesterId.String(), requesterID)
		}

		next.ServeHTTP(w, contextSetRequesterID(r, requesterID))
	})
}

func (app *application) bearerSubject(header string) (string, bool) {
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || app.config.jwt.secret == "" {
		return "", false
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(app.config.jwt.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", false
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", false
	}

	return subject, true
}
