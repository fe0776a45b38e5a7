package ratelimit

import (
	"net/http"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"booking-service/pkg/response"
)

// New returns a middleware that throttles the wrapped routes with a shared
// token bucket. Meant for the public booking mutations, where a burst of
// blind retries only produces conflict noise.
func New(rps float64, burst int) func(next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.WriteHeader(http.StatusTooManyRequests)
				render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "too many requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
