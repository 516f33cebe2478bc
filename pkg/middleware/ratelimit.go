package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"golang-backtest/pkg/ratelimit"
)

// Response represents the error response structure
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// NewRateLimiterMiddleware limits requests per client IP with one token
// bucket per address. Idle buckets are evicted after expiresIn.
func NewRateLimiterMiddleware(ratePerSec float64, burst int, expiresIn time.Duration) echo.MiddlewareFunc {
	store := ratelimit.NewLimiterStore(rate.Limit(ratePerSec), burst, expiresIn)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !store.Allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, Response{
					Status:  http.StatusTooManyRequests,
					Message: "Too many requests, please try again later",
				})
			}
			return next(c)
		}
	}
}
