package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/zulandar/rapidaid/internal/lifecycle"
)

// NewLimiterStore returns a redis-backed limiter store when client is set,
// otherwise an in-memory one.
func NewLimiterStore(client redis.UniversalClient) (limiter.Store, error) {
	if client == nil {
		return memory.NewStore(), nil
	}
	s, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "rapidaid:limit"})
	if err != nil {
		return nil, fmt.Errorf("api: limiter store: %w", err)
	}
	return s, nil
}

// rateLimit caps requests per caller. Callers are identified by account, or
// by client IP when unauthenticated.
func rateLimit(rate string, store limiter.Store) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("api: submit rate %q: %w", rate, err)
	}
	if store == nil {
		store = memory.NewStore()
	}
	return mgin.NewMiddleware(limiter.New(store, r),
		mgin.WithKeyGetter(func(c *gin.Context) string {
			if id, ok := callerFrom(c); ok {
				return "caller:" + id.ID
			}
			return "ip:" + c.ClientIP()
		}),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.Header("Retry-After", retryAfter(c.Writer.Header().Get("X-RateLimit-Reset")))
			abort(c, http.StatusTooManyRequests, codeRateLimited, "too many submissions")
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			writeError(c, fmt.Errorf("api: rate limiter: %w: %w", lifecycle.ErrStoreUnavailable, err))
		}),
	), nil
}

// retryAfter converts the limiter's reset timestamp into whole seconds.
func retryAfter(reset string) string {
	ts, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return "1"
	}
	secs := ts - time.Now().Unix()
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
