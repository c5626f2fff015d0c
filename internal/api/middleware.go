package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/zulandar/rapidaid/internal/identity"
	"github.com/zulandar/rapidaid/internal/lifecycle"
)

const callerKey = "rapidaid.caller"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rapidaid_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rapidaid_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}

// observeRequests records request counts and latency.
func observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := routeOf(c)
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// requestLogger writes one structured line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if id, ok := callerFrom(c); ok {
			fields = append(fields, zap.String("caller", id.ID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}
		if status >= http.StatusInternalServerError {
			log.Warn("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

// authenticate resolves the bearer credential and stores the caller on the
// context. Missing or unknown credentials get 401.
func authenticate(r identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.Header("WWW-Authenticate", `Bearer realm="rapidaid"`)
			abort(c, http.StatusUnauthorized, codeNoAuth, "bearer credential required")
			return
		}

		id, err := r.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, lifecycle.ErrUnauthorized) {
				c.Header("WWW-Authenticate", `Bearer realm="rapidaid"`)
				abort(c, http.StatusUnauthorized, codeNoAuth, "invalid credential")
				return
			}
			writeError(c, err)
			return
		}
		c.Set(callerKey, id)
		c.Next()
	}
}

func callerFrom(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}

func mustCaller(c *gin.Context) identity.Identity {
	id, _ := callerFrom(c)
	return id
}

// requireResponder rejects callers who cannot take part in assignment.
func requireResponder() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !mustCaller(c).Caller().IsResponder() {
			writeError(c, lifecycle.ErrUnauthorized)
			return
		}
		c.Next()
	}
}
