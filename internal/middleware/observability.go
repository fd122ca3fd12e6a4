package middleware

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// redactedQueryParams never reach the logs
var redactedQueryParams = map[string]bool{
	"token": true, "password": true, "secret": true, "key": true,
	"auth": true, "access_token": true, "refresh_token": true, "email": true,
}

// ObservabilityMiddleware instruments HTTP requests with metrics and logging
func ObservabilityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Route is unknown until after routing, so active requests are per method
		metrics.ActiveRequests.WithLabelValues(method).Inc()
		defer metrics.ActiveRequests.WithLabelValues(method).Dec()

		c.Next()

		// Route template keeps label cardinality bounded
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		duration := metrics.MeasureDuration(start)
		status := c.Writer.Status()
		statusLabel := strconv.Itoa(status)
		metrics.HTTPRequestDuration.WithLabelValues(method, route, statusLabel).Observe(duration)
		metrics.HTTPRequestTotal.WithLabelValues(method, route, statusLabel).Inc()

		logger.LogHTTPRequest(method, c.Request.URL.Path, status, duration, requestFields(c, status)...)
	}
}

func requestFields(c *gin.Context, status int) []zap.Field {
	fields := []zap.Field{
		zap.String("request_id", c.GetString(RequestIDContextKey)),
		zap.String("client_ip", c.ClientIP()),
		zap.Int("response_size", c.Writer.Size()),
	}
	if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.HasTraceID() {
		fields = append(fields, zap.String("trace_id", spanCtx.TraceID().String()))
	}

	if status < 400 {
		return fields
	}

	if query := sanitizeQuery(c.Request.URL.Query()); len(query) > 0 {
		fields = append(fields, zap.Any("query_params", query))
	}
	if len(c.Errors) > 0 {
		fields = append(fields, zap.String("error", c.Errors.String()))
	}
	return fields
}

// sanitizeQuery keeps the first value of each non-sensitive parameter
func sanitizeQuery(query url.Values) map[string]string {
	sanitized := make(map[string]string, len(query))
	for k, v := range query {
		if redactedQueryParams[strings.ToLower(k)] || len(v) == 0 {
			continue
		}
		sanitized[k] = v[0]
	}
	return sanitized
}
