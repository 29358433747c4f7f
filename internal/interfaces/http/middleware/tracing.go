package middleware

import (
	"net/http"

	"github.com/erp/client/internal/infrastructure/logger"
	"github.com/erp/client/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing returns OpenTelemetry tracing middleware backed by otelgin
func Tracing(serviceName string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return otelgin.Middleware(serviceName)
}

// SpanEnricher adds request attributes to the span created by Tracing and marks
// error responses. It must run after Tracing and RequestID.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if id := c.GetString(logger.GinRequestIDKey); id != "" {
				span.SetAttributes(attribute.String("request_id", id))
			}
			if entity := c.Param("entity"); entity != "" {
				span.SetAttributes(attribute.String(telemetry.SpanAttrEntity, entity))
			}
		}

		c.Next()

		if !span.IsRecording() {
			return
		}
		status := c.Writer.Status()
		if status >= http.StatusBadRequest {
			msg := "Client Error"
			if status >= http.StatusInternalServerError {
				msg = "Server Error"
			}
			span.SetStatus(codes.Error, msg)
		}
	}
}
