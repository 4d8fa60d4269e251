package otel

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	apptrace "aimate/pkg/trace"
)

var httpServerDuration metric.Float64Histogram

// InitHTTPMetrics 注册请求耗时直方图；未配置 MeterProvider 时为 noop
func InitHTTPMetrics(meter metric.Meter) error {
	h, err := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP server request duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}
	httpServerDuration = h
	return nil
}

// routeName 未匹配的路由统一记为 unmatched，避免按原始路径产生高基数的 span 名
func routeName(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// GinMiddleware 为每个请求创建 server span，并关联 X-Trace-ID。
// 必须挂在 TraceMiddleware 之后。
func GinMiddleware() gin.HandlerFunc {
	propagator := otel.GetTextMapPropagator()
	tracer := Tracer()

	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := routeName(c)

		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("app.trace_id", apptrace.FromContext(ctx)),
			),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
		}
		if len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last())
		}

		if httpServerDuration != nil {
			httpServerDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
				metric.WithAttributes(
					attribute.String("http.request.method", c.Request.Method),
					attribute.String("http.route", route),
					attribute.Int("http.response.status_code", status),
				),
			)
		}
	}
}
