// internal/api/middleware.go
package api

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
)

const (
	requestIDHeader = "X-Request-Id"

	// tracerName identifies this package as an otel instrumentation scope.
	tracerName = "github.com/polytopelabs/hyperpuzzle-simulator/internal/api"
)

// requestScoped assigns every request an id (honoring an incoming
// X-Request-Id header) and stores a request-scoped logger in the context.
// Handlers retrieve it via requestLog.
func (s *Server) requestScoped(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, s.log.With(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLog returns the logger stored by requestScoped, falling back to
// the server logger for requests that bypassed the middleware chain.
func (s *Server) requestLog(r *http.Request) logging.Logger {
	if log := logging.LoggerFromContext(r.Context()); log != nil {
		return log
	}
	return s.log
}

// traced opens a server span per request, or enriches one propagated by
// upstream instrumentation.
func (s *Server) traced(route string, next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	name := fmt.Sprintf("API %s", route)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(name)
		}

		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
		}
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			attrs = append(attrs, attribute.String("request_id", reqID))
		}
		span.SetAttributes(attrs...)

		next.ServeHTTP(w, r.WithContext(ctx))
		if created {
			span.End()
		}
	})
}
