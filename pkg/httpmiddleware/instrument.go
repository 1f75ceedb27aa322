package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// HTTPObserver records served requests.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// Instrument traces requests with otelhttp and reports them to obs. Spans
// and labels are named after the route pattern once routing is done, so
// path parameters never become label values.
func Instrument(service string, tp trace.TracerProvider, mp metric.MeterProvider, obs HTTPObserver) Middleware {
	return func(next http.Handler) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, rctx := routeContext(r)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := rctx.RoutePattern()
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if route != "" {
				trace.SpanFromContext(r.Context()).SetName(r.Method + " " + route)
				if l, ok := otelhttp.LabelerFromContext(r.Context()); ok {
					l.Add(attribute.String("http.route", route))
				}
			}
			if obs != nil {
				obs.ObserveHTTP(r.Method, route, status, time.Since(start))
			}
		})
		return otelhttp.NewHandler(inner, service,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		)
	}
}
