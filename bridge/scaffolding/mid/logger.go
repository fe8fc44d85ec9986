package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/jrazmi/taskdeck/infrastructure/web"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// Logger writes information about the request to the logs, tagging each line
// with the request's trace id.
func Logger(log *logger.Logger, tel web.Telemetry) web.Middleware {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(ctx context.Context, r *http.Request) web.Encoder {
			now := time.Now()

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path = path + "?" + r.URL.RawQuery
			}
			traceID := tel.GetTraceID(ctx)

			log.InfoContext(ctx, "request started", "trace_id", traceID, "method", r.Method, "path", path, "remoteaddr", r.RemoteAddr)

			resp := next(ctx, r)

			var statusCode int
			if hs, ok := resp.(interface{ HTTPStatus() int }); ok {
				statusCode = hs.HTTPStatus()
			}

			log.InfoContext(ctx, "request completed",
				"trace_id", traceID,
				"method", r.Method,
				"path", path,
				"remoteaddr", r.RemoteAddr,
				"statuscode", statusCode,
				"since", time.Since(now).String(),
			)

			return resp
		}
	}
}
