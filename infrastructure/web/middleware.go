package web

import (
	"context"
	"net/http"
)

func (wh *WebHandler) buildHandlerChain(handler HandlerFunc, middleware ...Middleware) HandlerFunc {
	allMiddleware := append(wh.globalMiddleware, middleware...)

	final := handler
	for i := len(allMiddleware) - 1; i >= 0; i-- {
		final = allMiddleware[i](final)
	}

	return final
}

// corsMiddleware sets CORS headers for the handler's configured origins. It
// runs before all other middleware. Preflight requests never reach it, since
// routes are registered per method; see the OPTIONS catch-all in
// newWebHandler.
func (wh *WebHandler) corsMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, r *http.Request) Encoder {
			w := GetWriter(ctx)
			if w == nil {
				return next(ctx, r)
			}

			wh.setCORSHeaders(w, r.Header.Get("Origin"))
			return next(ctx, r)
		}
	}
}

func (wh *WebHandler) setCORSHeaders(w http.ResponseWriter, origin string) {
	for _, allowed := range wh.corsOrigins {
		if allowed == "*" || allowed == origin {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			break
		}
	}

	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
}
