// Package telemetry assigns each request a random trace id and carries it
// through the context so log lines from one request can be correlated.
package telemetry

import (
	"context"

	"github.com/jrazmi/taskdeck/sdk/cryptids"
)

const noTrace = "--------NOTRACE--------"

type telKey int

const traceIDKey telKey = 1

type Telemetry struct{}

func NewTelemetry() Telemetry {
	return Telemetry{}
}

// SetTraceID stamps the context with a fresh trace id.
func (t Telemetry) SetTraceID(ctx context.Context) context.Context {
	tid, err := cryptids.GenerateID()
	if err != nil {
		return context.WithValue(ctx, traceIDKey, noTrace)
	}
	return context.WithValue(ctx, traceIDKey, tid)
}

// GetTraceID returns the context's trace id, or a placeholder when the
// request never passed through SetTraceID.
func (t Telemetry) GetTraceID(ctx context.Context) string {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return noTrace
	}
	return v
}
