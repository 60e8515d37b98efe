package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"switchyard/pkg/models"
)

// InjectMessage stores the span context of ctx as a traceparent string in the
// message metadata, so it survives hops between components.
func InjectMessage(ctx context.Context, msg *models.EventMessage) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if tp := carrier.Get(traceParentHeader); tp != "" {
		msg.Metadata.TraceID = tp
	}
}

// ExtractMessage returns ctx carrying the remote span context recorded on msg.
func ExtractMessage(ctx context.Context, msg *models.EventMessage) context.Context {
	if msg.Metadata.TraceID == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{traceParentHeader: msg.Metadata.TraceID}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
