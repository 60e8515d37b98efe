package logging

import (
	"context"
)

const (
	TraceIDKey     = "trace_id"
	MessageIDKey   = "message_id"
	ServiceNameKey = "service_name"
	PipelineIDKey  = "pipeline_id"
	NodeIDKey      = "node_id"
)

type contextKey string

var orderedKeys = []string{TraceIDKey, MessageIDKey, PipelineIDKey, NodeIDKey, ServiceNameKey}

func with(ctx context.Context, key, value string) context.Context {
	return context.WithValue(ctx, contextKey(key), value)
}

func get(ctx context.Context, key string) string {
	if v, ok := ctx.Value(contextKey(key)).(string); ok {
		return v
	}
	return ""
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return with(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return with(ctx, ServiceNameKey, serviceName)
}

func WithPipelineID(ctx context.Context, pipelineID string) context.Context {
	return with(ctx, PipelineIDKey, pipelineID)
}

func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return with(ctx, NodeIDKey, nodeID)
}

func GetTraceID(ctx context.Context) string {
	return get(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return get(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return get(ctx, ServiceNameKey)
}

func GetPipelineID(ctx context.Context) string {
	return get(ctx, PipelineIDKey)
}

func GetNodeID(ctx context.Context) string {
	return get(ctx, NodeIDKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 2*len(orderedKeys))
	for _, key := range orderedKeys {
		if v := get(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}
	return fields
}
