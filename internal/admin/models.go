package admin

import "time"

type SetupResponse struct {
	PipelineID string `json:"pipeline_id"`
	Result     string `json:"result"`
}

type ShutdownResponse struct {
	PipelineID string `json:"pipeline_id"`
	Result     string `json:"result"`
	// Stopped is false when the pipeline did not finish stopping in time.
	Stopped bool `json:"stopped"`
}

type LookupResponse struct {
	Kind    string   `json:"kind"`
	Found   []string `json:"found"`
	Missing []string `json:"missing,omitempty"`
}

type DeregisterResponse struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Result string `json:"result"`
}

type IngestEventRequest struct {
	ID          string            `json:"id"`
	SourceID    string            `json:"source_id" binding:"required"`
	CollectorID string            `json:"collector_id" binding:"required"`
	Timestamp   time.Time         `json:"timestamp"`
	Content     string            `json:"content"`
	Fields      map[string]string `json:"fields"`
}

type IngestEventResponse struct {
	DispatcherID string `json:"dispatcher_id"`
	MessageID    string `json:"message_id"`
}
