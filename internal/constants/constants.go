package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultLookupTimeout  = 3 * time.Second
	DefaultBindTimeout    = 5 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultNodeBufferSize = 64
)

const (
	DefaultDirectoryKeyPrefix = "switchyard:directory"
	DefaultMirrorQueueSize    = 1024
)

const (
	DefaultMongoDBName       = "switchyard"
	DefaultMongoDBCollection = "events"
	DefaultPostgresTable     = "events"
)

const (
	ShutdownTimeout = 5 * time.Second
)

// Node setting keys and sentinel values shared by node types and the pipeline.
const (
	SettingRole            = "role"
	RoleErrorHandler       = "error-handler"
	SettingForwardPrefix   = "forward."
	SettingErrorPrefix     = "error."
	ErrorHandlerDefaultKey = "default"
	LabelIgnore            = "ignore"
)

// Error keys appended to an event's error stack by processing nodes.
const (
	ErrKeyExecutionFailed = "node.execution.failed"
	ErrKeyNoResponse      = "forwarding.noResponse"
	ErrKeyNoRule          = "forwarding.noRule"
	ErrKeyContentBlank    = "message.content.blank"
	ErrKeySinkWriteFailed = "sink.write.failed"
)
