package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID      = "session_id"
	FieldCorrelationID  = "correlation_id"
	FieldInterruptionID = "interruption_id"
	FieldEventID        = "event_id"

	// Process fields
	FieldComponent = "component"
	FieldEvent     = "event"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldMode     = "mode"

	// Queue / sweep fields
	FieldQueueDepth   = "queue_depth"
	FieldBatchSize    = "batch_size"
	FieldPendingCount = "pending_count"
	FieldAttempts     = "attempts"

	// Transport fields
	FieldEndpoint = "endpoint"
	FieldMsgType  = "msg_type"
)
