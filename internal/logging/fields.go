package logging

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType identifies the kind of event a log line describes.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldPort is the serial device path a line refers to.
	FieldPort = "port"
	// FieldSessionID correlates all lines of one open session.
	FieldSessionID = "session_id"
)
