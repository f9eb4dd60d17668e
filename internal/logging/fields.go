package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldPlatform is the standardized structured logging key for platform identifiers.
	FieldPlatform = "platform"
	// FieldEventType is the standardized structured logging key for event classification.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator guidance on errors.
	FieldErrorHint = "error_hint"
	// FieldURL is the standardized structured logging key for source URLs.
	FieldURL = "url"
	// FieldFolder is the standardized structured logging key for artifact folder names.
	FieldFolder = "folder"
)

// JobID returns a standardized job identifier attribute.
func JobID(id string) Attr { return String(FieldJobID, id) }

// Platform returns a standardized platform identifier attribute.
func Platform(id string) Attr { return String(FieldPlatform, id) }
