package errors

// Error codes for standardized error responses
const (
	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"

	// Resource errors
	ErrCodeNotFound       = "not_found"
	ErrCodeClientNotFound = "client_not_found"
	ErrCodeConflict       = "conflict"

	// Session lifecycle errors
	ErrCodeQuizInProgress    = "quiz_in_progress"
	ErrCodeQuizNotInProgress = "quiz_not_in_progress"
	ErrCodeQuizEnded         = "quiz_ended"
	ErrCodeBankUnavailable   = "bank_unavailable"
	ErrCodeSubmitFailed      = "submit_failed"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
)
