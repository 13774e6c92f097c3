package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Schema errors
	ErrMissingColumn      = errors.New("missing expected column")
	ErrInvalidColumnType  = errors.New("column has unexpected type")
	ErrUnknownReadingType = errors.New("unknown reading type")
	ErrEmptyBatch         = errors.New("batch contains no readings")

	// Checkpoint errors
	ErrCheckpointUnreadable = errors.New("checkpoint store unreadable")
	ErrCheckpointCorrupt    = errors.New("checkpoint store corrupt")

	// Calibration errors
	ErrProfileNotFound = errors.New("calibration profile not found")

	// Storage errors
	ErrPartitionConflict       = errors.New("partition already committed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
	ErrStorageConnectionFailed = errors.New("storage connection failed")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing configuration")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeSchema        ErrorType = "schema"
	ErrorTypeCheckpoint    ErrorType = "checkpoint"
	ErrorTypeCalibration   ErrorType = "calibration"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeIngestion     ErrorType = "ingestion"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewSchemaError creates a schema validation error. Batches failing schema
// validation are rejected whole; there is no partial admission.
func NewSchemaError(code, message string) *AppError {
	return NewAppError(ErrorTypeSchema, code, message)
}

// NewCheckpointError creates a checkpoint error. Checkpoint errors are
// run-fatal: treating an unreadable store as empty would risk duplicate
// writes, treating it as complete would risk silent data loss.
func NewCheckpointError(code, message string) *AppError {
	return NewAppError(ErrorTypeCheckpoint, code, message)
}

// NewCalibrationError creates a calibration lookup error
func NewCalibrationError(code, message string) *AppError {
	return NewAppError(ErrorTypeCalibration, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewPartitionConflictError creates the error returned when a write would
// silently overwrite an already committed partition
func NewPartitionConflictError(partition string) *AppError {
	return NewAppError(ErrorTypeStorage, CodePartitionConflict,
		fmt.Sprintf("partition %q already committed; pass overwrite to replace it", partition))
}

// NewIngestionError creates an ingestion error
func NewIngestionError(code, message string) *AppError {
	return NewAppError(ErrorTypeIngestion, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// IsErrorType reports whether err is an AppError of the given type
func IsErrorType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// IsRunFatal reports whether an error must abort the whole run rather than
// just the current batch. Checkpoint and storage failures risk silent
// duplication or loss; schema and calibration failures are batch-scoped.
func IsRunFatal(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Type {
	case ErrorTypeCheckpoint, ErrorTypeStorage, ErrorTypeConfiguration:
		return true
	default:
		return false
	}
}

// Error codes for different error scenarios
const (
	// Schema error codes
	CodeMissingColumn      = "MISSING_COLUMN"
	CodeInvalidColumnType  = "INVALID_COLUMN_TYPE"
	CodeUnknownReadingType = "UNKNOWN_READING_TYPE"
	CodeEmptyBatch         = "EMPTY_BATCH"

	// Checkpoint error codes
	CodeCheckpointUnreadable  = "CHECKPOINT_UNREADABLE"
	CodeCheckpointCorrupt     = "CHECKPOINT_CORRUPT"
	CodeCheckpointWriteFailed = "CHECKPOINT_WRITE_FAILED"

	// Calibration error codes
	CodeProfileNotFound = "PROFILE_NOT_FOUND"
	CodeProfileInvalid  = "PROFILE_INVALID"

	// Storage error codes
	CodePartitionConflict = "PARTITION_CONFLICT"
	CodeWriteFailed       = "WRITE_FAILED"
	CodeConnectionFailed  = "CONNECTION_FAILED"

	// Ingestion error codes
	CodeFileUnreadable  = "FILE_UNREADABLE"
	CodeInvalidFilename = "INVALID_FILENAME"

	// Configuration error codes
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeMissingConfig = "MISSING_CONFIG"
)
