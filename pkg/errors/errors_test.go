package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorWrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(cause, ErrorTypeStorage, CodeWriteFailed, "partition write failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), CodeWriteFailed)

	var appErr *AppError
	require.True(t, errors.As(fmt.Errorf("run failed: %w", err), &appErr))
	assert.Equal(t, ErrorTypeStorage, appErr.Type)
}

func TestPartitionConflictError(t *testing.T) {
	err := NewPartitionConflictError("date=2024-03-15/sensor_id=field-01")

	assert.Equal(t, ErrorTypeStorage, err.Type)
	assert.Equal(t, CodePartitionConflict, err.Code)
	assert.Contains(t, err.Error(), "date=2024-03-15")
	assert.True(t, IsRunFatal(err))
}

func TestIsRunFatalScopes(t *testing.T) {
	assert.True(t, IsRunFatal(NewCheckpointError(CodeCheckpointCorrupt, "corrupt")))
	assert.True(t, IsRunFatal(NewStorageError(CodeWriteFailed, "write failed")))
	assert.True(t, IsRunFatal(NewConfigurationError(CodeInvalidConfig, "bad config")))

	// Batch-scoped failures skip the batch, never the run.
	assert.False(t, IsRunFatal(NewSchemaError(CodeMissingColumn, "missing column")))
	assert.False(t, IsRunFatal(NewCalibrationError(CodeProfileNotFound, "no profile")))
	assert.False(t, IsRunFatal(NewIngestionError(CodeFileUnreadable, "unreadable")))
	assert.False(t, IsRunFatal(errors.New("plain error")))
}

func TestIsErrorType(t *testing.T) {
	err := NewSchemaError(CodeEmptyBatch, "no rows")
	assert.True(t, IsErrorType(err, ErrorTypeSchema))
	assert.False(t, IsErrorType(err, ErrorTypeStorage))
	assert.True(t, IsErrorType(fmt.Errorf("wrapped: %w", err), ErrorTypeSchema))
}

func TestAppErrorIsMatchesTypeAndCode(t *testing.T) {
	err := NewSchemaError(CodeMissingColumn, "battery_level absent")
	target := NewSchemaError(CodeMissingColumn, "different message")

	assert.True(t, errors.Is(err, target))
	assert.False(t, errors.Is(err, NewSchemaError(CodeEmptyBatch, "")))
}
