package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchError_Is(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&DispatchError{TaskID: 7, Err: cause})

	assert.ErrorIs(t, err, ErrDispatchFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "task 7")

	var de *DispatchError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, int64(7), de.TaskID)
}

func TestRemoteError_Is(t *testing.T) {
	cause := errors.New("i/o timeout")
	err := error(&RemoteError{ParentID: 3, Stage: StageTransport, Err: cause})

	assert.ErrorIs(t, err, ErrRemoteResolution)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTaskNotFound)

	withCode := &RemoteError{ParentID: 3, Stage: StageStatus, StatusCode: 502, Err: cause}
	assert.Contains(t, withCode.Error(), "http 502")
}

func TestDBConstraintError_Unwrap(t *testing.T) {
	cause := errors.New("duplicate key")
	err := error(&DBConstraintError{DBError: *NewDBError("insert_task", cause), Constraint: "task_pkey"})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "task_pkey")
}
