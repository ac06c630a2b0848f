package errors

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrUnsupportedTaskType = errors.New("unsupported task type")
	ErrInvalidParams       = errors.New("invalid task params")
	ErrDispatchFailure     = errors.New("worker dispatch failed")
	ErrRemoteResolution    = errors.New("remote status resolution failed")
	ErrQueueFull           = errors.New("dispatch queue full")
	ErrStoreClosed         = errors.New("store is not open")
)

// DispatchError reports a task that was stored but whose worker wake-up could not be
// enqueued. The task stays pending until the next successful dispatch.
type DispatchError struct {
	TaskID int64
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("task %d stored but %s: %v", e.TaskID, ErrDispatchFailure, e.Err)
}

func (e *DispatchError) Unwrap() []error {
	return []error{ErrDispatchFailure, e.Err}
}

// RemoteStage names the step of remote resolution that failed.
type RemoteStage string

const (
	StageParams    RemoteStage = "params"
	StageRequest   RemoteStage = "request"
	StageTransport RemoteStage = "transport"
	StageStatus    RemoteStage = "status"
	StageDecode    RemoteStage = "decode"
)

// RemoteError is returned when a parent task's status could not be resolved on a peer.
type RemoteError struct {
	ParentID   int64
	Stage      RemoteStage
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s for parent %d at %s (http %d): %v", ErrRemoteResolution, e.ParentID, e.Stage, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s for parent %d at %s: %v", ErrRemoteResolution, e.ParentID, e.Stage, e.Err)
}

func (e *RemoteError) Unwrap() []error {
	return []error{ErrRemoteResolution, e.Err}
}

// DBError describes a storage failure for a named operation.
type DBError struct {
	Op  string
	Err error
}

func NewDBError(op string, err error) *DBError {
	return &DBError{Op: op, Err: err}
}

func (e *DBError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *DBError) Unwrap() error {
	return e.Err
}

// DBConstraintError is a storage failure caused by a violated constraint.
type DBConstraintError struct {
	DBError
	Constraint string
}

func (e *DBConstraintError) Error() string {
	return fmt.Sprintf("store %s: constraint %q violated: %v", e.Op, e.Constraint, e.Err)
}
