package provider

import (
	"errors"
	"fmt"
)

// JoinErrorCode identifies a known join failure mode. Each code maps to a
// distinct lifecycle notification.
type JoinErrorCode string

const (
	CodeInvalidMeetingURL     JoinErrorCode = "invalid_meeting_url"
	CodeBotNotAccepted        JoinErrorCode = "bot_not_accepted"
	CodeTimeoutWaitingToStart JoinErrorCode = "timeout_waiting_to_start"
	CodeBotRemoved            JoinErrorCode = "bot_removed"
	CodeAPIRequest            JoinErrorCode = "api_request"
	CodeInternalError         JoinErrorCode = "internal_error"
)

// JoinError is a typed join failure. Unknown errors are wrapped with
// CodeInternalError before routing through the error state.
type JoinError struct {
	Code JoinErrorCode
	Err  error
}

func NewJoinError(code JoinErrorCode, err error) *JoinError {
	return &JoinError{Code: code, Err: err}
}

func (e *JoinError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *JoinError) Unwrap() error {
	return e.Err
}

// AsJoinError extracts a JoinError from an error chain.
func AsJoinError(err error) (*JoinError, bool) {
	var je *JoinError
	if errors.As(err, &je) {
		return je, true
	}
	return nil, false
}

// CodeOf classifies an error; unknown errors get CodeInternalError.
func CodeOf(err error) JoinErrorCode {
	if je, ok := AsJoinError(err); ok {
		return je.Code
	}
	return CodeInternalError
}
