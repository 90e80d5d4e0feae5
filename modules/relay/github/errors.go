package github

import (
	"errors"
	"net/http"
)

// Error codes reported in the webhook response.
const (
	CodeUnauthorizedUser      = "UNAUTHORIZED_USER"
	CodeNotAPR                = "NOT_A_PR"
	CodeUnknownCommand        = "UNKNOWN_COMMAND"
	CodeMissingPackageName    = "MISSING_PACKAGE_NAME"
	CodeWorkflowTriggerFailed = "WORKFLOW_TRIGGER_FAILED"
)

// ErrDispatch is wrapped by every workflow dispatch failure.
var ErrDispatch = errors.New("github: workflow dispatch failed")

// CommandError is a rejected or failed command. It implements
// gateway.StatusError so the dispatcher answers with its status and code.
type CommandError struct {
	Code    string
	Message string
	Err     error
}

func (e *CommandError) Error() string { return e.Message }

func (e *CommandError) Unwrap() error { return e.Err }

// ErrorCode returns the machine readable code.
func (e *CommandError) ErrorCode() string { return e.Code }

// StatusCode maps the code to the HTTP status of the webhook response.
func (e *CommandError) StatusCode() int {
	switch e.Code {
	case CodeUnauthorizedUser:
		return http.StatusForbidden
	case CodeNotAPR:
		return http.StatusOK
	case CodeMissingPackageName:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func commandError(code, msg string, err error) *CommandError {
	return &CommandError{Code: code, Message: msg, Err: err}
}
