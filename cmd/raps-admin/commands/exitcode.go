package commands

import (
	"errors"
	"strings"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/filter"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/operations"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
)

// ExitCode values follow the conventions scripts rely on.
type ExitCode int

const (
	ExitSuccess          ExitCode = 0
	ExitInvalidArguments ExitCode = 2
	ExitAuthFailure      ExitCode = 3
	ExitNotFound         ExitCode = 4
	ExitRemoteError      ExitCode = 5
	ExitInternalError    ExitCode = 6
)

// ExitCodeFromError maps an error to the exit code reported to the shell.
func ExitCodeFromError(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}

	var invalidFilter *filter.InvalidFilterError
	var invalidOperation *state.InvalidOperationError
	if errors.As(err, &invalidFilter) || errors.As(err, &invalidOperation) {
		return ExitInvalidArguments
	}

	var userNotFound *operations.UserNotFoundError
	var operationNotFound *state.OperationNotFoundError
	if errors.As(err, &userNotFound) || errors.As(err, &operationNotFound) {
		return ExitNotFound
	}

	var stateErr *state.StateError
	if errors.As(err, &stateErr) {
		return ExitInternalError
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "401"),
		strings.Contains(lower, "403"),
		strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "forbidden"),
		strings.Contains(lower, "access token"):
		return ExitAuthFailure
	case strings.Contains(lower, "404"), strings.Contains(lower, "not found"):
		return ExitNotFound
	case strings.Contains(lower, "request failed"), strings.Contains(lower, "connection"):
		return ExitRemoteError
	}
	return ExitInternalError
}
