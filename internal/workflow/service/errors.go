package service

import (
	"errors"

	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/sentinel"
)

var (
	errWorkflowNotFound = dErrors.New(dErrors.CodeNotFound, "workflow not found")
	errNotPending       = dErrors.New(dErrors.CodeWorkflowNotPending, "workflow is no longer pending")
	errExpired          = dErrors.New(dErrors.CodeWorkflowExpired, "workflow has expired")
	errMissingCaller    = dErrors.New(dErrors.CodeUnauthorized, "missing caller identity")
)

// wrapStoreErr translates store sentinels into domain errors. Domain errors
// pass through unchanged; anything else is a dependency failure.
func wrapStoreErr(err error, action string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return errWorkflowNotFound
	case errors.Is(err, sentinel.ErrConflict):
		// The guarded update lost a race with another transition.
		return errNotPending
	default:
		return dErrors.Wrap(err, dErrors.CodeDependencyFailure, action)
	}
}
