package service

import (
	"time"

	dErrors "gatekeeper/pkg/domain-errors"
)

func dependencyFailure(err error, action string) error {
	return dErrors.Wrap(err, dErrors.CodeDependencyFailure, action)
}

func validateRange(start, end time.Time, maxRange time.Duration) error {
	if start.IsZero() || end.IsZero() {
		return dErrors.New(dErrors.CodeInvalidRequest, "start and end are required")
	}
	if !end.After(start) {
		return dErrors.New(dErrors.CodeInvalidRequest, "end must be after start")
	}
	if end.Sub(start) > maxRange {
		return dErrors.Newf(dErrors.CodeInvalidRequest, "range exceeds the maximum of %s", maxRange)
	}
	return nil
}
