package validation

import dErrors "gatekeeper/pkg/domain-errors"

// MaxBodySize is the maximum allowed request body size (64 KB).
const MaxBodySize = 64 * 1024

// Identifier and free-text limits enforced at the HTTP boundary.
const (
	MaxOperationIDLength = 256
	MaxApproverIDLength  = 128
	MaxReasonLength      = 1024
	MaxFeedbackLength    = 4096
	MaxConditions        = 20
	MaxConditionLength   = 512
	MaxEventTypesFilter  = 32
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.Newf(dErrors.CodeInvalidRequest, "too many %s: max %d allowed", fieldName, max)
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.Newf(dErrors.CodeInvalidRequest, "%s exceeds max length of %d", fieldName, max)
	}
	return nil
}

// CheckEachStringLength reports the first element of values longer than max.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for i, v := range values {
		if len(v) > max {
			return dErrors.Newf(dErrors.CodeInvalidRequest, "%s %d exceeds max length of %d", fieldName, i+1, max)
		}
	}
	return nil
}
