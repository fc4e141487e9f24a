package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "gatekeeper/pkg/domain-errors"
)

func TestRunConcurrentTalliesByCode(t *testing.T) {
	out := RunConcurrent(6, func(i int) error {
		switch i % 3 {
		case 0:
			return nil
		case 1:
			return dErrors.New(dErrors.CodeWorkflowNotPending, "decided")
		}
		return errors.New("boom")
	})

	assert.Equal(t, 2, out.Successes())
	assert.Equal(t, 2, out.Count(dErrors.CodeWorkflowNotPending))
	assert.Equal(t, 2, out.Count(dErrors.CodeInternal))
	assert.Equal(t, 6, out.Total())
}
