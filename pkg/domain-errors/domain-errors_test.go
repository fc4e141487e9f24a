package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestMessageFallsBackToCode() {
	s.Equal("workflow not found", New(CodeNotFound, "workflow not found").Error())
	s.Equal("not_found", (&Error{Code: CodeNotFound}).Error())
	s.Equal("limit 5000 exceeds 1000", Newf(CodeInvalidRequest, "limit %d exceeds %d", 5000, 1000).Error())
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	expired := fmt.Errorf("record decision: %w", New(CodeWorkflowExpired, "expired"))

	s.ErrorIs(expired, &Error{Code: CodeWorkflowExpired})
	s.NotErrorIs(expired, &Error{Code: CodeWorkflowNotPending})
	s.NotErrorIs(errors.New("expired"), &Error{Code: CodeWorkflowExpired})
}

func (s *DomainErrorsSuite) TestWrapKeepsInnerCode() {
	root := errors.New("connection refused")

	s.Run("plain cause takes the given code", func() {
		err := Wrap(root, CodeDependencyFailure, "store unavailable")
		s.Equal(CodeDependencyFailure, CodeOf(err))
		s.ErrorIs(err, root)
		s.Equal("store unavailable", err.Error())
	})

	s.Run("domain cause keeps its code", func() {
		inner := New(CodeNotFound, "workflow not found")
		err := Wrap(inner, CodeInternal, "load workflow")
		s.True(HasCode(err, CodeNotFound))
		s.False(HasCode(err, CodeInternal))
		s.ErrorIs(err, inner)
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeTimeout, CodeOf(fmt.Errorf("query: %w", New(CodeTimeout, "slow"))))
	s.Equal(CodeInternal, CodeOf(errors.New("boom")))
	s.Equal(CodeInternal, CodeOf(nil))
	s.False(HasCode(nil, CodeInternal))
}

func (s *DomainErrorsSuite) TestMalformed() {
	for _, c := range []Code{CodeInvalidRequest, CodeValidation, CodeInvalidFormat} {
		s.True(c.Malformed(), c)
	}
	for _, c := range []Code{CodeDependencyFailure, CodeTimeout, CodeInternal, CodeNotFound} {
		s.False(c.Malformed(), c)
	}
}
