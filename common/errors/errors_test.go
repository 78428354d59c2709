package errors

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, ExitCode(0), ExitCodeOf(nil))
	assert.Nil(t, NewError(nil, InitFailureExitCode))

	err := NewError(pkgerrors.New("no running channels"), InitFailureExitCode)
	assert.Equal(t, InitFailureExitCode, ExitCodeOf(err))
	assert.Equal(t, "no running channels", err.Error())
	assert.Equal(t, "no running channels", pkgerrors.Cause(err).Error())

	assert.Equal(t, GenericFailureExitCode, ExitCodeOf(pkgerrors.New("boom")))
}
