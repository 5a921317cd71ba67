package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/dargueta/fat32shell/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorWithMessage(t *testing.T) {
	err := errors.New(errors.NotFound).WithMessage("FOO.TXT")
	assert.Equal(t, "no such file or directory: FOO.TXT", err.Error())
	assert.True(t, err.Is(errors.New(errors.NotFound)))
}

func TestErrorWrap(t *testing.T) {
	cause := stderrors.New("short read")
	err := errors.New(errors.IOError).WrapError(cause)

	assert.Equal(t, "input/output error: short read", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestErrorIsDistinguishesKinds(t *testing.T) {
	assert.False(t, errors.New(errors.NotFound).Is(errors.New(errors.NotADirectory)))
}
