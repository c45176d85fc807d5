package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

func TestErrorRendering(t *testing.T) {
	err := errors.New().New(errors.ErrInvalidConfig)
	assert.Equal(t, "Invalid configuration", err.Error())

	err = errors.New().WithData(errors.ErrInvalidConfig, "zone cpu")
	assert.Equal(t, "Invalid configuration: zone cpu", err.Error())

	cause := stderrors.New("boom")
	err = errors.New().Wrap(errors.ErrReadConfig, cause)
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	err := errors.New().New(errors.ErrTimeout)
	assert.Equal(t, errors.ErrTimeout, errors.CodeOf(err))

	assert.Equal(t, errors.ErrInternal, errors.CodeOf(stderrors.New("plain")))
}

func TestHasCode(t *testing.T) {
	inner := errors.New().New(errors.ErrTimeout)
	outer := errors.New().Wrap(errors.ErrUnavailable, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrUnavailable), "Expected the outermost code to win")
	assert.False(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.False(t, errors.HasCode(stderrors.New("plain"), errors.ErrTimeout))
}
