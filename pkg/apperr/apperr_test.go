package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	cause := errors.New("no rows")
	err := fmt.Errorf("resolve lead: %w", NotFound("lead not found", cause))

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.ErrorIs(t, err, cause)
}

func TestKindOfPlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "email is required", Validation("email is required").Error())
	assert.Equal(t, "save lead: dial tcp", Internal("save lead", errors.New("dial tcp")).Error())
}
