package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSample = New(Conflict, "sample conflict")

func TestKindOf_Sentinel(t *testing.T) {
	assert.Equal(t, Conflict, KindOf(errSample))
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("%w: cannot transition from A to B", New(InvalidStateTransition, "bad transition"))

	assert.Equal(t, InvalidStateTransition, KindOf(err))
	assert.True(t, Is(err, InvalidStateTransition))
}

func TestKindOf_PlainErrorIsUnexpected(t *testing.T) {
	assert.Equal(t, Unexpected, KindOf(errors.New("connection reset")))
}

func TestIs_Nil(t *testing.T) {
	assert.False(t, Is(nil, Unexpected))
}

func TestErrorsIs_Sentinel(t *testing.T) {
	err := fmt.Errorf("load: %w", errSample)

	assert.ErrorIs(t, err, errSample)
}

func TestError_MessageIncludesCause(t *testing.T) {
	err := Validation("invalid input", errors.New("subject is required"))

	assert.Equal(t, "invalid input: subject is required", err.Error())
	assert.Equal(t, ValidationFailure, KindOf(err))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "unexpected", Unexpected.String())
	assert.Equal(t, "invalid_state_transition", InvalidStateTransition.String())
}
