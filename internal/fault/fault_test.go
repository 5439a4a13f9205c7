package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := New(EmptyGrammar, "reload_grammar", "no groups left").WithCulture("en-US")
	assert.Equal(t, "reload_grammar: EMPTY_GRAMMAR: no groups left (culture=en-US)", err.Error())
}

func TestWrap_UsesDescriptionAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(LoadRejected, "load", cause)

	assert.Contains(t, err.Error(), "grammar isn't suitable for the current culture")
	assert.ErrorIs(t, err, cause)
}

func TestIs_WrappedErrors(t *testing.T) {
	inner := New(NoRecognizerForCulture, "create", "none installed")
	wrapped := fmt.Errorf("reinitialize: %w", inner)

	assert.True(t, Is(wrapped, NoRecognizerForCulture))
	assert.False(t, Is(wrapped, CultureNotFound))
	assert.False(t, Is(errors.New("plain"), CultureNotFound))
	assert.False(t, Is(nil, CultureNotFound))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, UpdateTimeout, CodeOf(fmt.Errorf("x: %w", New(UpdateTimeout, "", ""))))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestWithCulture_DoesNotMutateOriginal(t *testing.T) {
	orig := New(CultureNotFound, "parse", "bad tag")
	annotated := orig.WithCulture("xx-INVALID")

	assert.Empty(t, orig.Culture)
	assert.Equal(t, "xx-INVALID", annotated.Culture)
}
