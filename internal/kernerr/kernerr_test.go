package kernerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWrapsUnderlyingError(t *testing.T) {
	cause := errors.New("disk full")
	err := New(IOError, cause)

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, IOError, kind)
	require.True(t, errors.Is(err, cause))
}

func TestNewWithNilReturnsNil(t *testing.T) {
	assert.NoError(t, New(IOError, nil))
}

func TestNewfBuildsStandaloneKindedError(t *testing.T) {
	err := Newf(ValidationError, "control.dt must be positive, got %d", -1)
	assert.True(t, Is(err, ValidationError))
	assert.False(t, Is(err, IOError))
	assert.Contains(t, err.Error(), "control.dt must be positive")
}

func TestKindOfWalksWrappedChain(t *testing.T) {
	base := Newf(KeyError, "no such prototype %q", "enrichment")
	wrapped := fmt.Errorf("loadArchetypes: %w", base)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KeyError, kind)
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}
