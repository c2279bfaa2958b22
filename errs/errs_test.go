package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "malformed_header", MalformedHeader.String())
	assert.Equal(t, "tile_not_found", TileNotFound.String())
	assert.Equal(t, "unknown", Kind(999).String())
}

func TestErrorMessageWithAndWithoutCause(t *testing.T) {
	withCause := New(IO, errors.New("disk full"))
	assert.Equal(t, "io: disk full", withCause.Error())

	bare := New(Cancelled, nil)
	assert.Equal(t, "cancelled", bare.Error())
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	e := New(MvtDecode, cause)
	assert.Equal(t, cause, errors.Unwrap(e))
}

func TestIsMatchesDirectError(t *testing.T) {
	e := New(SchemaMismatch, nil)
	assert.True(t, Is(e, SchemaMismatch))
	assert.False(t, Is(e, IO))
}

func TestIsMatchesWrappedError(t *testing.T) {
	e := New(StyleParse, errors.New("bad filter"))
	wrapped := fmt.Errorf("parsing layer: %w", e)
	assert.True(t, Is(wrapped, StyleParse))
	assert.False(t, Is(wrapped, MvtEncode))
}

func TestIsFalseForNilAndForeignErrors(t *testing.T) {
	assert.False(t, Is(nil, IO))
	assert.False(t, Is(errors.New("plain"), IO))
}
