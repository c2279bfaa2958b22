package prune

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigNormalizedFillsDefaults(t *testing.T) {
	c := Config{}.normalized()
	assert.Equal(t, 1, c.Threads)
	assert.Equal(t, 1, c.Readers)
	assert.Equal(t, 1000, c.IOBatch)
}

func TestConfigNormalizedKeepsExplicitValues(t *testing.T) {
	c := Config{Threads: 4, Readers: 2, IOBatch: 50}.normalized()
	assert.Equal(t, 4, c.Threads)
	assert.Equal(t, 2, c.Readers)
	assert.Equal(t, 50, c.IOBatch)
}

func TestConfigValidateRejectsNegativeFields(t *testing.T) {
	require.Error(t, Config{Threads: -1}.validate())
	require.Error(t, Config{Readers: -1}.validate())
	require.Error(t, Config{IOBatch: -1}.validate())
	require.NoError(t, Config{}.validate())
}
