package pmtiles

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassesOnWellFormedArchive(t *testing.T) {
	path := buildTestArchive(t)
	assert.NoError(t, Validate(path))
}

func TestValidateCatchesTruncatedFile(t *testing.T) {
	path := buildTestArchive(t)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-1))

	assert.Error(t, Validate(path))
}

func TestValidateCatchesBadMinZoom(t *testing.T) {
	path := buildTestArchive(t)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	header, err := DeserializeHeader(data[:HeaderV3LenBytes])
	require.NoError(t, err)
	header.MinZoom = 5
	copy(data[:HeaderV3LenBytes], SerializeHeader(header))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	assert.Error(t, Validate(path))
}
