package inspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSamplingZeroValueKeepsEverything(t *testing.T) {
	var s Sampling
	assert.False(t, s.Active())
	assert.True(t, s.Keep(1, 100))
	assert.True(t, s.Keep(100, 100))
}

func TestSamplingCountKeepsUpToK(t *testing.T) {
	s := Count(3)
	assert.True(t, s.Active())
	assert.True(t, s.Keep(1, 10))
	assert.True(t, s.Keep(3, 10))
	assert.False(t, s.Keep(4, 10))
}

func TestSamplingRatioEdges(t *testing.T) {
	full := Ratio(1.0)
	assert.True(t, full.Keep(1, 10))
	assert.True(t, full.Keep(10, 10))

	none := Ratio(0.0)
	assert.False(t, none.Keep(1, 10))
	assert.False(t, none.Keep(10, 10))
}

func TestSamplingRatioDeterministic(t *testing.T) {
	s := Ratio(0.5)
	first := s.Keep(7, 50)
	second := s.Keep(7, 50)
	assert.Equal(t, first, second, "identical (ordinal, total) must yield identical sampling decisions")
}

func TestSplitmix64VariesByInput(t *testing.T) {
	assert.NotEqual(t, splitmix64(1), splitmix64(2))
}
