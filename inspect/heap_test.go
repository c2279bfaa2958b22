package inspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopNHeapKeepsLargest(t *testing.T) {
	h := newTopNHeap(2)
	h.Offer(TopTile{Z: 0, X: 0, Y: 0, Bytes: 10})
	h.Offer(TopTile{Z: 0, X: 1, Y: 0, Bytes: 30})
	h.Offer(TopTile{Z: 0, X: 2, Y: 0, Bytes: 20})

	sorted := h.Sorted()
	assert.Len(t, sorted, 2)
	assert.Equal(t, uint64(30), sorted[0].Bytes)
	assert.Equal(t, uint64(20), sorted[1].Bytes)
}

func TestTopNHeapZeroNKeepsNothing(t *testing.T) {
	h := newTopNHeap(0)
	h.Offer(TopTile{Bytes: 10})
	assert.Empty(t, h.Sorted())
}

func TestTopNHeapFewerThanNEntries(t *testing.T) {
	h := newTopNHeap(5)
	h.Offer(TopTile{Bytes: 1})
	h.Offer(TopTile{Bytes: 2})
	assert.Len(t, h.Sorted(), 2)
}
