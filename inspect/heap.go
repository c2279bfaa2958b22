package inspect

import "container/heap"

// topNHeap is a bounded min-heap over tile byte size: once it holds N
// entries, pushing a larger tile evicts the current smallest (spec.md
// §4.7 phase 4). A tile no larger than the current smallest is not admitted.
// Ties are broken by insertion sequence: among equal sizes Less puts the
// earlier-inserted tile first, and Sorted lists equal sizes in insertion
// order.
type topNHeap struct {
	n     int
	items []TopTile
	seq   []uint64 // insertion sequence, parallel to items, for stable tie-break
	next  uint64
}

func newTopNHeap(n int) *topNHeap {
	return &topNHeap{n: n}
}

func (h *topNHeap) Len() int { return len(h.items) }
func (h *topNHeap) Less(i, j int) bool {
	if h.items[i].Bytes != h.items[j].Bytes {
		return h.items[i].Bytes < h.items[j].Bytes
	}
	return h.seq[i] < h.seq[j]
}
func (h *topNHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.seq[i], h.seq[j] = h.seq[j], h.seq[i]
}
func (h *topNHeap) Push(x interface{}) {
	h.items = append(h.items, x.(TopTile))
	h.seq = append(h.seq, h.next)
	h.next++
}
func (h *topNHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	h.seq = h.seq[:n-1]
	return item
}

// Offer considers t for inclusion in the top N.
func (h *topNHeap) Offer(t TopTile) {
	if h.n <= 0 {
		return
	}
	if h.Len() < h.n {
		heap.Push(h, t)
		return
	}
	if t.Bytes > h.items[0].Bytes {
		heap.Pop(h)
		heap.Push(h, t)
	}
}

// Sorted returns the retained tiles sorted descending by bytes.
func (h *topNHeap) Sorted() []TopTile {
	out := make([]TopTile, len(h.items))
	copy(out, h.items)
	seq := make([]uint64, len(h.seq))
	copy(seq, h.seq)
	// Selection sort descending by bytes, earlier insertion first on ties,
	// is fine at top-N scale (N is small).
	for i := 0; i < len(out); i++ {
		maxIdx := i
		for j := i + 1; j < len(out); j++ {
			if out[j].Bytes > out[maxIdx].Bytes || (out[j].Bytes == out[maxIdx].Bytes && seq[j] < seq[maxIdx]) {
				maxIdx = j
			}
		}
		out[i], out[maxIdx] = out[maxIdx], out[i]
		seq[i], seq[maxIdx] = seq[maxIdx], seq[i]
	}
	return out
}
