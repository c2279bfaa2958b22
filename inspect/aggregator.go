package inspect

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb/encoding/mvt"

	"github.com/nullisland/tilekit/errs"
)

const emptyTileThreshold = 50

// TileCoord addresses a single tile for the single-tile summary phase.
type TileCoord struct {
	Z    uint8
	X, Y uint32
}

// BucketOrder selects how BucketTiles are ordered after the histogram
// pass collects them (spec.md §4.7 phase 5: "sort by size or by (z, x, y)
// after the pass").
type BucketOrder int

const (
	BucketOrderBySize BucketOrder = iota
	BucketOrderByCoord
)

// Options configures which of spec.md §4.7's phases a Run performs; zero
// values disable the optional ones. The histogram pass runs only when
// Buckets > 0; top-N, the bucket listing and recommendations come out of
// that pass, so Buckets == 0 disables them too.
type Options struct {
	Zoom         *uint8
	Buckets      int
	MaxTileBytes uint64
	TopN         int
	BucketIndex  *int
	BucketLimit  int
	BucketOrder  BucketOrder
	Sampling     Sampling
	LayerSummary bool
	Recommend    bool
	SingleTile   *TileCoord
}

func (o Options) zoomMatches(z uint8) bool {
	return o.Zoom == nil || *o.Zoom == z
}

// Run performs as many streaming passes over src as Options requires and
// assembles a Report. Each pass is independent (spec.md §4.7: "A Phase is
// one streaming pass"); none materialises the whole archive in memory.
func Run(src TileSource, metadata map[string]interface{}, opts Options) (*Report, error) {
	report := &Report{
		Metadata:         metadata,
		PerZoomHistogram: make(map[uint8]*Histogram),
	}

	total, err := src.TotalTiles()
	if err != nil {
		return nil, err
	}

	countResult, err := countPass(src, total, opts)
	if err != nil {
		return nil, err
	}
	report.Overall = countResult.overall
	report.EmptyTileCount = countResult.emptyCount
	report.OverLimitCount = countResult.overLimitCount
	report.Sampled = opts.Sampling.Active()
	report.SampleTotalTiles = countResult.sampleTotalSeen
	report.SampleUsedTiles = countResult.overall.Count
	if report.Overall.Count > 0 {
		report.EmptyRatio = float64(countResult.emptyCount) / float64(report.Overall.Count)
	}
	for z, s := range countResult.perZoom {
		report.PerZoom = append(report.PerZoom, ZoomStats{Zoom: z, Stats: *s})
	}
	sort.Slice(report.PerZoom, func(i, j int) bool { return report.PerZoom[i].Zoom < report.PerZoom[j].Zoom })

	if opts.Buckets > 0 {
		histResult, err := histogramPass(src, total, opts, countResult)
		if err != nil {
			return nil, err
		}
		report.OverallHistogram = histResult.overall
		report.PerZoomHistogram = histResult.perZoom
		report.TopTiles = histResult.topN
		report.BucketIndex = opts.BucketIndex
		report.BucketTiles = sortBucketTiles(histResult.bucketTiles, opts.BucketOrder)

		if opts.Recommend {
			report.Recommendations = recommend(report.OverallHistogram)
		}
	}

	if opts.LayerSummary {
		summary, err := layerSummaryPass(src, total, opts, countResult.sampleTotalSeen, countResult.overall.Count)
		if err != nil {
			return nil, err
		}
		report.FileLayerSummary = summary
	}

	if opts.SingleTile != nil {
		summary, err := singleTilePass(src, *opts.SingleTile)
		if err != nil {
			return nil, err
		}
		report.SingleTile = summary
	}

	return report, nil
}

// sortBucketTiles orders the bucket-listing phase's collected tiles per
// spec.md §4.7 phase 5: no ordering guarantee is made during the pass
// itself (spec.md §5c), only after it finishes.
func sortBucketTiles(tiles []TopTile, order BucketOrder) []TopTile {
	out := make([]TopTile, len(tiles))
	copy(out, tiles)
	switch order {
	case BucketOrderByCoord:
		sort.Slice(out, func(i, j int) bool {
			if out[i].Z != out[j].Z {
				return out[i].Z < out[j].Z
			}
			if out[i].X != out[j].X {
				return out[i].X < out[j].X
			}
			return out[i].Y < out[j].Y
		})
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].Bytes > out[j].Bytes })
	}
	return out
}

// singleTilePass does the direct, non-streaming lookup of spec.md §4.7
// phase 7: a single random-access GetTile followed by an MVT decode, with
// no other pass's accumulators touched.
func singleTilePass(src TileSource, coord TileCoord) (*TileSummary, error) {
	data, ok, err := src.GetTile(coord.Z, coord.X, coord.Y)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.TileNotFound, fmt.Errorf("no tile at z=%d x=%d y=%d", coord.Z, coord.X, coord.Y))
	}
	return singleTileSummary(coord.Z, coord.X, coord.Y, data)
}

type countPassResult struct {
	overall         CountStats
	perZoom         map[uint8]*CountStats
	emptyCount      uint64
	overLimitCount  uint64
	minLen, maxLen  uint64
	perZoomMinMax   map[uint8][2]uint64
	sampleTotalSeen uint64
}

func countPass(src TileSource, total uint64, opts Options) (*countPassResult, error) {
	res := &countPassResult{
		perZoom:       make(map[uint8]*CountStats),
		perZoomMinMax: make(map[uint8][2]uint64),
		minLen:        math.MaxUint64,
	}

	var ordinal uint64
	err := src.ForEachTile(false, func(rec TileRecord) error {
		if !opts.zoomMatches(rec.Z) {
			return nil
		}
		ordinal++
		res.sampleTotalSeen++
		if !opts.Sampling.Keep(ordinal, total) {
			return nil
		}

		res.overall.add(rec.Length)
		if rec.Length < res.minLen {
			res.minLen = rec.Length
		}
		if rec.Length > res.maxLen {
			res.maxLen = rec.Length
		}
		if rec.Length <= emptyTileThreshold {
			res.emptyCount++
		}
		if opts.MaxTileBytes > 0 && rec.Length > opts.MaxTileBytes {
			res.overLimitCount++
		}

		zs, ok := res.perZoom[rec.Z]
		if !ok {
			zs = &CountStats{}
			res.perZoom[rec.Z] = zs
		}
		zs.add(rec.Length)

		mm, seen := res.perZoomMinMax[rec.Z]
		if !seen {
			mm[0], mm[1] = rec.Length, rec.Length
		} else {
			if rec.Length < mm[0] {
				mm[0] = rec.Length
			}
			if rec.Length > mm[1] {
				mm[1] = rec.Length
			}
		}
		res.perZoomMinMax[rec.Z] = mm

		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.overall.Count == 0 {
		res.minLen, res.maxLen = 0, 0
	}
	return res, nil
}

type histogramPassResult struct {
	overall     *Histogram
	perZoom     map[uint8]*Histogram
	topN        []TopTile
	bucketTiles []TopTile
}

func histogramPass(src TileSource, total uint64, opts Options, counts *countPassResult) (*histogramPassResult, error) {
	res := &histogramPassResult{perZoom: make(map[uint8]*Histogram)}

	overallBuilder := newHistogramBuilder(counts.minLen, counts.maxLen, opts.Buckets, opts.MaxTileBytes)
	perZoomBuilders := make(map[uint8]*histogramBuilder)
	for z, mm := range counts.perZoomMinMax {
		perZoomBuilders[z] = newHistogramBuilder(mm[0], mm[1], opts.Buckets, opts.MaxTileBytes)
	}

	topHeap := newTopNHeap(opts.TopN)
	var bucketCandidates []TopTile

	var ordinal uint64
	err := src.ForEachTile(false, func(rec TileRecord) error {
		if !opts.zoomMatches(rec.Z) {
			return nil
		}
		ordinal++
		if !opts.Sampling.Keep(ordinal, total) {
			return nil
		}

		overallBuilder.add(rec.Length)
		if b, ok := perZoomBuilders[rec.Z]; ok {
			b.add(rec.Length)
		}

		tile := TopTile{Z: rec.Z, X: rec.X, Y: rec.Y, Bytes: rec.Length}
		topHeap.Offer(tile)

		if opts.BucketIndex != nil {
			idx := overallBuilder.bucketFor(rec.Length)
			if idx == *opts.BucketIndex && (opts.BucketLimit <= 0 || len(bucketCandidates) < opts.BucketLimit) {
				bucketCandidates = append(bucketCandidates, tile)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	res.overall = overallBuilder.finish()
	for z, b := range perZoomBuilders {
		res.perZoom[z] = b.finish()
	}
	res.topN = topHeap.Sorted()
	res.bucketTiles = bucketCandidates

	return res, nil
}

type histogramBuilder struct {
	minLen, maxLen, bucketSize uint64
	maxTileBytes               uint64
	buckets                    []HistogramBucket
	totalCount                 uint64
	totalBytes                 uint64
}

func newHistogramBuilder(minLen, maxLen uint64, buckets int, maxTileBytes uint64) *histogramBuilder {
	b := &histogramBuilder{minLen: minLen, maxLen: maxLen, maxTileBytes: maxTileBytes}
	if buckets <= 0 {
		return b
	}
	span := uint64(0)
	if maxLen > minLen {
		span = maxLen - minLen
	}
	bucketSize := (span + uint64(buckets) - 1) / uint64(buckets)
	if bucketSize == 0 {
		bucketSize = 1
	}
	b.bucketSize = bucketSize
	b.buckets = make([]HistogramBucket, buckets)
	for i := range b.buckets {
		b.buckets[i].Index = i
	}
	return b
}

func (b *histogramBuilder) bucketFor(length uint64) int {
	if len(b.buckets) == 0 {
		return 0
	}
	if b.bucketSize == 0 {
		return 0
	}
	idx := int((length - b.minLen) / b.bucketSize)
	if idx >= len(b.buckets) {
		idx = len(b.buckets) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func (b *histogramBuilder) add(length uint64) {
	if len(b.buckets) == 0 {
		return
	}
	idx := b.bucketFor(length)
	bucket := &b.buckets[idx]
	bucket.Count++
	bucket.TotalBytes += length
	b.totalCount++
	b.totalBytes += length
}

func (b *histogramBuilder) finish() *Histogram {
	h := &Histogram{BucketSize: b.bucketSize, MinLen: b.minLen, MaxLen: b.maxLen}
	if len(b.buckets) == 0 {
		return h
	}

	var cumCount, cumBytes uint64
	for i := range b.buckets {
		bucket := &b.buckets[i]
		cumCount += bucket.Count
		cumBytes += bucket.TotalBytes

		if bucket.Count > 0 {
			bucket.RunningAvgBytes = float64(cumBytes) / float64(cumCount)
		}
		if b.totalCount > 0 {
			bucket.PctTiles = float64(bucket.Count) / float64(b.totalCount)
			bucket.CumulativePctTiles = float64(cumCount) / float64(b.totalCount)
		}
		if b.totalBytes > 0 {
			bucket.PctBytes = float64(bucket.TotalBytes) / float64(b.totalBytes)
			bucket.CumulativePctBytes = float64(cumBytes) / float64(b.totalBytes)
		}
		if b.maxTileBytes > 0 {
			bucket.AvgOverLimit = bucket.RunningAvgBytes > float64(b.maxTileBytes)
			bucket.AvgNearLimit = !bucket.AvgOverLimit && bucket.RunningAvgBytes >= 0.9*float64(b.maxTileBytes)
		}
	}

	h.Buckets = b.buckets
	return h
}

// recommend implements spec.md §4.7 phase 8: over-limit buckets first,
// near-limit buckets only if none are over.
func recommend(h *Histogram) []int {
	if h == nil {
		return nil
	}
	var over, near []int
	for _, bucket := range h.Buckets {
		if bucket.AvgOverLimit {
			over = append(over, bucket.Index)
		} else if bucket.AvgNearLimit {
			near = append(near, bucket.Index)
		}
	}
	if len(over) > 0 {
		return over
	}
	return near
}

func layerSummaryPass(src TileSource, total uint64, opts Options, sampleTotal, sampleUsed uint64) (map[string]LayerSummary, error) {
	acc := make(map[string]*layerAccum)
	weight := 1.0
	if sampleUsed > 0 && sampleTotal > sampleUsed {
		weight = float64(sampleTotal) / float64(sampleUsed)
	}

	var ordinal uint64
	err := src.ForEachTile(true, func(rec TileRecord) error {
		if !opts.zoomMatches(rec.Z) {
			return nil
		}
		ordinal++
		if !opts.Sampling.Keep(ordinal, total) || rec.Data == nil {
			return nil
		}

		layers, err := mvt.Unmarshal(rec.Data)
		if err != nil {
			return errs.New(errs.MvtDecode, err)
		}
		for _, layer := range layers {
			a, ok := acc[layer.Name]
			if !ok {
				a = newLayerAccum()
				acc[layer.Name] = a
			}
			a.addLayer(layer, weight)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]LayerSummary, len(acc))
	for name, a := range acc {
		out[name] = a.finish()
	}
	return out, nil
}
