package inspect

// CountStats is the {count, total_bytes, max_bytes} accumulator spec.md
// §4.7 phase 1 keeps overall and per zoom.
type CountStats struct {
	Count      uint64
	TotalBytes uint64
	MaxBytes   uint64
}

func (s *CountStats) add(length uint64) {
	s.Count++
	s.TotalBytes += length
	if length > s.MaxBytes {
		s.MaxBytes = length
	}
}

// Avg returns the mean tile size, 0 if Count is 0.
func (s CountStats) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.TotalBytes) / float64(s.Count)
}

// ZoomStats is one per-zoom row of the Report.
type ZoomStats struct {
	Zoom  uint8
	Stats CountStats
}

// HistogramBucket is one slice of a byte-size distribution (spec.md §4.7
// phase 2/3).
type HistogramBucket struct {
	Index              int
	Count              uint64
	TotalBytes         uint64
	RunningAvgBytes    float64
	PctTiles           float64
	PctBytes           float64
	CumulativePctTiles float64
	CumulativePctBytes float64
	AvgOverLimit       bool
	AvgNearLimit       bool
}

// Histogram is a full bucketed byte-size distribution over some tile set.
type Histogram struct {
	BucketSize uint64
	MinLen     uint64
	MaxLen     uint64
	Buckets    []HistogramBucket
}

// TopTile identifies one tile in the top-N or bucket listing.
type TopTile struct {
	Z     uint8
	X, Y  uint32
	Bytes uint64
}

// LayerSummary is the accumulated whole-file per-source-layer statistics
// of spec.md §4.7 phase 6.
type LayerSummary struct {
	FeatureCount   float64
	VertexCount    uint64
	PropertyKeys   []string
	PropertyValues int
}

// LayerDetail is one layer's contribution to a TileSummary.
type LayerDetail struct {
	Name          string
	FeatureCount  int
	VertexCount   uint64
	PropertyKeys  []string
}

// TileSummary is the single-tile decode-and-report output of spec.md §4.7
// phase 7.
type TileSummary struct {
	Z, X, Y uint32
	Bytes   uint64
	Layers  []LayerDetail
}

// Report is the full in-memory inspection result handed to the CLI
// collaborator for rendering (spec.md §3/§6). Every field is optional
// except Metadata/Overall/PerZoom/EmptyTileCount/EmptyRatio, populated
// according to which phases Options requested.
type Report struct {
	Metadata map[string]interface{}

	Overall        CountStats
	PerZoom        []ZoomStats
	EmptyTileCount uint64
	EmptyRatio     float64
	OverLimitCount uint64

	Sampled          bool
	SampleTotalTiles uint64
	SampleUsedTiles  uint64

	OverallHistogram *Histogram
	PerZoomHistogram map[uint8]*Histogram

	FileLayerSummary map[string]LayerSummary

	TopTiles []TopTile

	BucketIndex *int
	BucketTiles []TopTile

	SingleTile *TileSummary

	Recommendations []int
}
