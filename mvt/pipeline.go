// Package mvt decodes, mutates, and re-encodes Mapbox Vector Tile payloads:
// style-driven layer and feature pruning, then optional geometry
// simplification, preserving the source tile's compression end to end
// (callers decompress before Prune and recompress after, per spec.md §4.6).
package mvt

import (
	"github.com/paulmach/orb/encoding/mvt"

	"github.com/nullisland/tilekit/errs"
	"github.com/nullisland/tilekit/style"
)

const defaultExtent = 4096

// MutationStats accumulates the per-mutation counters spec.md §4.6 asks
// the pipeline to record, mergeable across workers (commutative and
// associative, per spec.md §5).
type MutationStats struct {
	RemovedFeaturesByZoom map[uint8]int
	RemovedLayersByZoom   map[uint8][]string
	UnknownFilterTotal    int
	UnknownFilterByLayer  map[string]int
}

// NewMutationStats returns a zero-valued, ready-to-use MutationStats.
func NewMutationStats() *MutationStats {
	return &MutationStats{
		RemovedFeaturesByZoom: make(map[uint8]int),
		RemovedLayersByZoom:   make(map[uint8][]string),
		UnknownFilterByLayer:  make(map[string]int),
	}
}

// Merge folds other into s. Safe to call with a nil other.
func (s *MutationStats) Merge(other *MutationStats) {
	if other == nil {
		return
	}
	for z, n := range other.RemovedFeaturesByZoom {
		s.RemovedFeaturesByZoom[z] += n
	}
	for z, names := range other.RemovedLayersByZoom {
		s.RemovedLayersByZoom[z] = append(s.RemovedLayersByZoom[z], names...)
	}
	s.UnknownFilterTotal += other.UnknownFilterTotal
	for l, n := range other.UnknownFilterByLayer {
		s.UnknownFilterByLayer[l] += n
	}
}

// PruneOptions configures one Prune call.
type PruneOptions struct {
	Zoom               uint8
	Style              *style.Style
	RetainedLayers     map[string]bool // source-layer allowlist; nil means "everything the style references"
	ApplyFilters       bool
	KeepUnknownFilters bool
	ToleranceSquared   float64 // 0 disables simplification
}

// retained reports whether sourceLayer survives the layer-level gate: the
// caller's allowlist (if any) and the style actually referencing it
// (spec.md §4.5 step 1: "if no style layer references L, drop").
func (o PruneOptions) retained(sourceLayer string) bool {
	if o.RetainedLayers != nil && !o.RetainedLayers[sourceLayer] {
		return false
	}
	return o.Style.HasSourceLayer(sourceLayer)
}

// Simplify decodes data and applies only geometry simplification, keeping
// every layer and feature — the core of the "simplify one tile" operation
// (spec.md §2). It is a separate decode/simplify/encode pass and does not
// call Prune.
func Simplify(data []byte, toleranceSquared float64) ([]byte, bool, error) {
	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return nil, false, errs.New(errs.MvtDecode, err)
	}
	if len(layers) == 0 {
		return nil, true, nil
	}
	for _, layer := range layers {
		for _, feat := range layer.Features {
			if feat.Geometry != nil {
				feat.Geometry = simplifyGeometry(feat.Geometry, toleranceSquared)
			}
		}
	}
	encoded, err := mvt.Marshal(layers)
	if err != nil {
		return nil, false, errs.New(errs.MvtEncode, err)
	}
	return encoded, false, nil
}

// Prune decodes data, drops layers and features per opts, optionally
// simplifies surviving geometry, and re-encodes the surviving layers. Each
// layer keeps its own extent; layers are not rescaled to a common extent.
// It reports whether the resulting tile has zero layers, in which case the
// returned bytes are nil.
func Prune(data []byte, opts PruneOptions, stats *MutationStats) ([]byte, bool, error) {
	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return nil, false, errs.New(errs.MvtDecode, err)
	}

	var kept mvt.Layers
	for _, layer := range layers {
		if !opts.retained(layer.Name) {
			stats.RemovedLayersByZoom[opts.Zoom] = append(stats.RemovedLayersByZoom[opts.Zoom], layer.Name)
			continue
		}
		styleLayers := opts.Style.LayersFor(layer.Name)
		visibleLayers := visibleAt(styleLayers, opts.Zoom)
		if len(visibleLayers) == 0 {
			stats.RemovedLayersByZoom[opts.Zoom] = append(stats.RemovedLayersByZoom[opts.Zoom], layer.Name)
			continue
		}

		out := layer.Features[:0:0]
		removed := 0
		for _, feat := range layer.Features {
			keep := true
			if opts.ApplyFilters {
				decision := evaluateFeature(visibleLayers, featureView{feat}, opts.Zoom)
				switch decision {
				case style.False:
					keep = false
				case style.Unknown:
					keep = opts.KeepUnknownFilters
					stats.UnknownFilterTotal++
					stats.UnknownFilterByLayer[layer.Name]++
				}
			}

			if keep {
				if opts.ToleranceSquared > 0 && feat.Geometry != nil {
					feat.Geometry = simplifyGeometry(feat.Geometry, opts.ToleranceSquared)
				}
				out = append(out, feat)
			} else {
				removed++
			}
		}

		if removed > 0 {
			stats.RemovedFeaturesByZoom[opts.Zoom] += removed
		}
		if len(out) == 0 {
			stats.RemovedLayersByZoom[opts.Zoom] = append(stats.RemovedLayersByZoom[opts.Zoom], layer.Name)
			continue
		}

		layer.Features = out
		kept = append(kept, layer)
	}

	if len(kept) == 0 {
		return nil, true, nil
	}

	encoded, err := mvt.Marshal(kept)
	if err != nil {
		return nil, false, errs.New(errs.MvtEncode, err)
	}
	return encoded, false, nil
}

// visibleAt filters styleLayers down to those that render at z.
func visibleAt(styleLayers []style.StyleLayer, z uint8) []style.StyleLayer {
	out := make([]style.StyleLayer, 0, len(styleLayers))
	for _, l := range styleLayers {
		if l.VisibleAt(z) {
			out = append(out, l)
		}
	}
	return out
}

// evaluateFeature implements spec.md §4.5's per-feature decision: the first
// style layer whose filter evaluates True wins; an Unknown observed along
// the way downgrades an otherwise-False result to Unknown.
func evaluateFeature(styleLayers []style.StyleLayer, feature style.Feature, z uint8) style.Tristate {
	sawUnknown := false
	for _, l := range styleLayers {
		if l.Filter == nil {
			return style.True
		}
		switch style.Eval(l.Filter, feature, z) {
		case style.True:
			return style.True
		case style.Unknown:
			sawUnknown = true
		}
	}
	if sawUnknown {
		return style.Unknown
	}
	return style.False
}
