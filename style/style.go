// Package style parses a map style document into per-source-layer render
// rules (zoom range, visibility, paint values) and evaluates filter
// expressions against decoded MVT features. There is no style-document
// parser in the retrieval pack to ground this on (spec.md §4.5 is the
// closest thing to a grammar); encoding/json is used directly for the same
// reason the teacher itself reaches for stdlib json everywhere a document
// has no bespoke wire format (directory.go's metadata, header.go's
// HeaderJSON) — see DESIGN.md.
package style

import (
	"encoding/json"
	"sort"

	"github.com/nullisland/tilekit/errs"
)

// paintZoomKeys are the paint properties whose zero-at-zoom value means the
// carrying layer is invisible (spec.md §4.5).
var paintZoomKeys = []string{
	"fill-opacity", "line-width", "text-size", "raster-opacity",
	"circle-radius", "fill-extrusion-opacity", "heatmap-opacity",
	"fill-outline-color", "line-opacity", "icon-size", "text-max-width",
	"text-opacity", "circle-opacity",
}

// PaintValue is either a constant or a `stops` array of (zoom, value)
// pairs; zooms outside 0..=255 are discarded at parse time.
type PaintValue struct {
	Constant *float64
	Stops    []Stop
}

// Stop is one (zoom, value) pair of a PaintValue's stops array.
type Stop struct {
	Zoom  uint8
	Value float64
}

// ValueAt returns the value at zoom z. Stops use exact-zoom lookup; if z is
// not listed, the caller should treat the property as rendered (true).
func (p PaintValue) ValueAt(z uint8) (float64, bool) {
	if p.Constant != nil {
		return *p.Constant, true
	}
	for _, s := range p.Stops {
		if s.Zoom == z {
			return s.Value, true
		}
	}
	return 0, false
}

// StyleLayer is one entry of a style document's `layers` array that names
// both a source and a source-layer.
type StyleLayer struct {
	SourceLayer string
	MinZoom     *uint8
	MaxZoom     *uint8
	Visibility  string // "visible" (default) or "none"
	Paint       map[string]PaintValue
	Filter      *Filter
}

// VisibleAt reports whether this layer renders anything at zoom z, per
// spec.md §4.5's visibility rule.
func (l StyleLayer) VisibleAt(z uint8) bool {
	if l.Visibility == "none" {
		return false
	}
	if l.MinZoom != nil && z < *l.MinZoom {
		return false
	}
	if l.MaxZoom != nil && !(*l.MaxZoom > z) {
		return false
	}
	for _, key := range paintZoomKeys {
		if pv, ok := l.Paint[key]; ok {
			if v, exact := pv.ValueAt(z); exact && v == 0 {
				return false
			}
		}
	}
	return true
}

// Style is the parsed style document, indexed by source-layer name. Layers
// are stored once in a flat slice and indexed by name (spec.md §9's
// arena/index pattern); LayersFor copies the matching layers into a new
// slice on each call.
type Style struct {
	layers     []StyleLayer
	bySource   map[string][]int
}

// LayersFor returns the style layers that reference sourceLayer, in
// document order.
func (s *Style) LayersFor(sourceLayer string) []StyleLayer {
	idxs := s.bySource[sourceLayer]
	out := make([]StyleLayer, len(idxs))
	for i, idx := range idxs {
		out[i] = s.layers[idx]
	}
	return out
}

// HasSourceLayer reports whether any style layer references sourceLayer.
func (s *Style) HasSourceLayer(sourceLayer string) bool {
	_, ok := s.bySource[sourceLayer]
	return ok
}

// SourceLayerNames returns every referenced source-layer name, sorted.
func (s *Style) SourceLayerNames() []string {
	names := make([]string, 0, len(s.bySource))
	for name := range s.bySource {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type rawDocument struct {
	Layers []rawLayer `json:"layers"`
}

type rawLayer struct {
	Source      string          `json:"source"`
	SourceLayer string          `json:"source-layer"`
	MinZoom     *float64        `json:"minzoom"`
	MaxZoom     *float64        `json:"maxzoom"`
	Layout      rawLayout       `json:"layout"`
	Paint       map[string]json.RawMessage `json:"paint"`
	Filter      json.RawMessage `json:"filter"`
}

type rawLayout struct {
	Visibility string `json:"visibility"`
}

// Parse decodes a style document (a JSON object with a top-level `layers`
// array). Layers missing either `source` or `source-layer` are dropped.
func Parse(data []byte) (*Style, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.New(errs.StyleParse, err)
	}

	s := &Style{bySource: make(map[string][]int)}

	for _, rl := range doc.Layers {
		if rl.Source == "" || rl.SourceLayer == "" {
			continue
		}

		layer := StyleLayer{
			SourceLayer: rl.SourceLayer,
			Visibility:  rl.Layout.Visibility,
			Paint:       make(map[string]PaintValue),
		}
		if layer.Visibility == "" {
			layer.Visibility = "visible"
		}

		if rl.MinZoom != nil {
			z := clampZoom(*rl.MinZoom)
			layer.MinZoom = &z
		}
		if rl.MaxZoom != nil {
			z := clampZoom(*rl.MaxZoom)
			layer.MaxZoom = &z
		}

		for key, raw := range rl.Paint {
			pv, ok, err := parsePaintValue(raw)
			if err != nil {
				return nil, err
			}
			if ok {
				layer.Paint[key] = pv
			}
		}

		if len(rl.Filter) > 0 {
			f, err := parseFilter(rl.Filter)
			if err != nil {
				return nil, err
			}
			layer.Filter = f
		}

		idx := len(s.layers)
		s.layers = append(s.layers, layer)
		s.bySource[rl.SourceLayer] = append(s.bySource[rl.SourceLayer], idx)
	}

	return s, nil
}

func clampZoom(z float64) uint8 {
	if z < 0 {
		return 0
	}
	if z > 255 {
		return 255
	}
	return uint8(z)
}

func parsePaintValue(raw json.RawMessage) (PaintValue, bool, error) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return PaintValue{Constant: &num}, true, nil
	}

	var obj struct {
		Stops [][2]float64 `json:"stops"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return PaintValue{}, false, errs.New(errs.StyleParse, err)
	}

	stops := make([]Stop, 0, len(obj.Stops))
	for _, pair := range obj.Stops {
		z := pair[0]
		if z < 0 || z > 255 {
			continue
		}
		stops = append(stops, Stop{Zoom: uint8(z), Value: pair[1]})
	}
	return PaintValue{Stops: stops}, true, nil
}
