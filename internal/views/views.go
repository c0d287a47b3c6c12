// Package views holds the registry of analytical map views.
//
// A view binds one feature attribute to a classifier: either a breakpoint
// [classify.Scale] or categorical [classify.Rules]. The table is data (see
// views.yaml), so adding a view is a config change and an unknown view id is a
// lookup miss rather than a fallthrough branch.
package views

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-roadrisk/internal/classify"
)

// ErrUnknownView is returned when a view id is not in the registry.
var ErrUnknownView = errors.New("views: unknown view")

// Classifier is implemented by classify.Scale and classify.Rules.
type Classifier interface {
	Classify(v float64) string
	Band(v float64) classify.Band
	Legend() []classify.Band
}

// View is a named analytical lens.
type View struct {
	ID        string
	Title     string
	Subtitle  string
	Attribute string
	// Extract reads the classified value from a feature. Missing values are NaN.
	Extract    func(*geojson.Feature) float64
	Classifier Classifier
}

// Color returns the view's colour for f. It never fails.
func (v *View) Color(f *geojson.Feature) string {
	return v.Classifier.Classify(v.Extract(f))
}

// Band returns the colour and label for f.
func (v *View) Band(f *geojson.Feature) classify.Band {
	return v.Classifier.Band(v.Extract(f))
}

// Legend returns the legend items for the view.
func (v *View) Legend() []classify.Band {
	return v.Classifier.Legend()
}

// Registry is an immutable id -> View table.
type Registry struct {
	views       map[string]*View
	order       []string
	defaultView string
}

// NewRegistry builds a registry. The default id must be one of the views.
func NewRegistry(defaultID string, vs ...*View) (*Registry, error) {
	r := &Registry{views: make(map[string]*View, len(vs)), defaultView: defaultID}
	for _, v := range vs {
		if v == nil || v.ID == "" {
			return nil, fmt.Errorf("views: view without id")
		}
		if v.Extract == nil || v.Classifier == nil {
			return nil, fmt.Errorf("views: view %q has no extractor or classifier", v.ID)
		}
		if _, dup := r.views[v.ID]; dup {
			return nil, fmt.Errorf("views: duplicate view %q", v.ID)
		}
		r.views[v.ID] = v
		r.order = append(r.order, v.ID)
	}
	if _, ok := r.views[defaultID]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownView, defaultID)
	}
	return r, nil
}

// Lookup returns the view for id.
func (r *Registry) Lookup(id string) (*View, bool) {
	v, ok := r.views[id]
	return v, ok
}

// Has reports whether id is a known view.
func (r *Registry) Has(id string) bool {
	_, ok := r.views[id]
	return ok
}

// IDs returns view ids in table order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Views returns the views in table order.
func (r *Registry) Views() []*View {
	out := make([]*View, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.views[id])
	}
	return out
}

// Default returns the default view id.
func (r *Registry) Default() string {
	return r.defaultView
}

// Sorted returns view ids sorted alphabetically.
func (r *Registry) Sorted() []string {
	ids := r.IDs()
	sort.Strings(ids)
	return ids
}
