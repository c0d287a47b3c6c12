// Package classify maps attribute values to discrete colour bands.
//
// Two shapes are supported: a [Scale] of ascending breakpoints with one colour
// per interval, and an ordered list of categorical [Rules] with a catch-all
// band. Both are pure and never fail on per-feature input; malformed tables
// are rejected when they are constructed.
package classify

import (
	"errors"
	"fmt"
	"math"
)

// FallbackColor is returned for missing or non-finite values by a Scale.
// It is distinct from every ramp colour in the default view table.
const FallbackColor = "#808080"

// ErrInvalidScale is wrapped by every scale/rules validation error.
var ErrInvalidScale = errors.New("classify: invalid scale")

// Band is a colour with its legend label.
type Band struct {
	Color string `json:"color" yaml:"color"`
	Label string `json:"label" yaml:"label"`
}

// Missing reports whether v is the missing-data sentinel (NaN or ±Inf).
func Missing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Scale is an ordered breakpoint scale: Colors[i] covers [Breaks[i], Breaks[i+1]).
type Scale struct {
	Breaks []float64
	Colors []string
	Labels []string
}

// NewScale validates breaks and colors and returns a Scale.
// Labels are optional; when given there must be one per colour.
func NewScale(breaks []float64, colors, labels []string) (Scale, error) {
	s := Scale{Breaks: breaks, Colors: colors, Labels: labels}
	if err := s.Validate(); err != nil {
		return Scale{}, err
	}
	return s, nil
}

// Validate checks the scale invariants.
func (s Scale) Validate() error {
	if len(s.Breaks) < 2 {
		return fmt.Errorf("%w: need at least 2 breaks, got %d", ErrInvalidScale, len(s.Breaks))
	}
	if len(s.Colors) != len(s.Breaks)-1 {
		return fmt.Errorf("%w: %d breaks need %d colors, got %d",
			ErrInvalidScale, len(s.Breaks), len(s.Breaks)-1, len(s.Colors))
	}
	if len(s.Labels) != 0 && len(s.Labels) != len(s.Colors) {
		return fmt.Errorf("%w: %d colors but %d labels", ErrInvalidScale, len(s.Colors), len(s.Labels))
	}
	for i, b := range s.Breaks {
		if Missing(b) {
			return fmt.Errorf("%w: break %d is not finite", ErrInvalidScale, i)
		}
		if i > 0 && !(s.Breaks[i-1] < b) {
			return fmt.Errorf("%w: breaks must be strictly ascending (%v >= %v at %d)",
				ErrInvalidScale, s.Breaks[i-1], b, i)
		}
	}
	return nil
}

// Classify returns the colour for v. See [Classify].
func (s Scale) Classify(v float64) string {
	return Classify(v, s.Breaks, s.Colors)
}

// Band returns the colour and label for v. Missing values get a "No data" band.
func (s Scale) Band(v float64) Band {
	if Missing(v) {
		return Band{Color: FallbackColor, Label: "No data"}
	}
	i := index(v, s.Breaks, len(s.Colors))
	return Band{Color: s.Colors[i], Label: s.label(i)}
}

// Legend lists one band per interval followed by the fallback band.
func (s Scale) Legend() []Band {
	items := make([]Band, 0, len(s.Colors)+1)
	for i, c := range s.Colors {
		items = append(items, Band{Color: c, Label: s.label(i)})
	}
	return append(items, Band{Color: FallbackColor, Label: "No data"})
}

func (s Scale) label(i int) string {
	if i < len(s.Labels) && s.Labels[i] != "" {
		return s.Labels[i]
	}
	if i == len(s.Colors)-1 {
		return fmt.Sprintf("≥ %g", s.Breaks[i])
	}
	return fmt.Sprintf("%g – %g", s.Breaks[i], s.Breaks[i+1])
}

// Classify maps v onto breaks/colors.
//
// Missing values return FallbackColor. Otherwise the first interval
// [breaks[i], breaks[i+1]) containing v wins. A value that matches no
// interval gets the last colour; this catch-all applies both above the last
// break and below breaks[0], so breaks[0] must be the true data minimum.
// The caller guarantees len(colors) == len(breaks)-1 (see Scale.Validate).
func Classify(v float64, breaks []float64, colors []string) string {
	if Missing(v) {
		return FallbackColor
	}
	if len(colors) == 0 {
		return FallbackColor
	}
	return colors[index(v, breaks, len(colors))]
}

// index returns the matching interval, or n-1 when nothing matched.
func index(v float64, breaks []float64, n int) int {
	for i := 0; i < n && i+1 < len(breaks); i++ {
		if v >= breaks[i] && v < breaks[i+1] {
			return i
		}
	}
	return n - 1
}
