package classify

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sevBreaks = []float64{0, 0.08, 0.27, 0.76, 1.5, 100}
	sevColors = []string{"#ffffd4", "#fed98e", "#fe9929", "#d95f0e", "#993404"}
)

func ptr(v float64) *float64 { return &v }

func TestClassifyIntervals(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want string
	}{
		{"lower bound inclusive", 0, "#ffffd4"},
		{"inside first", 0.05, "#ffffd4"},
		{"upper bound exclusive", 0.08, "#fed98e"},
		{"middle band", 0.5, "#fe9929"},
		{"just below break", 0.7599, "#fe9929"},
		{"at break", 0.76, "#d95f0e"},
		{"last interval", 99.9, "#993404"},
		{"at last break", 100, "#993404"},
		{"above last break", 1e9, "#993404"},
		{"below first break falls through", -1, "#993404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.v, sevBreaks, sevColors))
		})
	}
}

func TestClassifyMissing(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.Equal(t, FallbackColor, Classify(v, sevBreaks, sevColors))
		assert.Equal(t, FallbackColor, Classify(v, []float64{0, 1}, []string{"#000000"}))
	}
	for _, c := range sevColors {
		assert.NotEqual(t, FallbackColor, c)
	}
}

func TestClassifyAlwaysReturnsRampColor(t *testing.T) {
	s, err := NewScale(sevBreaks, sevColors, nil)
	require.NoError(t, err)

	for v := -2.0; v < 120; v += 0.013 {
		assert.Contains(t, sevColors, s.Classify(v))
	}
}

func TestNewScaleValidation(t *testing.T) {
	tests := []struct {
		name   string
		breaks []float64
		colors []string
		labels []string
	}{
		{"empty", nil, nil, nil},
		{"single break", []float64{0}, []string{}, nil},
		{"color count", []float64{0, 1, 2}, []string{"#000000"}, nil},
		{"not ascending", []float64{0, 2, 1}, []string{"#000000", "#111111"}, nil},
		{"duplicate break", []float64{0, 1, 1}, []string{"#000000", "#111111"}, nil},
		{"nan break", []float64{0, math.NaN()}, []string{"#000000"}, nil},
		{"label count", []float64{0, 1}, []string{"#000000"}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScale(tt.breaks, tt.colors, tt.labels)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidScale))
		})
	}
}

func TestScaleBandAndLegend(t *testing.T) {
	s, err := NewScale([]float64{0, 1, 2}, []string{"#aaaaaa", "#bbbbbb"}, nil)
	require.NoError(t, err)

	assert.Equal(t, Band{Color: "#aaaaaa", Label: "0 – 1"}, s.Band(0.5))
	assert.Equal(t, Band{Color: "#bbbbbb", Label: "≥ 1"}, s.Band(7))
	assert.Equal(t, FallbackColor, s.Band(math.NaN()).Color)

	legend := s.Legend()
	require.Len(t, legend, 3)
	assert.Equal(t, FallbackColor, legend[2].Color)
}

func crossingRules(t *testing.T) Rules {
	t.Helper()
	none := Band{Color: "#734e2e", Label: "None"}
	rs, err := NewRules([]Rule{
		{Equals: ptr(0), Band: none},
		{Min: ptr(0), Max: ptr(2), Band: Band{Color: "#bf812d", Label: "< 2"}},
		{Min: ptr(2), Max: ptr(5), Band: Band{Color: "#dfc27d", Label: "2 – 5"}},
		{Min: ptr(5), Max: ptr(10), Band: Band{Color: "#c7eae5", Label: "5 – 10"}},
		{Min: ptr(10), Band: Band{Color: "#35978f", Label: "≥ 10"}},
	}, none)
	require.NoError(t, err)
	return rs
}

func TestRulesClassify(t *testing.T) {
	rs := crossingRules(t)

	assert.Equal(t, "#734e2e", rs.Classify(0))
	assert.Equal(t, "#bf812d", rs.Classify(0.5))
	assert.Equal(t, "#dfc27d", rs.Classify(2))
	assert.Equal(t, "#c7eae5", rs.Classify(7))
	assert.Equal(t, "#35978f", rs.Classify(10))
	assert.Equal(t, "#734e2e", rs.Classify(-3))
	assert.Equal(t, "#734e2e", rs.Classify(math.NaN()))
	assert.Equal(t, "#734e2e", rs.Classify(math.Inf(1)))
}

func TestRulesLegendSkipsDuplicateCatchAll(t *testing.T) {
	rs := crossingRules(t)
	assert.Len(t, rs.Legend(), 5)

	other, err := NewRules([]Rule{{Equals: ptr(1), Band: Band{Color: "#111111"}}}, Band{Color: "#000000", Label: "Unknown"})
	require.NoError(t, err)
	assert.Len(t, other.Legend(), 2)
}

func TestNewRulesValidation(t *testing.T) {
	c := Band{Color: "#000000"}
	tests := []struct {
		name     string
		list     []Rule
		catchAll Band
	}{
		{"empty", nil, c},
		{"no catch-all", []Rule{{Equals: ptr(1), Band: c}}, Band{}},
		{"no color", []Rule{{Equals: ptr(1)}}, c},
		{"mixed", []Rule{{Equals: ptr(1), Min: ptr(0), Band: c}}, c},
		{"matches nothing", []Rule{{Band: c}}, c},
		{"empty range", []Rule{{Min: ptr(2), Max: ptr(2), Band: c}}, c},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRules(tt.list, tt.catchAll)
			assert.ErrorIs(t, err, ErrInvalidScale)
		})
	}
}
