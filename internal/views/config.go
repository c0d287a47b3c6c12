package views

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-roadrisk/internal/classify"
)

//go:embed views.yaml
var defaultTable []byte

// Table is the YAML view table.
type Table struct {
	Default string       `yaml:"default" validate:"required"`
	Views   []ViewConfig `yaml:"views" validate:"required,min=1,dive"`
}

// ViewConfig is one view entry. Exactly one of Breaks/Colors or Rules is set.
type ViewConfig struct {
	ID        string          `yaml:"id" validate:"required,max=50"`
	Title     string          `yaml:"title" validate:"required"`
	Subtitle  string          `yaml:"subtitle,omitempty"`
	Attribute string          `yaml:"attribute" validate:"required"`
	Breaks    []float64       `yaml:"breaks,omitempty" validate:"omitempty,min=2"`
	Colors    []string        `yaml:"colors,omitempty" validate:"omitempty,dive,hexcolor"`
	Labels    []string        `yaml:"labels,omitempty"`
	Rules     []classify.Rule `yaml:"rules,omitempty"`
	CatchAll  *classify.Band  `yaml:"catchAll,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the embedded view table.
func Default() (*Registry, error) {
	return Parse(defaultTable)
}

// DefaultYAML returns the embedded view table source.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultTable))
	copy(out, defaultTable)
	return out
}

// Load reads a view table from path, or the embedded table when path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading view table: %w", err)
	}
	return Parse(data)
}

// Parse decodes, validates and compiles a view table.
func Parse(data []byte) (*Registry, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing view table: %w", err)
	}
	return t.Compile()
}

// Compile validates the table and builds the registry.
func (t Table) Compile() (*Registry, error) {
	if err := validate.Struct(t); err != nil {
		return nil, fmt.Errorf("validating view table: %w", err)
	}
	vs := make([]*View, 0, len(t.Views))
	for _, vc := range t.Views {
		v, err := vc.build()
		if err != nil {
			return nil, fmt.Errorf("view %q: %w", vc.ID, err)
		}
		vs = append(vs, v)
	}
	return NewRegistry(t.Default, vs...)
}

func (vc ViewConfig) build() (*View, error) {
	v := &View{
		ID:        vc.ID,
		Title:     vc.Title,
		Subtitle:  vc.Subtitle,
		Attribute: vc.Attribute,
		Extract:   Attribute(vc.Attribute),
	}
	hasScale := len(vc.Breaks) > 0 || len(vc.Colors) > 0
	hasRules := len(vc.Rules) > 0
	switch {
	case hasScale && hasRules:
		return nil, fmt.Errorf("%w: both breaks and rules given", classify.ErrInvalidScale)
	case hasScale:
		s, err := classify.NewScale(vc.Breaks, vc.Colors, vc.Labels)
		if err != nil {
			return nil, err
		}
		v.Classifier = s
	case hasRules:
		if vc.CatchAll == nil {
			return nil, fmt.Errorf("%w: rules need a catchAll band", classify.ErrInvalidScale)
		}
		for i, rule := range vc.Rules {
			if err := validate.Var(rule.Color, "required,hexcolor"); err != nil {
				return nil, fmt.Errorf("%w: rule %d color %q", classify.ErrInvalidScale, i, rule.Color)
			}
		}
		if err := validate.Var(vc.CatchAll.Color, "required,hexcolor"); err != nil {
			return nil, fmt.Errorf("%w: catchAll color %q", classify.ErrInvalidScale, vc.CatchAll.Color)
		}
		rs, err := classify.NewRules(vc.Rules, *vc.CatchAll)
		if err != nil {
			return nil, err
		}
		v.Classifier = rs
	default:
		return nil, fmt.Errorf("%w: neither breaks nor rules given", classify.ErrInvalidScale)
	}
	return v, nil
}

// Config returns the table entry for a compiled view.
func (v *View) Config() ViewConfig {
	vc := ViewConfig{ID: v.ID, Title: v.Title, Subtitle: v.Subtitle, Attribute: v.Attribute}
	switch c := v.Classifier.(type) {
	case classify.Scale:
		vc.Breaks, vc.Colors, vc.Labels = c.Breaks, c.Colors, c.Labels
	case classify.Rules:
		vc.Rules = c.List
		catchAll := c.CatchAll
		vc.CatchAll = &catchAll
	}
	return vc
}

// Table returns the registry as a YAML-serialisable table.
func (r *Registry) Table() Table {
	t := Table{Default: r.defaultView}
	for _, v := range r.Views() {
		t.Views = append(t.Views, v.Config())
	}
	return t
}
