package templates

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFragments(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	html, err := r.Render("legend", map[string]any{
		"Title": "Slope",
		"Items": []struct{ Color, Label string }{{"#ffffb2", "0 – 2%"}},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "<h4>Slope</h4>")
	assert.Contains(t, html, "background: #ffffb2")
	assert.NotContains(t, html, "<small>")

	_, err = r.Render("missing", nil)
	assert.Error(t, err)
}

func TestCSSDoesNotEscapeColors(t *testing.T) {
	r, err := NewFS(fstest.MapFS{
		"swatch.html": {Data: []byte(`{{define "swatch"}}<i style="color: {{css .}}"></i>{{end}}`)},
	})
	require.NoError(t, err)
	html, err := r.Render("swatch", "#e53935")
	require.NoError(t, err)
	assert.Equal(t, `<i style="color: #e53935"></i>`, html)
}
