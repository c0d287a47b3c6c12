// Package templates renders the HTML fragments pushed to the map page:
// the segment popup, the legend and the view-button bar.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"os"
)

//go:embed fragments/*.html
var embedded embed.FS

// funcMap provides the template functions shared by every fragment.
var funcMap = template.FuncMap{
	// css marks a colour taken from the view table as a safe CSS value
	"css": func(s string) template.CSS {
		return template.CSS(s)
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
}

// Default returns a renderer over the embedded fragments.
func Default() (*Renderer, error) {
	sub, err := fs.Sub(embedded, "fragments")
	if err != nil {
		return nil, err
	}
	return NewFS(sub)
}

// New creates a renderer from a fragments directory on disk.
func New(fragmentsDir string) (*Renderer, error) {
	return NewFS(os.DirFS(fragmentsDir))
}

// NewFS creates a renderer from every *.html file at the root of fsys.
func NewFS(fsys fs.FS) (*Renderer, error) {
	tmpl, err := parse(fsys)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

func parse(fsys fs.FS) (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(fsys, "*.html")
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	return r.templates.ExecuteTemplate(buf, name, data)
}
