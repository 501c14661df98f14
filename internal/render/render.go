package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed map.html.tmpl
var pageTemplate string

var page = template.Must(template.New("map").Parse(pageTemplate))

type pageData struct {
	Title          string
	LeafletVersion string
	Config         template.JS
}

// Render writes doc as a standalone HTML page.
func Render(w io.Writer, doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	cfg, err := doc.config()
	if err != nil {
		return err
	}

	title := doc.Title
	if title == "" {
		title = "springmap"
	}

	data := pageData{
		Title:          title,
		LeafletVersion: LeafletVersion,
		Config:         template.JS(cfg),
	}
	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}

// HTML renders doc into memory.
func HTML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
