// Package web holds the chat page and its static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates static
var assets embed.FS

// IndexData is what the chat page template renders.
type IndexData struct {
	BotName   string
	MaxLength int
}

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.ParseFS(assets, "templates/*.html")
}

// Static returns the static asset tree rooted at "static".
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
