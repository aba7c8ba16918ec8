package httpapi

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed static/*
var embeddedStatic embed.FS

//go:embed templates/*.html
var embeddedTemplates embed.FS

func newStaticHandler() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	return http.FileServer(http.FS(sub))
}

func mustParsePages() *template.Template {
	return template.Must(template.ParseFS(embeddedTemplates, "templates/*.html"))
}
