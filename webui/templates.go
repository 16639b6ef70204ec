package webui

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// indexData feeds the main page template.
type indexData struct {
	Documents    []documentSummary
	AuthEnabled  bool
	MaxUploadMB  int64
	SupportedExt []string
}

func renderIndex(w http.ResponseWriter, data indexData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, "index.html", data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func renderLogin(w http.ResponseWriter, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, "login.html", struct{ Error string }{errMsg}); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
