package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/elabsync/elabsync/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// renderPage writes the form page. Template errors after the first
// byte cannot be reported to the client anymore, so they only get
// logged.
func renderPage(w http.ResponseWriter, r *http.Request, data formData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(w, "index.html", data); err != nil {
		logging.FromContext(r.Context()).Error("template render failed", "error", err)
	}
}
