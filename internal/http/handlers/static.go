package handlers

import (
	"net/http"
	"strings"
)

// Static serves generated assets from the asset store under /static/.
// Directory listings are not exposed.
func (a *App) Static() http.Handler {
	files := http.StripPrefix("/static/", http.FileServer(http.FS(a.Assets.FS())))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			a.error(w, http.StatusNotFound, "not_found", "asset not found")
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}
