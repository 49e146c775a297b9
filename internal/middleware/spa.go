package middleware

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// SPAHandler serves the terminal dashboard: the built front-end bundle
// that lists handles and renders each one through the WebSocket bridge.
// Unknown extensionless paths such as /terminals/{id} get index.html so the
// dashboard's router can resolve them.
type SPAHandler struct {
	fs        http.FileSystem
	files     http.Handler
	indexHTML []byte
}

// NewSPAHandlerDir serves the dashboard bundle from a directory on disk
// (DEVDASH_STATIC_DIR).
func NewSPAHandlerDir(dir string) *SPAHandler {
	return NewSPAHandler(os.DirFS(dir))
}

// NewSPAHandler serves the dashboard bundle from fsys. A bundle without
// index.html still serves its assets.
func NewSPAHandler(fsys fs.FS) *SPAHandler {
	index, _ := fs.ReadFile(fsys, "index.html")
	hfs := http.FS(fsys)
	return &SPAHandler{
		fs:        hfs,
		files:     http.FileServer(hfs),
		indexHTML: index,
	}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	// API and health misses stay JSON-client 404s, never the dashboard.
	if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/health" {
		http.NotFound(w, r)
		return
	}

	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name != "" && name != "index.html" && h.isFile(name) {
		// Bundler output under assets/ is content-hashed.
		if strings.HasPrefix(name, "assets/") {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		}
		h.files.ServeHTTP(w, r)
		return
	}

	// A missing script or stylesheet must 404 rather than load index.html
	// as JavaScript in the terminal view.
	if path.Ext(name) != "" && name != "index.html" {
		http.NotFound(w, r)
		return
	}

	if h.indexHTML == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		return
	}
	w.Write(h.indexHTML)
}

func (h *SPAHandler) isFile(name string) bool {
	f, err := h.fs.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	stat, err := f.Stat()
	return err == nil && !stat.IsDir()
}
