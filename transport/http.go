package transport

import (
	"net/http"
	"os"

	"github.com/alioygur/gores"
)

// HTTPServer is the optional side endpoint of a dirpull server. It mirrors the
// `list` command as JSON and reports live server counters.
type HTTPServer struct {
	mux *http.ServeMux
}

type ListDirectoryResponse struct {
	Path    string
	Entries []DirEntry
}

func NewHTTPServer(fs Filesystem, status func() any) *HTTPServer {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ls", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			path = "."
		}

		entries, err := fs.List(path)
		if err != nil && os.IsNotExist(err) {
			gores.Error(w, http.StatusNotFound, "not found")
			return
		} else if err != nil {
			gores.Error(w, http.StatusInternalServerError, "failed to list directory")
			return
		}
		if entries == nil {
			entries = []DirEntry{}
		}

		gores.JSON(w, http.StatusOK, ListDirectoryResponse{
			Path:    path,
			Entries: entries,
		})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		gores.JSON(w, http.StatusOK, status())
	})
	return &HTTPServer{mux: mux}
}

func (h *HTTPServer) Handle(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

func (h *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}
