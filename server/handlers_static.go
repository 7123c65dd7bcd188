package server

import (
	"net/http"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/gzhttp"
)

// staticTrees are the asset directories served under their own prefix.
var staticTrees = []string{"css", "js", "assets"}

// HandleIndex serves the landing page at / and 404 for any other unmatched path.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.StaticDir, "index.html"))
}

// staticHandler serves /<tree>/ from StaticDir/<tree> without directory
// listings, gzip-compressed for clients that accept it.
func (h *Handlers) staticHandler(tree string) http.Handler {
	fs := http.FileServer(noListing{http.Dir(filepath.Join(h.StaticDir, tree))})
	return gzhttp.GzipHandler(http.StripPrefix("/"+tree+"/", fs))
}

type noListing struct{ fs http.FileSystem }

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	if st, err := f.Stat(); err == nil && st.IsDir() {
		index, ierr := n.fs.Open(path.Join(name, "index.html"))
		if ierr != nil {
			f.Close()
			return nil, ierr
		}
		index.Close()
	}
	return f, nil
}
