// Package server is the HTTP face of the previewer. It reads the tracked
// file store, never the filesystem (images and raw markdown excepted), and
// relays reload signals to connected viewers over WebSocket.
package server

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/mdserve/mdserve/internal/notify"
	"github.com/mdserve/mdserve/internal/store"
)

//go:embed page.html
var pageHTML string

// Server serves rendered pages, raw markdown, images and the reload
// WebSocket for one session.
type Server struct {
	store    *store.Store
	notifier *notify.Notifier
	tmpl     *template.Template
	mux      *http.ServeMux
}

// navItem is one entry of the directory-mode sidebar.
type navItem struct {
	Name   string
	Active bool
}

// pageData feeds the embedded page template.
type pageData struct {
	Title   string
	Content template.HTML
	Nav     []navItem
	ShowNav bool
}

// fileInfo is the JSON shape of one tracked file in /api/files.
type fileInfo struct {
	Name    string    `json:"name"`
	Title   string    `json:"title"`
	ModTime time.Time `json:"modTime"`
}

// New creates a server over an already scanned store.
func New(st *store.Store, n *notify.Notifier) *Server {
	s := &Server{
		store:    st,
		notifier: n,
		tmpl:     template.Must(template.New("page").Parse(pageHTML)),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/view/", s.handleView)
	s.mux.HandleFunc("/raw/", s.handleRaw)
	s.mux.HandleFunc("/api/files", s.handleAPIFiles)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	return s
}

// Handler returns the full handler chain: routing wrapped in security
// headers and gzip compression.
func (s *Server) Handler() http.Handler {
	return securityHeaders(compressionMiddleware(s.mux))
}

// ServeHTTP makes the bare router usable directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleRoot serves the default page at "/" and image passthrough for
// everything else that is not a registered route.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		files := s.store.List()
		if len(files) == 0 {
			http.Error(w, "no markdown files tracked yet", http.StatusNotFound)
			return
		}
		s.renderPage(w, files[0])
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	if store.IsImage(name) {
		s.serveImage(w, r, name)
		return
	}
	http.NotFound(w, r)
}

// handleView serves the rendered page for one tracked file.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/view/")
	f, ok := s.lookup(name)
	if !ok {
		http.Error(w, "page not yet available", http.StatusNotFound)
		return
	}
	s.renderPage(w, f)
}

// handleRaw serves the raw markdown bytes of a tracked file. This is the one
// read path that touches the filesystem; the name is validated against the
// store first so only tracked files are reachable.
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/raw/")
	f, ok := s.lookup(name)
	if !ok {
		http.Error(w, "page not yet available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, f.Path)
}

// handleAPIFiles lists the tracked files as JSON, in navigation order.
func (s *Server) handleAPIFiles(w http.ResponseWriter, r *http.Request) {
	files := s.store.List()
	out := make([]fileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, fileInfo{Name: f.Name, Title: f.Title, ModTime: f.ModTime})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Printf("[Server] Failed to encode file list: %v", err)
	}
}

// lookup fetches a tracked file, rejecting names that could escape the flat
// namespace before they ever reach the store.
func (s *Server) lookup(name string) (*store.TrackedFile, bool) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, false
	}
	return s.store.Get(name)
}

// renderPage executes the page template for one tracked file.
func (s *Server) renderPage(w http.ResponseWriter, f *store.TrackedFile) {
	data := pageData{
		Title:   f.Title,
		Content: template.HTML(f.HTML),
		ShowNav: s.store.Mode() == store.Directory,
	}
	if data.ShowNav {
		for _, other := range s.store.List() {
			data.Nav = append(data.Nav, navItem{
				Name:   other.Name,
				Active: other.Name == f.Name,
			})
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		log.Printf("[Server] Template error for %s: %v", f.Name, err)
	}
}

// serveImage passes an image through from the base directory. Names are flat
// (no separators), so containment reduces to joining with the base dir.
func (s *Server) serveImage(w http.ResponseWriter, r *http.Request, name string) {
	if name != filepath.Base(name) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.store.BaseDir(), name))
}

// securityHeaders sets the headers every response carries. The CSP allows
// inline script and styles because the page template embeds both, and
// connect-src 'self' covers the same-origin reload WebSocket.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline'; "+
				"style-src 'self' 'unsafe-inline'; "+
				"img-src 'self' data:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// Addr formats a listen address for the CLI.
func Addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
