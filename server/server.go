// Package server exposes the template library and the renderer over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/ByLCY/stencil/model"
	"github.com/ByLCY/stencil/renderer"
	"github.com/ByLCY/stencil/store"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 4 << 20
)

// Options configures the handler.
type Options struct {
	Store    store.Reader
	Renderer renderer.Renderer
	// Timeout bounds a single render; DefaultTimeout when zero.
	Timeout      time.Duration
	MaxBodyBytes int64
	Logger       *log.Logger
}

// Server routes template and render requests.
type Server struct {
	opts Options
	mux  *http.ServeMux
}

// New builds the HTTP handler.
func New(opts Options) (*Server, error) {
	if opts.Store == nil || opts.Renderer == nil {
		return nil, errors.New("server: store and renderer are required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /healthz", s.healthz)
	s.mux.HandleFunc("GET /templates", s.listTemplates)
	s.mux.HandleFunc("GET /templates/{id}", s.getTemplate)
	s.mux.HandleFunc("GET /templates/{id}/image", s.templateImage)
	s.mux.HandleFunc("GET /categories", s.listCategories)
	s.mux.HandleFunc("GET /groups/{group}/image", s.groupImage)
	s.mux.HandleFunc("POST /render", s.render)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates := s.opts.Store.Templates()
	if templates == nil {
		templates = []*model.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.opts.Store.Template(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cats := s.opts.Store.Categories()
	if cats == nil {
		cats = []model.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) templateImage(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.opts.Store.Template(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeImage(w, r, tmpl, queryParams(r))
}

func (s *Server) groupImage(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.opts.Store.ActiveTemplate(r.PathValue("group"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeImage(w, r, tmpl, queryParams(r))
}

type renderRequest struct {
	Template json.RawMessage   `json:"template"`
	Params   map[string]string `json:"params"`
}

func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		writeError(w, StatusError{Code: http.StatusRequestEntityTooLarge, Err: err})
		return
	}
	var req renderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, StatusError{Code: http.StatusBadRequest, Err: err})
		return
	}
	if len(req.Template) == 0 || string(req.Template) == "null" {
		writeError(w, StatusError{Code: http.StatusBadRequest, Err: errors.New("template is required")})
		return
	}
	tmpl, err := model.DecodeTemplate(req.Template)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeImage(w, r, tmpl, req.Params)
}

type renderResult struct {
	out *renderer.Output
	err error
}

// writeImage renders under the request timeout. A render that has not
// finished by the deadline yields 503 and its output is discarded.
func (s *Server) writeImage(w http.ResponseWriter, r *http.Request, tmpl *model.Template, params map[string]string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.Timeout)
	defer cancel()

	done := make(chan renderResult, 1)
	start := time.Now()
	go func() {
		out, err := s.opts.Renderer.Render(ctx, tmpl, params)
		done <- renderResult{out: out, err: err}
	}()

	var res renderResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		code := writeError(w, res.err)
		s.opts.Logger.Printf("server: render %s: %d %v", tmpl.ID, code, res.err)
		return
	}

	w.Header().Set("Content-Type", res.out.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.out.Bytes)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.out.Bytes)
	s.opts.Logger.Printf("server: render %s: %d bytes in %s", tmpl.ID, len(res.out.Bytes), time.Since(start).Round(time.Millisecond))
}

// queryParams 取每个查询参数的第一个值作为运行时变量。
func queryParams(r *http.Request) map[string]string {
	q := r.URL.Query()
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
