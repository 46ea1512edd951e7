// Package server exposes the rewrite pipeline over HTTP.
//
// # Routes
//
//	GET  /healthz     liveness and build information
//	POST /v1/plan     cut a graph without converting it
//	POST /v1/rewrite  rewrite a graph and return the new graph and weights
//
// Both POST routes take the same body:
//
//	{
//	  "graph":   {...graph document...},
//	  "weights": {"tensors": [...]},
//	  "hints":   {"data": {"dtype": "float32", "dims": [1, 3, 224, 224]}},
//	  "options": {"max_batch_size": 8}
//	}
//
// "weights", "hints" and "options" are optional. Errors are returned as
// {"error": {"code": ..., "message": ...}} with a status derived from the
// error code.
//
// Every request gets a request ID, echoed in the X-Request-ID header and
// reported through [observability.HTTP].
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/matzehuels/netcut/pkg/buildinfo"
	"github.com/matzehuels/netcut/pkg/cache"
	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
	nio "github.com/matzehuels/netcut/pkg/io"
	"github.com/matzehuels/netcut/pkg/observability"
	"github.com/matzehuels/netcut/pkg/pipeline"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

// DefaultMaxBodyBytes bounds request bodies; weights make them large.
const DefaultMaxBodyBytes = 256 << 20

// HeaderRequestID carries the request ID on responses.
const HeaderRequestID = "X-Request-ID"

// Server serves the HTTP API. Create one with [New].
type Server struct {
	// Options are the defaults for requests that carry no options.
	Options pipeline.Options

	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// MaxBodyBytes bounds request bodies. Zero uses DefaultMaxBodyBytes.
	MaxBodyBytes int64

	router chi.Router
}

// New returns a server running rewrites with opts and the given engine
// cache. A nil cache disables caching.
func New(opts pipeline.Options, c cache.Cache, keyer cache.Keyer, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	s := &Server{Options: opts, Cache: c, Keyer: keyer, Logger: logger}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.report)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/plan", s.handlePlan)
		r.Post("/rewrite", s.handleRewrite)
	})
	s.router = r
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.Logger.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// =============================================================================
// Middleware
// =============================================================================

type ctxKey int

const requestIDKey ctxKey = 0

// RequestID returns the request ID attached to ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) report(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := RequestID(ctx)
		hooks := observability.HTTP()
		hooks.OnRequest(ctx, id, r.Method, r.URL.Path)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		hooks.OnResponse(ctx, id, r.Method, r.URL.Path, status, elapsed)
		s.Logger.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path, "status", status, "duration", elapsed)
	})
}

// =============================================================================
// Handlers
// =============================================================================

type request struct {
	Graph   json.RawMessage   `json:"graph"`
	Weights json.RawMessage   `json:"weights,omitempty"`
	Hints   json.RawMessage   `json:"hints,omitempty"`
	Options *pipeline.Options `json:"options,omitempty"`
}

type partition struct {
	Index   int      `json:"index"`
	Nodes   []int    `json:"nodes"`
	Ops     []string `json:"ops"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

type planResponse struct {
	ID         string          `json:"id"`
	Partitions []partition     `json:"partitions"`
	Nodes      int             `json:"nodes"`
	Converted  int             `json:"converted"`
	Kept       int             `json:"kept"`
	Collapsed  json.RawMessage `json:"collapsed"`
}

type rewriteResponse struct {
	ID      string          `json:"id"`
	Graph   json.RawMessage `json:"graph"`
	Weights json.RawMessage `json:"weights"`
	Pruned  []string        `json:"pruned"`
	Stats   pipeline.Stats  `json:"stats"`
}

type errorBody struct {
	Error struct {
		Code    errors.Code `json:"code"`
		Message string      `json:"message"`
		Detail  string      `json:"detail,omitempty"`
	} `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, err := s.decode(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.transformer(in.opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	a, err := t.Analyze(ctx, in.graph, in.weights, in.hints)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	collapsed, err := encodeGraph(a.Plan.Collapsed())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sum := a.Plan.Summary()
	resp := planResponse{
		ID:         a.ID.String(),
		Partitions: make([]partition, len(a.Plan.Partitions)),
		Nodes:      sum.Nodes,
		Converted:  sum.Converted,
		Kept:       sum.Kept,
		Collapsed:  collapsed,
	}
	for i, p := range a.Plan.Partitions {
		ops := make([]string, len(p.Nodes))
		for j, n := range p.Nodes {
			ops[j] = a.Graph.Nodes[n].Type
		}
		resp.Partitions[i] = partition{Index: p.Index, Nodes: p.Nodes, Ops: ops, Inputs: p.Inputs, Outputs: p.Outputs}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	in, err := s.decode(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.transformer(in.opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := t.Transform(ctx, in.graph, in.weights, in.hints)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	graph, err := encodeGraph(in.graph)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := nio.WriteWeights(in.weights.Snapshot(), &buf); err != nil {
		s.writeError(w, r, err)
		return
	}

	pruned := res.Prune.Delete
	if pruned == nil {
		pruned = []string{}
	}
	writeJSON(w, http.StatusOK, rewriteResponse{
		ID:      res.ID.String(),
		Graph:   graph,
		Weights: buf.Bytes(),
		Pruned:  pruned,
		Stats:   res.Stats,
	})
}

type input struct {
	graph   *dag.Graph
	weights *store.MemoryStore
	hints   shape.Table
	opts    *pipeline.Options
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (*input, error) {
	limit := s.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	var req request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request")
	}
	if len(req.Graph) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "request has no graph")
	}

	in := &input{opts: req.Options, weights: store.NewMemoryStore(nil), hints: shape.Table{}}
	var err error
	if in.graph, err = nio.ReadGraph(bytes.NewReader(req.Graph)); err != nil {
		return nil, err
	}
	if len(req.Weights) > 0 {
		tensors, err := nio.ReadWeights(bytes.NewReader(req.Weights))
		if err != nil {
			return nil, err
		}
		in.weights = store.NewMemoryStore(tensors)
	}
	if len(req.Hints) > 0 {
		if in.hints, err = nio.ReadHints(bytes.NewReader(req.Hints)); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// transformer returns a transformer for one request. Request options
// replace the server defaults as a whole.
func (s *Server) transformer(opts *pipeline.Options) (*pipeline.Transformer, error) {
	o := s.Options
	if opts != nil {
		o = *opts
		o.Logger = s.Logger
	}
	t, err := pipeline.NewTransformer(o, s.Cache, s.Keyer)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "request options")
	}
	return t, nil
}

func encodeGraph(g *dag.Graph) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := nio.WriteGraph(g, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	var body errorBody
	body.Error.Code = errors.GetCode(err)
	if body.Error.Code == "" {
		body.Error.Code = errors.ErrCodeInternal
	}
	body.Error.Message = errors.UserMessage(err)
	if detail := err.Error(); detail != body.Error.Message {
		body.Error.Detail = detail
	}
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "id", RequestID(r.Context()), "path", r.URL.Path, "err", err)
	} else {
		s.Logger.Debug("request rejected", "id", RequestID(r.Context()), "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
