// Package server exposes the trust engine over HTTP.
//
// It is a thin adapter: the engine stays transport-agnostic and the
// server only parses requests, maps error codes to status codes, and
// serializes reports and progress events. Streaming uses server-sent
// events so a caller can watch a deep walk make progress.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trustmesh/trustmesh/pkg/errors"
	"github.com/trustmesh/trustmesh/pkg/graphstore"
	"github.com/trustmesh/trustmesh/pkg/purl"
	"github.com/trustmesh/trustmesh/pkg/sbom"
	"github.com/trustmesh/trustmesh/pkg/trust"
)

// Runner is the slice of the trust engine the server consumes.
type Runner interface {
	Run(ctx context.Context, coordinate string) (*trust.Report, error)
	Stream(ctx context.Context, coordinate string) <-chan trust.Event
}

// EngineFactory builds a runner for one request's effective options.
// Per-request depth and timeout overrides go through here; the engine
// itself is stateless, so construction is cheap.
type EngineFactory func(opts trust.Options) (Runner, error)

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration

	BaseOptions trust.Options
	Engines     EngineFactory
	Store       graphstore.Store
	SBOMs       sbom.Registry
	Logger      *log.Logger
}

// Server serves the trust API.
type Server struct {
	cfg    Config
	logger *log.Logger
}

// New creates a server. The engine factory, graph store, and SBOM
// registry are required; everything else has defaults.
func New(cfg Config) (*Server, error) {
	if cfg.Engines == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "engine factory is required")
	}
	if cfg.Store == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "graph store is required")
	}
	if cfg.SBOMs == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "sbom registry is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Server{cfg: cfg, logger: cfg.Logger}, nil
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/trust", func(r chi.Router) {
		r.Get("/", s.handleReport)
		r.Get("/stream", s.handleStream)
		r.Get("/versions", s.handleVersions)
		r.Get("/dependents", s.handleDependents)
		r.Get("/sbom", s.handleSBOMGet)
		r.Put("/sbom", s.handleSBOMPut)
	})
	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	coordinate := r.URL.Query().Get("purl")
	runner, err := s.runnerFor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := runner.Run(r.Context(), coordinate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	coordinate := r.URL.Query().Get("purl")
	runner, err := s.runnerFor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeInternal, "streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for ev := range runner.Stream(r.Context(), coordinate) {
		if _, err := w.Write([]byte("event: " + string(ev.Kind) + "\ndata: ")); err != nil {
			return
		}
		if err := enc.Encode(ev); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

// versionsResponse lists every known version of a package.
type versionsResponse struct {
	Coordinate purl.Coordinate   `json:"coordinate"`
	Versions   []string          `json:"versions"`
	Nodes      []graphstore.Node `json:"nodes"`
}

// handleVersions answers "which versions of this package does the graph
// know". The version on the queried coordinate, if any, is ignored: the
// lookup runs on the version-less form and returns every match.
func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	coord, err := parseCoordinate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	base := coord.WithoutVersion()
	nodes, err := s.cfg.Store.Lookup(r.Context(), base)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "version lookup for %s failed", base))
		return
	}

	resp := versionsResponse{Coordinate: base, Versions: []string{}, Nodes: nodes}
	seen := make(map[string]bool)
	for _, n := range nodes {
		v := n.Coordinate.Version
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		resp.Versions = append(resp.Versions, v)
	}
	sort.Strings(resp.Versions)
	writeJSON(w, http.StatusOK, resp)
}

// dependentsResponse lists the packages that depend on a coordinate.
type dependentsResponse struct {
	Coordinate purl.Coordinate   `json:"coordinate"`
	Dependents []graphstore.Node `json:"dependents"`
	Edges      []graphstore.Edge `json:"edges"`
}

// handleDependents walks one level of reverse dependency edges: who
// depends on the queried package.
func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	coord, err := parseCoordinate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	nodes, err := s.cfg.Store.Lookup(r.Context(), coord)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "lookup for %s failed", coord))
		return
	}
	if len(nodes) == 0 {
		s.writeError(w, r, errors.New(errors.ErrCodeNodeNotFound, "no graph nodes match %s", coord))
		return
	}

	ids := make([]graphstore.NodeID, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	dependents, edges, err := s.cfg.Store.Expand(r.Context(), ids,
		[]graphstore.EdgeKind{graphstore.EdgeKindDependencyOf})
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "dependents expansion for %s failed", coord))
		return
	}

	writeJSON(w, http.StatusOK, dependentsResponse{
		Coordinate: coord,
		Dependents: dependents,
		Edges:      edges,
	})
}

func (s *Server) handleSBOMGet(w http.ResponseWriter, r *http.Request) {
	coord, err := parseCoordinate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := s.cfg.SBOMs.Get(r.Context(), coord)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSBOMPut(w http.ResponseWriter, r *http.Request) {
	coord, err := parseCoordinate(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body struct {
		Format  string          `json:"format"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "cannot decode sbom body"))
		return
	}

	doc := sbom.Document{
		Coordinate: coord,
		Format:     body.Format,
		Content:    body.Content,
	}
	if err := s.cfg.SBOMs.Put(r.Context(), doc); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "stored"})
}

// parseCoordinate reads and canonicalizes the purl query parameter.
func parseCoordinate(r *http.Request) (purl.Coordinate, error) {
	raw := r.URL.Query().Get("purl")
	if err := errors.ValidateCoordinateString(raw); err != nil {
		return purl.Coordinate{}, err
	}
	coord, err := purl.Parse(raw)
	if err != nil {
		return purl.Coordinate{}, errors.Wrap(errors.ErrCodeMalformedCoordinate, err, "cannot parse coordinate %q", raw)
	}
	return coord, nil
}

// runnerFor builds the request's engine, applying depth and timeout
// overrides from the query string to the configured base options.
func (s *Server) runnerFor(r *http.Request) (Runner, error) {
	opts := s.cfg.BaseOptions
	q := r.URL.Query()

	if raw := q.Get("depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "invalid depth %q", raw)
		}
		opts.MaxDepth = depth
	}
	if raw := q.Get("timeout"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "invalid timeout %q", raw)
		}
		opts.RequestTimeout = timeout
	}
	return s.cfg.Engines(opts)
}
