package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"epiconsole/internal/audit"
	"epiconsole/internal/entity"
	"epiconsole/internal/logging"
)

// DefaultBasePath prefixes every collection route.
const DefaultBasePath = "/api/v1"

const maxRequestBody = 1 << 20

// Options configures a Server. Zero values pick in-memory storage, no asset
// checks, no audit trail and a private metrics registry.
type Options struct {
	BasePath string
	Backend  Backend
	Assets   AssetChecker
	Audit    audit.Writer
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// Server serves the entity collections over HTTP.
type Server struct {
	basePath string
	backend  Backend
	assets   AssetChecker
	audit    audit.Writer
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *serverMetrics
	handler  http.Handler

	// mu serializes mutations so uniqueness checks and id allocation see a
	// stable collection.
	mu sync.Mutex
}

// NewServer wires the routes.
func NewServer(opts Options) *Server {
	s := &Server{
		basePath: strings.TrimRight(opts.BasePath, "/"),
		backend:  opts.Backend,
		assets:   opts.Assets,
		audit:    opts.Audit,
		log:      opts.Logger,
		registry: opts.Registry,
	}
	if opts.BasePath == "" {
		s.basePath = DefaultBasePath
	}
	if s.backend == nil {
		s.backend = NewMemoryBackend()
	}
	if s.assets == nil {
		s.assets = NoAssets{}
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = newServerMetrics(s.registry)
	s.handler = s.routes()
	return s
}

// Handler returns the root handler, including /metrics and /healthz.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("store listening", "addr", addr, "base_path", s.basePath)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	for _, kind := range entity.Kinds {
		base := s.basePath + "/" + kind.Collection()
		mux.Handle("GET "+base+"/{$}", s.instrument(kind, s.handleList(kind)))
		mux.Handle("POST "+base+"/{$}", s.instrument(kind, s.handleCreate(kind)))
		for _, p := range []string{base + "/{id}", base + "/{id}/{$}"} {
			mux.Handle("GET "+p, s.instrument(kind, s.handleGet(kind)))
			mux.Handle("PATCH "+p, s.instrument(kind, s.handlePatch(kind)))
			mux.Handle("DELETE "+p, s.instrument(kind, s.handleDelete(kind)))
		}
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) instrument(kind entity.Kind, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(rec, r.WithContext(ctx))
		s.metrics.observe(kind.Collection(), r.Method, rec.code)
		s.log.Debug("store request", "method", r.Method, "path", r.URL.Path,
			"status", rec.code, "request_id", id, "elapsed", time.Since(start))
	})
}

func (s *Server) handleList(kind entity.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := s.backend.List(r.Context(), kind.Collection())
		if err != nil {
			s.fail(w, err)
			return
		}
		out := make([]map[string]any, 0, len(docs))
		for _, d := range docs {
			v, err := s.render(r.Context(), kind, d)
			if err != nil {
				s.fail(w, err)
				return
			}
			out = append(out, v)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGet(kind entity.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parsePathID(r.PathValue("id"))
		if !ok {
			notFound(w)
			return
		}
		doc, err := s.backend.Get(r.Context(), kind.Collection(), id)
		if err != nil {
			s.fail(w, err)
			return
		}
		v, err := s.render(r.Context(), kind, doc)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleCreate(kind entity.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readObject(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		s.mu.Lock()
		defer s.mu.Unlock()

		doc := defaultsOf(kind)
		overlay(doc, body)
		rec, ferrs, err := s.check(ctx, kind, 0, doc)
		if err != nil {
			s.fail(w, err)
			return
		}
		if !ferrs.empty() {
			writeJSON(w, http.StatusBadRequest, ferrs)
			return
		}
		id, err := s.backend.NextID(ctx, kind.Collection())
		if err != nil {
			s.fail(w, err)
			return
		}
		rec = withID(rec, id)
		if err := s.putRecord(ctx, kind.Collection(), rec); err != nil {
			s.fail(w, err)
			return
		}
		s.emit(ctx, kind.Collection(), audit.ActionCreated, rec, requestID(ctx))
		s.respondRecord(w, r, kind, id, http.StatusCreated)
	}
}

func (s *Server) handlePatch(kind entity.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parsePathID(r.PathValue("id"))
		if !ok {
			notFound(w)
			return
		}
		body, ok := readObject(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		s.mu.Lock()
		defer s.mu.Unlock()

		stored, err := s.backend.Get(ctx, kind.Collection(), id)
		if err != nil {
			s.fail(w, err)
			return
		}
		doc := map[string]any{}
		if err := json.Unmarshal(stored.Payload, &doc); err != nil {
			s.fail(w, err)
			return
		}
		overlay(doc, body)
		rec, ferrs, err := s.check(ctx, kind, id, doc)
		if err != nil {
			s.fail(w, err)
			return
		}
		if !ferrs.empty() {
			writeJSON(w, http.StatusBadRequest, ferrs)
			return
		}
		if err := s.putRecord(ctx, kind.Collection(), rec); err != nil {
			s.fail(w, err)
			return
		}
		s.emit(ctx, kind.Collection(), audit.ActionUpdated, rec, requestID(ctx))
		s.respondRecord(w, r, kind, id, http.StatusOK)
	}
}

func (s *Server) handleDelete(kind entity.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parsePathID(r.PathValue("id"))
		if !ok {
			notFound(w)
			return
		}
		ctx := r.Context()
		s.mu.Lock()
		defer s.mu.Unlock()

		stored, err := s.backend.Get(ctx, kind.Collection(), id)
		if err != nil {
			s.fail(w, err)
			return
		}
		if err := s.backend.Delete(ctx, kind.Collection(), id); err != nil {
			s.fail(w, err)
			return
		}
		var named struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(stored.Payload, &named)
		ev := audit.NewEvent(kind.Collection(), audit.ActionDeleted, int64(id), named.Name, requestID(ctx))
		if err := s.audit.Write(ctx, ev); err != nil {
			s.log.Warn("audit write failed", "err", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) check(ctx context.Context, kind entity.Kind, id entity.ID, doc map[string]any) (entity.Record, fieldErrors, error) {
	switch kind {
	case entity.KindTerrain:
		return s.checkTerrain(ctx, id, doc)
	case entity.KindVirus:
		return s.checkVirus(ctx, id, doc)
	case entity.KindSimulation:
		return s.checkSimulation(ctx, id, doc, requestID(ctx))
	}
	return nil, nil, fmt.Errorf("unknown kind %q", kind)
}

func withID(rec entity.Record, id entity.ID) entity.Record {
	switch r := rec.(type) {
	case entity.Terrain:
		r.ID = id
		return r
	case entity.Virus:
		r.ID = id
		return r
	case entity.Simulation:
		r.ID = id
		return r
	}
	return rec
}

func (s *Server) putRecord(ctx context.Context, collection string, rec entity.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, collection, Document{ID: rec.RecordID(), Payload: payload})
}

func (s *Server) emit(ctx context.Context, collection string, action audit.Action, rec entity.Record, reqID string) {
	ev := audit.NewEvent(collection, action, int64(rec.RecordID()), rec.RecordName(), reqID)
	if err := s.audit.Write(ctx, ev); err != nil {
		s.log.Warn("audit write failed", "err", err, "collection", collection, "id", rec.RecordID())
	}
}

func (s *Server) respondRecord(w http.ResponseWriter, r *http.Request, kind entity.Kind, id entity.ID, code int) {
	doc, err := s.backend.Get(r.Context(), kind.Collection(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	v, err := s.render(r.Context(), kind, doc)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, code, v)
}

// render decodes a stored document for output. Simulations carry their
// terrain as full objects; references to deleted terrain are dropped.
func (s *Server) render(ctx context.Context, kind entity.Kind, d Document) (map[string]any, error) {
	out := map[string]any{}
	if err := json.Unmarshal(d.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", kind, d.ID, err)
	}
	out["id"] = int64(d.ID)
	if kind != entity.KindSimulation {
		return out, nil
	}
	raw, _ := out["terrain"].([]any)
	terrain := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		n, ok := v.(float64)
		if !ok {
			continue
		}
		td, err := s.backend.Get(ctx, entity.KindTerrain.Collection(), entity.ID(n))
		if errors.Is(err, ErrNoRecord) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tv, err := s.render(ctx, entity.KindTerrain, td)
		if err != nil {
			return nil, err
		}
		terrain = append(terrain, tv)
	}
	out["terrain"] = terrain
	return out, nil
}

func overlay(doc, body map[string]any) {
	for k, v := range body {
		if k == "id" {
			continue
		}
		doc[k] = v
	}
}

func readObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil || body == nil {
		msg := "Invalid data. Expected a dictionary."
		if err != nil {
			msg = "JSON parse error - " + err.Error()
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": msg})
		return nil, false
	}
	return body, true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNoRecord) {
		notFound(w)
		return
	}
	s.log.Error("store failure", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "A server error occurred."})
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
