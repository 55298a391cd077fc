package rir2cidr

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"paepcke.de/rir2cidr/netblock"
)

// snapshot is the immutable result of one rebuild
type snapshot struct {
	v4, v6, list []byte
	built        time.Time
}

// server keeps the latest lists for serve mode
type server struct {
	cfg     Config
	current atomic.Pointer[snapshot]
	busy    sync.Mutex
}

// Serve rebuilds the lists every cfg.ServeInterval and serves them on
// cfg.Serve until ctx is done
func Serve(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	cfg.Metrics.RegisterRuntime()
	s := &server{cfg: cfg}
	log := cfg.Log

	srv := &http.Server{
		Addr:              cfg.Serve,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Serve).Msg("[rir2cidr] http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go s.loop(ctx)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// loop ...
func (s *server) loop(ctx context.Context) {
	s.refresh(ctx)
	ticker := time.NewTicker(s.cfg.ServeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh rebuilds from scratch, a failed rebuild keeps the previous lists
func (s *server) refresh(ctx context.Context) bool {
	if !s.busy.TryLock() {
		return false
	}
	defer s.busy.Unlock()
	rep, err := Generate(ctx, s.cfg)
	if err != nil {
		s.cfg.Log.Error().Err(err).Msg("[rir2cidr] rebuild failed, keep serving previous lists")
		return false
	}
	snap := &snapshot{built: time.Now()}
	snap.v4 = render(rep.V4)
	snap.v6 = render(rep.V6)
	snap.list = append(append(make([]byte, 0, len(snap.v4)+len(snap.v6)), snap.v4...), snap.v6...)
	s.current.Store(snap)
	return true
}

// render ...
func render(blocks []netblock.Block) []byte {
	var buf bytes.Buffer
	_ = FormatList(&buf, FormatPlain, blocks, nil)
	return buf.Bytes()
}

// routes ...
func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/v4", s.list(func(snap *snapshot) []byte { return snap.v4 }))
	r.Get("/v6", s.list(func(snap *snapshot) []byte { return snap.v6 }))
	r.Get("/list", s.list(func(snap *snapshot) []byte { return snap.list }))
	r.Post("/refresh", s.handleRefresh)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())
	return r
}

// list ...
func (s *server) list(pick func(*snapshot) []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.current.Load()
		if snap == nil {
			http.Error(w, "lists not built yet", http.StatusServiceUnavailable)
			return
		}
		body := pick(snap)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Last-Modified", snap.built.UTC().Format(http.TimeFormat))
		_, _ = w.Write(body)
	}
}

// handleRefresh ...
func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.refresh(r.Context()) {
		http.Error(w, "refresh failed or already running", http.StatusConflict)
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}

// handleHealth ...
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.current.Load() == nil {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}
