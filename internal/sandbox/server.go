// Package sandbox provides the HTTP server that exposes a provider over the
// sandbox file API: JSON file operations and a websocket change stream.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"loom/internal/files"
	"loom/internal/proto"
	"loom/internal/provider"
)

const (
	// maxBodySize bounds request bodies after decompression.
	maxBodySize = 64 << 20

	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	eventQueueSize = 256
)

// Server serves a provider.
type Server struct {
	p        provider.Provider
	token    string
	version  string
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires bearer authentication with token.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer creates a server for p.
func NewServer(p provider.Provider, opts ...Option) *Server {
	s := &Server{
		p: p,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "sandbox")
	return s
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	fileRoutes := http.NewServeMux()
	fileRoutes.HandleFunc("POST "+proto.PathRead, s.handleRead)
	fileRoutes.HandleFunc("POST "+proto.PathWrite, s.handleWrite)
	fileRoutes.HandleFunc("POST "+proto.PathList, s.handleList)
	fileRoutes.HandleFunc("POST "+proto.PathStat, s.handleStat)
	fileRoutes.HandleFunc("POST "+proto.PathDelete, s.handleDelete)
	fileRoutes.HandleFunc("POST "+proto.PathRename, s.handleRename)
	fileRoutes.HandleFunc("POST "+proto.PathMkdir, s.handleMkdir)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+proto.PathHealth, s.handleHealth)
	mux.Handle("GET "+proto.PathWatch, AuthMiddleware(s.token, http.HandlerFunc(s.handleWatch)))
	mux.Handle("/v1/files/", AuthMiddleware(s.token, ZstdMiddleware(fileRoutes)))

	return LoggingMiddleware(s.log, mux)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("sandbox server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, proto.HealthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var req proto.PathRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := s.p.ReadFile(r.Context(), req.Path)
	if err != nil {
		s.fail(w, "read failed", err)
		return
	}
	writeJSON(w, http.StatusOK, proto.ReadResponse{Path: f.Path, Content: f.Content, Binary: f.Binary})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req proto.WriteRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path required", nil)
		return
	}
	if err := s.p.WriteFile(r.Context(), req.Path, req.Content, req.Overwrite); err != nil {
		s.fail(w, "write failed", err)
		return
	}
	writeJSON(w, http.StatusOK, proto.OKResponse{OK: true})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req proto.PathRequest
	if !decode(w, r, &req) {
		return
	}
	entries, err := s.p.ListFiles(r.Context(), req.Path)
	if err != nil {
		s.fail(w, "list failed", err)
		return
	}
	if entries == nil {
		entries = []provider.Entry{}
	}
	writeJSON(w, http.StatusOK, proto.ListResponse{Files: entries})
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	var req proto.PathRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := s.p.StatFile(r.Context(), req.Path)
	if err != nil {
		s.fail(w, "stat failed", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req proto.DeleteRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.p.DeleteFiles(r.Context(), req.Path, req.Recursive); err != nil {
		s.fail(w, "delete failed", err)
		return
	}
	writeJSON(w, http.StatusOK, proto.OKResponse{OK: true})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req proto.RenameRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OldPath == "" || req.NewPath == "" {
		writeError(w, http.StatusBadRequest, "oldPath and newPath required", nil)
		return
	}
	if err := s.p.RenameFile(r.Context(), req.OldPath, req.NewPath); err != nil {
		s.fail(w, "rename failed", err)
		return
	}
	writeJSON(w, http.StatusOK, proto.OKResponse{OK: true})
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req proto.PathRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.p.CreateDirectory(r.Context(), req.Path); err != nil {
		s.fail(w, "mkdir failed", err)
		return
	}
	writeJSON(w, http.StatusOK, proto.OKResponse{OK: true})
}

// handleWatch streams provider.WatchEvent messages over a websocket until
// the client disconnects.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := provider.WatchOptions{
		Path:      q.Get(proto.QueryPath),
		Recursive: true,
		Excludes:  q[proto.QueryExclude],
	}
	if v := q.Get(proto.QueryRecursive); v != "" {
		rec, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid recursive flag", err)
			return
		}
		opts.Recursive = rec
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	queue := make(chan provider.WatchEvent, eventQueueSize)
	watch, err := s.p.WatchFiles(ctx, opts, func(ev provider.WatchEvent) {
		select {
		case queue <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		s.log.Error("starting watch failed", "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(writeWait))
		return
	}
	defer watch.Stop()

	// Reads only surface the client closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.log.Info("watch started", "path", opts.Path, "excludes", len(opts.Excludes))
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev := <-queue:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("watch write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			s.log.Info("watch stopped", "path", opts.Path)
			return
		}
	}
}

// fail maps provider errors to HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, provider.ErrNotFound), errors.Is(err, files.ErrNotFound):
		writeError(w, http.StatusNotFound, msg, err)
	case errors.Is(err, provider.ErrExists):
		writeError(w, http.StatusConflict, msg, err)
	case errors.Is(err, files.ErrIsDirectory):
		writeError(w, http.StatusUnprocessableEntity, msg, err)
	case errors.Is(err, files.ErrOutsideRoot):
		writeError(w, http.StatusBadRequest, msg, err)
	default:
		s.log.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := proto.ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
