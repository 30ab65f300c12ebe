package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"jupiterdash/pkg/app"
	"jupiterdash/pkg/metrics"
	"jupiterdash/pkg/qr"
	"jupiterdash/pkg/wallet"
	"jupiterdash/pkg/watcher"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8080
)

// Options configures the HTTP surface. Browser requests that change state
// or open /ws must come from the server's own origin or from AllowedOrigins;
// "*" allows every origin.
type Options struct {
	Host           string
	Port           int
	AllowedOrigins []string
	QRSize         int
}

type Server struct {
	actions *app.Actions
	watcher *watcher.Watcher
	opts    Options
	log     zerolog.Logger

	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	mu       sync.Mutex
	mux      *chi.Mux
	handler  http.Handler
}

func NewServer(actions *app.Actions, w *watcher.Watcher, opts Options, logger zerolog.Logger) *Server {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.QRSize <= 0 {
		opts.QRSize = qr.DefaultSize
	}
	s := &Server{
		actions: actions,
		watcher: w,
		opts:    opts,
		log:     logger.With().Str("component", "server").Logger(),
		clients: make(map[*websocket.Conn]bool),
		mux:     chi.NewMux(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.originAllowed}
	s.routes()
	s.handler = newCORSHandler(opts.AllowedOrigins, s.mux)
	return s
}

func (s *Server) routes() {
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.RealIP)
	s.mux.Use(s.requestLogger)
	s.mux.Use(s.recoverer)

	s.mux.Get("/api/status", s.handleStatus)
	s.mux.Get("/api/qr.png", s.handleQR)
	s.mux.Group(func(r chi.Router) {
		r.Use(s.guardOrigin)
		r.Use(requireJSON)
		r.Post("/api/refresh", s.handleRefresh)
		r.Post("/api/connect", s.handleConnect)
		r.Post("/api/send", s.handleSend)
	})
	s.mux.Get("/ws", s.handleWS)
	s.mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.listenToWatcher(ctx, s.watcher.Subscribe())

	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.Addr()).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.Snapshot())
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.actions.Address()
	if !ok {
		writeError(w, http.StatusNotFound, wallet.ErrNotConnected)
		return
	}
	png, err := qr.PNG(addr.Hex(), s.opts.QRSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.actions.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh queued"})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	addr, err := s.actions.Connect(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr.Hex()})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	res, err := s.actions.Send(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// The initial write happens under the lock so a concurrent broadcast
	// cannot interleave with it.
	s.mu.Lock()
	err = conn.WriteJSON(watcher.Event{Type: "initial", Data: s.watcher.Snapshot()})
	if err == nil {
		s.clients[conn] = true
	}
	s.mu.Unlock()
	if err != nil {
		return
	}

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToWatcher(ctx context.Context, sub watcher.Subscriber) {
	defer s.watcher.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(event)
		}
	}
}

func (s *Server) broadcast(event watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		_ = client.Close()
		delete(s.clients, client)
	}
}

// statusFor maps action errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wallet.ErrWalletUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, wallet.ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, wallet.ErrNotConnected):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
