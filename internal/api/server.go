package api

import (
	"chat-relay/internal/cache"
	"chat-relay/internal/chat"
	"chat-relay/internal/config"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

//go:embed static/index.html
var indexPage []byte

type Server struct {
	Config   *config.Config
	Registry chat.Submitter
	Sessions cache.SessionCache
	logger   *slog.Logger
}

func NewServer(config *config.Config, registry chat.Submitter, sessions cache.SessionCache, logger *slog.Logger) *Server {
	return &Server{
		Config:   config,
		Registry: registry,
		Sessions: sessions,
		logger:   logger,
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate;")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("API server is started.")); err != nil {
		s.logger.Error(fmt.Sprintf("Error writing response: %v", err))
	}
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexPage); err != nil {
		s.logger.Error("Error writing index page", "error", err)
	}
}

// Handler wires the routes. Chat connections live until ctx is done.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /chat", s.chatHandler(ctx))
	mux.HandleFunc("POST /message", s.messageHandler())
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    net.JoinHostPort(s.Config.APIServerHost, s.Config.APIServerPort),
		Handler: s.Handler(ctx),
	}

	listenErr := make(chan error, 1)
	go func() {
		s.logger.Info("API server is running", "port", s.Config.APIServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server failed to listen and serve", "error", err)
			listenErr <- err
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	var startErr error
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case err := <-listenErr:
			startErr = fmt.Errorf("listening on %s: %w", server.Addr, err)
			return
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("API server failed to shutdown", "error", err)
		}
	}()

	wg.Wait()
	return startErr
}
