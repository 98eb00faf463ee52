package api

import (
	"chat-relay/internal/cache"
	"chat-relay/internal/chat"
	"context"
	"errors"
	"fmt"
	"github.com/coder/websocket"
	"github.com/matheodrd/httphelper/handler"
	"io"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"
)

// identityCookie carries the connection identity back to the browser so
// that /message can attribute posts to it.
const identityCookie = "id"

var (
	ErrMissingIdentity = errors.New("not authorized to send messages")
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrInvalidEncoding = errors.New("message body is not valid UTF-8")
)

func (s *Server) chatHandler(ctx context.Context) http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		id := chat.NewIdentity()
		http.SetCookie(w, &http.Cookie{
			Name:     identityCookie,
			Value:    id.String(),
			Path:     "/",
			HttpOnly: true,
		})

		// Cached before the upgrade so a POST racing the first frame is accepted.
		session := &cache.Session{ID: id.String(), RemoteAddr: r.RemoteAddr, ConnectedAt: time.Now()}
		if err := s.Sessions.SetSession(r.Context(), session); err != nil {
			s.logger.Warn("failed to cache session", "clientID", id, "error", err)
		}
		defer s.dropSession(id)

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			// Accept has already written the error response.
			s.logger.Warn("websocket accept failed", "clientID", id, "error", err)
			return nil
		}
		conn.SetReadLimit(s.Config.MaxMessageSize)

		connection := chat.NewConnection(id, conn, s.Registry, s.logger,
			chat.WithSendBufferSize(s.Config.SendBufferSize),
			chat.WithWriteTimeout(s.Config.WriteTimeout),
			chat.WithPingPeriod(s.Config.PingPeriod),
		)

		sessionCtx, stopRefresh := context.WithCancel(ctx)
		var refreshing sync.WaitGroup
		refreshing.Add(1)
		go func() {
			defer refreshing.Done()
			s.refreshSession(sessionCtx, session)
		}()

		s.logger.Debug("client connected", "clientID", id, "remoteAddr", r.RemoteAddr)
		connection.Serve(ctx)
		// The deferred delete must not race an in-flight refresh.
		stopRefresh()
		refreshing.Wait()
		s.logger.Debug("client disconnected", "clientID", id)
		return nil
	})
}

func (s *Server) dropSession(id chat.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Sessions.DeleteSession(ctx, id.String()); err != nil {
		s.logger.Warn("failed to delete session", "clientID", id, "error", err)
	}
}

// refreshSession keeps a long-lived connection's session from expiring.
func (s *Server) refreshSession(ctx context.Context, session *cache.Session) {
	if s.Config.SessionTTL <= 0 {
		return
	}
	ticker := time.NewTicker(s.Config.SessionTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sessions.SetSession(ctx, session); err != nil {
				s.logger.Warn("failed to refresh session", "clientID", session.ID, "error", err)
			}
		}
	}
}

func (s *Server) messageHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		cookie, err := r.Cookie(identityCookie)
		if err != nil {
			return handler.NewErrWithStatus(http.StatusUnauthorized, ErrMissingIdentity)
		}

		id, err := chat.ParseIdentity(cookie.Value)
		if err != nil {
			return handler.NewErrWithStatus(http.StatusUnauthorized, fmt.Errorf("%w: %w", ErrInvalidIdentity, err))
		}

		if _, err := s.Sessions.GetSession(r.Context(), id.String()); err != nil {
			if errors.Is(err, cache.ErrSessionNotFound) {
				return handler.NewErrWithStatus(http.StatusUnauthorized, fmt.Errorf("%w: no live session", ErrInvalidIdentity))
			}
			return handler.NewErrWithStatus(http.StatusServiceUnavailable, fmt.Errorf("looking up session: %w", err))
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.Config.MaxMessageSize))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return handler.NewErrWithStatus(http.StatusRequestEntityTooLarge, fmt.Errorf("message body: %w", err))
			}
			return handler.NewErrWithStatus(http.StatusBadRequest, fmt.Errorf("reading message body: %w", err))
		}

		if !utf8.Valid(body) {
			return handler.NewErrWithStatus(http.StatusBadRequest, ErrInvalidEncoding)
		}

		s.Registry.Submit(chat.MessageSent{Author: id, Content: string(body)})
		w.WriteHeader(http.StatusOK)
		return nil
	})
}
