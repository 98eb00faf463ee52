package chat

import (
	"context"
	"errors"
	"github.com/coder/websocket"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingMember keeps every delivered line.
type recordingMember struct {
	id    Identity
	mu    sync.Mutex
	lines []string
}

func newRecordingMember(id string) *recordingMember {
	return &recordingMember{id: Identity(id)}
}

func (m *recordingMember) Identity() Identity { return m.id }

func (m *recordingMember) Deliver(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

func (m *recordingMember) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

type panickingMember struct {
	id Identity
}

func (m panickingMember) Identity() Identity { return m.id }
func (m panickingMember) Deliver(string)     { panic("connection already torn down") }

// recordingSubmitter collects submitted events in order.
type recordingSubmitter struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSubmitter) Submit(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *recordingSubmitter) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *recordingSubmitter) count(match func(Event) bool) int {
	n := 0
	for _, evt := range s.Events() {
		if match(evt) {
			n++
		}
	}
	return n
}

type frame struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// stubTransport feeds frames to Read and records writes.
type stubTransport struct {
	frames   chan frame
	closed   chan struct{}
	once     sync.Once
	writeErr error

	mu         sync.Mutex
	written    []string
	closeCalls int
	closeCode  websocket.StatusCode
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		frames: make(chan frame, 16),
		closed: make(chan struct{}),
	}
}

func (s *stubTransport) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case f := <-s.frames:
		return f.typ, f.data, f.err
	case <-s.closed:
		return 0, nil, io.EOF
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (s *stubTransport) Write(_ context.Context, _ websocket.MessageType, p []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, string(p))
	return nil
}

func (s *stubTransport) Ping(context.Context) error { return nil }

func (s *stubTransport) Close(code websocket.StatusCode, _ string) error {
	s.mu.Lock()
	s.closeCalls++
	s.closeCode = code
	s.mu.Unlock()
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *stubTransport) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

func (s *stubTransport) CloseCode() websocket.StatusCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode
}

func (s *stubTransport) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

func isLeft(evt Event) bool {
	_, ok := evt.(Left)
	return ok
}

func isJoined(evt Event) bool {
	_, ok := evt.(Joined)
	return ok
}

func startRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := NewRegistry(discardLogger(), opts...)
	go r.Run(ctx)
	return r
}

var errBoom = errors.New("boom")
