package chat

import (
	"context"
	"fmt"
	"log/slog"
)

// Submitter accepts events without waiting for them to be processed.
type Submitter interface {
	Submit(evt Event)
}

// Registry is the single owner of chat membership. Every join, leave and
// message goes through Submit and is applied by the Run goroutine, one
// event at a time, so members is never shared.
type Registry struct {
	logger     *slog.Logger
	inbox      *mailbox
	members    map[Identity]Member
	authorEcho bool
}

type RegistryOption func(*Registry)

// WithAuthorEcho controls whether the author of a message receives its own
// broadcast. Enabled by default.
func WithAuthorEcho(enabled bool) RegistryOption {
	return func(r *Registry) {
		r.authorEcho = enabled
	}
}

func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:     logger,
		inbox:      newMailbox(),
		members:    make(map[Identity]Member),
		authorEcho: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Submit(evt Event) {
	if evt == nil {
		return
	}
	r.inbox.push(evt)
}

// Run processes submitted events until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	r.logger.Info("chat registry is running")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down chat registry", "members", len(r.members))
			return
		case <-r.inbox.ready():
			for _, evt := range r.inbox.drain() {
				r.process(evt)
			}
		}
	}
}

func (r *Registry) process(evt Event) {
	switch e := evt.(type) {
	case Joined:
		if e.Member == nil {
			return
		}
		id := e.Member.Identity()
		r.members[id] = e.Member
		r.logger.Debug("member joined", "clientID", id, "members", len(r.members))
		r.broadcast(joinedLine(id), "")
	case Left:
		if _, ok := r.members[e.ID]; ok {
			delete(r.members, e.ID)
			r.logger.Debug("member left", "clientID", e.ID, "members", len(r.members))
		}
		r.broadcast(leftLine(e.ID), "")
	case MessageSent:
		var skip Identity
		if !r.authorEcho {
			skip = e.Author
		}
		r.broadcast(messageLine(e.Author, e.Content), skip)
	default:
		r.logger.Warn("unknown chat event", "type", fmt.Sprintf("%T", evt))
	}
}

// broadcast hands line to every member except skip.
func (r *Registry) broadcast(line string, skip Identity) {
	for id, member := range r.members {
		if skip != "" && id == skip {
			continue
		}
		r.deliver(id, member, line)
	}
}

func (r *Registry) deliver(id Identity, member Member, line string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("delivery to member failed", "clientID", id, "panic", rec)
		}
	}()
	member.Deliver(line)
}
