package chat

import (
	"fmt"
	"github.com/google/uuid"
)

// Identity is the opaque token attached to a connection for its whole life.
type Identity string

func NewIdentity() Identity {
	return Identity(uuid.NewString())
}

// ParseIdentity accepts only canonical UUIDs, the form NewIdentity produces.
func ParseIdentity(s string) (Identity, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parsing identity: %w", err)
	}
	if id.String() != s {
		return "", fmt.Errorf("identity %q is not in canonical form", s)
	}
	return Identity(s), nil
}

func (i Identity) String() string {
	return string(i)
}

// Member is what the registry keeps for each live connection.
type Member interface {
	Identity() Identity
	Deliver(line string)
}

// Event is one of Joined, Left or MessageSent.
type Event interface {
	isEvent()
}

type Joined struct {
	Member Member
}

type Left struct {
	ID Identity
}

type MessageSent struct {
	Author  Identity
	Content string
}

func (Joined) isEvent()      {}
func (Left) isEvent()        {}
func (MessageSent) isEvent() {}

func joinedLine(id Identity) string {
	return fmt.Sprintf("!! << %s joined the chat >> !!", id)
}

func leftLine(id Identity) string {
	return fmt.Sprintf("%s left the chat", id)
}

func messageLine(author Identity, content string) string {
	return fmt.Sprintf("%s: %s", author, content)
}
