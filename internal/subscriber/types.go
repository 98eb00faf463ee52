package subscriber

import (
	"errors"
	"github.com/google/uuid"
)

// Announcement is the payload published on the announcements channel.
type Announcement struct {
	Content string `json:"content"`
	Author  string `json:"author,omitempty"`
}

func (a *Announcement) Validate() error {
	if a.Content == "" {
		return errors.New("empty announcement content")
	}
	// Connection identities are UUIDs; an announcement must not speak for one.
	if _, err := uuid.Parse(a.Author); a.Author != "" && err == nil {
		return errors.New("announcement author must not be a connection identity")
	}
	return nil
}
