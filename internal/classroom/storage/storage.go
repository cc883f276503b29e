// Package storage defines persistence contracts for the classroom archive.
//
// The archive is a write-behind record of resolved polls and chat traffic.
// Live reads are served from the coordinator's in-memory state; the archive
// exists so an operator can point the service at a file and keep a record of
// the session.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested archive record is missing.
var ErrNotFound = errors.New("record not found")

// ResolvedPoll stores the immutable outcome of one poll.
type ResolvedPoll struct {
	PollID       string
	Question     string
	Options      []string
	CorrectFlags []bool
	Tally        map[string]int
	ResolvedAt   time.Time
}

// ChatRecord stores one archived chat message.
type ChatRecord struct {
	MessageID string
	Sender    string
	Text      string
	SentAt    time.Time
}

// Archive persists resolved polls and chat messages.
type Archive interface {
	AppendResolvedPoll(ctx context.Context, poll ResolvedPoll) error
	// ListResolvedPolls returns up to limit resolved polls, oldest first.
	ListResolvedPolls(ctx context.Context, limit int) ([]ResolvedPoll, error)
	AppendChatMessage(ctx context.Context, msg ChatRecord) error
	// ListChatMessages returns up to limit of the most recent messages,
	// oldest first.
	ListChatMessages(ctx context.Context, limit int) ([]ChatRecord, error)
}
