package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxChatMessageRunes bounds a chat message body; longer text is truncated.
const MaxChatMessageRunes = 1000

// DefaultChatHistoryLimit is the ring capacity used when none is configured.
const DefaultChatHistoryLimit = 200

// ErrEmptyChatMessage indicates a chat message with no text.
var ErrEmptyChatMessage = errors.New("chat message text is required")

// ChatMessage is one immutable chat event.
type ChatMessage struct {
	ID     string
	Sender string
	Text   string
	SentAt time.Time
}

// NewChatMessage validates and builds a chat message. Blank text is
// rejected, oversized text is truncated, and a missing sender label falls
// back to "Anonymous".
func NewChatMessage(sender, text string, now func() time.Time) (ChatMessage, error) {
	if now == nil {
		now = time.Now
	}
	if strings.TrimSpace(text) == "" {
		return ChatMessage{}, ErrEmptyChatMessage
	}
	runes := []rune(text)
	if len(runes) > MaxChatMessageRunes {
		text = string(runes[:MaxChatMessageRunes])
	}
	sender = strings.TrimSpace(sender)
	if sender == "" {
		sender = "Anonymous"
	}
	return ChatMessage{
		ID:     uuid.NewString(),
		Sender: sender,
		Text:   text,
		SentAt: now().UTC(),
	}, nil
}

// ChatRing retains the most recent messages up to a fixed capacity.
// It is not safe for concurrent use; the coordinator serializes access.
type ChatRing struct {
	capacity int
	messages []ChatMessage
}

// NewChatRing returns a ring holding at most capacity messages.
func NewChatRing(capacity int) *ChatRing {
	if capacity <= 0 {
		capacity = DefaultChatHistoryLimit
	}
	return &ChatRing{capacity: capacity}
}

// Append adds a message, evicting the oldest beyond capacity.
func (r *ChatRing) Append(msg ChatMessage) {
	r.messages = append(r.messages, msg)
	if len(r.messages) > r.capacity {
		r.messages = r.messages[len(r.messages)-r.capacity:]
	}
}

// Messages returns the retained messages, oldest first.
func (r *ChatRing) Messages() []ChatMessage {
	messages := make([]ChatMessage, len(r.messages))
	copy(messages, r.messages)
	return messages
}
