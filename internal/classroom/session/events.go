package session

// Event is one coordinator-produced notification. Type names the wire frame
// the transport emits; payload fields carry their own JSON tags so the
// transport can marshal events without translation.
type Event interface {
	Type() string
}

// Joined acknowledges a join to the joining connection.
type Joined struct {
	ServerTime string   `json:"server_time"`
	Names      []string `json:"names"`
}

// Type implements Event.
func (Joined) Type() string { return "classroom.joined" }

// PollOpened announces a new open poll. It deliberately carries neither the
// tally nor the correctness flags so answers cannot leak.
type PollOpened struct {
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
	StartedAt        string   `json:"started_at"`
}

// Type implements Event.
func (PollOpened) Type() string { return "poll.opened" }

// PollProgress reports the running tally after an accepted answer.
type PollProgress struct {
	Tally         map[string]int `json:"tally"`
	AnsweredCount int            `json:"answered_count"`
	TotalCount    int            `json:"total_count"`
}

// Type implements Event.
func (PollProgress) Type() string { return "poll.progress" }

// PollResults carries a results snapshot. The broadcast variant at
// resolution includes the correctness flags; the eager per-participant
// variant leaves them nil.
type PollResults struct {
	Question     string         `json:"question"`
	Tally        map[string]int `json:"tally"`
	TotalCount   int            `json:"total_count"`
	CorrectFlags []bool         `json:"correct_flags,omitempty"`
}

// Type implements Event.
func (PollResults) Type() string { return "poll.results" }

// PollRejected reports a refused create_poll to the requesting connection.
type PollRejected struct {
	Reason string `json:"reason"`
}

// Type implements Event.
func (PollRejected) Type() string { return "poll.rejected" }

// RosterUpdated carries the display names of joined participants.
type RosterUpdated struct {
	Names []string `json:"names"`
}

// Type implements Event.
func (RosterUpdated) Type() string { return "roster.updated" }

// ParticipantRemoved notifies the removed connection only.
type ParticipantRemoved struct{}

// Type implements Event.
func (ParticipantRemoved) Type() string { return "participant.removed" }

// ChatMessage carries one chat message.
type ChatMessage struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	SentAt    string `json:"sent_at"`
}

// Type implements Event.
func (ChatMessage) Type() string { return "chat.message" }

// ChatHistory carries the retained chat ring, oldest first.
type ChatHistory struct {
	Messages []ChatMessage `json:"messages"`
}

// Type implements Event.
func (ChatHistory) Type() string { return "chat.history" }

// HistoryEntry is the wire form of one resolved poll.
type HistoryEntry struct {
	PollID       string         `json:"poll_id"`
	Question     string         `json:"question"`
	Options      []string       `json:"options"`
	CorrectFlags []bool         `json:"correct_flags"`
	Tally        map[string]int `json:"tally"`
	ResolvedAt   string         `json:"resolved_at"`
}

// HistoryData carries resolved polls, oldest first.
type HistoryData struct {
	Entries []HistoryEntry `json:"entries"`
}

// Type implements Event.
func (HistoryData) Type() string { return "history.data" }
