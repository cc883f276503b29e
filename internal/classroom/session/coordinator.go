// Package session coordinates one live classroom: the poll lifecycle, the
// participant roster, the chat ring, and the fan-out of state changes to
// connected peers. All commands funnel through a single Coordinator whose
// mutex serializes handlers and the expiry timer, so every observer sees
// state changes in one total order.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/classpulse/internal/classroom/domain"
	"github.com/louisbranch/classpulse/internal/classroom/storage"
	"github.com/louisbranch/classpulse/internal/platform/id"
)

var (
	// ErrPollInProgress reports a create_poll refused because the open
	// poll still has unanswered participants.
	ErrPollInProgress = errors.New("poll in progress")
	// ErrParticipantNotFound reports a removal naming nobody on the roster.
	ErrParticipantNotFound = errors.New("participant not found")
)

// DefaultHistoryLimit bounds the in-memory resolved-poll log.
const DefaultHistoryLimit = 500

const defaultArchiveTimeout = 2 * time.Second

// Sink receives coordinator events. Broadcast targets every connected peer,
// Send a single connection. Implementations must not call back into the
// Coordinator.
type Sink interface {
	Broadcast(event Event)
	Send(conn domain.ConnID, event Event)
}

// Config carries the Coordinator's tunables. Zero values select defaults.
type Config struct {
	// MinTimeLimit and MaxTimeLimit clamp requested poll time budgets.
	MinTimeLimit time.Duration
	MaxTimeLimit time.Duration
	// ChatHistoryLimit caps the retained chat ring.
	ChatHistoryLimit int
	// HistoryLimit caps the in-memory resolved-poll log.
	HistoryLimit int
	// Archive, when set, durably records resolved polls and chat messages.
	// Archive failures are logged and never block the live session.
	Archive storage.Archive
	// ArchiveTimeout bounds each archive write.
	ArchiveTimeout time.Duration
	// Now and NewID override the clock and ID source in tests.
	Now   func() time.Time
	NewID func() (string, error)
}

// Coordinator owns all live-session state.
type Coordinator struct {
	sink           Sink
	archive        storage.Archive
	archiveTimeout time.Duration
	minLimit       time.Duration
	maxLimit       time.Duration
	historyLimit   int
	now            func() time.Time
	newID          func() (string, error)

	mu          sync.Mutex
	roster      *domain.Roster
	poll        *domain.Poll
	pollGen     uint64
	cancelTimer context.CancelFunc
	history     []domain.HistoryEntry
	chat        *domain.ChatRing
}

// New builds a Coordinator publishing to sink.
func New(sink Sink, cfg Config) *Coordinator {
	if cfg.MinTimeLimit <= 0 {
		cfg.MinTimeLimit = domain.MinTimeLimit
	}
	if cfg.MaxTimeLimit <= 0 {
		cfg.MaxTimeLimit = domain.MaxTimeLimit
	}
	if cfg.ChatHistoryLimit <= 0 {
		cfg.ChatHistoryLimit = domain.DefaultChatHistoryLimit
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = defaultArchiveTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	return &Coordinator{
		sink:           sink,
		archive:        cfg.Archive,
		archiveTimeout: cfg.ArchiveTimeout,
		minLimit:       cfg.MinTimeLimit,
		maxLimit:       cfg.MaxTimeLimit,
		historyLimit:   cfg.HistoryLimit,
		now:            cfg.Now,
		newID:          cfg.NewID,
		roster:         domain.NewRoster(),
		chat:           domain.NewChatRing(cfg.ChatHistoryLimit),
	}
}

// Join admits conn under name, replacing any earlier identity the connection
// held. The joiner receives an acknowledgment and, when a poll is open, the
// poll view without its tally; everyone receives the updated roster.
func (c *Coordinator) Join(conn domain.ConnID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roster.Join(conn, name)
	c.sink.Send(conn, Joined{
		ServerTime: c.now().UTC().Format(time.RFC3339),
		Names:      c.roster.Names(),
	})
	if c.poll != nil {
		c.sink.Send(conn, pollOpenedEvent(c.poll))
	}
	c.sink.Broadcast(RosterUpdated{Names: c.roster.Names()})
}

// Disconnect drops conn from the roster. Submitted answers stay in the
// tally, and an open poll keeps running until its timer or a later
// all-answered check resolves it.
func (c *Coordinator) Disconnect(conn domain.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.roster.Remove(conn) {
		return
	}
	c.sink.Broadcast(RosterUpdated{Names: c.roster.Names()})
}

// CreatePoll validates input and opens a new poll. A conflicting open poll
// or invalid input is reported to conn as a rejection and leaves all state
// untouched. When admission passes while a drained poll is still open, the
// old poll resolves first so its results are not lost.
func (c *Coordinator) CreatePoll(conn domain.ConnID, input domain.CreatePollInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poll != nil && c.roster.Size() > 0 && !c.roster.AllAnswered() {
		c.sink.Send(conn, PollRejected{Reason: ErrPollInProgress.Error()})
		return ErrPollInProgress
	}
	poll, err := domain.CreatePoll(input, c.minLimit, c.maxLimit, c.now, c.newID)
	if err != nil {
		c.sink.Send(conn, PollRejected{Reason: err.Error()})
		return err
	}
	if c.poll != nil {
		c.resolveLocked()
	}
	c.roster.ResetAnswers()
	c.poll = poll
	c.pollGen++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelTimer = cancel
	go c.watchExpiry(ctx, c.pollGen, poll.TimeLimit)
	c.sink.Broadcast(pollOpenedEvent(poll))
	return nil
}

// SubmitAnswer records conn's answer for the open poll. Answers without an
// open poll, from unjoined connections, repeat answers, and unknown option
// labels are ignored. An accepted answer binds permanently, triggers an
// eager results view for the submitter, a progress broadcast, and, once
// every joined participant has answered, early resolution.
func (c *Coordinator) SubmitAnswer(conn domain.ConnID, option string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poll == nil {
		return
	}
	participant, ok := c.roster.Get(conn)
	if !ok || participant.Answered {
		return
	}
	if !c.poll.HasOption(option) {
		return
	}
	c.roster.MarkAnswered(conn, option)
	c.poll.RecordAnswer(option)
	tally := c.poll.Tally()
	c.sink.Send(conn, PollResults{
		Question:   c.poll.Question,
		Tally:      tally,
		TotalCount: c.roster.Size(),
	})
	c.sink.Broadcast(PollProgress{
		Tally:         tally,
		AnsweredCount: c.roster.AnsweredCount(),
		TotalCount:    c.roster.Size(),
	})
	if c.roster.AllAnswered() {
		c.resolveLocked()
	}
}

// Remove drops the first participant joined under name. The removed
// connection is notified individually and the roster broadcast; an unknown
// name is reported only to the caller.
func (c *Coordinator) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	target, ok := c.roster.FindByName(name)
	if !ok {
		return ErrParticipantNotFound
	}
	c.roster.Remove(target)
	c.sink.Send(target, ParticipantRemoved{})
	c.sink.Broadcast(RosterUpdated{Names: c.roster.Names()})
	return nil
}

// PostChat appends a chat message to the ring and broadcasts it. Blank text
// is a no-op; overlong text is truncated and a blank sender replaced before
// the message is retained.
func (c *Coordinator) PostChat(sender, text string) error {
	msg, err := domain.NewChatMessage(sender, text, c.now)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chat.Append(msg)
	c.archiveChat(msg)
	c.sink.Broadcast(chatMessageEvent(msg))
	return nil
}

// ChatHistory sends the retained chat ring, oldest first, to conn.
func (c *Coordinator) ChatHistory(conn domain.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := c.chat.Messages()
	event := ChatHistory{Messages: make([]ChatMessage, 0, len(messages))}
	for _, msg := range messages {
		event.Messages = append(event.Messages, chatMessageEvent(msg))
	}
	c.sink.Send(conn, event)
}

// History sends the resolved-poll log, oldest first, to conn.
func (c *Coordinator) History(conn domain.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	event := HistoryData{Entries: make([]HistoryEntry, 0, len(c.history))}
	for _, entry := range c.history {
		event.Entries = append(event.Entries, HistoryEntry{
			PollID:       entry.PollID,
			Question:     entry.Question,
			Options:      entry.Options,
			CorrectFlags: entry.CorrectFlags,
			Tally:        entry.Tally,
			ResolvedAt:   entry.ResolvedAt.Format(time.RFC3339),
		})
	}
	c.sink.Send(conn, event)
}

// Close cancels any pending expiry timer. The Coordinator accepts no new
// commands afterward only by convention; callers stop the transport first.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
}

// watchExpiry resolves the poll of generation gen once limit elapses,
// unless the per-poll context is canceled first.
func (c *Coordinator) watchExpiry(ctx context.Context, gen uint64, limit time.Duration) {
	timer := time.NewTimer(limit)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poll == nil || c.pollGen != gen {
		return
	}
	c.resolveLocked()
}

// resolveLocked closes the open poll, broadcasting final results with
// correctness flags, appending to the history log and the archive, and
// canceling the expiry timer. Callers must hold c.mu.
func (c *Coordinator) resolveLocked() {
	if c.poll == nil {
		return
	}
	entry := c.poll.Snapshot(c.now().UTC())
	c.sink.Broadcast(PollResults{
		Question:     entry.Question,
		Tally:        entry.Tally,
		TotalCount:   c.roster.Size(),
		CorrectFlags: entry.CorrectFlags,
	})
	c.history = append(c.history, entry)
	if len(c.history) > c.historyLimit {
		c.history = c.history[len(c.history)-c.historyLimit:]
	}
	c.archivePoll(entry)
	c.poll = nil
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
}

func (c *Coordinator) archivePoll(entry domain.HistoryEntry) {
	if c.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.archiveTimeout)
	defer cancel()
	record := storage.ResolvedPoll{
		PollID:       entry.PollID,
		Question:     entry.Question,
		Options:      entry.Options,
		CorrectFlags: entry.CorrectFlags,
		Tally:        entry.Tally,
		ResolvedAt:   entry.ResolvedAt,
	}
	if err := c.archive.AppendResolvedPoll(ctx, record); err != nil {
		log.Printf("archive resolved poll %s: %v", entry.PollID, err)
	}
}

func (c *Coordinator) archiveChat(msg domain.ChatMessage) {
	if c.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.archiveTimeout)
	defer cancel()
	record := storage.ChatRecord{
		MessageID: msg.ID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		SentAt:    msg.SentAt,
	}
	if err := c.archive.AppendChatMessage(ctx, record); err != nil {
		log.Printf("archive chat message %s: %v", msg.ID, err)
	}
}

func pollOpenedEvent(poll *domain.Poll) PollOpened {
	return PollOpened{
		Question:         poll.Question,
		Options:          poll.Options,
		TimeLimitSeconds: int(poll.TimeLimit / time.Second),
		StartedAt:        poll.StartedAt.Format(time.RFC3339),
	}
}

func chatMessageEvent(msg domain.ChatMessage) ChatMessage {
	return ChatMessage{
		MessageID: msg.ID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		SentAt:    msg.SentAt.Format(time.RFC3339),
	}
}
