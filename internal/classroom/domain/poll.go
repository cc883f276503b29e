package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/classpulse/internal/platform/id"
)

// Default clamp bounds for a poll's time limit.
const (
	MinTimeLimit = 10 * time.Second
	MaxTimeLimit = 300 * time.Second
)

var (
	// ErrEmptyQuestion indicates a missing poll question.
	ErrEmptyQuestion = errors.New("poll question is required")
	// ErrTooFewOptions indicates fewer than two answer options.
	ErrTooFewOptions = errors.New("poll requires at least two options")
	// ErrEmptyOption indicates a blank answer option.
	ErrEmptyOption = errors.New("poll options must be non-empty")
	// ErrDuplicateOption indicates a repeated answer option.
	ErrDuplicateOption = errors.New("poll options must be unique")
	// ErrCorrectFlagsMismatch indicates correct flags not aligned with options.
	ErrCorrectFlagsMismatch = errors.New("correct flags must match option count")
)

// Poll is the state machine for a single question. It is created open and
// stays open until the coordinator resolves it; resolution is not modeled
// here beyond the final tally snapshot.
type Poll struct {
	ID           string
	Question     string
	Options      []string
	CorrectFlags []bool
	TimeLimit    time.Duration
	StartedAt    time.Time

	tally map[string]int
}

// CreatePollInput describes the fields needed to open a poll.
type CreatePollInput struct {
	Question         string
	Options          []string
	TimeLimitSeconds int
	CorrectFlags     []bool
}

// CreatePoll validates input and opens a poll with a zeroed tally, a
// generated ID, and a recorded start time. The time limit is clamped to
// [minLimit, maxLimit].
func CreatePoll(input CreatePollInput, minLimit, maxLimit time.Duration, now func() time.Time, idGenerator func() (string, error)) (*Poll, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreatePollInput(input)
	if err != nil {
		return nil, err
	}

	pollID, err := idGenerator()
	if err != nil {
		return nil, fmt.Errorf("generate poll id: %w", err)
	}

	tally := make(map[string]int, len(normalized.Options))
	for _, option := range normalized.Options {
		tally[option] = 0
	}

	return &Poll{
		ID:           pollID,
		Question:     normalized.Question,
		Options:      normalized.Options,
		CorrectFlags: normalized.CorrectFlags,
		TimeLimit:    ClampTimeLimit(normalized.TimeLimitSeconds, minLimit, maxLimit),
		StartedAt:    now().UTC(),
		tally:        tally,
	}, nil
}

// NormalizeCreatePollInput trims and validates poll creation input. Missing
// correct flags default to all-false.
func NormalizeCreatePollInput(input CreatePollInput) (CreatePollInput, error) {
	input.Question = strings.TrimSpace(input.Question)
	if input.Question == "" {
		return CreatePollInput{}, ErrEmptyQuestion
	}

	options := make([]string, 0, len(input.Options))
	seen := make(map[string]struct{}, len(input.Options))
	for _, option := range input.Options {
		option = strings.TrimSpace(option)
		if option == "" {
			return CreatePollInput{}, ErrEmptyOption
		}
		if _, dup := seen[option]; dup {
			return CreatePollInput{}, ErrDuplicateOption
		}
		seen[option] = struct{}{}
		options = append(options, option)
	}
	if len(options) < 2 {
		return CreatePollInput{}, ErrTooFewOptions
	}
	input.Options = options

	if input.CorrectFlags == nil {
		input.CorrectFlags = make([]bool, len(options))
	}
	if len(input.CorrectFlags) != len(options) {
		return CreatePollInput{}, ErrCorrectFlagsMismatch
	}

	return input, nil
}

// ClampTimeLimit converts a requested limit in seconds to a duration within
// [minLimit, maxLimit].
func ClampTimeLimit(seconds int, minLimit, maxLimit time.Duration) time.Duration {
	if minLimit <= 0 {
		minLimit = MinTimeLimit
	}
	if maxLimit < minLimit {
		maxLimit = minLimit
	}
	limit := time.Duration(seconds) * time.Second
	if limit < minLimit {
		return minLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// HasOption reports whether label is one of the poll's options.
func (p *Poll) HasOption(label string) bool {
	_, ok := p.tally[label]
	return ok
}

// RecordAnswer increments the tally for label. Labels outside the option set
// are rejected so a stray submission cannot corrupt the visible total.
func (p *Poll) RecordAnswer(label string) bool {
	if !p.HasOption(label) {
		return false
	}
	p.tally[label]++
	return true
}

// Tally returns a copy of the per-option counts.
func (p *Poll) Tally() map[string]int {
	tally := make(map[string]int, len(p.tally))
	for option, count := range p.tally {
		tally[option] = count
	}
	return tally
}

// HistoryEntry is the immutable record of a resolved poll.
type HistoryEntry struct {
	PollID       string
	Question     string
	Options      []string
	CorrectFlags []bool
	Tally        map[string]int
	ResolvedAt   time.Time
}

// Snapshot captures the poll's final state for the history log.
func (p *Poll) Snapshot(resolvedAt time.Time) HistoryEntry {
	options := make([]string, len(p.Options))
	copy(options, p.Options)
	flags := make([]bool, len(p.CorrectFlags))
	copy(flags, p.CorrectFlags)

	return HistoryEntry{
		PollID:       p.ID,
		Question:     p.Question,
		Options:      options,
		CorrectFlags: flags,
		Tally:        p.Tally(),
		ResolvedAt:   resolvedAt.UTC(),
	}
}
