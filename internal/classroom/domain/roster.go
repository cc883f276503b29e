package domain

import "strings"

// ConnID identifies one live connection. The transport layer owns the value;
// the roster only uses it as an opaque key.
type ConnID string

// Participant is one joined connection's display name and per-poll answer
// state.
type Participant struct {
	Name     string
	Answered bool
	Selected string
}

// Roster tracks joined participants in join order. It is not safe for
// concurrent use; the coordinator serializes access.
type Roster struct {
	byConn map[ConnID]*Participant
	order  []ConnID
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{byConn: make(map[ConnID]*Participant)}
}

// Join upserts a participant with fresh answer state. Rejoining under the
// same connection replaces the display name without duplicating the entry.
func (r *Roster) Join(conn ConnID, name string) {
	name = strings.TrimSpace(name)
	if existing, ok := r.byConn[conn]; ok {
		existing.Name = name
		existing.Answered = false
		existing.Selected = ""
		return
	}
	r.byConn[conn] = &Participant{Name: name}
	r.order = append(r.order, conn)
}

// Get returns the participant for conn, if joined.
func (r *Roster) Get(conn ConnID) (*Participant, bool) {
	participant, ok := r.byConn[conn]
	return participant, ok
}

// Remove deletes the participant for conn and reports whether it existed.
func (r *Roster) Remove(conn ConnID) bool {
	if _, ok := r.byConn[conn]; !ok {
		return false
	}
	delete(r.byConn, conn)
	for i, candidate := range r.order {
		if candidate == conn {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// FindByName returns the first participant, in join order, whose display
// name matches. Display names are not unique; the first match wins.
func (r *Roster) FindByName(name string) (ConnID, bool) {
	name = strings.TrimSpace(name)
	for _, conn := range r.order {
		if r.byConn[conn].Name == name {
			return conn, true
		}
	}
	return "", false
}

// ResetAnswers clears every participant's answer state for a new poll.
func (r *Roster) ResetAnswers() {
	for _, participant := range r.byConn {
		participant.Answered = false
		participant.Selected = ""
	}
}

// MarkAnswered records a participant's first answer. It reports false when
// the participant is unknown or already answered.
func (r *Roster) MarkAnswered(conn ConnID, label string) bool {
	participant, ok := r.byConn[conn]
	if !ok || participant.Answered {
		return false
	}
	participant.Answered = true
	participant.Selected = label
	return true
}

// AllAnswered reports whether every joined participant has answered.
// An empty roster counts as all answered.
func (r *Roster) AllAnswered() bool {
	for _, participant := range r.byConn {
		if !participant.Answered {
			return false
		}
	}
	return true
}

// AnsweredCount returns how many participants have answered the open poll.
func (r *Roster) AnsweredCount() int {
	count := 0
	for _, participant := range r.byConn {
		if participant.Answered {
			count++
		}
	}
	return count
}

// Size returns the number of joined participants.
func (r *Roster) Size() int {
	return len(r.byConn)
}

// Names returns display names in join order.
func (r *Roster) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, conn := range r.order {
		names = append(names, r.byConn[conn].Name)
	}
	return names
}
