// Package domain defines the core entities and rules for a live classroom
// session.
//
// The model is centered around three concepts:
//
// # Poll
//
// A Poll is the question currently accepting answers: its option list,
// per-option correctness flags, time limit, and running tally. At most one
// poll is open at a time; opening and resolving it is the session
// coordinator's job.
//
// # Roster
//
// The Roster is the live set of joined participants keyed by connection.
// Each participant carries a display name and per-poll answer state that is
// reset whenever a new poll opens.
//
// # Chat
//
// Chat messages are immutable, bounded in length, and retained in a
// fixed-capacity ring for late joiners.
//
// No transport, timing, or storage logic lives here.
package domain
