package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

type wsTestFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsTestResultsPayload struct {
	Question     string         `json:"question"`
	Tally        map[string]int `json:"tally"`
	TotalCount   int            `json:"total_count"`
	CorrectFlags []bool         `json:"correct_flags"`
}

type wsTestProgressPayload struct {
	Tally         map[string]int `json:"tally"`
	AnsweredCount int            `json:"answered_count"`
	TotalCount    int            `json:"total_count"`
}

type wsTestRosterPayload struct {
	Names []string `json:"names"`
}

func dialWS(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewHandler())
	t.Cleanup(srv.Close)
	return dialWSWithExistingServer(t, srv, path)
}

func dialWSWithExistingServer(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wsTestFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got wsTestFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func readFrameOfType(t *testing.T, conn *websocket.Conn, frameType string) wsTestFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := readFrame(t, conn)
		if got.Type == frameType {
			return got
		}
	}
	t.Fatalf("no %q frame before deadline", frameType)
	return wsTestFrame{}
}

func joinClassroom(t *testing.T, conn *websocket.Conn, name string) {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":    "classroom.join",
		"payload": map[string]any{"name": name},
	})
	got := readFrame(t, conn)
	if got.Type != "classroom.joined" {
		t.Fatalf("frame type = %q, want %q", got.Type, "classroom.joined")
	}
}

func createMathPoll(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":       "poll.create",
		"request_id": "req-poll-1",
		"payload": map[string]any{
			"question":           "What is 2 + 2?",
			"options":            []string{"3", "4"},
			"time_limit_seconds": 60,
			"correct_flags":      []bool{false, true},
		},
	})
}

func TestWebSocketJoinReturnsJoinedAndRoster(t *testing.T) {
	conn := dialWS(t, "/ws")

	writeFrame(t, conn, map[string]any{
		"type":    "classroom.join",
		"payload": map[string]any{"name": "Alice"},
	})

	got := readFrame(t, conn)
	if got.Type != "classroom.joined" {
		t.Fatalf("frame type = %q, want %q", got.Type, "classroom.joined")
	}
	if !strings.Contains(string(got.Payload), "Alice") {
		t.Fatalf("joined payload = %s, expected participant name", string(got.Payload))
	}

	roster := readFrame(t, conn)
	if roster.Type != "roster.updated" {
		t.Fatalf("frame type = %q, want %q", roster.Type, "roster.updated")
	}
}

func TestWebSocketJoinRequiresName(t *testing.T) {
	conn := dialWS(t, "/ws")

	writeFrame(t, conn, map[string]any{
		"type":    "classroom.join",
		"payload": map[string]any{"name": "   "},
	})

	got := readFrame(t, conn)
	if got.Type != "classroom.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "classroom.error")
	}
	if !strings.Contains(string(got.Payload), "INVALID_ARGUMENT") {
		t.Fatalf("error payload = %s, expected INVALID_ARGUMENT code", string(got.Payload))
	}
}

func TestWebSocketUnknownTypeReturnsError(t *testing.T) {
	conn := dialWS(t, "/ws")

	writeFrame(t, conn, map[string]any{
		"type":       "classroom.unknown",
		"request_id": "req-bad-1",
		"payload":    map[string]any{},
	})

	got := readFrame(t, conn)
	if got.Type != "classroom.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "classroom.error")
	}
	if !strings.Contains(string(got.Payload), "INVALID_ARGUMENT") {
		t.Fatalf("error payload = %s, expected INVALID_ARGUMENT code", string(got.Payload))
	}
}

func TestWebSocketPollLifecycleBroadcasts(t *testing.T) {
	srv := httptest.NewServer(NewHandler())
	t.Cleanup(srv.Close)

	teacher := dialWSWithExistingServer(t, srv, "/ws")
	alice := dialWSWithExistingServer(t, srv, "/ws")
	bob := dialWSWithExistingServer(t, srv, "/ws")

	joinClassroom(t, alice, "Alice")
	joinClassroom(t, bob, "Bob")

	createMathPoll(t, teacher)

	opened := readFrameOfType(t, teacher, "poll.opened")
	if strings.Contains(string(opened.Payload), "tally") {
		t.Fatalf("poll.opened payload = %s, must not expose tally", string(opened.Payload))
	}
	if strings.Contains(string(opened.Payload), "correct_flags") {
		t.Fatalf("poll.opened payload = %s, must not expose correct flags", string(opened.Payload))
	}
	readFrameOfType(t, alice, "poll.opened")
	readFrameOfType(t, bob, "poll.opened")

	writeFrame(t, alice, map[string]any{
		"type":    "poll.answer",
		"payload": map[string]any{"option": "4"},
	})

	eager := readFrameOfType(t, alice, "poll.results")
	var eagerResults wsTestResultsPayload
	if err := json.Unmarshal(eager.Payload, &eagerResults); err != nil {
		t.Fatalf("decode eager results: %v", err)
	}
	if eagerResults.CorrectFlags != nil {
		t.Fatalf("eager results = %+v, must not expose correct flags", eagerResults)
	}
	if eagerResults.Tally["4"] != 1 {
		t.Fatalf("eager tally = %v", eagerResults.Tally)
	}

	progress := readFrameOfType(t, bob, "poll.progress")
	var p wsTestProgressPayload
	if err := json.Unmarshal(progress.Payload, &p); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if p.AnsweredCount != 1 || p.TotalCount != 2 {
		t.Fatalf("progress = %+v", p)
	}

	writeFrame(t, bob, map[string]any{
		"type":    "poll.answer",
		"payload": map[string]any{"option": "3"},
	})

	final := readFrameOfType(t, teacher, "poll.results")
	var results wsTestResultsPayload
	if err := json.Unmarshal(final.Payload, &results); err != nil {
		t.Fatalf("decode final results: %v", err)
	}
	if results.Tally["3"] != 1 || results.Tally["4"] != 1 {
		t.Fatalf("final tally = %v", results.Tally)
	}
	if len(results.CorrectFlags) != 2 || !results.CorrectFlags[1] {
		t.Fatalf("final correct flags = %v", results.CorrectFlags)
	}

	writeFrame(t, teacher, map[string]any{
		"type":    "poll.history",
		"payload": map[string]any{},
	})
	history := readFrameOfType(t, teacher, "history.data")
	if !strings.Contains(string(history.Payload), "What is 2 + 2?") {
		t.Fatalf("history payload = %s, expected resolved question", string(history.Payload))
	}
}

func TestWebSocketSecondPollRejectedWhileOpen(t *testing.T) {
	srv := httptest.NewServer(NewHandler())
	t.Cleanup(srv.Close)

	teacher := dialWSWithExistingServer(t, srv, "/ws")
	alice := dialWSWithExistingServer(t, srv, "/ws")
	joinClassroom(t, alice, "Alice")

	createMathPoll(t, teacher)
	readFrameOfType(t, teacher, "poll.opened")

	createMathPoll(t, teacher)
	rejected := readFrameOfType(t, teacher, "poll.rejected")
	if !strings.Contains(string(rejected.Payload), "poll in progress") {
		t.Fatalf("rejection payload = %s", string(rejected.Payload))
	}
}

func TestWebSocketChatSendBroadcastsAndReplays(t *testing.T) {
	srv := httptest.NewServer(NewHandler())
	t.Cleanup(srv.Close)

	alice := dialWSWithExistingServer(t, srv, "/ws")
	bob := dialWSWithExistingServer(t, srv, "/ws")

	writeFrame(t, alice, map[string]any{
		"type":    "chat.send",
		"payload": map[string]any{"sender": "Alice", "text": "hello room"},
	})

	got := readFrameOfType(t, bob, "chat.message")
	if !strings.Contains(string(got.Payload), "hello room") {
		t.Fatalf("chat payload = %s", string(got.Payload))
	}

	writeFrame(t, bob, map[string]any{
		"type":    "chat.history",
		"payload": map[string]any{},
	})
	replay := readFrameOfType(t, bob, "chat.history")
	if !strings.Contains(string(replay.Payload), "hello room") {
		t.Fatalf("chat history payload = %s", string(replay.Payload))
	}
}

func TestWebSocketChatSendRejectsBlankText(t *testing.T) {
	conn := dialWS(t, "/ws")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.send",
		"request_id": "req-chat-1",
		"payload":    map[string]any{"sender": "Alice", "text": "   "},
	})

	got := readFrame(t, conn)
	if got.Type != "classroom.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "classroom.error")
	}
}

func TestWebSocketRemoveNotifiesTarget(t *testing.T) {
	srv := httptest.NewServer(NewHandler())
	t.Cleanup(srv.Close)

	teacher := dialWSWithExistingServer(t, srv, "/ws")
	alice := dialWSWithExistingServer(t, srv, "/ws")
	joinClassroom(t, alice, "Alice")
	readFrameOfType(t, teacher, "roster.updated")

	writeFrame(t, teacher, map[string]any{
		"type":    "participant.remove",
		"payload": map[string]any{"name": "Alice"},
	})

	readFrameOfType(t, alice, "participant.removed")

	roster := readFrameOfType(t, teacher, "roster.updated")
	var names wsTestRosterPayload
	if err := json.Unmarshal(roster.Payload, &names); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	if len(names.Names) != 0 {
		t.Fatalf("roster after removal = %v", names.Names)
	}
}

func TestWebSocketRemoveUnknownNameReturnsNotFound(t *testing.T) {
	conn := dialWS(t, "/ws")

	writeFrame(t, conn, map[string]any{
		"type":       "participant.remove",
		"request_id": "req-remove-1",
		"payload":    map[string]any{"name": "Mallory"},
	})

	got := readFrame(t, conn)
	if got.Type != "classroom.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "classroom.error")
	}
	if !strings.Contains(string(got.Payload), "NOT_FOUND") {
		t.Fatalf("error payload = %s, expected NOT_FOUND code", string(got.Payload))
	}
}

func TestWebSocketLateJoinerSeesOpenPoll(t *testing.T) {
	srv := httptest.NewServer(NewHandler())
	t.Cleanup(srv.Close)

	teacher := dialWSWithExistingServer(t, srv, "/ws")
	alice := dialWSWithExistingServer(t, srv, "/ws")
	joinClassroom(t, alice, "Alice")

	createMathPoll(t, teacher)
	readFrameOfType(t, teacher, "poll.opened")

	bob := dialWSWithExistingServer(t, srv, "/ws")
	writeFrame(t, bob, map[string]any{
		"type":    "classroom.join",
		"payload": map[string]any{"name": "Bob"},
	})

	readFrameOfType(t, bob, "classroom.joined")
	view := readFrameOfType(t, bob, "poll.opened")
	if !strings.Contains(string(view.Payload), "What is 2 + 2?") {
		t.Fatalf("late joiner poll view = %s", string(view.Payload))
	}
}

func TestUpEndpointReturnsOK(t *testing.T) {
	srv := httptest.NewServer(NewHandler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
