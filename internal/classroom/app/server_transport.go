package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/classpulse/internal/classroom/domain"
	"github.com/louisbranch/classpulse/internal/classroom/session"
	"github.com/louisbranch/classpulse/internal/platform/id"
)

type joinPayload struct {
	Name string `json:"name"`
}

type pollCreatePayload struct {
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
	CorrectFlags     []bool   `json:"correct_flags,omitempty"`
}

type pollAnswerPayload struct {
	Option string `json:"option"`
}

type removePayload struct {
	Name string `json:"name"`
}

type chatSendPayload struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// connRegistry tracks every live peer and delivers coordinator events to
// them. It implements session.Sink; a frame write failure is the reader
// loop's problem, so delivery errors are dropped here.
type connRegistry struct {
	mu    sync.Mutex
	peers map[domain.ConnID]*wsPeer
}

func newConnRegistry() *connRegistry {
	return &connRegistry{peers: make(map[domain.ConnID]*wsPeer)}
}

var _ session.Sink = (*connRegistry)(nil)

func (r *connRegistry) add(conn domain.ConnID, peer *wsPeer) {
	r.mu.Lock()
	r.peers[conn] = peer
	r.mu.Unlock()
}

func (r *connRegistry) remove(conn domain.ConnID) {
	r.mu.Lock()
	delete(r.peers, conn)
	r.mu.Unlock()
}

// Broadcast fans an event out to every connected peer. The subscriber set is
// snapshotted under the lock so a slow write cannot hold it.
func (r *connRegistry) Broadcast(event session.Event) {
	r.mu.Lock()
	peers := make([]*wsPeer, 0, len(r.peers))
	for _, peer := range r.peers {
		peers = append(peers, peer)
	}
	r.mu.Unlock()

	frame := eventFrame(event)
	for _, peer := range peers {
		_ = peer.writeFrame(frame)
	}
}

// Send delivers an event to a single connection, skipping peers already gone.
func (r *connRegistry) Send(conn domain.ConnID, event session.Event) {
	r.mu.Lock()
	peer := r.peers[conn]
	r.mu.Unlock()
	if peer == nil {
		return
	}
	_ = peer.writeFrame(eventFrame(event))
}

func eventFrame(event session.Event) wsFrame {
	return wsFrame{Type: event.Type(), Payload: mustJSON(event)}
}

// NewHandler creates classroom routes backed by an in-memory session with no
// archive, for tests and offline paths.
func NewHandler() http.Handler {
	registry := newConnRegistry()
	coordinator := session.New(registry, session.Config{})
	return newHandler(coordinator, registry)
}

func newHandler(coordinator *session.Coordinator, registry *connRegistry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, coordinator, registry)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func handleWSConn(conn *websocket.Conn, coordinator *session.Coordinator, registry *connRegistry) {
	defer func() {
		_ = conn.Close()
	}()

	rawID, err := id.NewID()
	if err != nil {
		log.Printf("classroom: generate connection id: %v", err)
		return
	}
	connID := domain.ConnID(rawID)

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn))
	registry.add(connID, peer)
	defer func() {
		registry.remove(connID)
		coordinator.Disconnect(connID)
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case "classroom.join":
			handleJoinFrame(peer, connID, coordinator, frame)
		case "poll.create":
			handlePollCreateFrame(peer, connID, coordinator, frame)
		case "poll.answer":
			handlePollAnswerFrame(peer, connID, coordinator, frame)
		case "poll.history":
			coordinator.History(connID)
		case "participant.remove":
			handleRemoveFrame(peer, coordinator, frame)
		case "chat.send":
			handleChatSendFrame(peer, coordinator, frame)
		case "chat.history":
			coordinator.ChatHistory(connID)
		default:
			_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func handleJoinFrame(peer *wsPeer, connID domain.ConnID, coordinator *session.Coordinator, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid join payload")
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "name is required")
		return
	}
	coordinator.Join(connID, name)
}

func handlePollCreateFrame(peer *wsPeer, connID domain.ConnID, coordinator *session.Coordinator, frame wsFrame) {
	var payload pollCreatePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid poll payload")
		return
	}
	// Refusals surface to the requester as a poll.rejected event.
	_ = coordinator.CreatePoll(connID, domain.CreatePollInput{
		Question:         payload.Question,
		Options:          payload.Options,
		TimeLimitSeconds: payload.TimeLimitSeconds,
		CorrectFlags:     payload.CorrectFlags,
	})
}

func handlePollAnswerFrame(peer *wsPeer, connID domain.ConnID, coordinator *session.Coordinator, frame wsFrame) {
	var payload pollAnswerPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid answer payload")
		return
	}
	coordinator.SubmitAnswer(connID, payload.Option)
}

func handleRemoveFrame(peer *wsPeer, coordinator *session.Coordinator, frame wsFrame) {
	var payload removePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid remove payload")
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "name is required")
		return
	}
	if err := coordinator.Remove(name); err != nil {
		_ = writeWSError(peer, frame.RequestID, "NOT_FOUND", "participant not found")
	}
}

func handleChatSendFrame(peer *wsPeer, coordinator *session.Coordinator, frame wsFrame) {
	var payload chatSendPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "invalid chat payload")
		return
	}
	if err := coordinator.PostChat(payload.Sender, payload.Text); err != nil {
		_ = writeWSError(peer, frame.RequestID, "INVALID_ARGUMENT", "text is required")
	}
}

func writeWSError(peer *wsPeer, requestID string, code string, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      "classroom.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: false,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
