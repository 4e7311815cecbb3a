// Package session provides durable conversation state for the runtime.
//
// Each session is addressed by session_id and carries two records: the flat
// chat history (including TOOL_CALL / TOOL_RESULT marker messages) and the
// per-turn records with the caller's input and the final assistant text.
// Persistence is pluggable: in-memory only, a single JSON file, or a
// RESP-speaking key-value server.
package session

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/localrt/localrt/pkg/llms"
)

// TurnRecord captures one completed turn.
type TurnRecord struct {
	TurnID        string         `json:"turn_id"`
	InputMessages []llms.Message `json:"input_messages"`
	OutputText    *string        `json:"output_text"`
}

// Session is the durable conversation state addressed by session_id.
type Session struct {
	SessionID string         `json:"session_id"`
	History   []llms.Message `json:"history"`
	Turns     []TurnRecord   `json:"turns"`
}

// Clone returns a deep copy so callers can mutate without racing the cache.
func (s *Session) Clone() *Session {
	out := &Session{SessionID: s.SessionID}
	out.History = append(out.History, s.History...)
	out.Turns = append(out.Turns, s.Turns...)
	return out
}

// Store persists sessions. Load returns (nil, nil) when the session does not
// exist.
type Store interface {
	Load(sessionID string) (*Session, error)
	Save(s *Session) error
}

// NewID builds "<prefix>-<hex unix millis>-<hex rand64>" identifiers.
func NewID(prefix string) string {
	now := uint64(time.Now().UnixMilli())
	return fmt.Sprintf("%s-%x-%x", prefix, now, rand.Uint64())
}
