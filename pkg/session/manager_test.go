package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrt/localrt/pkg/config"
	"github.com/localrt/localrt/pkg/llms"
)

func strPtr(s string) *string { return &s }

func TestNewIDShape(t *testing.T) {
	id := NewID("sess")
	assert.True(t, strings.HasPrefix(id, "sess-"))
	assert.Len(t, strings.Split(id, "-"), 3)
	assert.NotEqual(t, id, NewID("sess"))
}

func TestManagerEnsureSessionID(t *testing.T) {
	m, err := NewManager(config.SessionStore{Type: "memory"})
	require.NoError(t, err)

	assert.Equal(t, "abc", m.EnsureSessionID("abc"))
	assert.True(t, strings.HasPrefix(m.EnsureSessionID(""), "sess-"))
}

func TestManagerAppendAndGet(t *testing.T) {
	m, err := NewManager(config.SessionStore{Type: "memory"})
	require.NoError(t, err)

	m.AppendToHistory("s1", llms.Message{Role: "user", Content: "hi"})
	m.AppendToHistory("s1", llms.Message{Role: "assistant", Content: "hello"})
	m.AppendTurn("s1", TurnRecord{TurnID: "turn-1", OutputText: strPtr("hello")})

	s := m.GetOrCreate("s1")
	require.Len(t, s.History, 2)
	assert.Equal(t, "hello", s.History[1].Content)
	require.Len(t, s.Turns, 1)
	assert.Equal(t, "turn-1", s.Turns[0].TurnID)

	// Returned copy must not alias the cache.
	s.History[0].Content = "mutated"
	again := m.GetOrCreate("s1")
	assert.Equal(t, "hi", again.History[0].Content)
}

func TestManagerAcquireBlocksSecondHolder(t *testing.T) {
	m, err := NewManager(config.SessionStore{Type: "memory"})
	require.NoError(t, err)

	release, err := m.Acquire("s1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		release2, err2 := m.Acquire("s1")
		assert.NoError(t, err2)
		release2()
		close(done)
	}()

	release()
	<-done
}

func TestManagerAcquireBusyTimeout(t *testing.T) {
	m, err := NewManager(config.SessionStore{Type: "memory"})
	require.NoError(t, err)
	m.LockWait = 10 * time.Millisecond

	release, err := m.Acquire("s1")
	require.NoError(t, err)
	defer release()

	_, err = m.Acquire("s1")
	assert.ErrorIs(t, err, ErrSessionBusy)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	m, err := NewManager(config.SessionStore{Type: "file", Path: path, Namespace: "regression"})
	require.NoError(t, err)

	m.AppendToHistory("sid-1",
		llms.Message{Role: "user", Content: "call the tool"},
		llms.Message{Role: "assistant", Content: `TOOL_CALL ide.search {"query":"x"}`},
		llms.Message{Role: "user", Content: `TOOL_RESULT ide.search {"ok":true}`},
	)
	m.AppendTurn("sid-1", TurnRecord{TurnID: "turn-1", OutputText: strPtr("done")})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TOOL_RESULT ide.search")

	var container struct {
		Sessions map[string]struct {
			SessionID string         `json:"session_id"`
			History   []llms.Message `json:"history"`
			Turns     []TurnRecord   `json:"turns"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(data, &container))
	entry, ok := container.Sessions["regression:sid-1"]
	require.True(t, ok, "session key carries the namespace prefix")
	assert.Equal(t, "sid-1", entry.SessionID)
	assert.Len(t, entry.History, 3)
	require.Len(t, entry.Turns, 1)

	// A fresh store over the same file sees the persisted state.
	m2, err := NewManager(config.SessionStore{Type: "file", Path: path, Namespace: "regression"})
	require.NoError(t, err)
	s := m2.GetOrCreate("sid-1")
	assert.Len(t, s.History, 3)
	assert.Len(t, s.Turns, 1)
}

func TestFileStoreIgnoresForeignNamespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	m, err := NewManager(config.SessionStore{Type: "file", Path: path, Namespace: "nsA"})
	require.NoError(t, err)
	m.AppendToHistory("sid-1", llms.Message{Role: "user", Content: "hi"})

	m2, err := NewManager(config.SessionStore{Type: "file", Path: path, Namespace: "nsB"})
	require.NoError(t, err)
	s := m2.GetOrCreate("sid-1")
	assert.Empty(t, s.History)
}

func TestFileStoreResetOnBoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	m, err := NewManager(config.SessionStore{Type: "file", Path: path, Namespace: "ns"})
	require.NoError(t, err)
	m.AppendToHistory("sid-1", llms.Message{Role: "user", Content: "hi"})

	m2, err := NewManager(config.SessionStore{Type: "file", Path: path, Namespace: "ns", ResetOnBoot: true})
	require.NoError(t, err)
	s := m2.GetOrCreate("sid-1")
	assert.Empty(t, s.History)
}

func TestManagerUnknownStoreType(t *testing.T) {
	_, err := NewManager(config.SessionStore{Type: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown session store type")
}
