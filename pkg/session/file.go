package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/localrt/localrt/pkg/llms"
)

type fileContainer struct {
	Sessions map[string]*Session `json:"sessions"`
}

// FileStore keeps every session in a single JSON file:
// {"sessions":{"<namespace>:<session_id>":{...}}}. The whole container is
// rewritten on each save via temp-file-then-rename.
type FileStore struct {
	path      string
	namespace string

	mu  sync.Mutex
	all map[string]*Session
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens (or lazily creates) the container at path. A missing or
// unreadable file is treated as empty.
func NewFileStore(path, namespace string) *FileStore {
	s := &FileStore{
		path:      path,
		namespace: namespace,
		all:       make(map[string]*Session),
	}
	s.loadAll()
	return s
}

func (s *FileStore) key(sessionID string) string {
	if s.namespace == "" {
		return sessionID
	}
	return s.namespace + ":" + sessionID
}

func (s *FileStore) keyMatchesNamespace(key string) bool {
	if s.namespace == "" {
		return true
	}
	return strings.HasPrefix(key, s.namespace+":") && len(key) > len(s.namespace)+1
}

func (s *FileStore) loadAll() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var container fileContainer
	if err := json.Unmarshal(data, &container); err != nil {
		slog.Warn("session file store: ignoring unparsable container", "path", s.path, "error", err)
		return
	}
	for key, sess := range container.Sessions {
		if key == "" || sess == nil {
			continue
		}
		if !s.keyMatchesNamespace(key) {
			continue
		}
		if sess.SessionID == "" {
			sess.SessionID = strings.TrimPrefix(key, s.namespace+":")
		}
		s.all[key] = sess
	}
}

func (s *FileStore) Load(sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.all[s.key(sessionID)]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

func (s *FileStore) Save(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all[s.key(sess.SessionID)] = sess.Clone()
	return s.persistAll()
}

func (s *FileStore) persistAll() error {
	container := fileContainer{Sessions: make(map[string]*Session, len(s.all))}
	for key, sess := range s.all {
		snapshot := sess.Clone()
		if snapshot.History == nil {
			snapshot.History = []llms.Message{}
		}
		if snapshot.Turns == nil {
			snapshot.Turns = []TurnRecord{}
		}
		container.Sessions[key] = snapshot
	}

	data, err := json.Marshal(container)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
