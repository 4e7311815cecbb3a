package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/localrt/localrt/pkg/config"
	"github.com/localrt/localrt/pkg/llms"
)

type respValue struct {
	History []llms.Message `json:"history"`
	Turns   []TurnRecord   `json:"turns"`
}

// RESPStore persists each session as one JSON value under
// "session:<namespace>:<session_id>" on a RESP-speaking key-value server.
// The target may be a plain redis or a minimal mini-memory server that only
// understands AUTH, SELECT, GET and SET, so the client is pinned to RESP2
// and identity commands are disabled.
type RESPStore struct {
	client    *redis.Client
	namespace string
	timeout   time.Duration
}

var _ Store = (*RESPStore)(nil)

func NewRESPStore(endpoint config.Endpoint, password string, db int, namespace string) *RESPStore {
	return &RESPStore{
		client: redis.NewClient(&redis.Options{
			Addr:            endpoint.Addr(),
			Password:        password,
			DB:              db,
			Protocol:        2,
			DisableIdentity: true,
			MaxRetries:      1,
		}),
		namespace: namespace,
		timeout:   5 * time.Second,
	}
}

func (s *RESPStore) key(sessionID string) string {
	key := "session:"
	if s.namespace != "" {
		key += s.namespace + ":"
	}
	return key + sessionID
}

func (s *RESPStore) Load(sessionID string) (*Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var val respValue
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return nil, nil
	}
	return &Session{SessionID: sessionID, History: val.History, Turns: val.Turns}, nil
}

func (s *RESPStore) Save(sess *Session) error {
	val := respValue{History: sess.History, Turns: sess.Turns}
	if val.History == nil {
		val.History = []llms.Message{}
	}
	if val.Turns == nil {
		val.Turns = []TurnRecord{}
	}
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Set(ctx, s.key(sess.SessionID), string(data), 0).Err()
}

// Close releases the underlying connection pool.
func (s *RESPStore) Close() error {
	return s.client.Close()
}
