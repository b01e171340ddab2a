package boltdb

import (
	"context"
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/relaymesh/relay/internal/relayd/service/agents/domain/entity"
	"github.com/relaymesh/relay/internal/relayd/service/agents/pkg/errno"
	"github.com/relaymesh/relay/pkg/utils/json"
)

// SessionStore implements repo.EngineSessionRepository using BoltDB.
type SessionStore struct {
	boltDB *bolt.DB
}

// NewSessionStore creates a new SessionStore instance.
func NewSessionStore(boltDB *DB) *SessionStore {
	return &SessionStore{boltDB: boltDB.Bolt()}
}

func (s *SessionStore) Create(_ context.Context, session *entity.EngineSession) error {
	return s.boltDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessionStore)
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal engine session: %w", err)
		}
		return b.Put([]byte(session.ID), data)
	})
}

func (s *SessionStore) Get(_ context.Context, id string) (*entity.EngineSession, error) {
	var session entity.EngineSession
	err := s.boltDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessionStore)
		data := b.Get([]byte(id))
		if data == nil {
			return errno.ErrSessionNotFound
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get engine session %q: %w", id, err)
	}
	return &session, nil
}

func (s *SessionStore) Update(_ context.Context, session *entity.EngineSession) error {
	return s.boltDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessionStore)
		if b.Get([]byte(session.ID)) == nil {
			return errno.ErrSessionNotFound
		}
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal engine session: %w", err)
		}
		return b.Put([]byte(session.ID), data)
	})
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	return s.boltDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessionStore)
		if b.Get([]byte(id)) == nil {
			return errno.ErrSessionNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (s *SessionStore) ListByApp(_ context.Context, appName string) ([]*entity.EngineSession, error) {
	var sessions []*entity.EngineSession
	err := s.boltDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessionStore)
		return b.ForEach(func(k, v []byte) error {
			var session entity.EngineSession
			if err := json.Unmarshal(v, &session); err != nil {
				return fmt.Errorf("failed to unmarshal engine session: %w", err)
			}
			if session.AppName == appName {
				sessions = append(sessions, &session)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list engine sessions by app %q: %w", appName, err)
	}
	return sessions, nil
}
