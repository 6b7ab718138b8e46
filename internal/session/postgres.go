package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresSessionTableName = "collabdesk_session"
	postgresSessionKey       = "default"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresStore keeps the session as one JSON row keyed by a fixed session
// key. The schema is created lazily on first use.
type PostgresStore struct {
	dsn        string
	tableName  string
	sessionKey string
	openDB     sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresStore{
		dsn:        dsn,
		tableName:  postgresSessionTableName,
		sessionKey: postgresSessionKey,
		openDB:     sql.Open,
	}, nil
}

func (s *PostgresStore) Load() (*Session, error) {
	if s == nil {
		return nil, nil
	}
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM `+s.tableName+` WHERE session_key = $1`,
		s.sessionKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PostgresStore) Save(sess *Session) error {
	if s == nil || sess == nil {
		return nil
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+s.tableName+` (session_key, snapshot, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (session_key)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW()`,
		s.sessionKey, string(payload))
	return err
}

func (s *PostgresStore) Clear() error {
	if s == nil {
		return nil
	}
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+s.tableName+` WHERE session_key = $1`, s.sessionKey)
	return err
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := `
			CREATE TABLE IF NOT EXISTS ` + s.tableName + ` (
				session_key TEXT PRIMARY KEY,
				snapshot TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}
