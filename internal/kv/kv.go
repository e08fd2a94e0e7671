// Package kv persists credentials, source-to-test mappings, preferences and
// the current session selection in a SQLite file. Everything except
// secrets is scoped to one workspace root.
package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver
)

// APIKeySecret is the secret holding the agent credential.
const APIKeySecret = "redgreen_apiKey"

// Memory opens a private in-memory database.
const Memory = ":memory:"

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("kv: store closed")

const (
	testFileMapKey   = "testFileMap"
	preferencePrefix = "userPreference_"

	currentTestCommandKey = "currentTestCommand"
	currentSourceFileKey  = "currentSourceFile"
	currentTestFileKey    = "currentTestFile"
	currentContextKey     = "currentContext"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv_values (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS kv_secrets (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Store is a SQLite-backed key-value store.
type Store struct {
	db     *sql.DB
	scope  string
	log    zerolog.Logger
	closed atomic.Bool

	mapMu sync.Mutex // serializes read-modify-write of the test file map
}

// Open opens (creating if needed) the database at path and scopes keys to
// workspace. Use Memory for a throwaway store.
func Open(ctx context.Context, path, workspace string, log zerolog.Logger) (*Store, error) {
	dsn := path
	if path != Memory {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	// SQLite has a single writer, and :memory: databases are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging store: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing schema: %w", err)
		}
	}

	log.Debug().Str("path", path).Str("workspace", workspace).Msg("store opened")
	return &Store{db: db, scope: workspace + ":", log: log}, nil
}

// Close releases the database. It is safe to call more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) scoped(key string) string { return s.scope + key }

// Value decodes the JSON value stored under the workspace-scoped key into v.
// It reports false if the key is absent.
func (s *Store) Value(ctx context.Context, key string, v any) (bool, error) {
	return s.get(ctx, "kv_values", s.scoped(key), v)
}

// SetValue stores v as JSON under the workspace-scoped key.
func (s *Store) SetValue(ctx context.Context, key string, v any) error {
	return s.put(ctx, "kv_values", s.scoped(key), v)
}

// DeleteValue removes the workspace-scoped key. Absent keys are ignored.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	return s.del(ctx, "kv_values", s.scoped(key))
}

// Secret returns the secret stored under key, or "" if none.
func (s *Store) Secret(ctx context.Context, key string) (string, error) {
	var v string
	if _, err := s.get(ctx, "kv_secrets", key, &v); err != nil {
		return "", err
	}
	return v, nil
}

// SetSecret stores a secret. Secrets are shared across workspaces.
func (s *Store) SetSecret(ctx context.Context, key, value string) error {
	return s.put(ctx, "kv_secrets", key, value)
}

// DeleteSecret removes a secret.
func (s *Store) DeleteSecret(ctx context.Context, key string) error {
	return s.del(ctx, "kv_secrets", key)
}

// TestFileMap returns the source-to-test file mapping. The result is never nil.
func (s *Store) TestFileMap(ctx context.Context) (map[string]string, error) {
	m := map[string]string{}
	if _, err := s.Value(ctx, testFileMapKey, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

// UpdateTestFileMap records that source is tested by test.
func (s *Store) UpdateTestFileMap(ctx context.Context, source, test string) error {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	m, err := s.TestFileMap(ctx)
	if err != nil {
		return err
	}
	m[source] = test
	return s.SetValue(ctx, testFileMapKey, m)
}

// RemoveTestFileMap forgets the mapping for source. Removing an absent
// mapping is a no-op.
func (s *Store) RemoveTestFileMap(ctx context.Context, source string) error {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	m, err := s.TestFileMap(ctx)
	if err != nil {
		return err
	}
	if _, ok := m[source]; !ok {
		return nil
	}
	delete(m, source)
	return s.SetValue(ctx, testFileMapKey, m)
}

// Preference decodes a user preference into v.
func (s *Store) Preference(ctx context.Context, key string, v any) (bool, error) {
	return s.Value(ctx, preferencePrefix+key, v)
}

// SetPreference stores a user preference.
func (s *Store) SetPreference(ctx context.Context, key string, v any) error {
	return s.SetValue(ctx, preferencePrefix+key, v)
}

func (s *Store) CurrentTestCommand(ctx context.Context) (string, error) {
	return s.str(ctx, currentTestCommandKey)
}

func (s *Store) SetCurrentTestCommand(ctx context.Context, command string) error {
	return s.SetValue(ctx, currentTestCommandKey, command)
}

func (s *Store) RemoveCurrentTestCommand(ctx context.Context) error {
	return s.DeleteValue(ctx, currentTestCommandKey)
}

func (s *Store) CurrentSourceFile(ctx context.Context) (string, error) {
	return s.str(ctx, currentSourceFileKey)
}

func (s *Store) SetCurrentSourceFile(ctx context.Context, path string) error {
	return s.SetValue(ctx, currentSourceFileKey, path)
}

func (s *Store) RemoveCurrentSourceFile(ctx context.Context) error {
	return s.DeleteValue(ctx, currentSourceFileKey)
}

func (s *Store) CurrentTestFile(ctx context.Context) (string, error) {
	return s.str(ctx, currentTestFileKey)
}

func (s *Store) SetCurrentTestFile(ctx context.Context, path string) error {
	return s.SetValue(ctx, currentTestFileKey, path)
}

func (s *Store) RemoveCurrentTestFile(ctx context.Context) error {
	return s.DeleteValue(ctx, currentTestFileKey)
}

// CurrentContext returns free-form context text attached to the session.
func (s *Store) CurrentContext(ctx context.Context) (string, error) {
	return s.str(ctx, currentContextKey)
}

func (s *Store) SetCurrentContext(ctx context.Context, text string) error {
	return s.SetValue(ctx, currentContextKey, text)
}

func (s *Store) str(ctx context.Context, key string) (string, error) {
	var v string
	if _, err := s.Value(ctx, key, &v); err != nil {
		return "", err
	}
	return v, nil
}

func (s *Store) get(ctx context.Context, table, key string, v any) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM "+table+" WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(ctx context.Context, table, key string, v any) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO `+table+` (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(data))
	if err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, table, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}
