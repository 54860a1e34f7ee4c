package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veritest/veritest/internal/model"
)

var (
	// ErrNoSuchSession indicates the session id has no stored checkpoint,
	// or the stored record is corrupt.
	ErrNoSuchSession = errors.New("no such session")
	// ErrSessionBusy indicates another orchestrator loop currently owns
	// the session.
	ErrSessionBusy = errors.New("session busy")
)

// Store provides durable checkpoint persistence keyed by session id.
type Store struct {
	db *sql.DB

	mu     sync.Mutex
	active map[string]struct{}
}

// NewStore creates a checkpoint store on the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, active: make(map[string]struct{})}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Acquire marks the session as owned by one orchestrator loop. It returns a
// release func, or ErrSessionBusy when the session is already owned.
func (s *Store) Acquire(sessionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[sessionID]; busy {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionBusy)
	}
	s.active[sessionID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.active, sessionID)
		s.mu.Unlock()
	}, nil
}

// Save atomically replaces the stored checkpoint for the session. A partially
// written record is never observable: the whole row is written in a single
// upsert statement.
func (s *Store) Save(ctx context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO checkpoints(session_id, mode, stage, status, iteration, max_iterations, created_at, updated_at, payload)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			mode=excluded.mode, stage=excluded.stage, status=excluded.status,
			iteration=excluded.iteration, max_iterations=excluded.max_iterations,
			updated_at=excluded.updated_at, payload=excluded.payload`,
		cp.SessionID, string(cp.Mode), string(cp.Stage), string(cp.Status), cp.Iteration, cp.MaxIterations,
		cp.CreatedAt.Format(time.RFC3339Nano), cp.UpdatedAt.Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.SessionID, err)
	}
	return nil
}

// Load returns the stored checkpoint for the session id.
func (s *Store) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE session_id=?`, sessionID)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNoSuchSession)
		}
		return nil, fmt.Errorf("load checkpoint %s: %w", sessionID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return nil, fmt.Errorf("session %s: corrupt checkpoint: %w", sessionID, ErrNoSuchSession)
	}
	return &cp, nil
}

// Delete removes the session's checkpoint and its events. Deleting a session
// that does not exist is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE session_id=?`, sessionID); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", sessionID, err)
	}
	return nil
}

// List returns summaries of all stored sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, mode, stage, status, iteration, created_at, updated_at
		FROM checkpoints ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var mode, stage, status, createdAt, updatedAt string
		if err := rows.Scan(&sum.SessionID, &mode, &stage, &status, &sum.Iteration, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		sum.Mode = model.Mode(mode)
		sum.Stage = model.Stage(stage)
		sum.Status = model.Status(status)
		sum.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		sum.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return out, nil
}

// AppendEvent records one ordered progress event for the session and returns
// its assigned sequence number. Ordering is preserved by a per-session
// sequence number assigned in the same transaction, so it stays monotonic
// across process restarts.
func (s *Store) AppendEvent(ctx context.Context, sessionID string, stage model.Stage, message string) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin append event: %w", err)
	}
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id=?`, sessionID)
	if err := row.Scan(&seq); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("read event seq: %w", err)
	}
	seq++
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(session_id, seq, ts, stage, message) VALUES(?, ?, ?, ?, ?)`,
		sessionID, seq, ts, string(stage), message); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append event: %w", err)
	}
	return seq, nil
}

// EventRecord is one persisted progress event.
type EventRecord struct {
	Seq       int
	Stage     model.Stage
	Message   string
	Timestamp time.Time
}

// ListEvents returns the session's events in sequence order.
func (s *Store) ListEvents(ctx context.Context, sessionID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, ts, stage, message FROM events WHERE session_id=? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var ts, stage string
		if err := rows.Scan(&rec.Seq, &ts, &stage, &rec.Message); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		rec.Stage = model.Stage(stage)
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}
