package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNoHistory is returned when a path has no records to return or undo.
var ErrNoHistory = errors.New("no edit history for path")

// Store is the durable, crash-safe edit log. SQLite in WAL mode gives the
// write-ahead semantics the log requires: an append either survives a crash
// whole or not at all.
type Store struct {
	db *sql.DB
}

// Open creates or opens a store at dbPath, creating parent directories as
// needed.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return initStore(ctx, db)
}

// OpenMemory creates an in-memory store for testing. A shared cache lets
// multiple connections see the same database.
func OpenMemory(ctx context.Context) (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}
	return initStore(ctx, db)
}

func initStore(ctx context.Context, db *sql.DB) (*Store, error) {
	// Serialized appends per connection; WAL readers don't block the writer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes a new edit record for rec.Path, assigning the next sequence
// number for that path. The record's ID is generated when empty.
func (s *Store) Append(ctx context.Context, rec *EditRecord) error {
	if rec.Path == "" {
		return fmt.Errorf("edit record has no path")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM edit_records WHERE path = ?`, rec.Path,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("computing sequence: %w", err)
	}
	rec.Seq = seq

	_, err = tx.ExecContext(ctx, `
		INSERT INTO edit_records (id, path, seq, prev_existed, previous, next_exists, next, call_id, reverts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Path, rec.Seq, rec.PrevExisted, rec.Previous, rec.NextExists, rec.Next, rec.CallID, rec.Reverts, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting edit record: %w", err)
	}

	return tx.Commit()
}

// Latest returns the most recent record for path.
func (s *Store) Latest(ctx context.Context, path string) (*EditRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, seq, prev_existed, previous, next_exists, next, call_id, reverts, created_at
		FROM edit_records WHERE path = ? ORDER BY seq DESC LIMIT 1
	`, path)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, path)
	}
	return rec, err
}

// History returns all records for path in sequence order.
func (s *Store) History(ctx context.Context, path string) ([]*EditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, seq, prev_existed, previous, next_exists, next, call_id, reverts, created_at
		FROM edit_records WHERE path = ? ORDER BY seq ASC
	`, path)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []*EditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Undo appends and returns the reversal record for the most recent
// not-yet-undone mutation of path. Undo is symmetric: undoing twice after
// three writes walks back through the second and first write, and the
// reversal records themselves stay in the log. The caller is responsible for
// applying the returned record to the filesystem (write Next, or delete the
// file when NextExists is false).
func (s *Store) Undo(ctx context.Context, path, callID string) (*EditRecord, error) {
	records, err := s.History(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, path)
	}

	// Each trailing reversal record hides the pair it closed, so with k
	// trailing reversals the next target sits 2k from the end.
	trailing := 0
	for i := len(records) - 1; i >= 0 && records[i].Reverts != ""; i-- {
		trailing++
	}
	idx := len(records) - 1 - 2*trailing
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s fully undone", ErrNoHistory, path)
	}
	target := records[idx]
	tail := records[len(records)-1]

	reversal := &EditRecord{
		Path:        path,
		PrevExisted: tail.NextExists,
		Previous:    tail.Next,
		NextExists:  target.PrevExisted,
		Next:        target.Previous,
		CallID:      callID,
		Reverts:     target.ID,
	}
	if err := s.Append(ctx, reversal); err != nil {
		return nil, err
	}
	return reversal, nil
}

// RecordCall appends a tool call and its result to the session audit trail.
func (s *Store) RecordCall(ctx context.Context, rec *CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (id, tool, agent_id, args, success, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Tool, rec.AgentID, rec.Args, rec.Success, rec.Error, rec.DurationMS, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("recording tool call: %w", err)
	}
	return nil
}

// Calls returns the session audit trail in insertion order.
func (s *Store) Calls(ctx context.Context) ([]*CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool, agent_id, args, success, error, duration_ms, created_at
		FROM tool_calls ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer rows.Close()

	var calls []*CallRecord
	for rows.Next() {
		var c CallRecord
		var createdMS int64
		if err := rows.Scan(&c.ID, &c.Tool, &c.AgentID, &c.Args, &c.Success, &c.Error, &c.DurationMS, &createdMS); err != nil {
			return nil, fmt.Errorf("scanning tool call: %w", err)
		}
		c.CreatedAt = time.UnixMilli(createdMS)
		calls = append(calls, &c)
	}
	return calls, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*EditRecord, error) {
	var rec EditRecord
	var createdMS int64
	err := row.Scan(&rec.ID, &rec.Path, &rec.Seq, &rec.PrevExisted, &rec.Previous,
		&rec.NextExists, &rec.Next, &rec.CallID, &rec.Reverts, &createdMS)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.UnixMilli(createdMS)
	return &rec, nil
}
