package history

import "context"

// initSchema creates the log tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS edit_records (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		seq INTEGER NOT NULL,
		prev_existed INTEGER NOT NULL,
		previous TEXT NOT NULL DEFAULT '',
		next_exists INTEGER NOT NULL,
		next TEXT NOT NULL DEFAULT '',
		call_id TEXT NOT NULL DEFAULT '',
		reverts TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		UNIQUE (path, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_edit_records_path ON edit_records(path);

	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		tool TEXT NOT NULL,
		agent_id TEXT NOT NULL DEFAULT '',
		args TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
