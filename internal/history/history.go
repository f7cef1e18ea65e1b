// Package history is the append-only edit log: every write-class tool
// execution records the mutation it made, and undo replays the log backwards
// by appending symmetric reversal records. Records are immutable once
// written.
package history

import (
	"time"
)

// EditRecord is one file mutation. For a given path, records form a total
// order by Seq. An undo is itself an EditRecord whose Reverts field names the
// record it reverses; undo never erases history.
type EditRecord struct {
	ID          string
	Path        string
	Seq         int64
	PrevExisted bool   // File existed before this mutation
	Previous    string // Content before (empty when PrevExisted is false)
	NextExists  bool   // File exists after this mutation
	Next        string // Content after (empty when NextExists is false)
	CallID      string // Originating tool call
	Reverts     string // ID of the record this one undoes, if any
	CreatedAt   time.Time
}

// CallRecord is one entry in the session audit trail: a tool call and its
// result, immutable once recorded.
type CallRecord struct {
	ID         string
	Tool       string
	AgentID    string
	Args       string // JSON-encoded arguments
	Success    bool
	Error      string
	DurationMS int64
	CreatedAt  time.Time
}
