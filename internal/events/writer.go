// Package events keeps an append-only log of project mutations. Rows are
// written inside the caller's transaction, so a rolled-back sync leaves
// no trace in the log.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types recorded by the sync and import engines.
const (
	TypeProjectCreated  = "project.created"
	TypeProjectSynced   = "project.synced"
	TypeProjectImported = "project.imported"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Record is one project mutation to log.
type Record struct {
	Type      string
	ProjectID string
	ActorID   string
	Payload   EventPayload
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if rec.Payload == nil {
		rec.Payload = EventPayload{}
	}
	data, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,actor_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, rec.Type, rec.ProjectID, rec.ActorID, string(data))
	return err
}
