package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"predictive_alerts/internal/models"
)

// EventSQLite is the pipeline audit log. Suppressed and merged candidates
// land here so they stay inspectable.
type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

const insertEventSQL = `
		INSERT INTO pipeline_events (id, occurred_at, type, equipment_id, message, meta)
		VALUES (?, ?, ?, ?, ?, ?)
	`

// Append inserts a new event. If EventID or OccurredAt are empty, they're set.
func (r *EventSQLite) Append(ctx context.Context, e models.PipelineEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	} else {
		e.OccurredAt = e.OccurredAt.UTC()
	}

	var metaPtr *string
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		s := string(b)
		metaPtr = &s
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		e.OccurredAt,
		strings.ToUpper(strings.TrimSpace(e.Type)),
		e.EquipmentID,
		e.Description,
		metaPtr,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline event: %w", err)
	}
	return nil
}

// List returns events filtered by [from, to] (inclusive), type and equipment, ordered ASC.
func (r *EventSQLite) List(ctx context.Context, from, to time.Time, typ, equipmentID string) ([]models.PipelineEvent, error) {
	var (
		conds []string
		args  []any
	)

	if !from.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, to.UTC())
	}
	if typ = strings.ToUpper(strings.TrimSpace(typ)); typ != "" {
		conds = append(conds, "type = ?")
		args = append(args, typ)
	}
	if equipmentID != "" {
		conds = append(conds, "equipment_id = ?")
		args = append(args, equipmentID)
	}

	q := `SELECT id, occurred_at, type, equipment_id, message, meta FROM pipeline_events`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.PipelineEvent, 0, 64)
	for rows.Next() {
		var ev models.PipelineEvent
		var metaStr sql.NullString
		if err := rows.Scan(&ev.EventID, &ev.OccurredAt, &ev.Type, &ev.EquipmentID, &ev.Description, &metaStr); err != nil {
			return nil, err
		}
		ev.OccurredAt = ev.OccurredAt.UTC()

		if metaStr.Valid && metaStr.String != "" {
			var v any
			if err := json.Unmarshal([]byte(metaStr.String), &v); err == nil {
				ev.Metadata = v
			} else {
				ev.Metadata = metaStr.String // keep raw if malformed
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
