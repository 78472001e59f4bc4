package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"predictive_alerts/internal/models"
)

type AlertSQLite struct {
	db *sql.DB
}

func NewAlertSQLite(db *sql.DB) *AlertSQLite {
	return &AlertSQLite{db: db}
}

var _ AlertRepo = (*AlertSQLite)(nil)

const (
	alertColumns = `id, equipment_id, client_id, type, severity, criticality, state, channel, failure_category, message, data,
		validated, false_positive, reliability, measurement_id, measured_at, created_at, validated_at, closed_at, updated_at`

	upsertAlertSQL = `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity=excluded.severity,
			criticality=excluded.criticality,
			state=excluded.state,
			message=excluded.message,
			data=excluded.data,
			validated=excluded.validated,
			false_positive=excluded.false_positive,
			reliability=excluded.reliability,
			validated_at=excluded.validated_at,
			closed_at=excluded.closed_at,
			updated_at=excluded.updated_at
	`

	selectAlertSQL     = `SELECT ` + alertColumns + ` FROM alerts WHERE id=?`
	selectOpenAlertSQL = `SELECT ` + alertColumns + ` FROM alerts
		WHERE equipment_id=? AND state IN ('OPEN', 'VALIDATED') AND (? = '' OR channel = ?)
		ORDER BY created_at DESC`

	selectAlertStatsSQL = `SELECT COUNT(*), COALESCE(SUM(CASE WHEN false_positive THEN 1 ELSE 0 END), 0) FROM alerts
		WHERE equipment_id=? AND (? = '' OR channel = ?)`
)

func scanAlert(s rowScanner) (models.Alert, error) {
	var (
		a                     models.Alert
		data                  sql.NullString
		validatedAt, closedAt sql.NullTime
	)
	err := s.Scan(&a.ID, &a.EquipmentID, &a.ClientID, &a.Type, &a.Severity, &a.Criticality, &a.State,
		&a.Channel, &a.FailureCategory, &a.Message, &data, &a.Validated, &a.FalsePositive, &a.Reliability,
		&a.MeasurementID, &a.MeasuredAt, &a.CreatedAt, &validatedAt, &closedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &a.Data); err != nil {
			return a, fmt.Errorf("decode data of alert %q: %w", a.ID, err)
		}
	}
	a.ValidatedAt = timePtr(validatedAt)
	a.ClosedAt = timePtr(closedAt)
	a.MeasuredAt = a.MeasuredAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func scanAlerts(rows *sql.Rows) ([]models.Alert, error) {
	defer rows.Close()
	var out []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Upsert inserts a new alert or rewrites the mutable part of an existing one.
// Identity, equipment, channel and creation time are fixed at insert.
func (r *AlertSQLite) Upsert(ctx context.Context, a models.Alert) (string, error) {
	var data any
	if a.Data != nil {
		b, err := json.Marshal(a.Data)
		if err != nil {
			return "", fmt.Errorf("marshal alert data: %w", err)
		}
		data = string(b)
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, upsertAlertSQL,
		a.ID, a.EquipmentID, a.ClientID, a.Type, int(a.Severity), string(a.Criticality), string(a.State),
		a.Channel, a.FailureCategory, a.Message, data, a.Validated, a.FalsePositive, a.Reliability,
		a.MeasurementID, a.MeasuredAt.UTC(), a.CreatedAt.UTC(), nullTimePtr(a.ValidatedAt), nullTimePtr(a.ClosedAt),
		a.UpdatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("upsert alert %q: %w", a.ID, err)
	}
	return a.ID, nil
}

func (r *AlertSQLite) Get(ctx context.Context, id string) (models.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, selectAlertSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Alert{}, ErrNotFound
		}
		return models.Alert{}, fmt.Errorf("select alert %q: %w", id, err)
	}
	return a, nil
}

func (r *AlertSQLite) GetOpen(ctx context.Context, equipmentID, channel string) ([]models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, selectOpenAlertSQL, equipmentID, channel, channel)
	if err != nil {
		return nil, fmt.Errorf("open alerts of %q: %w", equipmentID, err)
	}
	return scanAlerts(rows)
}

// List returns alerts newest first. False positives are hidden unless asked for.
func (r *AlertSQLite) List(ctx context.Context, f models.AlertFilter) ([]models.Alert, error) {
	var (
		conds []string
		args  []any
	)
	if f.ClientID != "" {
		conds = append(conds, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.EquipmentID != "" {
		conds = append(conds, "equipment_id = ?")
		args = append(args, f.EquipmentID)
	}
	if len(f.Severities) > 0 {
		conds = append(conds, "severity IN ("+placeholders(len(f.Severities))+")")
		for _, s := range f.Severities {
			args = append(args, int(s))
		}
	}
	if len(f.States) > 0 {
		conds = append(conds, "state IN ("+placeholders(len(f.States))+")")
		for _, s := range f.States {
			args = append(args, string(s))
		}
	}
	if !f.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.To.UTC())
	}
	if !f.IncludeFalsePositive {
		conds = append(conds, "false_positive = 0")
	}

	q := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return scanAlerts(rows)
}

// FalsePositiveStats counts the alerts raised so far on an equipment channel
// and how many of them were marked false positive.
func (r *AlertSQLite) FalsePositiveStats(ctx context.Context, equipmentID, channel string) (int, int, error) {
	var total, fp int
	err := r.db.QueryRowContext(ctx, selectAlertStatsSQL, equipmentID, channel, channel).Scan(&total, &fp)
	if err != nil {
		return 0, 0, fmt.Errorf("alert stats of %q: %w", equipmentID, err)
	}
	return total, fp, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
