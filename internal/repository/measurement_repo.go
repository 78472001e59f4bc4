package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"predictive_alerts/internal/models"
)

// MeasurementSQLite stores normalized measurements. The channel table mirrors
// the JSON column so history lookups by channel stay indexed.
type MeasurementSQLite struct {
	db *sql.DB
}

func NewMeasurementSQLite(db *sql.DB) *MeasurementSQLite {
	return &MeasurementSQLite{db: db}
}

var _ MeasurementRepo = (*MeasurementSQLite)(nil)

const (
	insertMeasurementSQL = `
		INSERT INTO measurements (id, equipment_id, kind, taken_at, status, channels)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	insertMeasurementChannelSQL = `
		INSERT INTO measurement_channels (measurement_id, name, value, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(measurement_id, name) DO NOTHING
	`

	selectMeasurementsSQL = `SELECT id, equipment_id, kind, taken_at, status, channels FROM measurements
		WHERE equipment_id=? AND taken_at >= ?`
	measurementChannelCond = ` AND EXISTS (SELECT 1 FROM measurement_channels mc WHERE mc.measurement_id = measurements.id AND mc.name = ?)`
	measurementOrder       = ` ORDER BY taken_at ASC`

	selectLatestMeasurementSQL = `SELECT taken_at FROM measurements WHERE equipment_id=? ORDER BY taken_at DESC LIMIT 1`
	selectMeasurementTimesSQL  = `SELECT taken_at FROM measurements WHERE equipment_id=? AND taken_at >= ? ORDER BY taken_at ASC`

	selectPreviousStatusesSQL = `
		SELECT mc.name, mc.status
		FROM measurement_channels mc
		JOIN measurements m ON m.id = mc.measurement_id
		WHERE m.equipment_id = ? AND m.taken_at < ?
		ORDER BY m.taken_at ASC, m.id ASC
	`
)

// Upsert stores m once. Re-delivering the same reading is a no-op and returns
// the existing id.
func (r *MeasurementSQLite) Upsert(ctx context.Context, m models.Measurement) (string, error) {
	channels, err := json.Marshal(m.Channels)
	if err != nil {
		return "", fmt.Errorf("marshal channels: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin measurement tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertMeasurementSQL,
		m.ID, m.EquipmentID, string(m.Kind), m.TakenAt.UTC(), string(m.Status), string(channels),
	); err != nil {
		return "", fmt.Errorf("insert measurement %q: %w", m.ID, err)
	}
	for _, c := range m.Channels {
		if _, err := tx.ExecContext(ctx, insertMeasurementChannelSQL, m.ID, c.Name, c.Value, string(c.Status)); err != nil {
			return "", fmt.Errorf("insert channel %q of %q: %w", c.Name, m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit measurement %q: %w", m.ID, err)
	}
	return m.ID, nil
}

func (r *MeasurementSQLite) QueryRecent(ctx context.Context, equipmentID, channel string, windowStart time.Time) ([]models.Measurement, error) {
	q := selectMeasurementsSQL
	args := []any{equipmentID, windowStart.UTC()}
	if channel != "" {
		q += measurementChannelCond
		args = append(args, channel)
	}
	q += measurementOrder

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query measurements of %q: %w", equipmentID, err)
	}
	defer rows.Close()

	var out []models.Measurement
	for rows.Next() {
		var (
			m        models.Measurement
			channels string
		)
		if err := rows.Scan(&m.ID, &m.EquipmentID, &m.Kind, &m.TakenAt, &m.Status, &channels); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(channels), &m.Channels); err != nil {
			return nil, fmt.Errorf("decode channels of %q: %w", m.ID, err)
		}
		m.TakenAt = m.TakenAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MeasurementSQLite) Latest(ctx context.Context, equipmentID string) (time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, selectLatestMeasurementSQL, equipmentID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("latest measurement of %q: %w", equipmentID, err)
	}
	return t.UTC(), nil
}

// PreviousStatuses walks the equipment's channel rows oldest first, so the
// newest status of each channel wins.
func (r *MeasurementSQLite) PreviousStatuses(ctx context.Context, equipmentID string, before time.Time) (map[string]models.Status, error) {
	rows, err := r.db.QueryContext(ctx, selectPreviousStatusesSQL, equipmentID, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("previous statuses of %q: %w", equipmentID, err)
	}
	defer rows.Close()

	out := make(map[string]models.Status)
	for rows.Next() {
		var (
			name   string
			status models.Status
		)
		if err := rows.Scan(&name, &status); err != nil {
			return nil, err
		}
		out[name] = status
	}
	return out, rows.Err()
}

func (r *MeasurementSQLite) Times(ctx context.Context, equipmentID string, since time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, selectMeasurementTimesSQL, equipmentID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("measurement times of %q: %w", equipmentID, err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t.UTC())
	}
	return out, rows.Err()
}
