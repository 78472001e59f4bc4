package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"predictive_alerts/internal/models"
)

type MaintenanceSQLite struct {
	db *sql.DB
}

func NewMaintenanceSQLite(db *sql.DB) *MaintenanceSQLite {
	return &MaintenanceSQLite{db: db}
}

var _ MaintenanceRepo = (*MaintenanceSQLite)(nil)

const (
	maintenanceColumns = `id, equipment_id, occurred_at, type, description, technician, related_alert_id`

	insertMaintenanceSQL = `
		INSERT INTO maintenance_events (` + maintenanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	selectLatestMaintenanceSQL = `SELECT ` + maintenanceColumns + ` FROM maintenance_events
		WHERE equipment_id=? ORDER BY occurred_at DESC LIMIT 1`
	selectMaintenanceSQL = `SELECT ` + maintenanceColumns + ` FROM maintenance_events
		WHERE equipment_id=? ORDER BY occurred_at ASC`
)

func scanMaintenance(s rowScanner) (models.MaintenanceEvent, error) {
	var ev models.MaintenanceEvent
	err := s.Scan(&ev.ID, &ev.EquipmentID, &ev.OccurredAt, &ev.Type, &ev.Description, &ev.Technician, &ev.RelatedAlertID)
	ev.OccurredAt = ev.OccurredAt.UTC()
	return ev, err
}

func (r *MaintenanceSQLite) Append(ctx context.Context, ev models.MaintenanceEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, insertMaintenanceSQL,
		ev.ID, ev.EquipmentID, ev.OccurredAt.UTC(), ev.Type, ev.Description, ev.Technician, ev.RelatedAlertID)
	if err != nil {
		return fmt.Errorf("insert maintenance event for %q: %w", ev.EquipmentID, err)
	}
	return nil
}

// Latest returns (nil, nil) when the equipment was never maintained.
func (r *MaintenanceSQLite) Latest(ctx context.Context, equipmentID string) (*models.MaintenanceEvent, error) {
	ev, err := scanMaintenance(r.db.QueryRowContext(ctx, selectLatestMaintenanceSQL, equipmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select latest maintenance of %q: %w", equipmentID, err)
	}
	return &ev, nil
}

func (r *MaintenanceSQLite) List(ctx context.Context, equipmentID string) ([]models.MaintenanceEvent, error) {
	rows, err := r.db.QueryContext(ctx, selectMaintenanceSQL, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("list maintenance of %q: %w", equipmentID, err)
	}
	defer rows.Close()

	var out []models.MaintenanceEvent
	for rows.Next() {
		ev, err := scanMaintenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
