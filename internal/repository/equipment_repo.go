package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"predictive_alerts/internal/models"
)

type EquipmentSQLite struct {
	db *sql.DB
}

func NewEquipmentSQLite(db *sql.DB) *EquipmentSQLite {
	return &EquipmentSQLite{db: db}
}

var _ EquipmentRepo = (*EquipmentSQLite)(nil)

const (
	equipmentColumns = `id, client_id, type, name, location, installed_at, tracking_status, active, vulnerable, created_at, updated_at`

	insertEquipmentSQL = `
		INSERT INTO equipment (` + equipmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	updateEquipmentSQL = `
		UPDATE equipment SET
			name=?, location=?, installed_at=?, tracking_status=?, active=?, vulnerable=?, updated_at=?
		WHERE id=?
	`

	selectEquipmentSQL         = `SELECT ` + equipmentColumns + ` FROM equipment WHERE id=?`
	selectEquipmentByClientSQL = `SELECT ` + equipmentColumns + ` FROM equipment WHERE client_id=? ORDER BY id ASC`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEquipment(s rowScanner) (models.Equipment, error) {
	var (
		e         models.Equipment
		installed sql.NullTime
	)
	err := s.Scan(&e.ID, &e.ClientID, &e.Type, &e.Name, &e.Location, &installed,
		&e.TrackingStatus, &e.Active, &e.Vulnerable, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	if installed.Valid {
		e.InstalledAt = installed.Time.UTC()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

// Create registers an equipment. Timestamps default to now.
func (r *EquipmentSQLite) Create(ctx context.Context, e models.Equipment) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, insertEquipmentSQL,
		e.ID, e.ClientID, e.Type, e.Name, e.Location, nullTime(e.InstalledAt),
		string(e.TrackingStatus), e.Active, e.Vulnerable, e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert equipment %q: %w", e.ID, err)
	}
	return nil
}

func (r *EquipmentSQLite) Get(ctx context.Context, id string) (models.Equipment, error) {
	e, err := scanEquipment(r.db.QueryRowContext(ctx, selectEquipmentSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Equipment{}, ErrNotFound
		}
		return models.Equipment{}, fmt.Errorf("select equipment %q: %w", id, err)
	}
	return e, nil
}

func (r *EquipmentSQLite) ListByClient(ctx context.Context, clientID string) ([]models.Equipment, error) {
	rows, err := r.db.QueryContext(ctx, selectEquipmentByClientSQL, clientID)
	if err != nil {
		return nil, fmt.Errorf("list equipment of %q: %w", clientID, err)
	}
	defer rows.Close()

	var out []models.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Update writes the mutable fields. Client, type and creation time never change.
func (r *EquipmentSQLite) Update(ctx context.Context, e models.Equipment) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, updateEquipmentSQL,
		e.Name, e.Location, nullTime(e.InstalledAt), string(e.TrackingStatus),
		e.Active, e.Vulnerable, e.UpdatedAt.UTC(), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update equipment %q: %w", e.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
