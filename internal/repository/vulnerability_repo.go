package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"predictive_alerts/internal/models"
)

type VulnerabilitySQLite struct {
	db *sql.DB
}

func NewVulnerabilitySQLite(db *sql.DB) *VulnerabilitySQLite {
	return &VulnerabilitySQLite{db: db}
}

var _ VulnerabilityRepo = (*VulnerabilitySQLite)(nil)

const (
	vulnerabilityColumns = `equipment_id, client_id, category, active, risk_score, reason, computed_at`

	upsertVulnerabilitySQL = `
		INSERT INTO vulnerability_flags (` + vulnerabilityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(equipment_id) DO UPDATE SET
			category=excluded.category,
			active=excluded.active,
			risk_score=excluded.risk_score,
			reason=excluded.reason,
			computed_at=excluded.computed_at
	`

	selectVulnerabilitySQL = `SELECT ` + vulnerabilityColumns + ` FROM vulnerability_flags WHERE equipment_id=?`
	listVulnerabilitySQL   = `SELECT ` + vulnerabilityColumns + ` FROM vulnerability_flags
		WHERE (? = '' OR client_id = ?) AND (? = 0 OR active = 1)
		ORDER BY risk_score DESC, equipment_id ASC`
)

func scanVulnerability(s rowScanner) (models.VulnerabilityFlag, error) {
	var f models.VulnerabilityFlag
	err := s.Scan(&f.EquipmentID, &f.ClientID, &f.Category, &f.Active, &f.RiskScore, &f.Reason, &f.ComputedAt)
	f.ComputedAt = f.ComputedAt.UTC()
	return f, err
}

// Upsert replaces the flag of an equipment. One flag per equipment.
func (r *VulnerabilitySQLite) Upsert(ctx context.Context, f models.VulnerabilityFlag) error {
	_, err := r.db.ExecContext(ctx, upsertVulnerabilitySQL,
		f.EquipmentID, f.ClientID, string(f.Category), f.Active, f.RiskScore, f.Reason, f.ComputedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert vulnerability of %q: %w", f.EquipmentID, err)
	}
	return nil
}

func (r *VulnerabilitySQLite) Get(ctx context.Context, equipmentID string) (models.VulnerabilityFlag, error) {
	f, err := scanVulnerability(r.db.QueryRowContext(ctx, selectVulnerabilitySQL, equipmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.VulnerabilityFlag{}, ErrNotFound
		}
		return models.VulnerabilityFlag{}, fmt.Errorf("select vulnerability of %q: %w", equipmentID, err)
	}
	return f, nil
}

func (r *VulnerabilitySQLite) List(ctx context.Context, clientID string, activeOnly bool) ([]models.VulnerabilityFlag, error) {
	rows, err := r.db.QueryContext(ctx, listVulnerabilitySQL, clientID, clientID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list vulnerability flags: %w", err)
	}
	defer rows.Close()

	var out []models.VulnerabilityFlag
	for rows.Next() {
		f, err := scanVulnerability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
