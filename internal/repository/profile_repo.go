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

type RiskProfileSQLite struct {
	db *sql.DB
}

func NewRiskProfileSQLite(db *sql.DB) *RiskProfileSQLite {
	return &RiskProfileSQLite{db: db}
}

var _ RiskProfileRepo = (*RiskProfileSQLite)(nil)

const (
	profileColumns = `id, client_id, equipment_type, name, thresholds, updated_at`

	upsertProfileSQL = `
		INSERT INTO risk_profiles (` + profileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, equipment_type) DO UPDATE SET
			name=excluded.name,
			thresholds=excluded.thresholds,
			updated_at=excluded.updated_at
	`

	// Most specific first: client+type, client, system default.
	resolveProfileSQL = `SELECT ` + profileColumns + ` FROM risk_profiles
		WHERE (client_id = ? AND equipment_type = ?)
		   OR (client_id = ? AND equipment_type = '')
		   OR (client_id = '' AND equipment_type = '')
		ORDER BY CASE
			WHEN client_id <> '' AND equipment_type <> '' THEN 0
			WHEN client_id <> '' THEN 1
			ELSE 2
		END
		LIMIT 1`

	listProfilesSQL = `SELECT ` + profileColumns + ` FROM risk_profiles ORDER BY client_id ASC, equipment_type ASC`
)

func scanProfile(s rowScanner) (models.RiskProfile, error) {
	var (
		p          models.RiskProfile
		thresholds string
	)
	if err := s.Scan(&p.ID, &p.ClientID, &p.EquipmentType, &p.Name, &thresholds, &p.UpdatedAt); err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(thresholds), &p.Thresholds); err != nil {
		return p, fmt.Errorf("decode thresholds of profile %q: %w", p.ID, err)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (r *RiskProfileSQLite) Resolve(ctx context.Context, clientID, equipmentType string) (models.RiskProfile, error) {
	equipmentType = strings.ToUpper(strings.TrimSpace(equipmentType))
	p, err := scanProfile(r.db.QueryRowContext(ctx, resolveProfileSQL, clientID, equipmentType, clientID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RiskProfile{}, ErrNotFound
		}
		return models.RiskProfile{}, fmt.Errorf("resolve profile for %q/%q: %w", clientID, equipmentType, err)
	}
	return p, nil
}

func (r *RiskProfileSQLite) Upsert(ctx context.Context, p models.RiskProfile) error {
	thresholds, err := json.Marshal(p.Thresholds)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx, upsertProfileSQL,
		p.ID, p.ClientID, strings.ToUpper(p.EquipmentType), p.Name, string(thresholds), p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert profile %q: %w", p.ID, err)
	}
	return nil
}

func (r *RiskProfileSQLite) List(ctx context.Context) ([]models.RiskProfile, error) {
	rows, err := r.db.QueryContext(ctx, listProfilesSQL)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []models.RiskProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
