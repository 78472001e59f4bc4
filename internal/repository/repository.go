package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"predictive_alerts/internal/models"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type EquipmentRepo interface {
	Create(ctx context.Context, e models.Equipment) error
	Get(ctx context.Context, id string) (models.Equipment, error)
	ListByClient(ctx context.Context, clientID string) ([]models.Equipment, error)
	Update(ctx context.Context, e models.Equipment) error
}

type MaintenanceRepo interface {
	Append(ctx context.Context, ev models.MaintenanceEvent) error
	Latest(ctx context.Context, equipmentID string) (*models.MaintenanceEvent, error)
	List(ctx context.Context, equipmentID string) ([]models.MaintenanceEvent, error)
}

type MeasurementRepo interface {
	Upsert(ctx context.Context, m models.Measurement) (string, error)
	// QueryRecent returns measurements at or after windowStart in ascending
	// order. An empty channel matches every measurement of the equipment.
	QueryRecent(ctx context.Context, equipmentID, channel string, windowStart time.Time) ([]models.Measurement, error)
	// Latest returns the newest reading time, zero when there is none.
	Latest(ctx context.Context, equipmentID string) (time.Time, error)
	// PreviousStatuses returns, per channel, the status of the newest reading
	// taken strictly before the given time. There is no window.
	PreviousStatuses(ctx context.Context, equipmentID string, before time.Time) (map[string]models.Status, error)
	Times(ctx context.Context, equipmentID string, since time.Time) ([]time.Time, error)
}

type AlertRepo interface {
	Upsert(ctx context.Context, a models.Alert) (string, error)
	Get(ctx context.Context, id string) (models.Alert, error)
	// GetOpen returns OPEN and VALIDATED alerts. An empty channel matches all.
	GetOpen(ctx context.Context, equipmentID, channel string) ([]models.Alert, error)
	List(ctx context.Context, f models.AlertFilter) ([]models.Alert, error)
	FalsePositiveStats(ctx context.Context, equipmentID, channel string) (total, falsePositives int, err error)
}

type RiskProfileRepo interface {
	// Resolve picks the most specific profile: client+type, then client,
	// then the system default.
	Resolve(ctx context.Context, clientID, equipmentType string) (models.RiskProfile, error)
	Upsert(ctx context.Context, p models.RiskProfile) error
	List(ctx context.Context) ([]models.RiskProfile, error)
}

type ClusterRepo interface {
	Upsert(ctx context.Context, c models.RootCauseCluster) error
	List(ctx context.Context, clientID string) ([]models.RootCauseCluster, error)
}

type VulnerabilityRepo interface {
	Upsert(ctx context.Context, f models.VulnerabilityFlag) error
	Get(ctx context.Context, equipmentID string) (models.VulnerabilityFlag, error)
	List(ctx context.Context, clientID string, activeOnly bool) ([]models.VulnerabilityFlag, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.PipelineEvent) error
	List(ctx context.Context, from, to time.Time, typ, equipmentID string) ([]models.PipelineEvent, error)
}

type Repository struct {
	Equipment     EquipmentRepo
	Maintenance   MaintenanceRepo
	Measurements  MeasurementRepo
	Alerts        AlertRepo
	Profiles      RiskProfileRepo
	Clusters      ClusterRepo
	Vulnerability VulnerabilityRepo
	EventRepo     EventRepo
	Auth          Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Equipment:     NewEquipmentSQLite(db),
		Maintenance:   NewMaintenanceSQLite(db),
		Measurements:  NewMeasurementSQLite(db),
		Alerts:        NewAlertSQLite(db),
		Profiles:      NewRiskProfileSQLite(db),
		Clusters:      NewClusterSQLite(db),
		Vulnerability: NewVulnerabilitySQLite(db),
		EventRepo:     NewEventSQLite(db),
		Auth:          NewUserRepository(db),
	}
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return nullTime(*t)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
