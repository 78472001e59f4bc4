package service

import (
	"context"
	"time"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/metrics"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/notify"
	"predictive_alerts/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Pipeline turns batches of raw source records into alerts.
type Pipeline interface {
	ProcessBatch(ctx context.Context, req BatchRequest) (BatchResult, error)
}

// Alerts exposes alert reads and the operator-driven lifecycle transitions.
type Alerts interface {
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.Alert, error)
	ValidateAlert(ctx context.Context, id string) (models.Alert, error)
	MarkFalsePositive(ctx context.Context, id string) (models.Alert, error)
	CloseAlert(ctx context.Context, id string) (models.Alert, error)
}

type Equipment interface {
	RegisterEquipment(ctx context.Context, e models.Equipment) (models.Equipment, error)
	GetEquipment(ctx context.Context, id string) (models.Equipment, error)
	ListEquipment(ctx context.Context, clientID string) ([]models.Equipment, error)
	DeactivateEquipment(ctx context.Context, id string) (models.Equipment, error)
	RecordMaintenance(ctx context.Context, equipmentID string, ev models.MaintenanceEvent) (models.VulnerabilityFlag, error)
}

type Correlation interface {
	Correlate(ctx context.Context, clientID string) (alerting.CorrelationResult, error)
	ListClusters(ctx context.Context, clientID string) ([]models.RootCauseCluster, error)
}

type Vulnerability interface {
	Recompute(ctx context.Context, equipmentID string) (models.VulnerabilityFlag, error)
	ScanClient(ctx context.Context, clientID string) ([]models.VulnerabilityFlag, error)
	ListFlags(ctx context.Context, clientID string, activeOnly bool) ([]models.VulnerabilityFlag, error)
}

type RiskProfiles interface {
	UpsertProfile(ctx context.Context, p models.RiskProfile) (models.RiskProfile, error)
	ResolveProfile(ctx context.Context, clientID, equipmentType string) (models.RiskProfile, error)
	SeedProfiles(ctx context.Context, profiles []models.RiskProfile) (int, error)
}

type Reports interface {
	Snapshot(ctx context.Context, q ReportQuery) (Report, error)
}

// EventLog exposes the append-only pipeline audit with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.PipelineEvent, error)
}

// Monitoring exposes the per-client live status.
type Monitoring interface {
	ClientStatus(ctx context.Context, clientID string) (ClientStatus, error)
}

// SettingsSource hands out the configuration snapshot a unit of work runs with.
type SettingsSource interface {
	Settings() alerting.Settings
	Policy() notify.Policy
}

// Notifier receives alerts after they are committed. It must not block.
type Notifier interface {
	Dispatch(a models.Alert, p notify.Policy)
}

// Deps carries the collaborators shared by the services.
type Deps struct {
	Settings        SettingsSource
	Notifier        Notifier
	Metrics         *metrics.Metrics
	Log             *logger.Logger
	Workers         int
	ProfileCacheTTL time.Duration
	SigningKey      string
	TokenTTL        time.Duration
}

type Service struct {
	Pipeline
	Alerts
	Equipment
	Correlation
	Vulnerability
	RiskProfiles
	Reports
	EventLog
	Monitoring
	Authorization
}

// NewService wires the repository layer into the services. All writers of an
// equipment's alerts and flag share one KeyedMutex.
func NewService(repos *repository.Repository, deps Deps) *Service {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	locks := NewKeyedMutex()
	cache := newProfileCache(repos.Profiles, deps.ProfileCacheTTL)
	audit := newAuditor(repos.EventRepo, deps.Log)

	vuln := NewVulnerabilityService(repos, deps.Settings, locks, audit, deps.Log)
	return &Service{
		Pipeline:      NewPipelineService(repos, deps, locks, cache, vuln, audit),
		Alerts:        NewAlertService(repos, locks, audit, deps.Metrics, deps.Log),
		Equipment:     NewEquipmentService(repos, locks, vuln, audit),
		Correlation:   NewCorrelationService(repos, deps.Settings, audit, deps.Log),
		Vulnerability: vuln,
		RiskProfiles:  NewRiskProfileService(repos.Profiles, cache),
		Reports:       NewReportService(repos),
		EventLog:      NewEventLogService(repos.EventRepo),
		Monitoring:    NewMonitoringService(repos),
		Authorization: NewAuthService(repos.Auth, deps.SigningKey, deps.TokenTTL),
	}
}
