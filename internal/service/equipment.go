package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"predictive_alerts/internal/models"
	"predictive_alerts/internal/repository"
)

// Maintenance event types.
const (
	MaintenancePreventive     = "PREVENTIVE"
	MaintenanceCorrective     = "CORRECTIVE"
	MaintenancePredictive     = "PREDICTIVE"
	MaintenanceConditionBased = "CONDITION_BASED"
)

var (
	errMissingEquipmentID = errors.New("equipment id is required")
	errMissingClientID    = errors.New("client id is required")
	errMissingType        = errors.New("equipment type is required")
	errControlChars       = errors.New("equipment id must not contain control characters")
	errInactiveEquipment  = errors.New("equipment is inactive")
)

type EquipmentService struct {
	repos *repository.Repository
	locks *KeyedMutex
	vuln  *VulnerabilityService
	audit *auditor
	now   func() time.Time
}

func NewEquipmentService(repos *repository.Repository, locks *KeyedMutex, vuln *VulnerabilityService, audit *auditor) *EquipmentService {
	return &EquipmentService{
		repos: repos,
		locks: locks,
		vuln:  vuln,
		audit: audit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RegisterEquipment stores a new equipment and computes its first
// vulnerability flag. Tracking defaults to ONLINE.
func (s *EquipmentService) RegisterEquipment(ctx context.Context, e models.Equipment) (models.Equipment, error) {
	e.ID = strings.TrimSpace(e.ID)
	e.ClientID = strings.TrimSpace(e.ClientID)
	e.Type = strings.ToUpper(strings.TrimSpace(e.Type))
	switch {
	case e.ID == "":
		return models.Equipment{}, fmt.Errorf("%w: %v", ErrInvalidInput, errMissingEquipmentID)
	case strings.IndexFunc(e.ID, unicode.IsControl) >= 0:
		// ids end up in mail headers and log lines
		return models.Equipment{}, fmt.Errorf("%w: %v", ErrInvalidInput, errControlChars)
	case e.ClientID == "":
		return models.Equipment{}, fmt.Errorf("%w: %v", ErrInvalidInput, errMissingClientID)
	case e.Type == "":
		return models.Equipment{}, fmt.Errorf("%w: %v", ErrInvalidInput, errMissingType)
	}
	if e.TrackingStatus == "" {
		e.TrackingStatus = models.TrackingOnline
	}
	e.TrackingStatus = models.TrackingStatus(strings.ToUpper(string(e.TrackingStatus)))
	if !e.TrackingStatus.Valid() {
		return models.Equipment{}, fmt.Errorf("%w: tracking status %q", ErrInvalidInput, e.TrackingStatus)
	}

	now := s.now()
	e.Active = true
	e.Vulnerable = false
	e.CreatedAt, e.UpdatedAt = now, now

	unlock := s.locks.Lock(e.ID)
	defer unlock()

	if err := s.repos.Equipment.Create(ctx, e); err != nil {
		return models.Equipment{}, err
	}
	flag, err := s.vuln.recompute(ctx, e, now)
	if err != nil {
		return e, err
	}
	e.Vulnerable = flag.Active
	return e, nil
}

func (s *EquipmentService) GetEquipment(ctx context.Context, id string) (models.Equipment, error) {
	eq, err := s.repos.Equipment.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Equipment{}, fmt.Errorf("%w: %s", ErrEquipmentNotFound, id)
	}
	return eq, err
}

func (s *EquipmentService) ListEquipment(ctx context.Context, clientID string) ([]models.Equipment, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, errMissingClientID)
	}
	return s.repos.Equipment.ListByClient(ctx, clientID)
}

// DeactivateEquipment stops the pipeline from accepting records for id.
// Stored alerts and history are kept.
func (s *EquipmentService) DeactivateEquipment(ctx context.Context, id string) (models.Equipment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	eq, err := s.GetEquipment(ctx, id)
	if err != nil {
		return models.Equipment{}, err
	}
	if !eq.Active {
		return eq, nil
	}
	eq.Active = false
	eq.UpdatedAt = s.now()
	if err := s.repos.Equipment.Update(ctx, eq); err != nil {
		return models.Equipment{}, err
	}
	return eq, nil
}

// RecordMaintenance appends a maintenance event and recomputes the
// vulnerability flag, which it returns. Logging maintenance on equipment
// without tracking switches it to OFFLINE tracking.
func (s *EquipmentService) RecordMaintenance(ctx context.Context, equipmentID string, ev models.MaintenanceEvent) (models.VulnerabilityFlag, error) {
	ev.Type = strings.ToUpper(strings.TrimSpace(ev.Type))
	switch ev.Type {
	case MaintenancePreventive, MaintenanceCorrective, MaintenancePredictive, MaintenanceConditionBased:
	default:
		return models.VulnerabilityFlag{}, fmt.Errorf("%w: maintenance type %q", ErrInvalidInput, ev.Type)
	}

	unlock := s.locks.Lock(equipmentID)
	defer unlock()

	eq, err := s.GetEquipment(ctx, equipmentID)
	if err != nil {
		return models.VulnerabilityFlag{}, err
	}
	if !eq.Active {
		return models.VulnerabilityFlag{}, fmt.Errorf("%w: %s: %v", ErrInvalidInput, equipmentID, errInactiveEquipment)
	}

	now := s.now()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
	if ev.OccurredAt.After(now) {
		return models.VulnerabilityFlag{}, fmt.Errorf("%w: maintenance date is in the future", ErrInvalidInput)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.EquipmentID = eq.ID

	if err := s.repos.Maintenance.Append(ctx, ev); err != nil {
		return models.VulnerabilityFlag{}, err
	}
	if eq.TrackingStatus == models.TrackingNone {
		eq.TrackingStatus = models.TrackingOffline
		eq.UpdatedAt = now
		if err := s.repos.Equipment.Update(ctx, eq); err != nil {
			return models.VulnerabilityFlag{}, err
		}
	}

	s.audit.record(ctx, models.EventMaintenance, eq.ID, "Maintenance recorded: "+ev.Type, now, map[string]any{
		"maintenance_id":   ev.ID,
		"occurred_at":      ev.OccurredAt,
		"related_alert_id": ev.RelatedAlertID,
	})
	return s.vuln.recompute(ctx, eq, now)
}
