package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/repository"
)

// VulnerabilityService is the only writer of Equipment.Vulnerable. A flag
// change re-derives the criticality of the equipment's unresolved alerts.
type VulnerabilityService struct {
	repos    *repository.Repository
	settings SettingsSource
	locks    *KeyedMutex
	audit    *auditor
	log      *logger.Logger
	now      func() time.Time
}

func NewVulnerabilityService(repos *repository.Repository, settings SettingsSource, locks *KeyedMutex, audit *auditor, log *logger.Logger) *VulnerabilityService {
	return &VulnerabilityService{
		repos:    repos,
		settings: settings,
		locks:    locks,
		audit:    audit,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *VulnerabilityService) Recompute(ctx context.Context, equipmentID string) (models.VulnerabilityFlag, error) {
	unlock := s.locks.Lock(equipmentID)
	defer unlock()

	eq, err := s.repos.Equipment.Get(ctx, equipmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.VulnerabilityFlag{}, fmt.Errorf("%w: %s", ErrEquipmentNotFound, equipmentID)
	}
	if err != nil {
		return models.VulnerabilityFlag{}, err
	}
	return s.recompute(ctx, eq, s.now())
}

// ScanClient recomputes every active equipment of the client. Equipment that
// fails is logged and skipped.
func (s *VulnerabilityService) ScanClient(ctx context.Context, clientID string) ([]models.VulnerabilityFlag, error) {
	fleet, err := s.repos.Equipment.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	flags := make([]models.VulnerabilityFlag, 0, len(fleet))
	for _, eq := range fleet {
		if err := ctx.Err(); err != nil {
			return flags, err
		}
		if !eq.Active {
			continue
		}
		f, err := s.Recompute(ctx, eq.ID)
		if err != nil {
			s.log.Errorw("vulnerability_scan_failed", "equipment_id", eq.ID, "err", err)
			continue
		}
		flags = append(flags, f)
	}
	s.log.Infow("vulnerability_scan_done", "client_id", clientID, "equipment", len(flags))
	return flags, nil
}

func (s *VulnerabilityService) ListFlags(ctx context.Context, clientID string, activeOnly bool) ([]models.VulnerabilityFlag, error) {
	return s.repos.Vulnerability.List(ctx, clientID, activeOnly)
}

// recompute expects the caller to hold the equipment lock.
func (s *VulnerabilityService) recompute(ctx context.Context, eq models.Equipment, now time.Time) (models.VulnerabilityFlag, error) {
	vs := s.settings.Settings().Vulnerability

	in := alerting.VulnerabilityInput{Equipment: eq}
	last, err := s.repos.Maintenance.Latest(ctx, eq.ID)
	if err != nil {
		return models.VulnerabilityFlag{}, fmt.Errorf("latest maintenance: %w", err)
	}
	if last != nil {
		t := last.OccurredAt
		in.LastMaintenance = &t
	}

	horizon := now.Add(-vs.NoTrackingHorizon)
	in.Alerts, err = s.repos.Alerts.List(ctx, models.AlertFilter{
		EquipmentID:          eq.ID,
		From:                 horizon,
		IncludeFalsePositive: true,
	})
	if err != nil {
		return models.VulnerabilityFlag{}, fmt.Errorf("list alerts: %w", err)
	}
	in.MeasurementTimes, err = s.repos.Measurements.Times(ctx, eq.ID, horizon.Add(-vs.MaxMeasurementGap))
	if err != nil {
		return models.VulnerabilityFlag{}, fmt.Errorf("measurement times: %w", err)
	}

	flag := alerting.NewVulnerabilityDetector(vs).Assess(in, now)

	prev, err := s.repos.Vulnerability.Get(ctx, eq.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return models.VulnerabilityFlag{}, err
	}
	if err := s.repos.Vulnerability.Upsert(ctx, flag); err != nil {
		return models.VulnerabilityFlag{}, err
	}

	if flag.Active != eq.Vulnerable {
		eq.Vulnerable = flag.Active
		eq.UpdatedAt = now
		if err := s.repos.Equipment.Update(ctx, eq); err != nil {
			return flag, err
		}
		if err := s.recriticize(ctx, eq, now); err != nil {
			return flag, err
		}
	}

	if prev.Active != flag.Active || prev.Category != flag.Category {
		s.log.Infow("vulnerability_changed", "equipment_id", eq.ID,
			"category", flag.Category, "active", flag.Active, "risk_score", flag.RiskScore)
		s.audit.record(ctx, models.EventVulnerability, eq.ID, vulnerabilityDescription(flag), now, map[string]any{
			"category":          string(flag.Category),
			"previous_category": string(prev.Category),
			"active":            flag.Active,
			"risk_score":        flag.RiskScore,
		})
	}
	return flag, nil
}

func (s *VulnerabilityService) recriticize(ctx context.Context, eq models.Equipment, now time.Time) error {
	open, err := s.repos.Alerts.GetOpen(ctx, eq.ID, "")
	if err != nil {
		return err
	}
	for _, a := range open {
		if !alerting.Recriticize(&a, eq.Vulnerable, now) {
			continue
		}
		if _, err := s.repos.Alerts.Upsert(ctx, a); err != nil {
			return err
		}
		s.log.Infow("alert_recriticized", "equipment_id", eq.ID, "alert_id", a.ID, "criticality", a.Criticality)
	}
	return nil
}

func vulnerabilityDescription(f models.VulnerabilityFlag) string {
	if !f.Active {
		return "vulnerability cleared"
	}
	return fmt.Sprintf("%s: %s", f.Category, f.Reason)
}
