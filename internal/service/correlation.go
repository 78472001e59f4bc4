package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/repository"
)

// CorrelationService groups a client's recurring alerts into root-cause
// clusters. Re-running over unchanged alerts writes nothing.
type CorrelationService struct {
	repos    *repository.Repository
	settings SettingsSource
	audit    *auditor
	log      *logger.Logger
	now      func() time.Time
}

func NewCorrelationService(repos *repository.Repository, settings SettingsSource, audit *auditor, log *logger.Logger) *CorrelationService {
	return &CorrelationService{
		repos:    repos,
		settings: settings,
		audit:    audit,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *CorrelationService) Correlate(ctx context.Context, clientID string) (alerting.CorrelationResult, error) {
	if strings.TrimSpace(clientID) == "" {
		return alerting.CorrelationResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, errMissingClientID)
	}
	cs := s.settings.Settings().Correlator
	now := s.now()

	alerts, err := s.repos.Alerts.List(ctx, models.AlertFilter{ClientID: clientID, From: now.Add(-cs.Window)})
	if err != nil {
		return alerting.CorrelationResult{}, fmt.Errorf("list alerts: %w", err)
	}
	fleet, err := s.repos.Equipment.ListByClient(ctx, clientID)
	if err != nil {
		return alerting.CorrelationResult{}, fmt.Errorf("list equipment: %w", err)
	}
	stored, err := s.repos.Clusters.List(ctx, clientID)
	if err != nil {
		return alerting.CorrelationResult{}, fmt.Errorf("list clusters: %w", err)
	}

	equipment := make(map[string]models.Equipment, len(fleet))
	for _, eq := range fleet {
		equipment[eq.ID] = eq
	}
	existing := make(map[string]models.RootCauseCluster, len(stored))
	for _, c := range stored {
		existing[c.ID] = c
	}

	res := alerting.NewCorrelator(cs).Correlate(alerts, equipment, existing, now)
	for _, c := range res.Clusters {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.repos.Clusters.Upsert(ctx, c); err != nil {
			return res, fmt.Errorf("store cluster %s: %w", c.ID, err)
		}
		equipmentID := ""
		if c.Scope == models.ScopeEquipment {
			equipmentID = c.Subject
		}
		desc := fmt.Sprintf("root cause cluster %s/%s: %d occurrences", c.Subject, c.Channel, c.Occurrences)
		if !c.Active {
			desc = fmt.Sprintf("root cause cluster %s/%s retired: below repetition threshold", c.Subject, c.Channel)
		}
		s.audit.record(ctx, models.EventCorrelation, equipmentID, desc, now,
			map[string]any{
				"cluster_id":     c.ID,
				"cause_category": c.CauseCategory,
				"priority":       c.Priority,
				"alert_ids":      c.AlertIDs,
				"active":         c.Active,
			})
	}

	s.log.Infow("correlation_done", "client_id", clientID, "alerts", len(alerts),
		"created", res.Created, "updated", res.Updated, "unchanged", res.Unchanged, "retired", res.Retired)
	return res, nil
}

func (s *CorrelationService) ListClusters(ctx context.Context, clientID string) ([]models.RootCauseCluster, error) {
	return s.repos.Clusters.List(ctx, clientID)
}
