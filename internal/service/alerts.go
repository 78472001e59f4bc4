package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/metrics"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/repository"
)

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 1000
)

type AlertService struct {
	repos   *repository.Repository
	locks   *KeyedMutex
	audit   *auditor
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewAlertService(repos *repository.Repository, locks *KeyedMutex, audit *auditor, m *metrics.Metrics, log *logger.Logger) *AlertService {
	return &AlertService{
		repos:   repos,
		locks:   locks,
		audit:   audit,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *AlertService) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	a, err := s.repos.Alerts.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	return a, err
}

func (s *AlertService) ListAlerts(ctx context.Context, f models.AlertFilter) ([]models.Alert, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidInput)
	}
	for _, sev := range f.Severities {
		if !sev.Valid() {
			return nil, fmt.Errorf("%w: severity %d", ErrInvalidInput, sev)
		}
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultAlertLimit
	case f.Limit > maxAlertLimit:
		f.Limit = maxAlertLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repos.Alerts.List(ctx, f)
}

func (s *AlertService) ValidateAlert(ctx context.Context, id string) (models.Alert, error) {
	return s.transition(ctx, id, models.AlertValidated, func(a *models.Alert, eq models.Equipment, now time.Time) error {
		return alerting.Validate(a, eq.Vulnerable, now)
	})
}

func (s *AlertService) MarkFalsePositive(ctx context.Context, id string) (models.Alert, error) {
	return s.transition(ctx, id, models.AlertFalsePositive, func(a *models.Alert, _ models.Equipment, now time.Time) error {
		return alerting.MarkFalsePositive(a, now)
	})
}

func (s *AlertService) CloseAlert(ctx context.Context, id string) (models.Alert, error) {
	return s.transition(ctx, id, models.AlertClosed, func(a *models.Alert, _ models.Equipment, now time.Time) error {
		return alerting.Close(a, now)
	})
}

// transition applies apply under the equipment lock so it cannot interleave
// with the pipeline writing the same alert.
func (s *AlertService) transition(ctx context.Context, id string, to models.AlertState, apply func(*models.Alert, models.Equipment, time.Time) error) (models.Alert, error) {
	peek, err := s.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}

	unlock := s.locks.Lock(peek.EquipmentID)
	defer unlock()

	a, err := s.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	eq, err := s.repos.Equipment.Get(ctx, a.EquipmentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return models.Alert{}, err
	}

	from := a.State
	now := s.now()
	if err := apply(&a, eq, now); err != nil {
		s.log.Warnw("alert_transition_rejected", "alert_id", id, "from", from, "to", to, "err", err)
		return models.Alert{}, err
	}
	if _, err := s.repos.Alerts.Upsert(ctx, a); err != nil {
		return models.Alert{}, fmt.Errorf("store alert %s: %w", id, err)
	}

	s.metrics.Transition(string(to), false)
	s.log.Infow("alert_transition", "alert_id", id, "equipment_id", a.EquipmentID, "from", from, "to", a.State,
		"false_positive", a.FalsePositive, "criticality", a.Criticality)
	s.audit.record(ctx, models.EventTransition, a.EquipmentID, fmt.Sprintf("alert %s: %s -> %s", id, from, to), now,
		map[string]any{
			"alert_id":       id,
			"from":           string(from),
			"to":             string(to),
			"auto":           false,
			"false_positive": a.FalsePositive,
		})
	return a, nil
}
