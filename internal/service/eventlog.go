package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"predictive_alerts/internal/models"
	"predictive_alerts/internal/repository"
)

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var errInvalidTimeRange = errors.New("invalid time range: from must be <= to")

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func normalizeAndValidateFilter(f LogFilter) (LogFilter, error) {
	f.From = normalizeToUTC(f.From)
	f.To = normalizeToUTC(f.To)
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return LogFilter{}, fmt.Errorf("%w: %v", ErrInvalidInput, errInvalidTimeRange)
	}
	f.Type = strings.TrimSpace(strings.ToUpper(f.Type))
	f.EquipmentID = strings.TrimSpace(f.EquipmentID)
	return f, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.PipelineEvent, error) {
	f, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, f.From, f.To, f.Type, f.EquipmentID)
}
