package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"predictive_alerts/internal/models"
	"predictive_alerts/internal/repository"
)

// ReportService assembles read-only snapshots. Rendering is left to callers.
type ReportService struct {
	repos *repository.Repository
	now   func() time.Time
}

func NewReportService(repos *repository.Repository) *ReportService {
	return &ReportService{repos: repos, now: func() time.Time { return time.Now().UTC() }}
}

func (s *ReportService) Snapshot(ctx context.Context, q ReportQuery) (Report, error) {
	if strings.TrimSpace(q.ClientID) == "" {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidInput, errMissingClientID)
	}
	now := s.now()
	if q.To.IsZero() {
		q.To = now
	}
	if q.From.IsZero() {
		q.From = q.To.AddDate(0, 0, -30)
	}
	if q.From.After(q.To) {
		return Report{}, fmt.Errorf("%w: from must be before to", ErrInvalidInput)
	}

	alerts, err := s.repos.Alerts.List(ctx, models.AlertFilter{
		ClientID:             q.ClientID,
		From:                 q.From,
		To:                   q.To,
		IncludeFalsePositive: true,
	})
	if err != nil {
		return Report{}, fmt.Errorf("list alerts: %w", err)
	}
	clusters, err := s.repos.Clusters.List(ctx, q.ClientID)
	if err != nil {
		return Report{}, fmt.Errorf("list clusters: %w", err)
	}
	flags, err := s.repos.Vulnerability.List(ctx, q.ClientID, true)
	if err != nil {
		return Report{}, fmt.Errorf("list vulnerabilities: %w", err)
	}

	r := Report{
		ClientID:        q.ClientID,
		From:            q.From.UTC(),
		To:              q.To.UTC(),
		GeneratedAt:     now,
		Alerts:          alerts,
		Clusters:        clusters,
		Vulnerabilities: flags,
		BySeverity:      map[string]int{},
		ByState:         map[string]int{},
	}
	for _, a := range alerts {
		r.BySeverity[a.Severity.String()]++
		r.ByState[string(a.State)]++
		if a.FalsePositive {
			r.FalsePositives++
		}
	}
	return r, nil
}
