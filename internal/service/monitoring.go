package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"predictive_alerts/internal/models"
	"predictive_alerts/internal/repository"
)

type MonitoringService struct {
	repos *repository.Repository
	now   func() time.Time
}

func NewMonitoringService(repos *repository.Repository) *MonitoringService {
	return &MonitoringService{repos: repos, now: func() time.Time { return time.Now().UTC() }}
}

// ClientStatus summarizes the unresolved alerts and vulnerable equipment of
// a client. It is polled by the dashboard stream.
func (s *MonitoringService) ClientStatus(ctx context.Context, clientID string) (ClientStatus, error) {
	if strings.TrimSpace(clientID) == "" {
		return ClientStatus{}, fmt.Errorf("%w: %v", ErrInvalidInput, errMissingClientID)
	}
	fleet, err := s.repos.Equipment.ListByClient(ctx, clientID)
	if err != nil {
		return ClientStatus{}, err
	}
	open, err := s.repos.Alerts.List(ctx, models.AlertFilter{
		ClientID: clientID,
		States:   []models.AlertState{models.AlertOpen, models.AlertValidated},
	})
	if err != nil {
		return ClientStatus{}, err
	}

	st := ClientStatus{
		ClientID:            clientID,
		OpenBySeverity:      map[string]int{},
		VulnerableEquipment: []string{},
		UpdatedAt:           s.now(),
	}
	for _, eq := range fleet {
		if !eq.Active {
			continue
		}
		st.Equipment++
		if eq.Vulnerable {
			st.VulnerableEquipment = append(st.VulnerableEquipment, eq.ID)
		}
	}
	sort.Strings(st.VulnerableEquipment)
	for _, a := range open {
		switch a.State {
		case models.AlertOpen:
			st.OpenAlerts++
		case models.AlertValidated:
			st.ValidatedAlerts++
		}
		st.OpenBySeverity[a.Severity.String()]++
	}
	return st, nil
}
