package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/config"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/repository"
)

type RiskProfileService struct {
	repo  repository.RiskProfileRepo
	cache *profileCache
	now   func() time.Time
}

func NewRiskProfileService(repo repository.RiskProfileRepo, cache *profileCache) *RiskProfileService {
	return &RiskProfileService{repo: repo, cache: cache, now: func() time.Time { return time.Now().UTC() }}
}

// UpsertProfile validates and stores p. A type-specific profile needs a
// client; the default profile has neither.
func (s *RiskProfileService) UpsertProfile(ctx context.Context, p models.RiskProfile) (models.RiskProfile, error) {
	p, err := normalizeProfile(p)
	if err != nil {
		return models.RiskProfile{}, err
	}
	p.UpdatedAt = s.now()
	if err := s.repo.Upsert(ctx, p); err != nil {
		return models.RiskProfile{}, err
	}
	s.cache.invalidate()
	return p, nil
}

func (s *RiskProfileService) ResolveProfile(ctx context.Context, clientID, equipmentType string) (models.RiskProfile, error) {
	p, err := s.repo.Resolve(ctx, strings.TrimSpace(clientID), equipmentType)
	if errors.Is(err, repository.ErrNotFound) {
		return models.RiskProfile{}, fmt.Errorf("%w: client %q, equipment type %q",
			alerting.ErrNoApplicableProfile, clientID, equipmentType)
	}
	return p, err
}

// SeedProfiles stores every profile and returns how many were written.
func (s *RiskProfileService) SeedProfiles(ctx context.Context, profiles []models.RiskProfile) (int, error) {
	n := 0
	defer func() {
		if n > 0 {
			s.cache.invalidate()
		}
	}()
	for _, p := range profiles {
		p, err := normalizeProfile(p)
		if err != nil {
			return n, err
		}
		p.UpdatedAt = s.now()
		if err := s.repo.Upsert(ctx, p); err != nil {
			return n, fmt.Errorf("seed profile %s: %w", p.ID, err)
		}
		n++
	}
	return n, nil
}

func normalizeProfile(p models.RiskProfile) (models.RiskProfile, error) {
	p.ClientID = strings.TrimSpace(p.ClientID)
	p.EquipmentType = strings.ToUpper(strings.TrimSpace(p.EquipmentType))
	if p.ClientID == "" && p.EquipmentType != "" {
		return p, fmt.Errorf("%w: equipment type profile %q needs a client", ErrInvalidInput, p.EquipmentType)
	}
	if len(p.Thresholds) == 0 {
		return p, fmt.Errorf("%w: profile has no thresholds", ErrInvalidInput)
	}
	thresholds := make(map[string]models.ChannelThreshold, len(p.Thresholds))
	for ch, th := range p.Thresholds {
		th, err := config.NormalizeThreshold(th)
		if err != nil {
			return p, fmt.Errorf("%w: channel %q: %v", ErrInvalidInput, ch, err)
		}
		thresholds[strings.ToLower(strings.TrimSpace(ch))] = th
	}
	p.Thresholds = thresholds
	p.ID = config.ProfileID(p.ClientID, p.EquipmentType)
	if p.Name == "" {
		p.Name = p.ID
	}
	return p, nil
}
