package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/repository"
)

type profileKey struct {
	client, equipmentType string
}

type cachedProfile struct {
	profile models.RiskProfile
	expires time.Time
}

// profileCache keeps resolved risk profiles for a bounded time. Thresholds
// change rarely; a write through RiskProfileService drops the whole cache.
type profileCache struct {
	repo repository.RiskProfileRepo
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[profileKey]cachedProfile
}

func newProfileCache(repo repository.RiskProfileRepo, ttl time.Duration) *profileCache {
	return &profileCache{
		repo:    repo,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[profileKey]cachedProfile),
	}
}

func (c *profileCache) get(ctx context.Context, clientID, equipmentType string) (models.RiskProfile, error) {
	key := profileKey{client: clientID, equipmentType: strings.ToUpper(strings.TrimSpace(equipmentType))}

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Before(e.expires) {
		return e.profile, nil
	}

	p, err := c.repo.Resolve(ctx, key.client, key.equipmentType)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && len(p.Thresholds) == 0) {
		return models.RiskProfile{}, fmt.Errorf("%w: client %q, equipment type %q",
			alerting.ErrNoApplicableProfile, key.client, key.equipmentType)
	}
	if err != nil {
		return models.RiskProfile{}, err
	}

	if c.ttl > 0 {
		c.mu.Lock()
		c.entries[key] = cachedProfile{profile: p, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
	}
	return p, nil
}

func (c *profileCache) invalidate() {
	c.mu.Lock()
	c.entries = make(map[profileKey]cachedProfile)
	c.mu.Unlock()
}
