package alerting

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"predictive_alerts/internal/models"
)

var clusterNamespace = uuid.MustParse("0d3c7f52-8a41-4b9e-a7c2-5e19b6d4f318")

// ClusterID is derived from the group key so re-runs address the same cluster.
func ClusterID(clientID, scope, subject, channel string) string {
	key := clientID + "|" + scope + "|" + subject + "|" + channel
	return uuid.NewSHA1(clusterNamespace, []byte(key)).String()
}

// CorrelationResult lists the clusters that must be written.
type CorrelationResult struct {
	Clusters  []models.RootCauseCluster
	Created   int
	Updated   int
	Unchanged int
	// Retired counts stored clusters whose group no longer qualifies.
	Retired int
}

// Correlator groups recurring alerts into root-cause clusters.
type Correlator struct {
	s CorrelatorSettings
}

func NewCorrelator(s CorrelatorSettings) *Correlator {
	return &Correlator{s: s}
}

type groupKey struct {
	client, subject, channel string
}

// Correlate groups alerts created within the window. equipment resolves the
// subject for the equipment_type scope; existing holds the stored clusters by id.
func (c *Correlator) Correlate(alerts []models.Alert, equipment map[string]models.Equipment, existing map[string]models.RootCauseCluster, now time.Time) CorrelationResult {
	scope := c.s.Scope
	if scope != models.ScopeEquipmentType {
		scope = models.ScopeEquipment
	}
	start := now.Add(-c.s.Window)

	groups := make(map[groupKey][]models.Alert)
	for _, a := range alerts {
		if a.FalsePositive || a.CreatedAt.Before(start) || a.CreatedAt.After(now) {
			continue
		}
		subject := a.EquipmentID
		if scope == models.ScopeEquipmentType {
			eq, ok := equipment[a.EquipmentID]
			if !ok || eq.Type == "" {
				continue
			}
			subject = eq.Type
		}
		k := groupKey{client: a.ClientID, subject: subject, channel: a.Channel}
		groups[k] = append(groups[k], a)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].subject != keys[j].subject {
			return keys[i].subject < keys[j].subject
		}
		return keys[i].channel < keys[j].channel
	})

	var res CorrelationResult
	live := make(map[string]bool, len(keys))
	for _, k := range keys {
		members := groups[k]
		if len(members) < c.s.RepetitionThreshold {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
				return members[i].CreatedAt.Before(members[j].CreatedAt)
			}
			return members[i].ID < members[j].ID
		})

		cl := buildCluster(k, scope, members)
		live[cl.ID] = true
		prev, ok := existing[cl.ID]
		switch {
		case !ok:
			cl.CreatedAt, cl.UpdatedAt = now, now
			res.Created++
		case prev.Active && sameMembers(prev.AlertIDs, cl.AlertIDs) && prev.CauseCategory == cl.CauseCategory:
			res.Unchanged++
			continue
		default:
			cl.CreatedAt, cl.UpdatedAt = prev.CreatedAt, now
			res.Updated++
		}
		res.Clusters = append(res.Clusters, cl)
	}

	var retired []string
	for id, prev := range existing {
		if prev.Active && !live[id] {
			retired = append(retired, id)
		}
	}
	sort.Strings(retired)
	for _, id := range retired {
		cl := existing[id]
		cl.Active = false
		cl.UpdatedAt = now
		res.Clusters = append(res.Clusters, cl)
		res.Retired++
	}
	return res
}

func buildCluster(k groupKey, scope string, members []models.Alert) models.RootCauseCluster {
	ids := make([]string, len(members))
	for i, a := range members {
		ids[i] = a.ID
	}
	first := members[0].CreatedAt
	last := members[len(members)-1].CreatedAt
	var interval float64
	if len(members) > 1 {
		interval = last.Sub(first).Hours() / float64(len(members)-1)
	}

	category := dominantCategory(members)
	sev := predominantSeverity(members)
	priority := "MEDIUM"
	if sev == models.SeverityP1 || sev == models.SeverityP2 {
		priority = "HIGH"
	}
	return models.RootCauseCluster{
		ID:                   ClusterID(k.client, scope, k.subject, k.channel),
		ClientID:             k.client,
		Scope:                scope,
		Subject:              k.subject,
		Channel:              k.channel,
		CauseCategory:        category,
		Recommendation:       Recommendation(category),
		Priority:             priority,
		PredominantSeverity:  sev,
		AlertIDs:             ids,
		Occurrences:          len(members),
		FirstOccurrence:      first,
		LastOccurrence:       last,
		AverageIntervalHours: interval,
		Active:               true,
	}
}

// dominantCategory picks the most frequent label. Ties go to the label of the
// most recent alert among the tied ones. members must be sorted ascending.
func dominantCategory(members []models.Alert) string {
	counts := make(map[string]int)
	latest := make(map[string]int)
	for i, a := range members {
		if a.FailureCategory == "" {
			continue
		}
		counts[a.FailureCategory]++
		latest[a.FailureCategory] = i
	}
	best, bestN := "", 0
	for cat, n := range counts {
		if n > bestN || (n == bestN && latest[cat] > latest[best]) {
			best, bestN = cat, n
		}
	}
	if best == "" {
		return UnclassifiedCategory
	}
	return best
}

// predominantSeverity is the most frequent severity, ties toward the more severe.
func predominantSeverity(members []models.Alert) models.Severity {
	counts := make(map[models.Severity]int)
	for _, a := range members {
		counts[a.Severity]++
	}
	best, bestN := models.SeverityP4, 0
	for s := models.SeverityP1; s <= models.SeverityP4; s++ {
		if counts[s] > bestN {
			best, bestN = s, counts[s]
		}
	}
	return best
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
