package alerting

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"predictive_alerts/internal/models"
)

func history(now time.Time) []models.Alert {
	mk := func(i int, eq, channel, cat string, sev models.Severity, fp bool) models.Alert {
		return models.Alert{
			ID:              fmt.Sprintf("a%02d", i),
			ClientID:        "acme",
			EquipmentID:     eq,
			Channel:         channel,
			FailureCategory: cat,
			Severity:        sev,
			FalsePositive:   fp,
			State:           models.AlertClosed,
			CreatedAt:       now.Add(-time.Duration(40-i) * 24 * time.Hour),
		}
	}
	return []models.Alert{
		mk(1, "MOTOR-001", "bearing_temperature", "bearing_wear", models.SeverityP3, false),
		mk(2, "MOTOR-001", "bearing_temperature", "lubrication", models.SeverityP2, false),
		mk(3, "MOTOR-001", "bearing_temperature", "bearing_wear", models.SeverityP2, false),
		mk(4, "MOTOR-001", "bearing_temperature", "lubrication", models.SeverityP1, false),
		mk(5, "MOTOR-001", "bearing_temperature", "bearing_wear", models.SeverityP2, true), // excluded
		mk(6, "MOTOR-002", "bearing_temperature", "", models.SeverityP4, false),
		mk(7, "MOTOR-002", "bearing_temperature", "", models.SeverityP4, false),
		mk(8, "PUMP-01", "viscosity", "lubrication", models.SeverityP3, false),
	}
}

var fleet = map[string]models.Equipment{
	"MOTOR-001": {ID: "MOTOR-001", ClientID: "acme", Type: "MOTOR"},
	"MOTOR-002": {ID: "MOTOR-002", ClientID: "acme", Type: "MOTOR"},
	"PUMP-01":   {ID: "PUMP-01", ClientID: "acme", Type: "PUMP"},
}

func TestCorrelate_EquipmentScope(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewCorrelator(DefaultSettings().Correlator)

	res := c.Correlate(history(now), fleet, nil, now)
	if res.Created != 1 || len(res.Clusters) != 1 {
		t.Fatalf("expected a single new cluster, got %+v", res)
	}
	cl := res.Clusters[0]
	if cl.ID != ClusterID("acme", models.ScopeEquipment, "MOTOR-001", "bearing_temperature") {
		t.Fatalf("cluster id must be derived from the group key")
	}
	if diff := cmp.Diff([]string{"a01", "a02", "a03", "a04"}, cl.AlertIDs); diff != "" {
		t.Fatalf("members mismatch (-want +got):\n%s", diff)
	}
	// bearing_wear and lubrication tie 2-2; a04 is the most recent
	if cl.CauseCategory != "lubrication" {
		t.Fatalf("expected tie broken by most recent label, got %s", cl.CauseCategory)
	}
	if cl.Recommendation != Recommendation("lubrication") {
		t.Fatalf("unexpected recommendation %q", cl.Recommendation)
	}
	if cl.PredominantSeverity != models.SeverityP2 || cl.Priority != "HIGH" {
		t.Fatalf("unexpected severity/priority: %s %s", cl.PredominantSeverity, cl.Priority)
	}
	if cl.AverageIntervalHours != 24 {
		t.Fatalf("expected 24h average interval, got %.2f", cl.AverageIntervalHours)
	}
}

func TestCorrelate_Idempotent(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewCorrelator(DefaultSettings().Correlator)
	alerts := history(now)

	first := c.Correlate(alerts, fleet, nil, now)
	stored := make(map[string]models.RootCauseCluster)
	for _, cl := range first.Clusters {
		stored[cl.ID] = cl
	}

	second := c.Correlate(alerts, fleet, stored, now.Add(time.Hour))
	if len(second.Clusters) != 0 || second.Created != 0 || second.Updated != 0 {
		t.Fatalf("re-run on unchanged history must not write, got %+v", second)
	}
	if second.Unchanged != len(first.Clusters) {
		t.Fatalf("expected %d unchanged, got %d", len(first.Clusters), second.Unchanged)
	}

	// a new member updates in place, keeping the cluster id and creation time
	extra := alerts[0]
	extra.ID, extra.CreatedAt = "a99", now.Add(-time.Hour)
	third := c.Correlate(append(alerts, extra), fleet, stored, now.Add(2*time.Hour))
	if third.Updated != 1 || len(third.Clusters) != 1 {
		t.Fatalf("expected one in-place update, got %+v", third)
	}
	prev := stored[third.Clusters[0].ID]
	if !third.Clusters[0].CreatedAt.Equal(prev.CreatedAt) || len(third.Clusters[0].AlertIDs) != 5 {
		t.Fatalf("unexpected updated cluster: %+v", third.Clusters[0])
	}
}

func TestCorrelate_EquipmentTypeScope(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := DefaultSettings().Correlator
	s.Scope = models.ScopeEquipmentType
	c := NewCorrelator(s)

	res := c.Correlate(history(now), fleet, nil, now)
	if len(res.Clusters) != 1 {
		t.Fatalf("expected one MOTOR cluster, got %+v", res.Clusters)
	}
	cl := res.Clusters[0]
	if cl.Subject != "MOTOR" || cl.Occurrences != 6 {
		t.Fatalf("unexpected cluster: subject=%s occurrences=%d", cl.Subject, cl.Occurrences)
	}
}

func TestCorrelate_OutsideWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := DefaultSettings().Correlator
	s.Window = 37 * 24 * time.Hour // keeps only a03 and a04 of MOTOR-001
	res := NewCorrelator(s).Correlate(history(now), fleet, nil, now)
	if len(res.Clusters) != 0 {
		t.Fatalf("expected no clusters, got %+v", res.Clusters)
	}
}

func TestCorrelate_RetiresClusterBelowThreshold(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewCorrelator(DefaultSettings().Correlator)

	first := c.Correlate(history(now), fleet, nil, now)
	if len(first.Clusters) != 1 || !first.Clusters[0].Active {
		t.Fatalf("expected one active cluster, got %+v", first.Clusters)
	}
	stored := map[string]models.RootCauseCluster{first.Clusters[0].ID: first.Clusters[0]}

	// the window now starts 36.5 days before the first run: only a04 is left
	later := now.Add(53*24*time.Hour + 12*time.Hour)
	res := c.Correlate(history(now), fleet, stored, later)
	if res.Retired != 1 || len(res.Clusters) != 1 {
		t.Fatalf("expected one retired cluster, got %+v", res)
	}
	retired := res.Clusters[0]
	if retired.Active || !retired.UpdatedAt.Equal(later) || !retired.CreatedAt.Equal(now) {
		t.Fatalf("unexpected retired cluster: %+v", retired)
	}
	stored[retired.ID] = retired

	// already retired: nothing more to write
	again := c.Correlate(history(now), fleet, stored, later.Add(time.Hour))
	if len(again.Clusters) != 0 || again.Retired != 0 {
		t.Fatalf("expected no writes, got %+v", again)
	}

	// the same members qualifying again reactivate the cluster in place
	back := c.Correlate(history(now), fleet, stored, now.Add(time.Hour))
	if back.Updated != 1 || len(back.Clusters) != 1 || !back.Clusters[0].Active {
		t.Fatalf("expected reactivation, got %+v", back)
	}
}

func TestDominantCategory_Unlabeled(t *testing.T) {
	t.Parallel()
	if got := dominantCategory([]models.Alert{{}, {}}); got != UnclassifiedCategory {
		t.Fatalf("expected %s, got %s", UnclassifiedCategory, got)
	}
}
