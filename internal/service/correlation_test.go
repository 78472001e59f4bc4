package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/models"
)

func TestCorrelationService_CreatesThenLeavesClusterAlone(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		at := harnessStart.Add(time.Duration(i) * 24 * time.Hour)
		h.alerts.items[fmt.Sprintf("a-%d", i)] = models.Alert{
			ID: fmt.Sprintf("a-%d", i), EquipmentID: "MOTOR-001", ClientID: "acme", Severity: models.SeverityP2,
			State: models.AlertClosed, Channel: "iron_ppm", FailureCategory: "wear_metals",
			MeasuredAt: at, CreatedAt: at,
		}
	}
	h.setNow(harnessStart.Add(5 * 24 * time.Hour))

	res, err := h.correlation.Correlate(ctx, "acme")
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if res.Created != 1 || len(res.Clusters) != 1 {
		t.Fatalf("expected one new cluster, got %+v", res)
	}
	c := res.Clusters[0]
	if c.ID != alerting.ClusterID("acme", models.ScopeEquipment, "MOTOR-001", "iron_ppm") || c.Occurrences != 3 {
		t.Fatalf("unexpected cluster: %+v", c)
	}

	res, err = h.correlation.Correlate(ctx, "acme")
	if err != nil {
		t.Fatalf("second Correlate: %v", err)
	}
	if res.Unchanged != 1 || len(res.Clusters) != 0 || h.clusters.upserts != 1 {
		t.Fatalf("re-running over the same alerts must write nothing: %+v upserts=%d", res, h.clusters.upserts)
	}
	if n := len(h.events.ofType(models.EventCorrelation)); n != 1 {
		t.Fatalf("expected one CORRELATION event, got %d", n)
	}

	clusters, err := h.correlation.ListClusters(ctx, "acme")
	if err != nil || len(clusters) != 1 {
		t.Fatalf("ListClusters: %+v %v", clusters, err)
	}
}

func TestCorrelationService_RetiresStaleCluster(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		at := harnessStart.Add(time.Duration(i) * 24 * time.Hour)
		h.alerts.items[fmt.Sprintf("a-%d", i)] = models.Alert{
			ID: fmt.Sprintf("a-%d", i), EquipmentID: "MOTOR-001", ClientID: "acme", Severity: models.SeverityP3,
			State: models.AlertClosed, Channel: "iron_ppm", FailureCategory: "wear_metals",
			MeasuredAt: at, CreatedAt: at,
		}
	}
	h.setNow(harnessStart.Add(3 * 24 * time.Hour))
	if _, err := h.correlation.Correlate(ctx, "acme"); err != nil {
		t.Fatalf("Correlate: %v", err)
	}

	// a-0 slides out of the window, leaving two occurrences
	h.setNow(harnessStart.Add(90*24*time.Hour + time.Hour))
	res, err := h.correlation.Correlate(ctx, "acme")
	if err != nil {
		t.Fatalf("second Correlate: %v", err)
	}
	if res.Retired != 1 {
		t.Fatalf("expected the cluster to be retired, got %+v", res)
	}
	clusters, err := h.correlation.ListClusters(ctx, "acme")
	if err != nil || len(clusters) != 1 || clusters[0].Active {
		t.Fatalf("expected one inactive cluster, got %+v (%v)", clusters, err)
	}
	if n := len(h.events.ofType(models.EventCorrelation)); n != 2 {
		t.Fatalf("expected a CORRELATION event for the retirement, got %d", n)
	}
}

func TestCorrelationService_RequiresClient(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	if _, err := h.correlation.Correlate(context.Background(), " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
