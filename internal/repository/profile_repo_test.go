package repository

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"predictive_alerts/internal/models"
)

func TestProfileResolve_NormalizesType(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	repo := NewRiskProfileSQLite(db)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(resolveProfileSQL)).
		WithArgs("acme", "PUMP", "acme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "equipment_type", "name", "thresholds", "updated_at"}).
			AddRow("acme:PUMP", "acme", "PUMP", "acme pumps", `{"viscosity":{"bound":40,"tolerance":3,"direction":"LOWER"}}`, now))

	p, err := repo.Resolve(ctx(t), "acme", " pump ")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	th, ok := p.Thresholds["viscosity"]
	if !ok || th.Direction != models.DirectionLower || th.Tolerance != 3 {
		t.Fatalf("unexpected thresholds: %+v", p.Thresholds)
	}
}

func TestProfileResolve_NothingConfigured(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	repo := NewRiskProfileSQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta(resolveProfileSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.Resolve(ctx(t), "acme", "MOTOR"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClusterUpsert_StoresMembersAsJSON(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	repo := NewClusterSQLite(db)

	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(upsertClusterSQL)).
		WithArgs("c-1", "acme", "equipment", "MOTOR-001", "iron_ppm", "wear_metals", "rec", "HIGH",
			2, `["a-1","a-2","a-3"]`, 3, now.Add(-48*time.Hour), now, 24.0, true, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(ctx(t), models.RootCauseCluster{
		ID: "c-1", ClientID: "acme", Scope: models.ScopeEquipment, Subject: "MOTOR-001", Channel: "iron_ppm",
		CauseCategory: "wear_metals", Recommendation: "rec", Priority: "HIGH",
		PredominantSeverity: models.SeverityP2, AlertIDs: []string{"a-1", "a-2", "a-3"}, Occurrences: 3,
		FirstOccurrence: now.Add(-48 * time.Hour), LastOccurrence: now, AverageIntervalHours: 24,
		Active: true, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
}

func TestClusterList(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	repo := NewClusterSQLite(db)

	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	cols := []string{"id", "client_id", "scope", "subject", "channel", "cause_category", "recommendation",
		"priority", "predominant_severity", "alert_ids", "occurrences", "first_occurrence", "last_occurrence",
		"avg_interval_hours", "active", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(listClustersSQL)).
		WithArgs("acme", "acme").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("c-1", "acme", "equipment", "MOTOR-001", "iron_ppm",
			"wear_metals", "rec", "HIGH", 2, `["a-1","a-2"]`, 2, now, now, 0.0, false, now, now))

	got, err := repo.List(ctx(t), "acme")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || len(got[0].AlertIDs) != 2 || got[0].PredominantSeverity != models.SeverityP2 || got[0].Active {
		t.Fatalf("unexpected clusters: %+v", got)
	}
}

func TestVulnerabilityGet_NotFound(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	repo := NewVulnerabilitySQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectVulnerabilitySQL)).
		WithArgs("MOTOR-001").
		WillReturnRows(sqlmock.NewRows([]string{"equipment_id"}))

	if _, err := repo.Get(ctx(t), "MOTOR-001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVulnerabilityList_ActiveOnly(t *testing.T) {
	t.Parallel()
	db, mock := newMock(t)
	repo := NewVulnerabilitySQLite(db)

	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(listVulnerabilitySQL)).
		WithArgs("acme", "acme", true).
		WillReturnRows(sqlmock.NewRows([]string{"equipment_id", "client_id", "category", "active", "risk_score", "reason", "computed_at"}).
			AddRow("MOTOR-001", "acme", "NO_TRACKING", true, 0.8, "never maintained", now))

	got, err := repo.List(ctx(t), "acme", true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Category != models.VulnNoTracking || got[0].RiskScore != 0.8 {
		t.Fatalf("unexpected flags: %+v", got)
	}
}
