package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/notify"
	"predictive_alerts/internal/repository"
)

// In-memory repositories. Each keeps its own lock so the pipeline's worker
// goroutines can share them.

type fakeEquipmentRepo struct {
	mu    sync.Mutex
	items map[string]models.Equipment
	err   error
}

func (f *fakeEquipmentRepo) Create(_ context.Context, e models.Equipment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[e.ID] = e
	return nil
}

func (f *fakeEquipmentRepo) Get(_ context.Context, id string) (models.Equipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.Equipment{}, f.err
	}
	e, ok := f.items[id]
	if !ok {
		return models.Equipment{}, repository.ErrNotFound
	}
	return e, nil
}

func (f *fakeEquipmentRepo) ListByClient(_ context.Context, clientID string) ([]models.Equipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Equipment
	for _, e := range f.items {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEquipmentRepo) Update(_ context.Context, e models.Equipment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[e.ID]; !ok {
		return repository.ErrNotFound
	}
	f.items[e.ID] = e
	return nil
}

type fakeMaintenanceRepo struct {
	mu     sync.Mutex
	events []models.MaintenanceEvent
}

func (f *fakeMaintenanceRepo) Append(_ context.Context, ev models.MaintenanceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeMaintenanceRepo) Latest(_ context.Context, equipmentID string) (*models.MaintenanceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.MaintenanceEvent
	for i := range f.events {
		ev := f.events[i]
		if ev.EquipmentID == equipmentID && (latest == nil || ev.OccurredAt.After(latest.OccurredAt)) {
			latest = &ev
		}
	}
	return latest, nil
}

func (f *fakeMaintenanceRepo) List(_ context.Context, equipmentID string) ([]models.MaintenanceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MaintenanceEvent
	for _, ev := range f.events {
		if ev.EquipmentID == equipmentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeMeasurementRepo struct {
	mu    sync.Mutex
	items map[string]models.Measurement
	err   error
}

func (f *fakeMeasurementRepo) Upsert(_ context.Context, m models.Measurement) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if _, ok := f.items[m.ID]; !ok {
		f.items[m.ID] = m
	}
	return m.ID, nil
}

func (f *fakeMeasurementRepo) QueryRecent(_ context.Context, equipmentID, channel string, start time.Time) ([]models.Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Measurement
	for _, m := range f.items {
		if m.EquipmentID != equipmentID || m.TakenAt.Before(start) {
			continue
		}
		if _, ok := m.Channel(channel); channel != "" && !ok {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })
	return out, nil
}

func (f *fakeMeasurementRepo) Latest(_ context.Context, equipmentID string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest time.Time
	for _, m := range f.items {
		if m.EquipmentID == equipmentID && m.TakenAt.After(latest) {
			latest = m.TakenAt
		}
	}
	return latest, nil
}

func (f *fakeMeasurementRepo) PreviousStatuses(_ context.Context, equipmentID string, before time.Time) (map[string]models.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var older []models.Measurement
	for _, m := range f.items {
		if m.EquipmentID == equipmentID && m.TakenAt.Before(before) {
			older = append(older, m)
		}
	}
	sort.Slice(older, func(i, j int) bool { return older[i].TakenAt.Before(older[j].TakenAt) })
	out := make(map[string]models.Status)
	for _, m := range older {
		for _, c := range m.Channels {
			out[c.Name] = c.Status
		}
	}
	return out, nil
}

func (f *fakeMeasurementRepo) Times(_ context.Context, equipmentID string, since time.Time) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Time
	for _, m := range f.items {
		if m.EquipmentID == equipmentID && !m.TakenAt.Before(since) {
			out = append(out, m.TakenAt)
		}
	}
	return out, nil
}

type fakeAlertRepo struct {
	mu      sync.Mutex
	items   map[string]models.Alert
	upserts int
}

func (f *fakeAlertRepo) Upsert(_ context.Context, a models.Alert) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[a.ID] = cloneAlert(a)
	f.upserts++
	return a.ID, nil
}

func (f *fakeAlertRepo) Get(_ context.Context, id string) (models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return models.Alert{}, repository.ErrNotFound
	}
	return cloneAlert(a), nil
}

func (f *fakeAlertRepo) GetOpen(_ context.Context, equipmentID, channel string) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Alert
	for _, a := range f.items {
		if a.EquipmentID == equipmentID && a.State.Unresolved() && (channel == "" || a.Channel == channel) {
			out = append(out, cloneAlert(a))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (f *fakeAlertRepo) List(_ context.Context, flt models.AlertFilter) ([]models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Alert
	for _, a := range f.items {
		if flt.ClientID != "" && a.ClientID != flt.ClientID ||
			flt.EquipmentID != "" && a.EquipmentID != flt.EquipmentID ||
			!flt.From.IsZero() && a.CreatedAt.Before(flt.From) ||
			!flt.To.IsZero() && a.CreatedAt.After(flt.To) ||
			!flt.IncludeFalsePositive && a.FalsePositive {
			continue
		}
		if len(flt.States) > 0 && !containsState(flt.States, a.State) {
			continue
		}
		if len(flt.Severities) > 0 && !containsSeverity(flt.Severities, a.Severity) {
			continue
		}
		out = append(out, cloneAlert(a))
	}
	sortNewestFirst(out)
	if flt.Offset > 0 {
		if flt.Offset >= len(out) {
			return nil, nil
		}
		out = out[flt.Offset:]
	}
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

func (f *fakeAlertRepo) FalsePositiveStats(_ context.Context, equipmentID, channel string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total, fps := 0, 0
	for _, a := range f.items {
		if a.EquipmentID == equipmentID && (channel == "" || a.Channel == channel) {
			total++
			if a.FalsePositive {
				fps++
			}
		}
	}
	return total, fps, nil
}

func (f *fakeAlertRepo) all() []models.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Alert, 0, len(f.items))
	for _, a := range f.items {
		out = append(out, cloneAlert(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MeasuredAt.Before(out[j].MeasuredAt) })
	return out
}

type fakeProfileRepo struct {
	mu       sync.Mutex
	items    map[string]models.RiskProfile
	resolves int
}

func (f *fakeProfileRepo) Resolve(_ context.Context, clientID, equipmentType string) (models.RiskProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	typ := strings.ToUpper(strings.TrimSpace(equipmentType))
	for _, id := range []string{clientID + ":" + typ, clientID, "default"} {
		if p, ok := f.items[id]; ok {
			return p, nil
		}
	}
	return models.RiskProfile{}, repository.ErrNotFound
}

func (f *fakeProfileRepo) Upsert(_ context.Context, p models.RiskProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[p.ID] = p
	return nil
}

func (f *fakeProfileRepo) List(context.Context) ([]models.RiskProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RiskProfile
	for _, p := range f.items {
		out = append(out, p)
	}
	return out, nil
}

type fakeClusterRepo struct {
	mu      sync.Mutex
	items   map[string]models.RootCauseCluster
	upserts int
}

func (f *fakeClusterRepo) Upsert(_ context.Context, c models.RootCauseCluster) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[c.ID] = c
	f.upserts++
	return nil
}

func (f *fakeClusterRepo) List(_ context.Context, clientID string) ([]models.RootCauseCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RootCauseCluster
	for _, c := range f.items {
		if clientID == "" || c.ClientID == clientID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeVulnerabilityRepo struct {
	mu    sync.Mutex
	items map[string]models.VulnerabilityFlag
}

func (f *fakeVulnerabilityRepo) Upsert(_ context.Context, fl models.VulnerabilityFlag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[fl.EquipmentID] = fl
	return nil
}

func (f *fakeVulnerabilityRepo) Get(_ context.Context, equipmentID string) (models.VulnerabilityFlag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.items[equipmentID]
	if !ok {
		return models.VulnerabilityFlag{}, repository.ErrNotFound
	}
	return fl, nil
}

func (f *fakeVulnerabilityRepo) List(_ context.Context, clientID string, activeOnly bool) ([]models.VulnerabilityFlag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.VulnerabilityFlag
	for _, fl := range f.items {
		if (clientID == "" || fl.ClientID == clientID) && (!activeOnly || fl.Active) {
			out = append(out, fl)
		}
	}
	return out, nil
}

// memEventRepo keeps every appended event.
type memEventRepo struct {
	mu     sync.Mutex
	events []models.PipelineEvent
}

func (f *memEventRepo) Append(_ context.Context, e models.PipelineEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *memEventRepo) List(_ context.Context, from, to time.Time, typ, equipmentID string) ([]models.PipelineEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PipelineEvent
	for _, e := range f.events {
		if (typ == "" || e.Type == typ) && (equipmentID == "" || e.EquipmentID == equipmentID) &&
			(from.IsZero() || !e.OccurredAt.Before(from)) && (to.IsZero() || !e.OccurredAt.After(to)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *memEventRepo) ofType(typ string) []models.PipelineEvent {
	out, _ := f.List(context.Background(), time.Time{}, time.Time{}, typ, "")
	return out
}

type staticSettings struct {
	s alerting.Settings
	p notify.Policy
}

func (s staticSettings) Settings() alerting.Settings { return s.s }
func (s staticSettings) Policy() notify.Policy       { return s.p }

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (n *recordingNotifier) Dispatch(a models.Alert, _ notify.Policy) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// harness wires every service over the in-memory repositories with a
// controllable clock.
type harness struct {
	repos       *repository.Repository
	equipment   *fakeEquipmentRepo
	maintenance *fakeMaintenanceRepo
	meas        *fakeMeasurementRepo
	alerts      *fakeAlertRepo
	profiles    *fakeProfileRepo
	clusters    *fakeClusterRepo
	vulns       *fakeVulnerabilityRepo
	events      *memEventRepo
	notifier    *recordingNotifier

	pipeline    *PipelineService
	alertSvc    *AlertService
	equipSvc    *EquipmentService
	vulnSvc     *VulnerabilityService
	correlation *CorrelationService
	profileSvc  *RiskProfileService

	mu  sync.Mutex
	now time.Time
}

var harnessStart = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		equipment:   &fakeEquipmentRepo{items: map[string]models.Equipment{}},
		maintenance: &fakeMaintenanceRepo{},
		meas:        &fakeMeasurementRepo{items: map[string]models.Measurement{}},
		alerts:      &fakeAlertRepo{items: map[string]models.Alert{}},
		profiles:    &fakeProfileRepo{items: map[string]models.RiskProfile{}},
		clusters:    &fakeClusterRepo{items: map[string]models.RootCauseCluster{}},
		vulns:       &fakeVulnerabilityRepo{items: map[string]models.VulnerabilityFlag{}},
		events:      &memEventRepo{},
		notifier:    &recordingNotifier{},
		now:         harnessStart,
	}
	h.repos = &repository.Repository{
		Equipment:     h.equipment,
		Maintenance:   h.maintenance,
		Measurements:  h.meas,
		Alerts:        h.alerts,
		Profiles:      h.profiles,
		Clusters:      h.clusters,
		Vulnerability: h.vulns,
		EventRepo:     h.events,
	}

	log := logger.Wrap(zaptest.NewLogger(t))
	settings := staticSettings{
		s: alerting.DefaultSettings(),
		p: notify.Policy{Channels: []notify.Channel{notify.ChannelNATS}, MinimumSeverity: models.SeverityP4},
	}
	locks := NewKeyedMutex()
	cache := newProfileCache(h.profiles, time.Hour)
	audit := newAuditor(h.events, log)
	deps := Deps{Settings: settings, Notifier: h.notifier, Log: log, Workers: 4}

	h.vulnSvc = NewVulnerabilityService(h.repos, settings, locks, audit, log)
	h.pipeline = NewPipelineService(h.repos, deps, locks, cache, h.vulnSvc, audit)
	h.alertSvc = NewAlertService(h.repos, locks, audit, nil, log)
	h.equipSvc = NewEquipmentService(h.repos, locks, h.vulnSvc, audit)
	h.correlation = NewCorrelationService(h.repos, settings, audit, log)
	h.profileSvc = NewRiskProfileService(h.profiles, cache)

	clock := func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}
	h.vulnSvc.now = clock
	h.pipeline.now = clock
	h.alertSvc.now = clock
	h.equipSvc.now = clock
	h.correlation.now = clock
	h.profileSvc.now = clock
	cache.now = clock

	h.profiles.items["default"] = models.RiskProfile{
		ID:   "default",
		Name: "system default",
		Thresholds: map[string]models.ChannelThreshold{
			"bearing_temperature": {Bound: 80, Tolerance: 10, Direction: models.DirectionUpper, FailureCategory: "bearing_wear"},
			"winding_temperature": {Bound: 120, Tolerance: 10, Direction: models.DirectionUpper, FailureCategory: "overheating"},
			"iron_ppm":            {Bound: 100, Tolerance: 20, Direction: models.DirectionUpper, FailureCategory: "wear_metals"},
		},
	}
	h.addEquipment("MOTOR-001", "acme", "MOTOR")
	return h
}

// addEquipment registers a tracked equipment with a recent maintenance event
// so it starts out not vulnerable.
func (h *harness) addEquipment(id, client, typ string) {
	h.equipment.items[id] = models.Equipment{
		ID: id, ClientID: client, Type: typ, TrackingStatus: models.TrackingOnline, Active: true,
		CreatedAt: harnessStart, UpdatedAt: harnessStart,
	}
	h.maintenance.events = append(h.maintenance.events, models.MaintenanceEvent{
		ID: "mt-" + id, EquipmentID: id, OccurredAt: harnessStart.Add(-7 * 24 * time.Hour), Type: MaintenancePreventive,
	})
}

func (h *harness) setNow(t time.Time) {
	h.mu.Lock()
	h.now = t
	h.mu.Unlock()
}

func thermo(equipmentID string, at time.Time, bearing float64) models.RawPayload {
	return models.RawPayload{
		Kind:        models.SourceThermography,
		EquipmentID: equipmentID,
		TakenAt:     &at,
		Thermography: &models.ThermographyPayload{Points: []models.ThermographyPoint{
			{Name: "bearing_temperature", Temperature: bearing},
		}},
	}
}

func cloneAlert(a models.Alert) models.Alert {
	if a.Data != nil {
		data := make(map[string]any, len(a.Data))
		for k, v := range a.Data {
			data[k] = v
		}
		a.Data = data
	}
	return a
}

func sortNewestFirst(out []models.Alert) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].MeasuredAt.After(out[j].MeasuredAt)
	})
}

func containsState(states []models.AlertState, s models.AlertState) bool {
	for _, v := range states {
		if v == s {
			return true
		}
	}
	return false
}

func containsSeverity(sevs []models.Severity, s models.Severity) bool {
	for _, v := range sevs {
		if v == s {
			return true
		}
	}
	return false
}
