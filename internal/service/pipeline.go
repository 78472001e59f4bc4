package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/metrics"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/notify"
	"predictive_alerts/internal/repository"
)

const defaultWorkers = 8

type PipelineService struct {
	repos    *repository.Repository
	settings SettingsSource
	profiles *profileCache
	locks    *KeyedMutex
	vuln     *VulnerabilityService
	audit    *auditor
	notifier Notifier
	metrics  *metrics.Metrics
	log      *logger.Logger
	workers  int
	now      func() time.Time
}

func NewPipelineService(repos *repository.Repository, deps Deps, locks *KeyedMutex, cache *profileCache, vuln *VulnerabilityService, audit *auditor) *PipelineService {
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &PipelineService{
		repos:    repos,
		settings: deps.Settings,
		profiles: cache,
		locks:    locks,
		vuln:     vuln,
		audit:    audit,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		log:      deps.Log,
		workers:  workers,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// batchRun is the immutable context shared by every equipment of a batch.
type batchRun struct {
	settings   alerting.Settings
	policy     notify.Policy
	now        time.Time
	normalizer *alerting.Normalizer
	evaluator  *alerting.Evaluator
	filter     *alerting.Filter
}

type record struct {
	index   int
	payload models.RawPayload
}

// unit is the work of one equipment inside a batch.
type unit struct {
	equipment models.Equipment
	profile   models.RiskProfile
	records   []record
}

type normalized struct {
	index int
	m     models.Measurement
}

func (r *BatchResult) reject(index int, equipmentID string, err error) {
	r.Rejected = append(r.Rejected, RecordError{Index: index, EquipmentID: equipmentID, Message: err.Error(), Err: err})
}

func (r *BatchResult) warn(index int, equipmentID string, err error) {
	r.Warnings = append(r.Warnings, RecordError{Index: index, EquipmentID: equipmentID, Message: err.Error(), Err: err})
}

func (r *BatchResult) add(o BatchResult) {
	r.Measurements += o.Measurements
	r.Backfilled += o.Backfilled
	r.Promoted = append(r.Promoted, o.Promoted...)
	r.Merged += o.Merged
	r.Suppressed += o.Suppressed
	r.AutoClosed = append(r.AutoClosed, o.AutoClosed...)
	r.Rejected = append(r.Rejected, o.Rejected...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

// ProcessBatch normalizes, evaluates, filters and promotes a batch.
//
// Records of one equipment run in timestamp order under that equipment's
// lock; different equipment run in parallel. Per-record problems land in
// the result. A missing risk profile fails the batch before any work starts.
// On cancellation, alerts already committed stay and the context error is
// returned with the partial result.
func (s *PipelineService) ProcessBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveBatch(time.Since(started)) }()

	run := s.newRun(req)
	var res BatchResult

	groups := make(map[string][]record)
	var order []string
	for i, p := range req.Payloads {
		id := strings.TrimSpace(p.EquipmentID)
		if id == "" {
			res.reject(i, "", fmt.Errorf("%w: missing equipment reference", alerting.ErrMalformedPayload))
			s.metrics.Rejected("malformed")
			continue
		}
		p.EquipmentID = id
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], record{index: i, payload: p})
	}

	units := make([]unit, 0, len(order))
	for _, id := range order {
		eq, err := s.repos.Equipment.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !belongsTo(eq, req.ClientID)) {
			for _, r := range groups[id] {
				res.reject(r.index, id, fmt.Errorf("%w: %s", ErrUnknownEquipment, id))
				s.metrics.Rejected("unknown_equipment")
			}
			continue
		}
		if err != nil {
			return BatchResult{}, fmt.Errorf("load equipment %s: %w", id, err)
		}
		profile, err := s.profiles.get(ctx, eq.ClientID, eq.Type)
		if err != nil {
			s.log.Errorw("batch_profile_missing", "client_id", eq.ClientID, "equipment_type", eq.Type, "err", err)
			return BatchResult{}, err
		}
		units = append(units, unit{equipment: eq, profile: profile, records: groups[id]})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, u := range units {
		u := u
		g.Go(func() error {
			out, err := s.processEquipment(gctx, run, u)
			mu.Lock()
			res.add(out)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()

	sort.Slice(res.Rejected, func(i, j int) bool { return res.Rejected[i].Index < res.Rejected[j].Index })
	sort.Slice(res.Warnings, func(i, j int) bool { return res.Warnings[i].Index < res.Warnings[j].Index })

	s.log.Infow("batch_processed",
		"client_id", req.ClientID,
		"payloads", len(req.Payloads),
		"measurements", res.Measurements,
		"promoted", len(res.Promoted),
		"merged", res.Merged,
		"suppressed", res.Suppressed,
		"rejected", len(res.Rejected),
		"cancelled", err != nil,
	)
	return res, err
}

func (s *PipelineService) newRun(req BatchRequest) *batchRun {
	var settings alerting.Settings
	if req.Settings != nil {
		settings = *req.Settings
	} else {
		settings = s.settings.Settings()
	}
	var policy notify.Policy
	if req.Notification != nil {
		policy = *req.Notification
	} else {
		policy = s.settings.Policy()
	}
	eval := alerting.NewEvaluator(settings.Evaluator)
	return &batchRun{
		settings:   settings,
		policy:     policy,
		now:        s.now(),
		normalizer: alerting.NewNormalizer(settings.Channels, eval),
		evaluator:  eval,
		filter:     alerting.NewFilter(settings.Filter),
	}
}

func belongsTo(eq models.Equipment, clientID string) bool {
	return eq.Active && (clientID == "" || eq.ClientID == clientID)
}

// processEquipment returns an error only when ctx ends. Storage failures
// reject the equipment's remaining records and leave other equipment alone.
func (s *PipelineService) processEquipment(ctx context.Context, run *batchRun, u unit) (BatchResult, error) {
	unlock := s.locks.Lock(u.equipment.ID)
	defer unlock()

	var out BatchResult
	eqID := u.equipment.ID

	batch := make([]normalized, 0, len(u.records))
	for _, r := range u.records {
		m, warnings, err := run.normalizer.Normalize(r.payload, &u.profile)
		for _, w := range warnings {
			out.warn(r.index, eqID, w)
			s.log.Warnw("channel_dropped", "equipment_id", eqID, "index", r.index, "err", w)
		}
		if err != nil {
			out.reject(r.index, eqID, err)
			s.metrics.Rejected("malformed")
			s.audit.record(ctx, models.EventRejected, eqID, err.Error(), run.now, map[string]any{"index": r.index})
			continue
		}
		batch = append(batch, normalized{index: r.index, m: m})
	}
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].m.TakenAt.Before(batch[j].m.TakenAt) })

	fail := func(from int, err error) (BatchResult, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		s.log.Errorw("equipment_unit_failed", "equipment_id", eqID, "err", err)
		for _, n := range batch[from:] {
			out.reject(n.index, eqID, err)
		}
		return out, nil
	}

	// the vulnerability flag may have moved since the batch looked the equipment up
	eq, err := s.repos.Equipment.Get(ctx, eqID)
	if err != nil {
		return fail(0, err)
	}
	latest, err := s.repos.Measurements.Latest(ctx, eqID)
	if err != nil {
		return fail(0, err)
	}

	var (
		promoted []models.Alert
		stopErr  error
	)
	for i, n := range batch {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		backfill := !latest.IsZero() && n.m.TakenAt.Before(latest)
		alerts, err := s.processMeasurement(ctx, run, eq, &u.profile, n, backfill, &out)
		promoted = append(promoted, alerts...)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				stopErr = ctxErr
				break
			}
			s.log.Errorw("equipment_unit_failed", "equipment_id", eqID, "err", err)
			for _, rest := range batch[i:] {
				out.reject(rest.index, eqID, err)
			}
			break
		}
		if n.m.TakenAt.After(latest) {
			latest = n.m.TakenAt
		}
	}

	if len(promoted) > 0 && ctx.Err() == nil {
		if _, err := s.vuln.recompute(ctx, eq, run.now); err != nil {
			s.log.Errorw("vulnerability_recompute_failed", "equipment_id", eqID, "err", err)
		}
	}
	if s.notifier != nil {
		for _, a := range promoted {
			s.notifier.Dispatch(a, run.policy)
		}
	}
	return out, stopErr
}

// processMeasurement stores m and runs it through evaluation, auto-close and
// the filter. It returns the alerts it committed, also on error.
func (s *PipelineService) processMeasurement(ctx context.Context, run *batchRun, eq models.Equipment, profile *models.RiskProfile, n normalized, backfill bool, out *BatchResult) ([]models.Alert, error) {
	m := n.m
	start := m.TakenAt.Add(-run.settings.Filter.LookbackWindow)
	recent, err := s.repos.Measurements.QueryRecent(ctx, eq.ID, "", start)
	if err != nil {
		return nil, err
	}
	history := olderThan(recent, m.TakenAt)
	// the trending rule compares against the previous reading however old it is
	prev, err := s.repos.Measurements.PreviousStatuses(ctx, eq.ID, m.TakenAt)
	if err != nil {
		return nil, err
	}

	if _, err := s.repos.Measurements.Upsert(ctx, m); err != nil {
		return nil, err
	}
	out.Measurements++

	if backfill {
		out.Backfilled++
		s.log.Infow("measurement_backfilled", "equipment_id", eq.ID, "measurement_id", m.ID, "taken_at", m.TakenAt)
		s.audit.record(ctx, models.EventBackfill, eq.ID, "out-of-order measurement evaluated against earlier history",
			run.now, map[string]any{"measurement_id": m.ID, "taken_at": m.TakenAt, "index": n.index})
	} else if err := s.autoClose(ctx, run, eq, m, out); err != nil {
		return nil, err
	}

	candidates, err := run.evaluator.Evaluate(m, profile, prev)
	if err != nil {
		return nil, err
	}

	var promoted []models.Alert
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return promoted, err
		}
		a, err := s.decide(ctx, run, eq, profile, c, history, out)
		if err != nil {
			return promoted, err
		}
		if a != nil {
			promoted = append(promoted, *a)
		}
	}
	return promoted, nil
}

// decide filters one candidate and applies the outcome.
func (s *PipelineService) decide(ctx context.Context, run *batchRun, eq models.Equipment, profile *models.RiskProfile, c models.AlertCandidate, history []models.Measurement, out *BatchResult) (*models.Alert, error) {
	channel := c.PrimaryChannel()
	th := profile.Thresholds[channel]

	open, err := s.repos.Alerts.GetOpen(ctx, eq.ID, channel)
	if err != nil {
		return nil, err
	}
	total, fps, err := s.repos.Alerts.FalsePositiveStats(ctx, eq.ID, channel)
	if err != nil {
		return nil, err
	}
	h := alerting.History{
		Readings:       channelReadings(history, channel),
		OpenAlerts:     open,
		TotalAlerts:    total,
		FalsePositives: fps,
	}

	d := run.filter.Decide(c, th, h, run.now)
	s.metrics.Candidate(string(d.Outcome), d.Reason)
	meta := map[string]any{
		"measurement_id": c.MeasurementID,
		"channels":       c.Channels,
		"severity":       int(c.Severity),
		"raw_score":      c.RawScore,
		"reliability":    d.Reliability,
	}

	switch d.Outcome {
	case alerting.OutcomeSuppressed:
		out.Suppressed++
		meta["reason"] = d.Reason
		s.log.Infow("candidate_suppressed", "equipment_id", eq.ID, "channel", channel,
			"reason", d.Reason, "reliability", d.Reliability, "severity", c.Severity.String())
		s.audit.record(ctx, models.EventSuppressed, eq.ID, "candidate suppressed: "+d.Reason, run.now, meta)
		return nil, nil

	case alerting.OutcomeMerged:
		target, ok := findAlert(open, d.TargetAlertID)
		if !ok {
			return nil, fmt.Errorf("merge target %s vanished", d.TargetAlertID)
		}
		if alerting.AppendReading(&target, c, d.Reliability, run.now) {
			if _, err := s.repos.Alerts.Upsert(ctx, target); err != nil {
				return nil, err
			}
		}
		out.Merged++
		meta["reason"] = d.Reason
		meta["alert_id"] = target.ID
		s.log.Infow("candidate_merged", "equipment_id", eq.ID, "channel", channel,
			"alert_id", target.ID, "reliability", d.Reliability)
		s.audit.record(ctx, models.EventMerged, eq.ID, "candidate merged into "+target.ID, run.now, meta)
		return nil, nil
	}

	a := alerting.NewAlert(c, eq, th, d.Reliability, eq.Vulnerable, run.now)
	if _, err := s.repos.Alerts.Upsert(ctx, a); err != nil {
		return nil, err
	}
	out.Promoted = append(out.Promoted, a.ID)
	s.metrics.AlertPromoted(int(a.Severity))
	meta["alert_id"] = a.ID
	meta["criticality"] = string(a.Criticality)
	s.log.Infow("alert_promoted", "equipment_id", eq.ID, "alert_id", a.ID, "channel", channel,
		"severity", a.Severity.String(), "criticality", a.Criticality, "reliability", d.Reliability)
	s.audit.record(ctx, models.EventPromoted, eq.ID, a.Message, run.now, meta)
	return &a, nil
}

// autoClose ends VALIDATED alerts whose channel reads NORMAL again.
func (s *PipelineService) autoClose(ctx context.Context, run *batchRun, eq models.Equipment, m models.Measurement, out *BatchResult) error {
	open, err := s.repos.Alerts.GetOpen(ctx, eq.ID, "")
	if err != nil {
		return err
	}
	for _, a := range open {
		r, ok := m.Channel(a.Channel)
		if !ok || !alerting.ShouldAutoClose(a, r, m.TakenAt, false) {
			continue
		}
		if err := alerting.Close(&a, run.now); err != nil {
			continue
		}
		if _, err := s.repos.Alerts.Upsert(ctx, a); err != nil {
			return err
		}
		out.AutoClosed = append(out.AutoClosed, a.ID)
		s.metrics.Transition(string(models.AlertClosed), true)
		s.log.Infow("alert_auto_closed", "equipment_id", eq.ID, "alert_id", a.ID, "measurement_id", m.ID)
		s.audit.record(ctx, models.EventTransition, eq.ID, "alert closed: channel back to normal", run.now, map[string]any{
			"alert_id":       a.ID,
			"from":           string(models.AlertValidated),
			"to":             string(models.AlertClosed),
			"auto":           true,
			"measurement_id": m.ID,
		})
	}
	return nil
}

func olderThan(ms []models.Measurement, at time.Time) []models.Measurement {
	out := ms[:0:0]
	for _, m := range ms {
		if m.TakenAt.Before(at) {
			out = append(out, m)
		}
	}
	return out
}

func channelReadings(history []models.Measurement, channel string) []alerting.Reading {
	var out []alerting.Reading
	for _, m := range history {
		if r, ok := m.Channel(channel); ok {
			out = append(out, alerting.Reading{TakenAt: m.TakenAt, Value: r.Value, Status: r.Status})
		}
	}
	return out
}

func findAlert(alerts []models.Alert, id string) (models.Alert, bool) {
	for _, a := range alerts {
		if a.ID == id {
			return a, true
		}
	}
	return models.Alert{}, false
}
