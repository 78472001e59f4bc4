package alerting

import (
	"math"
	"time"

	"predictive_alerts/internal/models"
)

type Outcome string

const (
	OutcomePromote    Outcome = "promote"
	OutcomeMerged     Outcome = "merged"
	OutcomeSuppressed Outcome = "suppressed"
)

// Suppression and merge reasons.
const (
	ReasonNoise         = "noise"
	ReasonLowConfidence = "low_confidence"
	ReasonDuplicate     = "duplicate"
)

// Reading is one past value of the candidate's primary channel.
type Reading struct {
	TakenAt time.Time
	Value   float64
	Status  models.Status
}

// History is what the filter knows about an equipment+channel pair.
// Readings are ascending and strictly older than the candidate.
type History struct {
	Readings       []Reading
	OpenAlerts     []models.Alert
	TotalAlerts    int
	FalsePositives int
}

// Decision is the filter verdict for one candidate.
type Decision struct {
	Outcome       Outcome `json:"outcome"`
	Reason        string  `json:"reason,omitempty"`
	Reliability   float64 `json:"reliability"`
	TargetAlertID string  `json:"target_alert_id,omitempty"`
}

// Filter scores candidates and suppresses likely false alarms.
type Filter struct {
	s FilterSettings
}

func NewFilter(s FilterSettings) *Filter {
	return &Filter{s: s}
}

// Decide runs noise, confidence and duplicate checks in that order.
func (f *Filter) Decide(c models.AlertCandidate, th models.ChannelThreshold, h History, now time.Time) Decision {
	channel := c.PrimaryChannel()
	value := c.Values[channel]
	window := f.windowed(h.Readings, c.TakenAt)

	rel := f.Reliability(c, th, h)

	if f.isNoise(window, th, value) {
		return Decision{Outcome: OutcomeSuppressed, Reason: ReasonNoise, Reliability: rel}
	}
	if rel < f.s.ConfidenceFloor {
		return Decision{Outcome: OutcomeSuppressed, Reason: ReasonLowConfidence, Reliability: rel}
	}

	if target, ok := f.duplicateOf(c, h.OpenAlerts, now); ok {
		return Decision{Outcome: OutcomeMerged, Reason: ReasonDuplicate, Reliability: rel, TargetAlertID: target.ID}
	}
	return Decision{Outcome: OutcomePromote, Reliability: rel}
}

func (f *Filter) windowed(readings []Reading, at time.Time) []Reading {
	start := at.Add(-f.s.LookbackWindow)
	out := readings[:0:0]
	for _, r := range readings {
		if !r.TakenAt.Before(start) && r.TakenAt.Before(at) {
			out = append(out, r)
		}
	}
	return out
}

func (f *Filter) isNoise(window []Reading, th models.ChannelThreshold, value float64) bool {
	breaching := 1 // the current reading
	for _, r := range window {
		if r.Status.Breaching() {
			breaching++
		}
	}
	if breaching >= f.s.MinQualifyingReadings {
		return false
	}
	tol := th.Tolerance
	if tol <= 0 {
		tol = 1
	}
	band := f.s.NoiseBandMultiplier * tol
	for _, r := range window {
		if r.Status == models.StatusNormal && math.Abs(r.Value-value) <= band {
			return true
		}
	}
	return false
}

// Reliability is the weighted confidence that c reflects a real condition.
func (f *Filter) Reliability(c models.AlertCandidate, th models.ChannelThreshold, h History) float64 {
	w := f.s.Weights
	run := f.consecutive(h.Readings, c.TakenAt)
	if c.Trending {
		// two WARNING readings in a row is the whole trending rule
		run = 1
	}
	sum := w.Exceedance*clamp01((c.RawScore+1)/4) + w.Consecutive*run
	total := w.Exceedance + w.Consecutive
	if h.TotalAlerts > 0 {
		fpRate := float64(h.FalsePositives) / float64(h.TotalAlerts)
		sum += w.History * clamp01(1-fpRate)
		total += w.History
	}
	if total <= 0 {
		return 0
	}
	rel := sum / total
	if th.Weight > 0 {
		rel *= th.Weight
	}
	return clamp01(rel)
}

// consecutive scores the uninterrupted run of WARNING-or-worse readings right
// before the candidate.
func (f *Filter) consecutive(readings []Reading, at time.Time) float64 {
	if f.s.MinQualifyingReadings <= 0 {
		return 1
	}
	run := 0
	for i := len(readings) - 1; i >= 0; i-- {
		r := readings[i]
		if !r.TakenAt.Before(at) {
			continue
		}
		if r.Status.Rank() < models.StatusWarning.Rank() {
			break
		}
		run++
	}
	return clamp01(float64(run) / float64(f.s.MinQualifyingReadings))
}

// duplicateOf returns the newest unresolved alert on the same channel that is
// at least as severe as c and still inside the dedup window.
func (f *Filter) duplicateOf(c models.AlertCandidate, open []models.Alert, now time.Time) (models.Alert, bool) {
	var (
		best  models.Alert
		found bool
	)
	for _, a := range open {
		if !a.State.Unresolved() || a.EquipmentID != c.EquipmentID || a.Channel != c.PrimaryChannel() {
			continue
		}
		if !a.Severity.AtLeastAsSevere(c.Severity) || now.Sub(a.CreatedAt) > f.s.DedupWindow {
			continue
		}
		if !found || a.CreatedAt.After(best.CreatedAt) {
			best, found = a, true
		}
	}
	return best, found
}
