package alerting

import (
	"predictive_alerts/internal/models"
)

// Evaluator compares measurements against a risk profile.
type Evaluator struct {
	s EvaluatorSettings
}

func NewEvaluator(s EvaluatorSettings) *Evaluator {
	return &Evaluator{s: s}
}

// Status classifies a single value against its threshold.
func (e *Evaluator) Status(th models.ChannelThreshold, value float64) models.Status {
	d := th.Deviation(value)
	switch {
	case d > e.s.Multiples.P2:
		return models.StatusCritical
	case d > 0:
		return models.StatusAlert
	case d > -e.s.WarningBand:
		return models.StatusWarning
	default:
		return models.StatusNormal
	}
}

// Severity maps a positive deviation to P1..P4. It returns false when d is
// not a breach.
func (e *Evaluator) Severity(d float64) (models.Severity, bool) {
	m := e.s.Multiples
	switch {
	case d > m.P1:
		return models.SeverityP1, true
	case d > m.P2:
		return models.SeverityP2, true
	case d > m.P3:
		return models.SeverityP3, true
	case d > 0:
		return models.SeverityP4, true
	}
	return 0, false
}

type breach struct {
	channel  string
	value    float64
	dev      float64
	severity models.Severity
	category string
	trending bool
}

// Evaluate produces zero or more candidates for m. prev holds the status of
// the previous reading of each channel on the same equipment and may be nil.
//
// Breaches sharing a non-empty failure category collapse into one candidate
// carrying the most severe member's severity and the maximum deviation.
func (e *Evaluator) Evaluate(m models.Measurement, profile *models.RiskProfile, prev map[string]models.Status) ([]models.AlertCandidate, error) {
	if profile == nil || len(profile.Thresholds) == 0 {
		return nil, ErrNoApplicableProfile
	}

	var breaches []breach
	for _, ch := range m.Channels {
		th, ok := profile.Thresholds[ch.Name]
		if !ok {
			continue
		}
		d := th.Deviation(ch.Value)
		if sev, ok := e.Severity(d); ok {
			breaches = append(breaches, breach{
				channel: ch.Name, value: ch.Value, dev: d, severity: sev, category: th.FailureCategory,
			})
			continue
		}
		// below bound: only a second consecutive WARNING is worth a candidate
		if e.Status(th, ch.Value) == models.StatusWarning && prev[ch.Name] == models.StatusWarning {
			breaches = append(breaches, breach{
				channel: ch.Name, value: ch.Value, dev: d, severity: models.SeverityP4,
				category: th.FailureCategory, trending: true,
			})
		}
	}
	if len(breaches) == 0 {
		return nil, nil
	}

	out := make([]models.AlertCandidate, 0, len(breaches))
	byCategory := make(map[string]int)
	for _, b := range breaches {
		if b.category != "" {
			if i, ok := byCategory[b.category]; ok {
				mergeBreach(&out[i], b)
				continue
			}
		}
		c := models.AlertCandidate{
			EquipmentID:     m.EquipmentID,
			MeasurementID:   m.ID,
			Kind:            m.Kind,
			TakenAt:         m.TakenAt,
			Channels:        []string{b.channel},
			Values:          map[string]float64{b.channel: b.value},
			FailureCategory: b.category,
			Severity:        b.severity,
			RawScore:        b.dev,
			Trending:        b.trending,
		}
		out = append(out, c)
		if b.category != "" {
			byCategory[b.category] = len(out) - 1
		}
	}
	return out, nil
}

func mergeBreach(c *models.AlertCandidate, b breach) {
	c.Values[b.channel] = b.value
	if b.severity.AtLeastAsSevere(c.Severity) {
		// the most severe member leads: it becomes the primary channel
		if b.severity != c.Severity || b.dev > c.RawScore {
			c.Channels = append([]string{b.channel}, c.Channels...)
		} else {
			c.Channels = append(c.Channels, b.channel)
		}
		c.Severity = b.severity
	} else {
		c.Channels = append(c.Channels, b.channel)
	}
	if b.dev > c.RawScore {
		c.RawScore = b.dev
	}
	c.Trending = c.Trending && b.trending
}
