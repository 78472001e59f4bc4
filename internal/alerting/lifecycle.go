package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"predictive_alerts/internal/models"
)

// BaseCriticality derives business impact from severity alone.
func BaseCriticality(s models.Severity) models.Criticality {
	switch s {
	case models.SeverityP1, models.SeverityP2:
		return models.CriticalityHigh
	case models.SeverityP3:
		return models.CriticalityMedium
	default:
		return models.CriticalityLow
	}
}

// Escalate raises c by one level. HIGH stays HIGH.
func Escalate(c models.Criticality) models.Criticality {
	switch c {
	case models.CriticalityLow:
		return models.CriticalityMedium
	default:
		return models.CriticalityHigh
	}
}

// CriticalityFor applies the vulnerability bias to the base criticality.
func CriticalityFor(s models.Severity, vulnerable bool) models.Criticality {
	c := BaseCriticality(s)
	if vulnerable {
		c = Escalate(c)
	}
	return c
}

// NewAlert builds an OPEN alert from a promoted candidate.
func NewAlert(c models.AlertCandidate, eq models.Equipment, th models.ChannelThreshold, reliability float64, vulnerable bool, now time.Time) models.Alert {
	channel := c.PrimaryChannel()
	a := models.Alert{
		ID:              uuid.NewString(),
		EquipmentID:     c.EquipmentID,
		ClientID:        eq.ClientID,
		Type:            string(c.Kind),
		Severity:        c.Severity,
		Message:         alertMessage(c, th),
		State:           models.AlertOpen,
		Criticality:     CriticalityFor(c.Severity, vulnerable),
		Channel:         channel,
		FailureCategory: c.FailureCategory,
		MeasurementID:   c.MeasurementID,
		MeasuredAt:      c.TakenAt,
		Reliability:     reliability,
		CreatedAt:       now,
		UpdatedAt:       now,
		Data: map[string]any{
			"channels":  append([]string(nil), c.Channels...),
			"bound":     th.Bound,
			"tolerance": th.Tolerance,
			"direction": directionOf(th),
			"raw_score": c.RawScore,
			"trending":  c.Trending,
			"readings":  []any{},
		},
	}
	AppendReading(&a, c, reliability, now)
	return a
}

func directionOf(th models.ChannelThreshold) string {
	if th.Direction == "" {
		return string(models.DirectionUpper)
	}
	return string(th.Direction)
}

func alertMessage(c models.AlertCandidate, th models.ChannelThreshold) string {
	channel := c.PrimaryChannel()
	if c.Trending {
		return fmt.Sprintf("%s on %s trending toward limit %.2f: %.2f (%s)",
			channel, c.EquipmentID, th.Bound, c.Values[channel], c.Severity)
	}
	return fmt.Sprintf("%s on %s breached limit %.2f: %.2f, %.1f tolerances past bound (%s)",
		channel, c.EquipmentID, th.Bound, c.Values[channel], c.RawScore, c.Severity)
}

// AppendReading records a candidate's reading in the alert's supporting data.
// A measurement already recorded is not added twice; the result reports
// whether the alert changed.
func AppendReading(a *models.Alert, c models.AlertCandidate, reliability float64, now time.Time) bool {
	if a.Data == nil {
		a.Data = map[string]any{}
	}
	readings, _ := a.Data["readings"].([]any)
	for _, r := range readings {
		if m, ok := r.(map[string]any); ok && c.MeasurementID != "" && m["measurement_id"] == c.MeasurementID {
			return false
		}
	}
	values := make(map[string]any, len(c.Values))
	for k, v := range c.Values {
		values[k] = v
	}
	readings = append(readings, map[string]any{
		"measurement_id": c.MeasurementID,
		"taken_at":       c.TakenAt.UTC().Format(time.RFC3339),
		"severity":       int(c.Severity),
		"values":         values,
		"reliability":    reliability,
	})
	a.Data["readings"] = readings
	a.UpdatedAt = now
	return true
}

// Validate moves an OPEN alert to VALIDATED and recomputes criticality.
func Validate(a *models.Alert, vulnerable bool, now time.Time) error {
	if a.State != models.AlertOpen {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, models.AlertValidated)
	}
	a.State = models.AlertValidated
	a.Validated = true
	a.ValidatedAt = &now
	a.Criticality = CriticalityFor(a.Severity, vulnerable)
	a.UpdatedAt = now
	return nil
}

// MarkFalsePositive confirms an OPEN alert as noise. False positives need no
// further action so the alert is closed in the same step.
func MarkFalsePositive(a *models.Alert, now time.Time) error {
	if a.State != models.AlertOpen {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, models.AlertFalsePositive)
	}
	a.FalsePositive = true
	a.State = models.AlertClosed
	a.ClosedAt = &now
	a.UpdatedAt = now
	return nil
}

// Close ends a VALIDATED alert.
func Close(a *models.Alert, now time.Time) error {
	if a.State != models.AlertValidated {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, models.AlertClosed)
	}
	a.State = models.AlertClosed
	a.ClosedAt = &now
	a.UpdatedAt = now
	return nil
}

// ShouldAutoClose reports whether a live reading of the alert's channel
// returned to NORMAL after the alert was raised.
func ShouldAutoClose(a models.Alert, r models.ChannelReading, takenAt time.Time, backfill bool) bool {
	return !backfill &&
		a.State == models.AlertValidated &&
		r.Name == a.Channel &&
		r.Status == models.StatusNormal &&
		takenAt.After(a.MeasuredAt)
}

// Recriticize recomputes criticality of an unresolved alert after the
// equipment's vulnerability changed. It reports whether anything changed.
func Recriticize(a *models.Alert, vulnerable bool, now time.Time) bool {
	if !a.State.Unresolved() {
		return false
	}
	c := CriticalityFor(a.Severity, vulnerable)
	if c == a.Criticality {
		return false
	}
	a.Criticality = c
	a.UpdatedAt = now
	return true
}
