package alerting

import (
	"fmt"
	"math"
	"sort"
	"time"

	"predictive_alerts/internal/models"
)

// VulnerabilityInput is everything the detector looks at for one equipment.
type VulnerabilityInput struct {
	Equipment       models.Equipment
	LastMaintenance *time.Time
	Alerts          []models.Alert
	// MeasurementTimes are the equipment's reading timestamps, any order.
	MeasurementTimes []time.Time
}

type VulnerabilityDetector struct {
	s VulnerabilitySettings
}

func NewVulnerabilityDetector(s VulnerabilitySettings) *VulnerabilityDetector {
	return &VulnerabilityDetector{s: s}
}

var categoryBase = map[models.VulnerabilityCategory]float64{
	models.VulnNoTracking:        0.6,
	models.VulnStaleTracking:     0.4,
	models.VulnIncompleteHistory: 0.3,
}

// Assess computes the flag. It is a function of its input only, so calling it
// again on unchanged data yields the same flag.
func (d *VulnerabilityDetector) Assess(in VulnerabilityInput, now time.Time) models.VulnerabilityFlag {
	flag := models.VulnerabilityFlag{
		EquipmentID: in.Equipment.ID,
		ClientID:    in.Equipment.ClientID,
		ComputedAt:  now,
	}

	var age time.Duration
	if in.LastMaintenance != nil {
		age = now.Sub(*in.LastMaintenance)
	}
	switch {
	case in.Equipment.TrackingStatus == models.TrackingNone:
		flag.Category = models.VulnNoTracking
		flag.Reason = "maintenance tracking disabled"
	case in.LastMaintenance == nil:
		flag.Category = models.VulnNoTracking
		flag.Reason = "no maintenance event recorded"
	case age > d.s.NoTrackingHorizon:
		flag.Category = models.VulnNoTracking
		flag.Reason = fmt.Sprintf("no maintenance event for %d days", int(age.Hours()/24))
	case age > d.s.StaleHorizon:
		flag.Category = models.VulnStaleTracking
		flag.Reason = fmt.Sprintf("last maintenance event %d days ago", int(age.Hours()/24))
	default:
		if gap, ok := d.largestGap(in, now); ok {
			flag.Category = models.VulnIncompleteHistory
			flag.Reason = fmt.Sprintf("alert references a %d day measurement gap", int(gap.Hours()/24))
		}
	}
	if flag.Category == "" {
		return flag
	}

	flag.Active = true
	score := categoryBase[flag.Category]
	for _, a := range in.Alerts {
		if a.State.Unresolved() && (a.Severity == models.SeverityP1 || a.Severity == models.SeverityP2) {
			score += 0.1
		}
	}
	flag.RiskScore = math.Min(1, math.Round(score*100)/100)
	return flag
}

// largestGap finds the widest gap between an alert's measurement and the
// reading preceding it, among alerts inside the tracking horizon.
func (d *VulnerabilityDetector) largestGap(in VulnerabilityInput, now time.Time) (time.Duration, bool) {
	times := append([]time.Time(nil), in.MeasurementTimes...)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	start := now.Add(-d.s.NoTrackingHorizon)
	var (
		worst time.Duration
		found bool
	)
	for _, a := range in.Alerts {
		if a.FalsePositive || a.CreatedAt.Before(start) || a.MeasuredAt.IsZero() {
			continue
		}
		i := sort.Search(len(times), func(i int) bool { return !times[i].Before(a.MeasuredAt) })
		if i == 0 {
			continue
		}
		gap := a.MeasuredAt.Sub(times[i-1])
		if gap > d.s.MaxMeasurementGap && gap > worst {
			worst, found = gap, true
		}
	}
	return worst, found
}
