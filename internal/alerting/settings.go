// Package alerting holds the alert decision logic: measurement normalization,
// threshold evaluation, false-alarm filtering, the alert state machine,
// root-cause correlation and vulnerability detection.
//
// Everything here is pure computation over values handed in by the caller.
// Nothing in this package performs I/O or blocks.
package alerting

import (
	"time"

	"predictive_alerts/internal/models"
)

// SeverityMultiples are the tolerance multiples a deviation must exceed
// to reach each severity. Below P3 a breach is P4.
type SeverityMultiples struct {
	P1 float64
	P2 float64
	P3 float64
}

type EvaluatorSettings struct {
	Multiples SeverityMultiples
	// WarningBand is how many tolerances below the bound a reading is WARNING.
	WarningBand float64
}

// ConfidenceWeights weight the reliability factors. They need not sum to 1.
type ConfidenceWeights struct {
	Exceedance  float64
	Consecutive float64
	History     float64
}

type FilterSettings struct {
	LookbackWindow        time.Duration
	DedupWindow           time.Duration
	MinQualifyingReadings int
	NoiseBandMultiplier   float64
	ConfidenceFloor       float64
	Weights               ConfidenceWeights
}

type CorrelatorSettings struct {
	Window              time.Duration
	RepetitionThreshold int
	Scope               string
}

type VulnerabilitySettings struct {
	NoTrackingHorizon time.Duration
	StaleHorizon      time.Duration
	MaxMeasurementGap time.Duration
}

// Settings bundles every tunable of the decision logic. A batch runs with one
// immutable copy so a config reload never changes rules mid-batch.
type Settings struct {
	Channels      map[models.SourceKind][]string
	Evaluator     EvaluatorSettings
	Filter        FilterSettings
	Correlator    CorrelatorSettings
	Vulnerability VulnerabilitySettings
}

// DefaultChannels is the channel catalog per source kind.
var DefaultChannels = map[models.SourceKind][]string{
	models.SourceThermography: {
		"bearing_temperature",
		"winding_temperature",
		"housing_temperature",
		"coupling_temperature",
		"connection_temperature",
		"point_temperature",
	},
	models.SourceOilAnalysis: {
		"viscosity",
		"water_content",
		"iron_ppm",
		"copper_ppm",
		"silicon_ppm",
		"total_acid_number",
		"particle_count",
		"oxidation",
	},
	models.SourceVibration: {
		"velocity_horizontal",
		"velocity_vertical",
		"velocity_axial",
		"acceleration_horizontal",
		"acceleration_vertical",
		"acceleration_axial",
		"displacement_horizontal",
		"displacement_vertical",
		"displacement_axial",
	},
}

// DefaultSettings returns the stock tuning.
func DefaultSettings() Settings {
	channels := make(map[models.SourceKind][]string, len(DefaultChannels))
	for k, v := range DefaultChannels {
		channels[k] = append([]string(nil), v...)
	}
	return Settings{
		Channels: channels,
		Evaluator: EvaluatorSettings{
			Multiples:   SeverityMultiples{P1: 3, P2: 2, P3: 1},
			WarningBand: 1,
		},
		Filter: FilterSettings{
			LookbackWindow:        24 * time.Hour,
			DedupWindow:           24 * time.Hour,
			MinQualifyingReadings: 3,
			NoiseBandMultiplier:   2,
			ConfidenceFloor:       0.3,
			Weights:               ConfidenceWeights{Exceedance: 0.5, Consecutive: 0.25, History: 0.25},
		},
		Correlator: CorrelatorSettings{
			Window:              90 * 24 * time.Hour,
			RepetitionThreshold: 3,
			Scope:               models.ScopeEquipment,
		},
		Vulnerability: VulnerabilitySettings{
			NoTrackingHorizon: 180 * 24 * time.Hour,
			StaleHorizon:      90 * 24 * time.Hour,
			MaxMeasurementGap: 30 * 24 * time.Hour,
		},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
