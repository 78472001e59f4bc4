package models

import "time"

// SourceKind tags the origin of a measurement.
type SourceKind string

const (
	SourceThermography SourceKind = "THERMOGRAPHY"
	SourceOilAnalysis  SourceKind = "OIL_ANALYSIS"
	SourceVibration    SourceKind = "VIBRATION"
)

// Status is the condition computed for a channel or a whole measurement.
type Status string

const (
	StatusNormal   Status = "NORMAL"
	StatusWarning  Status = "WARNING"
	StatusAlert    Status = "ALERT"
	StatusCritical Status = "CRITICAL"
)

// Rank orders statuses from NORMAL (0) to CRITICAL (3).
func (s Status) Rank() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusAlert:
		return 2
	case StatusCritical:
		return 3
	default:
		return 0
	}
}

// Breaching reports whether the status means the bound was exceeded.
func (s Status) Breaching() bool {
	return s == StatusAlert || s == StatusCritical
}

// MostSevere returns the higher ranked of a and b.
func MostSevere(a, b Status) Status {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ChannelReading is one named numeric value of a measurement.
type ChannelReading struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	Status Status  `json:"status"`
}

// Measurement is the normalized, source-agnostic reading of an equipment.
// Immutable once stored.
type Measurement struct {
	ID          string           `json:"id"`
	EquipmentID string           `json:"equipment_id"`
	Kind        SourceKind       `json:"kind"`
	TakenAt     time.Time        `json:"taken_at"`
	Channels    []ChannelReading `json:"channels"`
	Status      Status           `json:"status"`
}

// Channel returns the reading for name.
func (m Measurement) Channel(name string) (ChannelReading, bool) {
	for _, c := range m.Channels {
		if c.Name == name {
			return c, true
		}
	}
	return ChannelReading{}, false
}

// RawPayload is a source record as delivered by the integration collaborators.
// Exactly one of Thermography, Oil or Vibration is expected, matching Kind.
type RawPayload struct {
	Kind         SourceKind           `json:"kind"`
	EquipmentID  string               `json:"equipment_id"`
	TakenAt      *time.Time           `json:"timestamp"`
	Thermography *ThermographyPayload `json:"thermography,omitempty"`
	Oil          *OilPayload          `json:"oil,omitempty"`
	Vibration    *VibrationPayload    `json:"vibration,omitempty"`
}

// ThermographyPayload is a thermographic inspection with named measurement points.
type ThermographyPayload struct {
	CameraModel        string              `json:"camera_model,omitempty"`
	AmbientTemperature *float64            `json:"ambient_temperature,omitempty"`
	Points             []ThermographyPoint `json:"points"`
}

type ThermographyPoint struct {
	Name        string  `json:"name"`
	Temperature float64 `json:"temperature"`
}

// OilPayload is a lab oil analysis sample.
type OilPayload struct {
	SampleID   string        `json:"sample_id,omitempty"`
	Properties []OilProperty `json:"properties"`
}

type OilProperty struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// VibrationPayload is a set of axis readings taken at one measurement point.
type VibrationPayload struct {
	Point    string             `json:"point,omitempty"`
	Readings []VibrationReading `json:"readings"`
}

type VibrationReading struct {
	Axis  string  `json:"axis"`  // HORIZONTAL | VERTICAL | AXIAL
	Param string  `json:"param"` // velocity | acceleration | displacement
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}
