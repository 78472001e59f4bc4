package models

import "time"

// Direction tells which side of the bound is a breach.
type Direction string

const (
	DirectionUpper Direction = "UPPER" // value above bound breaches
	DirectionLower Direction = "LOWER" // value below bound breaches
)

// ChannelThreshold bounds one channel.
type ChannelThreshold struct {
	Bound           float64   `json:"bound" yaml:"bound"`
	Tolerance       float64   `json:"tolerance" yaml:"tolerance"`
	Direction       Direction `json:"direction,omitempty" yaml:"direction"`
	FailureCategory string    `json:"failure_category,omitempty" yaml:"failure_category"`
	Weight          float64   `json:"weight,omitempty" yaml:"weight"`
}

// Deviation returns how far value is past the bound in tolerance units.
// Negative values are inside the bound.
func (t ChannelThreshold) Deviation(value float64) float64 {
	tol := t.Tolerance
	if tol <= 0 {
		tol = 1
	}
	if t.Direction == DirectionLower {
		return (t.Bound - value) / tol
	}
	return (value - t.Bound) / tol
}

// RiskProfile maps channel names to thresholds for a client and, optionally,
// an equipment type. An empty ClientID marks the system default profile.
type RiskProfile struct {
	ID            string                      `json:"id"`
	ClientID      string                      `json:"client_id"`
	EquipmentType string                      `json:"equipment_type,omitempty"`
	Name          string                      `json:"name"`
	Thresholds    map[string]ChannelThreshold `json:"thresholds"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

// IsDefault reports whether p is the system default profile.
func (p RiskProfile) IsDefault() bool { return p.ClientID == "" }
