package models

import (
	"fmt"
	"time"
)

// Severity is the deviation-derived urgency, 1 (P1, most severe) to 4 (P4).
type Severity int

const (
	SeverityP1 Severity = 1
	SeverityP2 Severity = 2
	SeverityP3 Severity = 3
	SeverityP4 Severity = 4
)

func (s Severity) String() string { return fmt.Sprintf("P%d", int(s)) }

// Valid reports whether s is one of P1..P4.
func (s Severity) Valid() bool { return s >= SeverityP1 && s <= SeverityP4 }

// AtLeastAsSevere reports whether s is as severe as o or more.
func (s Severity) AtLeastAsSevere(o Severity) bool { return s <= o }

// ParseSeverity accepts "P1".."P4" or "1".."4".
func ParseSeverity(v string) (Severity, error) {
	switch v {
	case "P1", "p1", "1":
		return SeverityP1, nil
	case "P2", "p2", "2":
		return SeverityP2, nil
	case "P3", "p3", "3":
		return SeverityP3, nil
	case "P4", "p4", "4":
		return SeverityP4, nil
	}
	return 0, fmt.Errorf("unknown severity %q", v)
}

// Criticality is the business-impact classification.
type Criticality string

const (
	CriticalityHigh   Criticality = "HIGH"
	CriticalityMedium Criticality = "MEDIUM"
	CriticalityLow    Criticality = "LOW"
)

// AlertState is the lifecycle state of an alert.
type AlertState string

const (
	AlertOpen          AlertState = "OPEN"
	AlertValidated     AlertState = "VALIDATED"
	AlertFalsePositive AlertState = "FALSE_POSITIVE"
	AlertClosed        AlertState = "CLOSED"
)

// Unresolved reports whether the alert still requires attention.
func (s AlertState) Unresolved() bool {
	return s == AlertOpen || s == AlertValidated
}

// AlertCandidate is produced by the evaluator and consumed by the filter.
// Never persisted.
type AlertCandidate struct {
	EquipmentID     string             `json:"equipment_id"`
	MeasurementID   string             `json:"measurement_id"`
	Kind            SourceKind         `json:"kind"`
	TakenAt         time.Time          `json:"taken_at"`
	Channels        []string           `json:"channels"`
	Values          map[string]float64 `json:"values"`
	FailureCategory string             `json:"failure_category,omitempty"`
	Severity        Severity           `json:"severity"`
	RawScore        float64            `json:"raw_score"` // max deviation in tolerance units
	Trending        bool               `json:"trending,omitempty"`
}

// PrimaryChannel is the channel the candidate is keyed on for dedup and history.
func (c AlertCandidate) PrimaryChannel() string {
	if len(c.Channels) == 0 {
		return ""
	}
	return c.Channels[0]
}

// Alert is the persisted alert. JSON names of the compatibility fields are fixed.
type Alert struct {
	ID              string         `json:"id"`
	EquipmentID     string         `json:"equipamento_id"`
	ClientID        string         `json:"client_id"`
	Type            string         `json:"tipo"`
	Severity        Severity       `json:"nivel_gravidade"`
	Message         string         `json:"mensagem"`
	Data            map[string]any `json:"dados"`
	Validated       bool           `json:"validado"`
	FalsePositive   bool           `json:"falso_positivo"`
	CreatedAt       time.Time      `json:"data_criacao"`
	ValidatedAt     *time.Time     `json:"data_validacao"`
	State           AlertState     `json:"status"`
	Criticality     Criticality    `json:"criticality"`
	Channel         string         `json:"channel"`
	FailureCategory string         `json:"failure_category,omitempty"`
	MeasurementID   string         `json:"measurement_id,omitempty"`
	MeasuredAt      time.Time      `json:"measured_at"`
	Reliability     float64        `json:"reliability"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	ClientID             string
	EquipmentID          string
	Severities           []Severity
	States               []AlertState
	From                 time.Time
	To                   time.Time
	IncludeFalsePositive bool
	Limit                int
	Offset               int
}
