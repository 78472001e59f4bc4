package models

import "time"

// Cluster scopes.
const (
	ScopeEquipment     = "equipment"
	ScopeEquipmentType = "equipment_type"
)

// RootCauseCluster groups recurring alerts sharing a subject and channel.
// AlertIDs are weak references: the cluster never drives alert lifecycle.
// A cluster whose group drops below the repetition threshold is kept but
// marked inactive.
type RootCauseCluster struct {
	ID                   string    `json:"id"`
	ClientID             string    `json:"client_id"`
	Scope                string    `json:"scope"`   // equipment | equipment_type
	Subject              string    `json:"subject"` // equipment id or equipment type
	Channel              string    `json:"channel"`
	CauseCategory        string    `json:"cause_category"`
	Recommendation       string    `json:"recommendation"`
	Priority             string    `json:"priority"` // HIGH | MEDIUM
	PredominantSeverity  Severity  `json:"predominant_severity"`
	AlertIDs             []string  `json:"alert_ids"`
	Occurrences          int       `json:"occurrences"`
	FirstOccurrence      time.Time `json:"first_occurrence"`
	LastOccurrence       time.Time `json:"last_occurrence"`
	AverageIntervalHours float64   `json:"average_interval_hours"`
	Active               bool      `json:"active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
