package models

import "time"

// Pipeline event types recorded in the audit log.
const (
	EventPromoted      = "PROMOTED"
	EventSuppressed    = "SUPPRESSED"
	EventMerged        = "MERGED"
	EventRejected      = "REJECTED"
	EventBackfill      = "BACKFILL"
	EventTransition    = "TRANSITION"
	EventVulnerability = "VULNERABILITY"
	EventCorrelation   = "CORRELATION"
	EventMaintenance   = "MAINTENANCE"
)

// PipelineEvent is a single audit log entry.
type PipelineEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"` // PROMOTED | SUPPRESSED | MERGED | REJECTED | BACKFILL | TRANSITION | ...
	EquipmentID string    `json:"equipment_id,omitempty"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
