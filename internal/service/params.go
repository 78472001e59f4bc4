package service

import (
	"time"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/notify"
)

// BatchRequest is one unit of pipeline work. Settings and Notification are
// snapshotted from configuration when nil.
type BatchRequest struct {
	ClientID     string
	Payloads     []models.RawPayload
	Settings     *alerting.Settings
	Notification *notify.Policy
}

// RecordError ties a rejection or warning to the payload index in the batch.
type RecordError struct {
	Index       int    `json:"index"`
	EquipmentID string `json:"equipment_id,omitempty"`
	Message     string `json:"error"`
	Err         error  `json:"-"`
}

func (e RecordError) Error() string { return e.Message }

func (e RecordError) Unwrap() error { return e.Err }

// BatchResult summarizes what a batch did. Suppressed and merged candidates
// are also written to the event log.
type BatchResult struct {
	Measurements int           `json:"measurements"`
	Backfilled   int           `json:"backfilled"`
	Promoted     []string      `json:"promoted"`
	Merged       int           `json:"merged"`
	Suppressed   int           `json:"suppressed"`
	AutoClosed   []string      `json:"auto_closed"`
	Rejected     []RecordError `json:"rejected"`
	Warnings     []RecordError `json:"warnings"`
}

// LogFilter supports event log filtering by time range, type and equipment.
type LogFilter struct {
	From        time.Time // inclusive; zero means no lower bound
	To          time.Time // inclusive; zero means no upper bound
	Type        string    // "", "PROMOTED", "SUPPRESSED", "MERGED", "BACKFILL", "TRANSITION", ...
	EquipmentID string
}

// ReportQuery selects the alerts of a client created in [From, To].
type ReportQuery struct {
	ClientID string
	From     time.Time
	To       time.Time
}

// Report is the read-only snapshot handed to report renderers.
type Report struct {
	ClientID        string                     `json:"client_id"`
	From            time.Time                  `json:"from"`
	To              time.Time                  `json:"to"`
	GeneratedAt     time.Time                  `json:"generated_at"`
	Alerts          []models.Alert             `json:"alerts"`
	Clusters        []models.RootCauseCluster  `json:"clusters"`
	Vulnerabilities []models.VulnerabilityFlag `json:"vulnerabilities"`
	BySeverity      map[string]int             `json:"by_severity"`
	ByState         map[string]int             `json:"by_state"`
	FalsePositives  int                        `json:"false_positives"`
}

// ClientStatus is the live view streamed to dashboards.
type ClientStatus struct {
	ClientID            string         `json:"client_id"`
	Equipment           int            `json:"equipment"`
	OpenAlerts          int            `json:"open_alerts"`
	ValidatedAlerts     int            `json:"validated_alerts"`
	OpenBySeverity      map[string]int `json:"open_by_severity"`
	VulnerableEquipment []string       `json:"vulnerable_equipment"`
	UpdatedAt           time.Time      `json:"updated_at"`
}
