package models

import "time"

// TrackingStatus describes how an equipment's maintenance is followed.
type TrackingStatus string

const (
	TrackingOnline  TrackingStatus = "ONLINE"
	TrackingOffline TrackingStatus = "OFFLINE"
	TrackingNone    TrackingStatus = "NONE"
)

// Valid reports whether s is a known tracking status.
func (s TrackingStatus) Valid() bool {
	switch s {
	case TrackingOnline, TrackingOffline, TrackingNone:
		return true
	}
	return false
}

// Equipment is the aggregation root for measurements, alerts and the vulnerability flag.
// ID is the equipment tag and is unique across clients.
type Equipment struct {
	ID             string         `json:"id"`
	ClientID       string         `json:"client_id"`
	Type           string         `json:"type"` // MOTOR | PUMP | COMPRESSOR | ...
	Name           string         `json:"name,omitempty"`
	Location       string         `json:"location,omitempty"`
	InstalledAt    time.Time      `json:"installed_at,omitempty"`
	TrackingStatus TrackingStatus `json:"tracking_status"`
	Active         bool           `json:"active"`
	Vulnerable     bool           `json:"vulnerable"` // written only by the vulnerability detector
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// MaintenanceEvent is a maintenance intervention on an equipment.
type MaintenanceEvent struct {
	ID             string    `json:"id"`
	EquipmentID    string    `json:"equipment_id"`
	OccurredAt     time.Time `json:"occurred_at"`
	Type           string    `json:"type"` // PREVENTIVE | CORRECTIVE | PREDICTIVE | CONDITION_BASED
	Description    string    `json:"description,omitempty"`
	Technician     string    `json:"technician,omitempty"`
	RelatedAlertID string    `json:"related_alert_id,omitempty"`
}
