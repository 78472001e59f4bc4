package models

import "time"

// VulnerabilityCategory names the kind of tracking gap.
type VulnerabilityCategory string

const (
	VulnNoTracking        VulnerabilityCategory = "NO_TRACKING"
	VulnStaleTracking     VulnerabilityCategory = "STALE_TRACKING"
	VulnIncompleteHistory VulnerabilityCategory = "INCOMPLETE_HISTORY"
)

// Rank orders categories, NO_TRACKING being the most severe.
func (c VulnerabilityCategory) Rank() int {
	switch c {
	case VulnNoTracking:
		return 3
	case VulnStaleTracking:
		return 2
	case VulnIncompleteHistory:
		return 1
	}
	return 0
}

// VulnerabilityFlag is attached to an equipment. At most one category is active.
type VulnerabilityFlag struct {
	EquipmentID string                `json:"equipment_id"`
	ClientID    string                `json:"client_id"`
	Category    VulnerabilityCategory `json:"category,omitempty"`
	Active      bool                  `json:"active"`
	RiskScore   float64               `json:"risk_score"`
	Reason      string                `json:"reason,omitempty"`
	ComputedAt  time.Time             `json:"computed_at"`
}
