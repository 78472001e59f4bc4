package notify

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"predictive_alerts/internal/models"
)

func subject(a models.Alert) string {
	return fmt.Sprintf("[%s/%s] %s %s", a.Severity, a.Criticality, a.EquipmentID, a.Channel)
}

func body(a models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", a.Message)
	fmt.Fprintf(&b, "Equipment:   %s\n", a.EquipmentID)
	fmt.Fprintf(&b, "Source:      %s\n", a.Type)
	fmt.Fprintf(&b, "Severity:    %s\n", a.Severity)
	fmt.Fprintf(&b, "Criticality: %s\n", a.Criticality)
	fmt.Fprintf(&b, "Reliability: %.2f\n", a.Reliability)
	fmt.Fprintf(&b, "Measured at: %s\n", a.MeasuredAt.UTC().Format(time.RFC3339))
	if a.FailureCategory != "" {
		fmt.Fprintf(&b, "Category:    %s\n", a.FailureCategory)
	}
	fmt.Fprintf(&b, "Alert id:    %s\n", a.ID)
	return b.String()
}

const smsMaxRunes = 160

// shortText fits an SMS. It cuts on rune boundaries.
func shortText(a models.Alert) string {
	s := fmt.Sprintf("%s %s %s: %s", a.Severity, a.Criticality, a.EquipmentID, a.Message)
	if utf8.RuneCountInString(s) <= smsMaxRunes {
		return s
	}
	r := []rune(s)
	return string(r[:smsMaxRunes-3]) + "..."
}
