package alerting

// UnclassifiedCategory is used when no grouped alert carries a failure label.
const UnclassifiedCategory = "unclassified"

var recommendations = map[string]string{
	"bearing_wear":    "Inspect bearings for wear and schedule replacement; verify lubrication interval.",
	"lubrication":     "Check lubricant level and quality; resample oil and review the relubrication plan.",
	"contamination":   "Locate the contamination ingress point; replace filters and flush the oil circuit.",
	"oil_degradation": "Oil is degrading; plan an oil change and review operating temperature.",
	"wear_metals":     "Wear metals are rising; correlate with vibration data and inspect gears and bearings.",
	"misalignment":    "Check shaft alignment and coupling condition with laser alignment.",
	"imbalance":       "Balance the rotor and inspect for deposits or missing parts.",
	"looseness":       "Tighten foundation bolts and inspect mounts and bearing housings.",
	"overheating":     "Investigate overload and cooling; clean heat exchangers and check ventilation.",
	"electrical":      "Inspect terminals and connections for loose contacts; run a thermographic re-check after torqueing.",
}

const defaultRecommendation = "Recurring anomaly: schedule an inspection and review the maintenance history of this asset."

// Recommendation returns the static advice for a cause category.
func Recommendation(category string) string {
	if r, ok := recommendations[category]; ok {
		return r
	}
	return defaultRecommendation
}
