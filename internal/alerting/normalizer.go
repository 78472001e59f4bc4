package alerting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"predictive_alerts/internal/models"
)

var measurementNamespace = uuid.MustParse("6f1b0c1e-4d7a-4a5e-9b8e-2f6a3c5d7e90")

// MeasurementID derives a stable id so a re-delivered reading upserts in place.
func MeasurementID(equipmentID string, kind models.SourceKind, takenAt time.Time) string {
	key := equipmentID + "|" + string(kind) + "|" + takenAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(measurementNamespace, []byte(key)).String()
}

// Normalizer turns source records into Measurements.
type Normalizer struct {
	catalog map[models.SourceKind]map[string]struct{}
	eval    *Evaluator
}

func NewNormalizer(channels map[models.SourceKind][]string, eval *Evaluator) *Normalizer {
	catalog := make(map[models.SourceKind]map[string]struct{}, len(channels))
	for kind, names := range channels {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[channelName(n)] = struct{}{}
		}
		catalog[kind] = set
	}
	return &Normalizer{catalog: catalog, eval: eval}
}

// channelName lowercases and snake-cases a source channel label.
func channelName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// Normalize builds the measurement for p and classifies every channel against
// profile. Dropped channels are reported as ErrUnknownChannel warnings; the
// returned error is non-nil only when the record must be rejected.
func (n *Normalizer) Normalize(p models.RawPayload, profile *models.RiskProfile) (models.Measurement, []error, error) {
	if strings.TrimSpace(p.EquipmentID) == "" {
		return models.Measurement{}, nil, fmt.Errorf("%w: missing equipment reference", ErrMalformedPayload)
	}
	if p.TakenAt == nil || p.TakenAt.IsZero() {
		return models.Measurement{}, nil, fmt.Errorf("%w: missing timestamp", ErrMalformedPayload)
	}
	catalog, ok := n.catalog[p.Kind]
	if !ok {
		return models.Measurement{}, nil, fmt.Errorf("%w: unknown source kind %q", ErrMalformedPayload, p.Kind)
	}

	raw, err := extractChannels(p)
	if err != nil {
		return models.Measurement{}, nil, err
	}

	var warnings []error
	byName := make(map[string]models.ChannelReading, len(raw))
	for _, r := range raw {
		name := r.Name
		if _, ok := catalog[name]; !ok && p.Kind == models.SourceThermography {
			if _, ok := catalog[name+"_temperature"]; ok {
				name += "_temperature"
			}
		}
		if _, ok := catalog[name]; !ok {
			warnings = append(warnings, fmt.Errorf("%w: %s channel %q", ErrUnknownChannel, p.Kind, r.Name))
			continue
		}
		r.Name = name
		if cur, dup := byName[name]; dup && !n.worse(profile, r, cur) {
			continue
		}
		byName[name] = r
	}
	if len(byName) == 0 {
		return models.Measurement{}, warnings, fmt.Errorf("%w: no supported channel", ErrMalformedPayload)
	}

	takenAt := p.TakenAt.UTC()
	m := models.Measurement{
		ID:          MeasurementID(p.EquipmentID, p.Kind, takenAt),
		EquipmentID: p.EquipmentID,
		Kind:        p.Kind,
		TakenAt:     takenAt,
		Channels:    make([]models.ChannelReading, 0, len(byName)),
		Status:      models.StatusNormal,
	}
	for _, r := range byName {
		r.Status = models.StatusNormal
		if profile != nil {
			if th, ok := profile.Thresholds[r.Name]; ok {
				r.Status = n.eval.Status(th, r.Value)
			}
		}
		m.Status = models.MostSevere(m.Status, r.Status)
		m.Channels = append(m.Channels, r)
	}
	sort.Slice(m.Channels, func(i, j int) bool { return m.Channels[i].Name < m.Channels[j].Name })
	return m, warnings, nil
}

// worse reports whether a deviates further than b. Without a threshold the
// larger value wins.
func (n *Normalizer) worse(profile *models.RiskProfile, a, b models.ChannelReading) bool {
	if profile != nil {
		if th, ok := profile.Thresholds[a.Name]; ok {
			return th.Deviation(a.Value) > th.Deviation(b.Value)
		}
	}
	return a.Value > b.Value
}

func extractChannels(p models.RawPayload) ([]models.ChannelReading, error) {
	var out []models.ChannelReading
	switch p.Kind {
	case models.SourceThermography:
		if p.Thermography == nil {
			return nil, fmt.Errorf("%w: thermography record missing", ErrMalformedPayload)
		}
		for _, pt := range p.Thermography.Points {
			out = append(out, models.ChannelReading{Name: channelName(pt.Name), Value: pt.Temperature, Unit: "°C"})
		}
	case models.SourceOilAnalysis:
		if p.Oil == nil {
			return nil, fmt.Errorf("%w: oil analysis record missing", ErrMalformedPayload)
		}
		for _, pr := range p.Oil.Properties {
			out = append(out, models.ChannelReading{Name: channelName(pr.Name), Value: pr.Value, Unit: pr.Unit})
		}
	case models.SourceVibration:
		if p.Vibration == nil {
			return nil, fmt.Errorf("%w: vibration record missing", ErrMalformedPayload)
		}
		for _, rd := range p.Vibration.Readings {
			param := channelName(rd.Param)
			if param == "" {
				param = "velocity"
			}
			out = append(out, models.ChannelReading{Name: param + "_" + channelName(rd.Axis), Value: rd.Value, Unit: rd.Unit})
		}
	}
	return out, nil
}
