package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"predictive_alerts/internal/models"
)

// DefaultProfileID identifies the system default risk profile.
const DefaultProfileID = "default"

var (
	errNoDefaultProfile = errors.New("risk profile file has no default profile")
	errBadThreshold     = errors.New("invalid channel threshold")
)

type profileFile struct {
	Default  profileSpec   `yaml:"default"`
	Profiles []profileSpec `yaml:"profiles"`
}

type profileSpec struct {
	ClientID      string                             `yaml:"client_id"`
	EquipmentType string                             `yaml:"equipment_type"`
	Name          string                             `yaml:"name"`
	Thresholds    map[string]models.ChannelThreshold `yaml:"thresholds"`
}

// ProfileID derives the storage id of a profile from its scope.
func ProfileID(clientID, equipmentType string) string {
	if clientID == "" {
		return DefaultProfileID
	}
	if equipmentType == "" {
		return clientID
	}
	return clientID + ":" + strings.ToUpper(equipmentType)
}

// LoadProfiles reads the seed file of risk profiles.
func LoadProfiles(path string) ([]models.RiskProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profiles: %w", err)
	}
	defer f.Close()
	return ParseProfiles(f)
}

// ParseProfiles decodes and validates profiles. The default profile is
// always first in the result.
func ParseProfiles(r io.Reader) ([]models.RiskProfile, error) {
	var pf profileFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	if len(pf.Default.Thresholds) == 0 {
		return nil, errNoDefaultProfile
	}

	pf.Default.ClientID = ""
	pf.Default.EquipmentType = ""
	if pf.Default.Name == "" {
		pf.Default.Name = "system default"
	}
	specs := append([]profileSpec{pf.Default}, pf.Profiles...)

	out := make([]models.RiskProfile, 0, len(specs))
	for i, s := range specs {
		if i > 0 && strings.TrimSpace(s.ClientID) == "" {
			return nil, fmt.Errorf("profile %d: client_id is required", i)
		}
		thresholds := make(map[string]models.ChannelThreshold, len(s.Thresholds))
		for ch, th := range s.Thresholds {
			th, err := NormalizeThreshold(th)
			if err != nil {
				return nil, fmt.Errorf("profile %q channel %q: %w", s.Name, ch, err)
			}
			thresholds[strings.ToLower(strings.TrimSpace(ch))] = th
		}
		out = append(out, models.RiskProfile{
			ID:            ProfileID(s.ClientID, s.EquipmentType),
			ClientID:      s.ClientID,
			EquipmentType: strings.ToUpper(s.EquipmentType),
			Name:          s.Name,
			Thresholds:    thresholds,
		})
	}
	return out, nil
}

// NormalizeThreshold defaults the direction to UPPER and rejects thresholds
// the evaluator cannot use.
func NormalizeThreshold(th models.ChannelThreshold) (models.ChannelThreshold, error) {
	if th.Tolerance <= 0 {
		return th, fmt.Errorf("%w: tolerance must be positive", errBadThreshold)
	}
	switch strings.ToUpper(string(th.Direction)) {
	case "", string(models.DirectionUpper):
		th.Direction = models.DirectionUpper
	case string(models.DirectionLower):
		th.Direction = models.DirectionLower
	default:
		return th, fmt.Errorf("%w: direction %q", errBadThreshold, th.Direction)
	}
	if th.Weight < 0 {
		return th, fmt.Errorf("%w: weight must not be negative", errBadThreshold)
	}
	return th, nil
}
