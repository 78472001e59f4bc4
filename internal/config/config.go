// Package config loads configs/config.yml through viper, keeps the active
// configuration in a Store and hot-reloads it when the file changes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/notify"
)

type Config struct {
	Port         string         `mapstructure:"port"`
	LogLevel     string         `mapstructure:"log_level"`
	LogEncoding  string         `mapstructure:"log_encoding"`
	ProfilesFile string         `mapstructure:"profiles_file"`
	DB           DBConfig       `mapstructure:"db"`
	Auth         AuthConfig     `mapstructure:"auth"`
	Pipeline     PipelineConfig `mapstructure:"pipeline"`
	Notify       NotifyConfig   `mapstructure:"notify"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type PipelineConfig struct {
	Workers           int                 `mapstructure:"workers"`
	ProfileCacheTTL   time.Duration       `mapstructure:"profile_cache_ttl"`
	Channels          map[string][]string `mapstructure:"channels"`
	SeverityMultiples struct {
		P1 float64 `mapstructure:"p1"`
		P2 float64 `mapstructure:"p2"`
		P3 float64 `mapstructure:"p3"`
	} `mapstructure:"severity_multiples"`
	WarningBand   float64             `mapstructure:"warning_band"`
	Filter        FilterConfig        `mapstructure:"filter"`
	Correlator    CorrelatorConfig    `mapstructure:"correlator"`
	Vulnerability VulnerabilityConfig `mapstructure:"vulnerability"`
}

type FilterConfig struct {
	LookbackWindow        time.Duration `mapstructure:"lookback_window"`
	DedupWindow           time.Duration `mapstructure:"dedup_window"`
	MinQualifyingReadings int           `mapstructure:"min_qualifying_readings"`
	NoiseBandMultiplier   float64       `mapstructure:"noise_band_multiplier"`
	ConfidenceFloor       float64       `mapstructure:"confidence_floor"`
	Weights               struct {
		Exceedance  float64 `mapstructure:"exceedance"`
		Consecutive float64 `mapstructure:"consecutive"`
		History     float64 `mapstructure:"history"`
	} `mapstructure:"weights"`
}

type CorrelatorConfig struct {
	Window              time.Duration `mapstructure:"window"`
	RepetitionThreshold int           `mapstructure:"repetition_threshold"`
	Scope               string        `mapstructure:"scope"`
}

type VulnerabilityConfig struct {
	NoTrackingHorizon time.Duration `mapstructure:"no_tracking_horizon"`
	StaleHorizon      time.Duration `mapstructure:"stale_horizon"`
	MaxMeasurementGap time.Duration `mapstructure:"max_measurement_gap"`
}

type NotifyConfig struct {
	Recipients []string      `mapstructure:"recipients"`
	Channels   []string      `mapstructure:"channels"` // EMAIL | SMS | NATS
	MinimumSev int           `mapstructure:"minimum_severity"`
	RatePerSec float64       `mapstructure:"rate_per_second"`
	Burst      int           `mapstructure:"burst"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SMTP       struct {
		Addr     string `mapstructure:"addr"`
		From     string `mapstructure:"from"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"smtp"`
	SMS struct {
		GatewayURL string `mapstructure:"gateway_url"`
		Token      string `mapstructure:"token"`
	} `mapstructure:"sms"`
	NATS struct {
		URL     string `mapstructure:"url"`
		Subject string `mapstructure:"subject"`
	} `mapstructure:"nats"`
}

var (
	errInvalidWorkers    = errors.New("pipeline.workers must be positive")
	errInvalidMultiples  = errors.New("pipeline.severity_multiples must satisfy p1 > p2 > p3 > 0")
	errInvalidFloor      = errors.New("pipeline.filter.confidence_floor must be within [0,1]")
	errInvalidScope      = errors.New("pipeline.correlator.scope must be equipment or equipment_type")
	errInvalidHorizons   = errors.New("pipeline.vulnerability.stale_horizon must be shorter than no_tracking_horizon")
	errUnknownSourceKind = errors.New("pipeline.channels has an unknown source kind")
	errUnknownNotifyChan = errors.New("notify.channels accepts EMAIL, SMS and NATS")
)

func setDefaults(v *viper.Viper) {
	d := alerting.DefaultSettings()
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", logger.InfoLevel)
	v.SetDefault("log_encoding", "console")
	v.SetDefault("profiles_file", "configs/risk_profiles.yaml")
	v.SetDefault("db.path", "alerts.db")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.profile_cache_ttl", 24*time.Hour)
	v.SetDefault("pipeline.severity_multiples.p1", d.Evaluator.Multiples.P1)
	v.SetDefault("pipeline.severity_multiples.p2", d.Evaluator.Multiples.P2)
	v.SetDefault("pipeline.severity_multiples.p3", d.Evaluator.Multiples.P3)
	v.SetDefault("pipeline.warning_band", d.Evaluator.WarningBand)

	v.SetDefault("pipeline.filter.lookback_window", d.Filter.LookbackWindow)
	v.SetDefault("pipeline.filter.dedup_window", d.Filter.DedupWindow)
	v.SetDefault("pipeline.filter.min_qualifying_readings", d.Filter.MinQualifyingReadings)
	v.SetDefault("pipeline.filter.noise_band_multiplier", d.Filter.NoiseBandMultiplier)
	v.SetDefault("pipeline.filter.confidence_floor", d.Filter.ConfidenceFloor)
	v.SetDefault("pipeline.filter.weights.exceedance", d.Filter.Weights.Exceedance)
	v.SetDefault("pipeline.filter.weights.consecutive", d.Filter.Weights.Consecutive)
	v.SetDefault("pipeline.filter.weights.history", d.Filter.Weights.History)

	v.SetDefault("pipeline.correlator.window", d.Correlator.Window)
	v.SetDefault("pipeline.correlator.repetition_threshold", d.Correlator.RepetitionThreshold)
	v.SetDefault("pipeline.correlator.scope", d.Correlator.Scope)

	v.SetDefault("pipeline.vulnerability.no_tracking_horizon", d.Vulnerability.NoTrackingHorizon)
	v.SetDefault("pipeline.vulnerability.stale_horizon", d.Vulnerability.StaleHorizon)
	v.SetDefault("pipeline.vulnerability.max_measurement_gap", d.Vulnerability.MaxMeasurementGap)

	v.SetDefault("notify.channels", []string{string(notify.ChannelEmail), string(notify.ChannelNATS)})
	v.SetDefault("notify.minimum_severity", int(models.SeverityP2))
	v.SetDefault("notify.rate_per_second", 5.0)
	v.SetDefault("notify.burst", 10)
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.nats.subject", "alerts.promoted")
}

// Loader owns the viper instance bound to one config directory.
type Loader struct {
	v *viper.Viper
}

// NewLoader looks for config.yml in dir. Environment variables prefixed with
// ALERTS_ override file values (ALERTS_PIPELINE_WORKERS=4).
func NewLoader(dir string) *Loader {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return &Loader{v: v}
}

// Load reads the file and decodes it. A missing file leaves the defaults.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch hot-reloads the file into store. An invalid file is logged and the
// previous configuration stays active.
func (l *Loader) Watch(store *Store, log *logger.Logger) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			log.Errorw("config_reload_failed", "file", e.Name, "err", err)
			return
		}
		store.Set(cfg)
		log.Infow("config_reloaded", "file", e.Name)
	})
	l.v.WatchConfig()
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.Workers <= 0 {
		return errInvalidWorkers
	}
	m := p.SeverityMultiples
	if !(m.P1 > m.P2 && m.P2 > m.P3 && m.P3 > 0) {
		return errInvalidMultiples
	}
	if p.Filter.ConfidenceFloor < 0 || p.Filter.ConfidenceFloor > 1 {
		return errInvalidFloor
	}
	if p.Correlator.Scope != models.ScopeEquipment && p.Correlator.Scope != models.ScopeEquipmentType {
		return errInvalidScope
	}
	if p.Vulnerability.StaleHorizon >= p.Vulnerability.NoTrackingHorizon {
		return errInvalidHorizons
	}
	for kind := range p.Channels {
		switch models.SourceKind(strings.ToUpper(kind)) {
		case models.SourceThermography, models.SourceOilAnalysis, models.SourceVibration:
		default:
			return fmt.Errorf("%w: %q", errUnknownSourceKind, kind)
		}
	}
	for _, ch := range c.Notify.Channels {
		switch notify.Channel(strings.ToUpper(ch)) {
		case notify.ChannelEmail, notify.ChannelSMS, notify.ChannelNATS:
		default:
			return fmt.Errorf("%w: %q", errUnknownNotifyChan, ch)
		}
	}
	return nil
}

// Policy is the notification policy a batch runs with when the caller sends none.
func (n NotifyConfig) Policy() notify.Policy {
	p := notify.Policy{
		Recipients:      append([]string(nil), n.Recipients...),
		MinimumSeverity: models.Severity(n.MinimumSev),
	}
	for _, ch := range n.Channels {
		p.Channels = append(p.Channels, notify.Channel(strings.ToUpper(ch)))
	}
	return p
}

// Settings converts the pipeline section into the decision-logic tuning.
// Source kinds left out of pipeline.channels keep the built-in catalog.
func (p PipelineConfig) Settings() alerting.Settings {
	s := alerting.DefaultSettings()
	for kind, names := range p.Channels {
		if len(names) > 0 {
			s.Channels[models.SourceKind(strings.ToUpper(kind))] = append([]string(nil), names...)
		}
	}
	s.Evaluator.Multiples = alerting.SeverityMultiples{
		P1: p.SeverityMultiples.P1,
		P2: p.SeverityMultiples.P2,
		P3: p.SeverityMultiples.P3,
	}
	s.Evaluator.WarningBand = p.WarningBand
	s.Filter = alerting.FilterSettings{
		LookbackWindow:        p.Filter.LookbackWindow,
		DedupWindow:           p.Filter.DedupWindow,
		MinQualifyingReadings: p.Filter.MinQualifyingReadings,
		NoiseBandMultiplier:   p.Filter.NoiseBandMultiplier,
		ConfidenceFloor:       p.Filter.ConfidenceFloor,
		Weights: alerting.ConfidenceWeights{
			Exceedance:  p.Filter.Weights.Exceedance,
			Consecutive: p.Filter.Weights.Consecutive,
			History:     p.Filter.Weights.History,
		},
	}
	s.Correlator = alerting.CorrelatorSettings{
		Window:              p.Correlator.Window,
		RepetitionThreshold: p.Correlator.RepetitionThreshold,
		Scope:               p.Correlator.Scope,
	}
	s.Vulnerability = alerting.VulnerabilitySettings{
		NoTrackingHorizon: p.Vulnerability.NoTrackingHorizon,
		StaleHorizon:      p.Vulnerability.StaleHorizon,
		MaxMeasurementGap: p.Vulnerability.MaxMeasurementGap,
	}
	return s
}

// Store holds the active configuration. Readers take a snapshot per unit of
// work so a reload never changes rules halfway through a batch.
type Store struct {
	cur atomic.Pointer[Config]
}

func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.cur.Store(cfg)
	return s
}

func (s *Store) Get() *Config { return s.cur.Load() }

func (s *Store) Set(cfg *Config) { s.cur.Store(cfg) }

// Settings is a shortcut for the current pipeline tuning.
func (s *Store) Settings() alerting.Settings { return s.Get().Pipeline.Settings() }

func (s *Store) Policy() notify.Policy { return s.Get().Notify.Policy() }
