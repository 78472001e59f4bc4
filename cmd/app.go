package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"predictive_alerts/internal/config"
	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/metrics"
	"predictive_alerts/internal/notify"
	"predictive_alerts/internal/repository"
	"predictive_alerts/internal/repository/db"
	"predictive_alerts/internal/service"
)

const smsTimeout = 10 * time.Second

// app holds everything a command needs. close releases it in reverse order.
type app struct {
	loader     *config.Loader
	store      *config.Store
	log        *logger.Logger
	db         *sql.DB
	metrics    *metrics.Metrics
	dispatcher *notify.Dispatcher
	nats       *notify.NATSPublisher
	services   *service.Service
}

func newApp() (*app, error) {
	loader := config.NewLoader(configDir)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	log := logger.Init(cfg.LogLevel, cfg.LogEncoding)

	if cfg.Auth.SigningKey == "" {
		return nil, errors.New("auth.signing_key is required (or ALERTS_AUTH_SIGNING_KEY)")
	}

	conn, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		loader:  loader,
		store:   config.NewStore(cfg),
		log:     log,
		db:      conn,
		metrics: metrics.New(),
	}
	a.dispatcher = notify.NewDispatcher(log, a.metrics, cfg.Notify.RatePerSec, cfg.Notify.Burst, cfg.Notify.Timeout, a.senders(cfg)...)

	a.services = service.NewService(repository.NewRepository(conn), service.Deps{
		Settings:        a.store,
		Notifier:        a.dispatcher,
		Metrics:         a.metrics,
		Log:             log,
		Workers:         cfg.Pipeline.Workers,
		ProfileCacheTTL: cfg.Pipeline.ProfileCacheTTL,
		SigningKey:      cfg.Auth.SigningKey,
		TokenTTL:        cfg.Auth.TokenTTL,
	})
	return a, nil
}

func openDB(cfg *config.Config, log *logger.Logger) (*sql.DB, error) {
	path := cfg.DB.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "alerts.db")
		path = "alerts.db"
	}
	return db.InitDB(path)
}

// senders builds a transport for every configured channel. A transport that
// cannot start is logged and left out; notification is best effort.
func (a *app) senders(cfg *config.Config) []notify.Sender {
	n := cfg.Notify
	var out []notify.Sender
	if n.SMTP.Addr != "" {
		out = append(out, notify.NewEmailSender(notify.SMTPConfig{
			Addr:     n.SMTP.Addr,
			From:     n.SMTP.From,
			Username: n.SMTP.Username,
			Password: n.SMTP.Password,
		}))
	}
	if n.SMS.GatewayURL != "" {
		out = append(out, notify.NewSMSSender(n.SMS.GatewayURL, n.SMS.Token, &http.Client{Timeout: smsTimeout}))
	}
	if n.NATS.URL != "" {
		p, err := notify.NewNATSPublisher(n.NATS.URL, n.NATS.Subject, a.log)
		if err != nil {
			a.log.Errorw("nats_connect_failed", "url", n.NATS.URL, "err", err)
		} else {
			a.nats = p
			out = append(out, p)
		}
	}
	return out
}

// seedProfiles loads the risk profile file into storage. A missing file is
// not an error when the default path is in use.
func (a *app) seedProfiles(ctx context.Context, path string, required bool) (int, error) {
	if path == "" {
		path = a.store.Get().ProfilesFile
	}
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			a.log.Infow("profiles_file_missing", "path", path)
			return 0, nil
		}
		return 0, fmt.Errorf("profiles file: %w", err)
	}
	profiles, err := config.LoadProfiles(path)
	if err != nil {
		return 0, err
	}
	n, err := a.services.SeedProfiles(ctx, profiles)
	if err != nil {
		return n, err
	}
	a.log.Infow("profiles_seeded", "path", path, "count", n)
	return n, nil
}

func (a *app) close() {
	a.dispatcher.Wait()
	if a.nats != nil {
		a.nats.Close()
	}
	if err := a.db.Close(); err != nil {
		a.log.Errorw("failed to close sqlite", "err", err)
	}
	_ = a.log.Sync()
}
