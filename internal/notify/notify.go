// Package notify delivers promoted alerts to people and to the event bus.
// Delivery is fire-and-forget: failures are logged and counted, never retried,
// and never reach back into alert state.
package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/metrics"
	"predictive_alerts/internal/models"
)

type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelNATS  Channel = "NATS"
)

// Policy says who hears about which alerts. It travels with each batch.
type Policy struct {
	Recipients []string  `json:"recipients"`
	Channels   []Channel `json:"channels"`
	// MinimumSeverity drops alerts less severe than it. Zero sends everything.
	MinimumSeverity models.Severity `json:"minimum_severity"`
}

// Wants reports whether a is severe enough for p.
func (p Policy) Wants(a models.Alert) bool {
	if len(p.Channels) == 0 {
		return false
	}
	return p.MinimumSeverity == 0 || a.Severity.AtLeastAsSevere(p.MinimumSeverity)
}

// Sender delivers one alert over one transport.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, a models.Alert, recipients []string) error
}

type Dispatcher struct {
	senders map[Channel]Sender
	limiter *rate.Limiter
	timeout time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewDispatcher throttles deliveries to perSecond with the given burst.
// A non-positive perSecond disables throttling.
func NewDispatcher(log *logger.Logger, m *metrics.Metrics, perSecond float64, burst int, timeout time.Duration, senders ...Sender) *Dispatcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		senders: make(map[Channel]Sender, len(senders)),
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
		log:     log,
		metrics: m,
	}
	for _, s := range senders {
		d.senders[s.Channel()] = s
	}
	return d
}

// Dispatch returns immediately; delivery runs in the background.
func (d *Dispatcher) Dispatch(a models.Alert, p Policy) {
	if !p.Wants(a) {
		return
	}
	recipients := append([]string(nil), p.Recipients...)
	for _, ch := range p.Channels {
		s, ok := d.senders[ch]
		if !ok {
			d.log.Debugw("notify_channel_unconfigured", "channel", ch, "alert_id", a.ID)
			continue
		}
		d.wg.Add(1)
		go func(s Sender) {
			defer d.wg.Done()
			d.deliver(s, a, recipients)
		}(s)
	}
}

func (d *Dispatcher) deliver(s Sender, a models.Alert, recipients []string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		d.log.Warnw("notification_throttled", "channel", s.Channel(), "alert_id", a.ID, "err", err)
		d.metrics.Notification(string(s.Channel()), "throttled")
		return
	}
	if err := s.Send(ctx, a, recipients); err != nil {
		d.log.Warnw("notification_failed", "channel", s.Channel(), "alert_id", a.ID, "err", err)
		d.metrics.Notification(string(s.Channel()), "failed")
		return
	}
	d.log.Infow("notification_sent", "channel", s.Channel(), "alert_id", a.ID, "recipients", len(recipients))
	d.metrics.Notification(string(s.Channel()), "sent")
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
