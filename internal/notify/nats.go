package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/models"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher emits every delivered alert as JSON on a subject so other
// systems can follow the alert stream. Recipients are ignored.
type NATSPublisher struct {
	conn    publisher
	subject string
	close   func()
}

// NewNATSPublisher connects with unlimited reconnects.
func NewNATSPublisher(url, subject string, log *logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("predictive-alerts"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(10*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warnw("nats_disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %q: %w", url, err)
	}
	return &NATSPublisher{conn: nc, subject: subject, close: nc.Close}, nil
}

func (p *NATSPublisher) Channel() Channel { return ChannelNATS }

func (p *NATSPublisher) Send(ctx context.Context, a models.Alert, _ []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", a.ID, err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.ID, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.close != nil {
		p.close()
	}
}
