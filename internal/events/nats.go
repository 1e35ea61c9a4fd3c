package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher mirrors room events to out-of-process observers. Delivery is
// fire-and-forget: offline observers get no ordering or delivery guarantee,
// the registry stays the source of truth.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// NopPublisher drops every event. Used when the mirror is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev Event) error { return nil }
func (NopPublisher) Close()                                      {}

// NATSConfig holds connection settings for the event mirror.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
}

// DefaultNATSConfig returns mirror defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "podium.session",
		MaxReconnects: -1,
	}
}

// NATSPublisher publishes events to <prefix>.<code>.<type>. Events without a
// session code go to <prefix>._global.<type>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to NATS with reconnect handling.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	code := ev.Code
	if code == "" {
		code = "_global"
	}
	subject := fmt.Sprintf("%s.%s.%s", p.prefix, code, ev.Type)

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	p.nc.Close()
}
