// Package publish emits assembled flight records to a NATS message bus and
// receives raw telegrams from it.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"shr_parser/internal/extractor"
	"shr_parser/internal/logging"
	"shr_parser/internal/telegram"
)

// EventFlightParsed is the event name of published flight messages.
const EventFlightParsed = "flight.parsed"

// Publisher sends flight records downstream.
type Publisher interface {
	PublishFlights(ctx context.Context, recs []*extractor.Record) (int, error)
	Close() error
}

// FlightMessage is the published payload.
type FlightMessage struct {
	Event       string            `json:"event"`
	PublishedAt time.Time         `json:"published_at"`
	Flight      *extractor.Record `json:"flight"`
}

// EncodeFlight builds the JSON payload for one record.
func EncodeFlight(rec *extractor.Record, now time.Time) ([]byte, error) {
	return json.Marshal(FlightMessage{
		Event:       EventFlightParsed,
		PublishedAt: now.UTC(),
		Flight:      rec,
	})
}

// Nop discards everything. Used when no bus is configured.
type Nop struct{}

func (Nop) PublishFlights(context.Context, []*extractor.Record) (int, error) { return 0, nil }
func (Nop) Close() error { return nil }

// NATSPublisher publishes flights as JSON on a subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	log     *zap.SugaredLogger
}

// ConnectNATS connects to the server at url. Reconnects are unlimited.
func ConnectNATS(url, subject string, log *zap.SugaredLogger) (*NATSPublisher, error) {
	log = logging.OrNop(log)
	nc, err := nats.Connect(url,
		nats.Name("shr-parser"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject, log: log}, nil
}

// PublishFlights publishes every record and flushes. It returns the number
// of records handed to the connection before the first failure.
func (p *NATSPublisher) PublishFlights(ctx context.Context, recs []*extractor.Record) (int, error) {
	now := time.Now()
	sent := 0
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		data, err := EncodeFlight(r, now)
		if err != nil {
			return sent, fmt.Errorf("encode flight %d: %w", r.ID, err)
		}
		if err := p.nc.Publish(p.subject, data); err != nil {
			return sent, fmt.Errorf("publish flight %d: %w", r.ID, err)
		}
		sent++
	}
	if sent == 0 {
		return 0, nil
	}
	if err := p.nc.FlushTimeout(5 * time.Second); err != nil {
		return sent, fmt.Errorf("flush nats: %w", err)
	}
	return sent, nil
}

// SubscribeTelegrams calls fn for every telegram received on subject.
// Messages that do not decode, or carry no SHR text, are logged and dropped.
func (p *NATSPublisher) SubscribeTelegrams(subject string, fn func(*telegram.Telegram)) (*nats.Subscription, error) {
	sub, err := p.nc.Subscribe(subject, func(m *nats.Msg) {
		t, err := telegram.Decode(m.Data)
		if err != nil {
			p.log.Warnw("dropping undecodable telegram", "subject", m.Subject, "error", err)
			return
		}
		if t == nil {
			p.log.Debugw("dropping message without SHR text", "subject", m.Subject)
			return
		}
		fn(t)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
