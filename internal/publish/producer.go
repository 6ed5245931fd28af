// Package publish pushes detected trades onto a RabbitMQ topic exchange.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"tradewatch/internal/trade"
)

const dialTimeout = 10 * time.Second

// channel is the subset of *amqp.Channel the producer uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Options configure the producer.
type Options struct {
	URL           string
	Exchange      string
	RoutingPrefix string
}

// EventProducer publishes trades as JSON with routing key "<prefix>.<buy|sell>".
type EventProducer struct {
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  channel
	declared bool
}

// NewEventProducer dials RabbitMQ and opens a channel.
func NewEventProducer(opts Options, logger zerolog.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(opts.URL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	p := newProducer(opts, ch, logger)
	p.conn = conn
	return p, nil
}

func newProducer(opts Options, ch channel, logger zerolog.Logger) *EventProducer {
	if opts.RoutingPrefix == "" {
		opts.RoutingPrefix = "trade"
	}
	return &EventProducer{
		opts:    opts,
		channel: ch,
		logger:  logger.With().Str("component", "amqp_producer").Str("exchange", opts.Exchange).Logger(),
	}
}

// Name implements the correlator sink contract.
func (p *EventProducer) Name() string { return "amqp" }

// RoutingKey returns the routing key for a trade side.
func (p *EventProducer) RoutingKey(side trade.Side) string {
	return p.opts.RoutingPrefix + "." + strings.ToLower(string(side))
}

// HandleTrade publishes t. A failed publish reopens the channel and retries once.
func (p *EventProducer) HandleTrade(ctx context.Context, t trade.Trade) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    t.TxHash,
		Timestamp:    t.DetectedAt,
		Body:         body,
	}
	key := p.RoutingKey(t.Side)

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, key, msg)
	if err == nil {
		return nil
	}

	p.logger.Warn().Err(err).Str("routing_key", key).Msg("publish failed; reopening channel")
	if reopenErr := p.reopen(); reopenErr != nil {
		return fmt.Errorf("publish %s: %w", key, errors.Join(err, reopenErr))
	}
	if err := p.publish(ctx, key, msg); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (p *EventProducer) publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if p.channel == nil {
		return errors.New("amqp channel not open")
	}
	if !p.declared {
		if err := p.channel.ExchangeDeclare(p.opts.Exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange: %w", err)
		}
		p.declared = true
	}
	return p.channel.PublishWithContext(ctx, p.opts.Exchange, key, false, false, msg)
}

func (p *EventProducer) reopen() error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	p.channel = ch
	p.declared = false
	return nil
}

// Close releases channel and connection resources.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// drop stray characters ahead of the scheme
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
