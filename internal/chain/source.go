package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const (
	defaultBackoffInitial = time.Second
	defaultBackoffMax     = 30 * time.Second
	defaultPollInterval   = 4 * time.Second
	maxBatch              = 256
)

// Status values reported through SourceOptions.OnStatus.
const (
	StatusSubscribed = "subscribed"
	StatusRestarting = "restarting"
)

// LogClient is the subset of ethclient.Client the source needs.
type LogClient interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// DialFunc opens a LogClient for an endpoint.
type DialFunc func(ctx context.Context, endpoint string) (LogClient, error)

// BatchFunc receives decoded transfers in chain order.
type BatchFunc func(ctx context.Context, batch []TransferEvent)

// SourceOptions parameterise the event source.
type SourceOptions struct {
	Endpoint       string
	Contract       common.Address
	Topic          common.Hash
	PollInterval   time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Dial           DialFunc
	OnStatus       func(status string)
}

// Source keeps a log subscription alive and delivers decoded transfer batches.
type Source struct {
	opts    SourceOptions
	logger  zerolog.Logger
	backoff *Backoff
}

// NewSource builds a source; zero durations fall back to defaults.
func NewSource(opts SourceOptions, logger zerolog.Logger) *Source {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = defaultBackoffInitial
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	if opts.Topic == (common.Hash{}) {
		opts.Topic = TransferTopic
	}
	if opts.Dial == nil {
		opts.Dial = DialEthereum
	}
	return &Source{
		opts:    opts,
		logger:  logger.With().Str("component", "chain_source").Logger(),
		backoff: NewBackoff(opts.BackoffInitial, opts.BackoffMax),
	}
}

// DialEthereum dials a go-ethereum client.
func DialEthereum(ctx context.Context, endpoint string) (LogClient, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Streaming reports whether the endpoint uses a persistent streaming transport.
func Streaming(endpoint string) bool {
	lower := strings.ToLower(strings.TrimSpace(endpoint))
	return strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://")
}

// Run subscribes and restarts with backoff until ctx is cancelled.
func (s *Source) Run(ctx context.Context, onBatch BatchFunc) error {
	if s.opts.Endpoint == "" {
		return errors.New("chain rpc endpoint not configured")
	}

	transport := "http"
	if Streaming(s.opts.Endpoint) {
		transport = "websocket"
	}
	s.logger.Info().Str("transport", transport).Str("contract", s.opts.Contract.Hex()).Msg("starting transfer watcher")

	for {
		err := s.session(ctx, onBatch)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := s.backoff.Next()
		s.logger.Error().Err(err).Dur("backoff", wait).Msg("transfer watch failed; scheduling restart")
		s.status(StatusRestarting)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		s.logger.Warn().Msg("restarting transfer watch")
	}
}

// session runs one subscription lifetime and always returns a non-nil error
// unless ctx was cancelled. The client is torn down before returning.
func (s *Source) session(ctx context.Context, onBatch BatchFunc) error {
	client, err := s.opts.Dial(ctx, s.opts.Endpoint)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.opts.Endpoint, err)
	}
	defer client.Close()

	if Streaming(s.opts.Endpoint) {
		return s.subscribe(ctx, client, onBatch)
	}
	return s.poll(ctx, client, onBatch)
}

func (s *Source) query() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{s.opts.Contract},
		Topics:    [][]common.Hash{{s.opts.Topic}},
	}
}

func (s *Source) subscribe(ctx context.Context, client LogClient, onBatch BatchFunc) error {
	logs := make(chan types.Log, maxBatch)
	sub, err := client.SubscribeFilterLogs(ctx, s.query(), logs)
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	defer sub.Unsubscribe()

	s.logger.Info().Msg("subscribed to stablecoin Transfer")
	s.status(StatusSubscribed)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				return errors.New("log subscription closed")
			}
			return fmt.Errorf("log subscription: %w", err)
		case first := <-logs:
			batch := []types.Log{first}
		drain:
			for len(batch) < maxBatch {
				select {
				case next := <-logs:
					batch = append(batch, next)
				default:
					break drain
				}
			}
			s.deliver(ctx, batch, onBatch)
		}
	}
}

func (s *Source) poll(ctx context.Context, client LogClient, onBatch BatchFunc) error {
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}
	next := head + 1

	s.logger.Info().Uint64("from_block", next).Dur("interval", s.opts.PollInterval).Msg("polling stablecoin Transfer")
	s.status(StatusSubscribed)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		head, err := client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("block number: %w", err)
		}
		if head < next {
			continue
		}

		q := s.query()
		q.FromBlock = new(big.Int).SetUint64(next)
		q.ToBlock = new(big.Int).SetUint64(head)
		logs, err := client.FilterLogs(ctx, q)
		if err != nil {
			return fmt.Errorf("filter logs %d-%d: %w", next, head, err)
		}
		next = head + 1

		if len(logs) > 0 {
			s.deliver(ctx, logs, onBatch)
		}
	}
}

func (s *Source) deliver(ctx context.Context, logs []types.Log, onBatch BatchFunc) {
	batch := make([]TransferEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := DecodeTransfer(l)
		if err != nil {
			s.logger.Debug().Err(err).Str("tx", l.TxHash.Hex()).Msg("skip undecodable transfer log")
			continue
		}
		batch = append(batch, ev)
	}
	if len(batch) == 0 {
		return
	}
	onBatch(ctx, batch)
}

func (s *Source) status(status string) {
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(status)
	}
}

var _ LogClient = (*ethclient.Client)(nil)
