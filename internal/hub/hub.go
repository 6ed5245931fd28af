// Package hub fans detected trades out to connected websocket viewers.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradewatch/internal/scheduler"
	"tradewatch/internal/trade"
)

const (
	defaultHeartbeat    = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// Snapshotter supplies the recent trades sent to new viewers.
type Snapshotter interface {
	Recent() []trade.Trade
}

// Options tune the hub.
type Options struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
}

// Hub owns the viewer session registry.
type Hub struct {
	opts     Options
	history  Snapshotter
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// New constructs a hub backed by history for connect snapshots.
func New(history Snapshotter, opts Options, logger zerolog.Logger) *Hub {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeat
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &Hub{
		opts:    opts,
		history: history,
		logger:  logger.With().Str("component", "hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[*Session]struct{}),
	}
}

// Run drives heartbeat sweeps until ctx is cancelled, then closes every session.
func (h *Hub) Run(ctx context.Context) error {
	sched := scheduler.New(scheduler.Options{Name: "heartbeat", Interval: h.opts.HeartbeatInterval}, h.logger)
	err := sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		h.Sweep()
		return nil
	})
	h.closeAll()
	return err
}

// OnConnect registers s and sends it the current trade snapshot. The snapshot
// is always the first frame s sees; trades broadcast while it is being taken
// are queued behind it unless the snapshot already contains them.
func (h *Hub) OnConnect(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	total := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info().Str("session", s.ID).Str("remote", s.Remote).Int("sessions", total).Msg("client connected")

	var trades []trade.Trade
	if h.history != nil {
		trades = h.history.Recent()
	}
	seen := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		seen[t.Key()] = struct{}{}
	}

	data, err := json.Marshal(InitLiveTrades(trades))
	if err != nil {
		h.logger.Error().Err(err).Str("session", s.ID).Msg("encode init snapshot")
		h.remove(s)
		return
	}
	if err := s.start(data, seen); err != nil {
		h.logger.Warn().Err(err).Str("session", s.ID).Msg("send init snapshot failed")
		return
	}
	h.logger.Debug().Str("session", s.ID).Int("trades", len(trades)).Msg("sent init snapshot")
}

// OnDisconnect deregisters s. Safe to call more than once.
func (h *Hub) OnDisconnect(s *Session) {
	if h.remove(s) {
		h.logger.Info().Str("session", s.ID).Int("sessions", h.Len()).Msg("client disconnected")
	}
}

// OnError logs a transport error and deregisters s.
func (h *Hub) OnError(s *Session, err error) {
	h.logger.Warn().Err(err).Str("session", s.ID).Msg("client error")
	h.remove(s)
}

// MarkAlive records a liveness response from s.
func (h *Hub) MarkAlive(s *Session) {
	s.markAlive()
}

// Sweep evicts sessions that missed the previous probe and probes the rest.
// It returns how many sessions were evicted.
func (h *Hub) Sweep() int {
	evicted := 0
	for _, s := range h.snapshot() {
		if !s.probe() {
			h.logger.Warn().Str("session", s.ID).Msg("terminating stale client")
			h.remove(s)
			evicted++
			continue
		}
		if err := s.conn.Ping(); err != nil {
			h.logger.Warn().Err(err).Str("session", s.ID).Msg("ping failed")
		}
	}
	return evicted
}

// SendTo delivers env to one session; failures are logged and reported as false.
func (h *Hub) SendTo(s *Session, env Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(env.Type)).Msg("encode envelope")
		return false
	}
	if err := s.deliver(wireFrame{data: data}); err != nil {
		h.logger.Warn().Err(err).Str("session", s.ID).Str("type", string(env.Type)).Msg("send failed")
		return false
	}
	return true
}

// Broadcast serialises env once and sends it to every open session.
// A failing session does not affect the others.
func (h *Hub) Broadcast(env Envelope) (delivered, total int) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(env.Type)).Msg("encode envelope")
		return 0, h.Len()
	}

	f := wireFrame{data: data}
	if env.Type == TypeNewTrade && env.Trade != nil {
		f.key = env.Trade.Key()
	}

	sessions := h.snapshot()
	total = len(sessions)
	for _, s := range sessions {
		if !s.open() {
			continue
		}
		if err := s.deliver(f); err != nil {
			h.logger.Warn().Err(err).Str("session", s.ID).Msg("broadcast to client failed")
			continue
		}
		delivered++
	}

	event := h.logger.Info().Str("type", string(env.Type)).Int("delivered", delivered).Int("total", total)
	if env.Type == TypeNewTrade && env.Trade != nil {
		t := env.Trade
		event = event.Str("side", string(t.Side)).
			Str("notional", t.Notional).
			Str("exchange", string(t.Exchange)).
			Str("trader", trade.Short(t.Trader)).
			Int("outcomes", t.OutcomeCount).
			Str("tx", trade.Short(t.TxHash))
	}
	event.Msg("broadcast")
	return delivered, total
}

// BroadcastTrade announces a detected trade to all viewers.
func (h *Hub) BroadcastTrade(t trade.Trade) {
	h.Broadcast(NewTrade(t))
}

// Notify broadcasts a notify envelope.
func (h *Hub) Notify(topic string, payload any) (delivered, total int) {
	return h.Broadcast(Notify(topic, payload))
}

// Len reports the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

func (h *Hub) remove(s *Session) bool {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()

	if err := s.close(); err != nil {
		h.logger.Debug().Err(err).Str("session", s.ID).Msg("close session")
	}
	return ok
}

func (h *Hub) closeAll() {
	for _, s := range h.snapshot() {
		h.remove(s)
	}
}
