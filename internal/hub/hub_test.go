package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/history"
	"tradewatch/internal/trade"
)

type fakeConn struct {
	mu      sync.Mutex
	writes  [][]byte
	pings   int
	closed  bool
	failErr error
}

func (c *fakeConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.writes))
	for _, w := range c.writes {
		var m map[string]any
		if err := json.Unmarshal(w, &m); err != nil {
			t.Fatalf("invalid frame %s: %v", w, err)
		}
		out = append(out, m)
	}
	return out
}

func newHub(store *history.Store) *Hub {
	return New(store, Options{HeartbeatInterval: time.Hour}, zerolog.Nop())
}

func connect(h *Hub) (*Session, *fakeConn) {
	c := &fakeConn{}
	s := NewSession(c, "test")
	h.OnConnect(s)
	return s, c
}

func TestOnConnectSendsSnapshot(t *testing.T) {
	store := history.New(10)
	store.Push(trade.Trade{TxHash: "0x01"})
	store.Push(trade.Trade{TxHash: "0x02"})
	h := newHub(store)

	_, c := connect(h)

	msgs := c.messages(t)
	if len(msgs) != 1 || msgs[0]["type"] != "init_live_trades" {
		t.Fatalf("expected init snapshot, got %v", msgs)
	}
	trades := msgs[0]["trades"].([]any)
	if len(trades) != 2 || trades[0].(map[string]any)["txHash"] != "0x02" {
		t.Fatalf("snapshot should be newest first: %v", trades)
	}
	if h.Len() != 1 {
		t.Fatalf("sessions = %d", h.Len())
	}
}

func TestOnConnectWithEmptyHistorySendsEmptyList(t *testing.T) {
	h := newHub(history.New(10))
	_, c := connect(h)
	msgs := c.messages(t)
	trades, ok := msgs[0]["trades"].([]any)
	if !ok || len(trades) != 0 {
		t.Fatalf("expected empty trades array, got %v", msgs[0])
	}
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	h := newHub(history.New(10))
	_, good1 := connect(h)
	_, bad := connect(h)
	_, good2 := connect(h)
	bad.mu.Lock()
	bad.failErr = errors.New("broken pipe")
	bad.mu.Unlock()

	delivered, total := h.Broadcast(NewTrade(trade.Trade{TxHash: "0xabc", Side: trade.SideBuy}))
	if delivered != 2 || total != 3 {
		t.Fatalf("delivered/total = %d/%d", delivered, total)
	}
	for _, c := range []*fakeConn{good1, good2} {
		msgs := c.messages(t)
		if last := msgs[len(msgs)-1]; last["type"] != "new_trade" {
			t.Fatalf("good session missed broadcast: %v", last)
		}
	}
}

func TestBroadcastSkipsClosedSessions(t *testing.T) {
	h := newHub(history.New(10))
	closedSession, closedConn := connect(h)
	_, open := connect(h)

	_ = closedSession.close()

	delivered, total := h.Broadcast(Notify("watcher", map[string]string{"state": "subscribed"}))
	if delivered != 1 || total != 2 {
		t.Fatalf("delivered/total = %d/%d", delivered, total)
	}
	if len(closedConn.messages(t)) != 1 {
		t.Fatal("closed session should only have its init frame")
	}
	msgs := open.messages(t)
	if msgs[1]["type"] != "notify" || msgs[1]["topic"] != "watcher" {
		t.Fatalf("unexpected notify frame %v", msgs[1])
	}
}

func TestBroadcastWithNoSessions(t *testing.T) {
	h := newHub(history.New(10))
	if d, n := h.Notify("x", nil); d != 0 || n != 0 {
		t.Fatalf("delivered/total = %d/%d", d, n)
	}
}

func TestSweepEvictsAfterTwoMissedProbes(t *testing.T) {
	h := newHub(history.New(10))
	_, silent := connect(h)
	responsive, _ := connect(h)

	if evicted := h.Sweep(); evicted != 0 {
		t.Fatalf("first sweep should only probe, evicted %d", evicted)
	}
	silent.mu.Lock()
	pings := silent.pings
	silent.mu.Unlock()
	if pings != 1 {
		t.Fatalf("silent session pings = %d", pings)
	}

	h.MarkAlive(responsive)

	if evicted := h.Sweep(); evicted != 1 {
		t.Fatalf("second sweep should evict the silent session, evicted %d", evicted)
	}
	if h.Len() != 1 {
		t.Fatalf("sessions = %d", h.Len())
	}
	silent.mu.Lock()
	closed := silent.closed
	silent.mu.Unlock()
	if !closed {
		t.Fatal("evicted session must be closed")
	}

	h.MarkAlive(responsive)
	if evicted := h.Sweep(); evicted != 0 {
		t.Fatalf("responsive session evicted")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHub(history.New(10))
	s, _ := connect(h)
	h.OnDisconnect(s)
	h.OnDisconnect(s)
	h.OnError(s, errors.New("late error"))
	if h.Len() != 0 {
		t.Fatalf("sessions = %d", h.Len())
	}
	if h.SendTo(s, Heartbeat(1)) {
		t.Fatal("send to a removed session should fail")
	}
}

func TestSendToReportsEncodeFailure(t *testing.T) {
	h := newHub(history.New(10))
	s, _ := connect(h)
	if h.SendTo(s, Envelope{Type: "bogus"}) {
		t.Fatal("unknown envelope type must not be sent")
	}
	if h.SendTo(s, Notify("bad", func() {})) {
		t.Fatal("unencodable payload must not be sent")
	}
}

// gatedHistory blocks Recent until released so a broadcast can land while a
// session is registered but has not received its snapshot yet.
type gatedHistory struct {
	entered chan struct{}
	release chan struct{}
	recent  func() []trade.Trade
}

func newGatedHistory(recent func() []trade.Trade) *gatedHistory {
	return &gatedHistory{entered: make(chan struct{}), release: make(chan struct{}), recent: recent}
}

func (g *gatedHistory) Recent() []trade.Trade {
	close(g.entered)
	<-g.release
	return g.recent()
}

func connectGated(t *testing.T, g *gatedHistory, during func(h *Hub)) *fakeConn {
	t.Helper()
	h := New(g, Options{HeartbeatInterval: time.Hour}, zerolog.Nop())
	c := &fakeConn{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.OnConnect(NewSession(c, "test"))
	}()

	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect never asked for the snapshot")
	}
	during(h)
	close(g.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect did not return")
	}
	return c
}

func TestInitPrecedesTradeBroadcastDuringConnect(t *testing.T) {
	g := newGatedHistory(func() []trade.Trade { return nil })
	c := connectGated(t, g, func(h *Hub) {
		delivered, total := h.Broadcast(NewTrade(trade.Trade{TxHash: "0xlate", Trader: "0xa1", Side: trade.SideBuy}))
		if delivered != 1 || total != 1 {
			t.Errorf("delivered/total = %d/%d", delivered, total)
		}
	})

	msgs := c.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("expected init then new_trade, got %v", msgs)
	}
	if msgs[0]["type"] != "init_live_trades" || msgs[1]["type"] != "new_trade" {
		t.Fatalf("init must come first, got %v then %v", msgs[0]["type"], msgs[1]["type"])
	}
	if msgs[1]["trade"].(map[string]any)["txHash"] != "0xlate" {
		t.Fatalf("unexpected queued trade %v", msgs[1])
	}
}

func TestQueuedTradeAlreadyInSnapshotIsNotRepeated(t *testing.T) {
	store := history.New(10)
	late := trade.Trade{TxHash: "0xlate", Trader: "0xa1", Side: trade.SideBuy}
	other := trade.Trade{TxHash: "0xlate", Trader: "0xb2", Side: trade.SideBuy}
	g := newGatedHistory(store.Recent)

	c := connectGated(t, g, func(h *Hub) {
		store.Push(late)
		h.BroadcastTrade(late)
		h.Notify("watcher", map[string]string{"status": "subscribed"})
		h.BroadcastTrade(other)
	})

	msgs := c.messages(t)
	if len(msgs) != 3 {
		t.Fatalf("expected init, notify, new_trade; got %v", msgs)
	}
	if msgs[0]["type"] != "init_live_trades" || len(msgs[0]["trades"].([]any)) != 1 {
		t.Fatalf("snapshot should carry the pushed trade: %v", msgs[0])
	}
	if msgs[1]["type"] != "notify" || msgs[2]["type"] != "new_trade" {
		t.Fatalf("queued frames out of order: %v", msgs)
	}
	if msgs[2]["trade"].(map[string]any)["trader"] != "0xb2" {
		t.Fatalf("only the trade missing from the snapshot should follow: %v", msgs[2])
	}
}

func TestBroadcastAfterConnectIsDirect(t *testing.T) {
	h := newHub(history.New(10))
	_, c := connect(h)
	h.BroadcastTrade(trade.Trade{TxHash: "0x1", Trader: "0xa1", Side: trade.SideSell})
	h.BroadcastTrade(trade.Trade{TxHash: "0x1", Trader: "0xa1", Side: trade.SideSell})

	if msgs := c.messages(t); len(msgs) != 3 {
		t.Fatalf("ready sessions receive every broadcast, got %d frames", len(msgs))
	}
}
