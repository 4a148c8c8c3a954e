package realtime

import (
	"sync"
	"testing"
	"time"

	"finboard/src/models"

	"github.com/gorilla/websocket"
)

func TestResolveSymbols(t *testing.T) {
	cases := []struct {
		name   string
		widget models.MWidgetConfig
		want   []string
	}{
		{
			"explicit symbol wins",
			models.MWidgetConfig{Symbol: "AAPL", Symbols: []string{"MSFT"}},
			[]string{"AAPL"},
		},
		{
			"symbol list",
			models.MWidgetConfig{Symbols: []string{"AAPL", "MSFT"}},
			[]string{"AAPL", "MSFT"},
		},
		{
			"source url query parameter",
			models.MWidgetConfig{SourceURL: "https://api.example.com/quote?symbol=BINANCE:BTCUSDT&token=x"},
			[]string{"BINANCE:BTCUSDT"},
		},
		{
			"ticker-shaped selected field",
			models.MWidgetConfig{SelectedFields: []string{"price", "TSLA"}},
			[]string{"TSLA"},
		},
		{
			"nothing resolvable",
			models.MWidgetConfig{Title: "empty"},
			nil,
		},
	}

	for _, c := range cases {
		got := ResolveSymbols(c.widget)
		if len(got) != len(c.want) {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("%s: got %v, want %v", c.name, got, c.want)
				break
			}
		}
	}
}

// -----------------------------------------------------------------------------

type pushCollector struct {
	mu   sync.Mutex
	msgs []models.MPushMessage
}

func (p *pushCollector) sink(msg models.MPushMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *pushCollector) firstOfType(msgType string) (models.MPushMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.msgs {
		if m.Type == msgType {
			return m, true
		}
	}
	return models.MPushMessage{}, false
}

// -----------------------------------------------------------------------------

func TestSessionLifecycle(t *testing.T) {
	url := wsTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"type":"trade","data":[{"s":"AAPL","p":190.5,"v":10,"t":1700000000000}]}`))
		echoSubscriptions(conn)
	})

	cfg := managerConfig(url)
	cfg.Realtime.SettleDelayMs = 30
	cfg.Realtime.BarRingCapacity = 10

	cm := NewConnectionManager(cfg, testLogger())
	defer cm.DisconnectAll()

	pushes := &pushCollector{}
	widget := models.MWidgetConfig{ID: "w1", Provider: "test", Symbol: "AAPL"}
	session := NewRealtimeSession(widget, cm, cfg.Realtime, pushes.sink, testLogger())

	if err := session.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if state := session.State(); state != SessionStateConnected {
		t.Errorf("state = %q, want connected", state)
	}

	// The settle timer seals the single-trade bar and the sink sees it
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := pushes.firstOfType("bar"); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	msg, ok := pushes.firstOfType("bar")
	if !ok {
		t.Fatalf("no bar pushed")
	}
	if msg.WidgetID != "w1" || msg.Symbol != "AAPL" {
		t.Errorf("bar push = %+v", msg)
	}
	if msg.Bar == nil || msg.Bar.Open != 190.5 {
		t.Errorf("bar = %+v, want open 190.5", msg.Bar)
	}

	bars := session.Bars("AAPL")
	if len(bars) != 1 {
		t.Errorf("retained bars = %d, want 1", len(bars))
	}

	stats := session.Stats()
	if s, ok := stats["AAPL"]; !ok || s.BarCount != 1 {
		t.Errorf("stats = %+v, want one AAPL bar", stats)
	}

	session.Stop()
	if cm.IsConnected("test") {
		t.Errorf("stop should tear down the only subscription's connection")
	}
}

func TestSessionStartWithoutSymbolsFails(t *testing.T) {
	cfg := managerConfig("ws://127.0.0.1:1/ws")
	cm := NewConnectionManager(cfg, testLogger())

	widget := models.MWidgetConfig{ID: "w1", Provider: "test"}
	session := NewRealtimeSession(widget, cm, cfg.Realtime, nil, testLogger())

	if err := session.Start(); err == nil {
		t.Fatalf("expected error for a widget with no resolvable symbols")
	}
}

func TestSessionStateDerivation(t *testing.T) {
	cfg := managerConfig("ws://127.0.0.1:1/ws")
	cfg.Providers[0].Token = ""

	cm := NewConnectionManager(cfg, testLogger())
	widget := models.MWidgetConfig{ID: "w1", Provider: "test", Symbol: "AAPL"}
	session := NewRealtimeSession(widget, cm, cfg.Realtime, nil, testLogger())

	if state := session.State(); state != SessionStateConnecting {
		t.Errorf("initial state = %q, want connecting", state)
	}

	if err := session.Start(); err == nil {
		t.Fatalf("expected configuration error")
	}
	if state := session.State(); state != SessionStateError {
		t.Errorf("state after failure = %q, want error", state)
	}
	if session.LastError() == nil {
		t.Errorf("session should retain the failure")
	}

	// Retry clears the retained error; with no attempt ever dialed the state
	// derives back to connecting
	session.Retry()
	if state := session.State(); state != SessionStateConnecting {
		t.Errorf("state after retry = %q, want connecting", state)
	}
}
