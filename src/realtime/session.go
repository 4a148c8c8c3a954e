package realtime

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"finboard/src/analysis"
	"finboard/src/logger"
	"finboard/src/models"
	"finboard/src/utils"
)

// -----------------------------------------------------------------------------
// Session State
// -----------------------------------------------------------------------------

const (
	SessionStateConnecting   = "connecting"
	SessionStateConnected    = "connected"
	SessionStateReconnecting = "reconnecting"
	SessionStateError        = "error"
)

var (
	symbolParamPattern = regexp.MustCompile(`[?&]symbol=([A-Za-z0-9:.^=-]+)`)
	tickerPattern      = regexp.MustCompile(`^[A-Z]{1,6}([.:][A-Z0-9]{1,10})?$`)
)

// -----------------------------------------------------------------------------
// Realtime Session
// -----------------------------------------------------------------------------

// RealtimeSession binds one widget's symbols to manager subscriptions and one
// aggregator per symbol. All session state lives on the value; the view layer
// reads it through State/Stats/Bars and receives pushes through the sink.
type RealtimeSession struct {
	Widget  models.MWidgetConfig
	Manager *ConnectionManager
	Logger  *logger.Logger

	scheduler *utils.MarketScheduler
	sink      func(msg models.MPushMessage)

	mu          sync.Mutex
	symbols     []string
	aggregators map[string]*SecondBuffer
	lastErr     error
	started     bool

	ringCap     int
	settleDelay time.Duration
}

// -----------------------------------------------------------------------------

// NewRealtimeSession resolves the widget's symbol set and prepares (but does
// not start) the session. A nil sink disables view pushes.
func NewRealtimeSession(widget models.MWidgetConfig, mgr *ConnectionManager,
	rt models.MRealtimeConfig, sink func(models.MPushMessage), log *logger.Logger) *RealtimeSession {

	symbols := ResolveSymbols(widget)

	return &RealtimeSession{
		Widget:      widget,
		Manager:     mgr,
		Logger:      log,
		scheduler:   utils.NewMarketScheduler(symbols, log),
		sink:        sink,
		symbols:     symbols,
		aggregators: make(map[string]*SecondBuffer),
		ringCap:     rt.BarRingCapacity,
		settleDelay: time.Duration(rt.SettleDelayMs) * time.Millisecond,
	}
}

// -----------------------------------------------------------------------------

// ResolveSymbols extracts the widget's symbol set: the explicit symbol wins,
// then the symbol list, then a symbol= query parameter in the source url,
// then any selected field that looks like a ticker.
func ResolveSymbols(widget models.MWidgetConfig) []string {
	if widget.Symbol != "" {
		return []string{widget.Symbol}
	}
	if len(widget.Symbols) > 0 {
		out := make([]string, len(widget.Symbols))
		copy(out, widget.Symbols)
		return out
	}
	if widget.SourceURL != "" {
		if m := symbolParamPattern.FindStringSubmatch(widget.SourceURL); m != nil {
			return []string{m[1]}
		}
	}
	for _, f := range widget.SelectedFields {
		if tickerPattern.MatchString(f) {
			return []string{f}
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Start subscribes every resolved symbol. The first subscription failure is
// returned and retained as the session error; symbols subscribed before the
// failure stay live.
func (rs *RealtimeSession) Start() error {
	rs.mu.Lock()
	if rs.started {
		rs.mu.Unlock()
		return nil
	}
	if len(rs.symbols) == 0 {
		rs.mu.Unlock()
		return fmt.Errorf("widget '%s' resolves to no symbols", rs.Widget.ID)
	}
	rs.started = true
	symbols := rs.symbols
	rs.mu.Unlock()

	for _, symbol := range symbols {
		sym := symbol
		agg := NewSecondBuffer(rs.ringCap, rs.settleDelay, func(bar models.MOHLCVBar) {
			rs.pushBar(sym, bar)
		}, rs.Logger)

		rs.mu.Lock()
		rs.aggregators[sym] = agg
		rs.mu.Unlock()

		sub := &Subscription{
			Symbol:   sym,
			Provider: rs.Widget.Provider,
			OnTrades: func(trades []models.MTradeEvent) {
				for _, t := range trades {
					agg.AddTrade(t)
				}
			},
			OnError: func(err error) {
				rs.mu.Lock()
				rs.lastErr = err
				rs.mu.Unlock()
				rs.pushState()
			},
			OnState: func(connected bool) {
				if connected {
					rs.mu.Lock()
					rs.lastErr = nil
					rs.mu.Unlock()
				}
				rs.pushState()
			},
		}

		if err := rs.Manager.Subscribe(sub); err != nil {
			rs.mu.Lock()
			rs.lastErr = err
			rs.mu.Unlock()
			rs.Logger.Error("Session %s: subscribe %s failed: %v", rs.Widget.ID, sym, err)
			rs.pushState()
			return err
		}
	}

	rs.Logger.Info("Session %s: started (%d symbols)", rs.Widget.ID, len(symbols))
	return nil
}

// -----------------------------------------------------------------------------

// Stop unsubscribes every symbol and flushes pending buckets.
func (rs *RealtimeSession) Stop() {
	rs.mu.Lock()
	if !rs.started {
		rs.mu.Unlock()
		return
	}
	rs.started = false
	symbols := rs.symbols
	aggs := make([]*SecondBuffer, 0, len(rs.aggregators))
	for _, a := range rs.aggregators {
		aggs = append(aggs, a)
	}
	rs.mu.Unlock()

	for _, symbol := range symbols {
		rs.Manager.Unsubscribe(symbol, rs.Widget.Provider)
	}
	for _, a := range aggs {
		a.Stop()
	}
	rs.Logger.Info("Session %s: stopped", rs.Widget.ID)
}

// -----------------------------------------------------------------------------

// State derives the connection state: error wins, then open socket, then
// "reconnecting" once a connect has ever been tried, else "connecting".
// Nothing here is stored; it always reflects the manager's current view.
func (rs *RealtimeSession) State() string {
	rs.mu.Lock()
	err := rs.lastErr
	rs.mu.Unlock()

	if err != nil {
		return SessionStateError
	}
	if rs.Manager.IsConnected(rs.Widget.Provider) {
		return SessionStateConnected
	}
	if rs.Manager.HasAttempted(rs.Widget.Provider) {
		return SessionStateReconnecting
	}
	return SessionStateConnecting
}

// -----------------------------------------------------------------------------

// LastError returns the retained session error, nil when healthy.
func (rs *RealtimeSession) LastError() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.lastErr
}

// -----------------------------------------------------------------------------

// Retry is the manual recovery path: clears the session error, resets the
// provider's attempt counter and cooldown, and dials again.
func (rs *RealtimeSession) Retry() {
	rs.mu.Lock()
	rs.lastErr = nil
	rs.mu.Unlock()

	rs.Manager.ResetReconnectAttempts(rs.Widget.Provider)
	rs.Manager.ForceReconnect(rs.Widget.Provider)
	rs.pushState()
}

// -----------------------------------------------------------------------------

// Bars returns the retained bars for one of the session's symbols.
func (rs *RealtimeSession) Bars(symbol string) []models.MOHLCVBar {
	rs.mu.Lock()
	agg := rs.aggregators[symbol]
	rs.mu.Unlock()

	if agg == nil {
		return nil
	}
	return agg.Bars()
}

// -----------------------------------------------------------------------------

// Symbols returns the resolved symbol set.
func (rs *RealtimeSession) Symbols() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	out := make([]string, len(rs.symbols))
	copy(out, rs.symbols)
	return out
}

// -----------------------------------------------------------------------------

// Stats computes rolling statistics per symbol from the current bar rings.
func (rs *RealtimeSession) Stats() map[string]models.MStreamStats {
	rs.mu.Lock()
	aggs := make(map[string]*SecondBuffer, len(rs.aggregators))
	for sym, a := range rs.aggregators {
		aggs[sym] = a
	}
	rs.mu.Unlock()

	open := rs.scheduler.AnyMarketOpen()
	stats := make(map[string]models.MStreamStats, len(aggs))
	for sym, a := range aggs {
		stats[sym] = analysis.ComputeStreamStats(a.Bars(), open)
	}
	return stats
}

// -----------------------------------------------------------------------------

// ForceFlush flushes every symbol's pending bucket immediately.
func (rs *RealtimeSession) ForceFlush() {
	rs.mu.Lock()
	aggs := make([]*SecondBuffer, 0, len(rs.aggregators))
	for _, a := range rs.aggregators {
		aggs = append(aggs, a)
	}
	rs.mu.Unlock()

	for _, a := range aggs {
		a.ForceFlush()
	}
}

// -----------------------------------------------------------------------------

func (rs *RealtimeSession) pushBar(symbol string, bar models.MOHLCVBar) {
	if rs.sink == nil {
		return
	}
	rs.sink(models.MPushMessage{
		Type:      "bar",
		WidgetID:  rs.Widget.ID,
		Symbol:    symbol,
		Bar:       &bar,
		Timestamp: time.Now().UnixMilli(),
	})
}

// -----------------------------------------------------------------------------

func (rs *RealtimeSession) pushState() {
	if rs.sink == nil {
		return
	}
	rs.sink(models.MPushMessage{
		Type:      "state",
		WidgetID:  rs.Widget.ID,
		State:     rs.State(),
		Timestamp: time.Now().UnixMilli(),
	})
}
