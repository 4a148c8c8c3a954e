package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"finboard/src/helpers"
	"finboard/src/logger"
	"finboard/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

// Subscription binds one symbol on one provider to its delivery callbacks.
// Many subscriptions share a single provider socket.
type Subscription struct {
	Symbol   string
	Provider string
	OnTrades func(trades []models.MTradeEvent)
	OnError  func(err error)
	OnState  func(connected bool)
}

// -----------------------------------------------------------------------------
// Provider Connection State
// -----------------------------------------------------------------------------

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateOpen
	stateClosed
)

// providerConn is the per-provider connection record. Invariant: at most one
// live or in-flight-connecting socket per provider; a non-nil ready channel
// marks the single outstanding attempt.
type providerConn struct {
	cfg   models.MProviderConfig
	state connState
	conn  *websocket.Conn
	subs  []*Subscription

	attempts      int
	everAttempted bool
	lastErr       error
	cooldown      CooldownGate

	ready          chan struct{} // closed when the current attempt resolves
	gen            int           // socket generation, stale read loops bail out
	reconnectTimer *time.Timer
	writeMu        sync.Mutex
}

// -----------------------------------------------------------------------------
// ConnectionManager
// -----------------------------------------------------------------------------

// ConnectionManager owns one persistent socket per upstream provider and
// multiplexes symbol subscriptions onto it, with reconnect backoff and
// rate-limit cooldown tracking. All lifecycle state lives on the manager
// value; nothing is ambient.
type ConnectionManager struct {
	Logger *logger.Logger

	policy         ReconnectPolicy
	connectTimeout time.Duration
	cooldownPeriod time.Duration

	dialer    *websocket.Dialer
	providers map[string]models.MProviderConfig

	mu    sync.Mutex
	conns map[string]*providerConn
}

// -----------------------------------------------------------------------------

func NewConnectionManager(cfg *models.MConfig, log *logger.Logger) *ConnectionManager {
	rt := cfg.Realtime

	providers := make(map[string]models.MProviderConfig)
	for _, p := range cfg.Providers {
		providers[p.Name] = p
	}

	return &ConnectionManager{
		Logger:         log,
		policy:         PolicyFromConfig(rt),
		connectTimeout: time.Duration(rt.ConnectTimeoutSeconds) * time.Second,
		cooldownPeriod: time.Duration(rt.RateLimitCooldownSecs) * time.Second,
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(rt.ConnectTimeoutSeconds) * time.Second,
		},
		providers: providers,
		conns:     make(map[string]*providerConn),
	}
}

// -----------------------------------------------------------------------------
// Subscribe / Unsubscribe
// -----------------------------------------------------------------------------

// Subscribe registers a subscription and ensures a connection attempt is in
// flight for its provider. The subscription is registered before the attempt
// resolves so it receives the eventual open notification; the call waits for
// resolution bounded by the connect timeout.
func (cm *ConnectionManager) Subscribe(sub *Subscription) error {
	pcfg, ok := cm.providers[sub.Provider]
	if !ok {
		return helpers.NewConfigurationError("unknown provider '%s'", sub.Provider)
	}
	// Detected before any connect attempt; does not consume a reconnect try.
	if pcfg.URL == "" {
		return helpers.NewConfigurationError("provider '%s' has no socket url configured", sub.Provider)
	}
	if pcfg.Token == "" {
		return helpers.NewConfigurationError("provider '%s' has no API token configured", sub.Provider)
	}

	cm.mu.Lock()
	pc := cm.conns[sub.Provider]
	if pc == nil {
		pc = &providerConn{cfg: pcfg, state: stateIdle}
		cm.conns[sub.Provider] = pc
	}
	pc.subs = append(pc.subs, sub)

	if pc.state == stateOpen {
		conn := pc.conn
		cm.mu.Unlock()
		cm.sendControl(pc, conn, "subscribe", sub.Symbol)
		sub.OnState(true)
		return nil
	}

	ready := cm.ensureAttemptLocked(sub.Provider, pc)
	cm.mu.Unlock()

	// Await resolution of the single outstanding attempt.
	select {
	case <-ready:
	case <-time.After(cm.connectTimeout + time.Second):
	}

	cm.mu.Lock()
	err := pc.lastErr
	open := pc.state == stateOpen
	cm.mu.Unlock()

	if open {
		return nil
	}
	return err
}

// -----------------------------------------------------------------------------

// Unsubscribe removes every subscription matching the symbol. Idempotent: an
// unknown symbol is a no-op. When the last subscription goes away the socket
// is closed with a normal-closure code and the provider entry dropped.
func (cm *ConnectionManager) Unsubscribe(symbol, provider string) {
	cm.mu.Lock()
	pc := cm.conns[provider]
	if pc == nil {
		cm.mu.Unlock()
		return
	}

	kept := pc.subs[:0]
	removed := 0
	for _, s := range pc.subs {
		if s.Symbol == symbol {
			removed++
		} else {
			kept = append(kept, s)
		}
	}
	pc.subs = kept

	if removed == 0 {
		cm.mu.Unlock()
		return
	}

	conn := pc.conn
	open := pc.state == stateOpen
	empty := len(pc.subs) == 0
	if empty {
		cm.teardownLocked(provider, pc)
	}
	cm.mu.Unlock()

	if open && !empty {
		cm.sendControl(pc, conn, "unsubscribe", symbol)
	}
	if open && empty {
		cm.closeNormally(pc, conn)
	}
}

// -----------------------------------------------------------------------------
// Connection Lifecycle
// -----------------------------------------------------------------------------

// ensureAttemptLocked guarantees one outstanding attempt and returns its
// ready channel. Caller holds cm.mu.
func (cm *ConnectionManager) ensureAttemptLocked(provider string, pc *providerConn) chan struct{} {
	if pc.ready == nil {
		pc.ready = make(chan struct{})
		go cm.connect(provider)
	}
	return pc.ready
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) connect(provider string) {
	cm.mu.Lock()
	pc := cm.conns[provider]
	if pc == nil {
		cm.mu.Unlock()
		return
	}
	if pc.state == stateOpen {
		cm.resolveReadyLocked(pc)
		cm.mu.Unlock()
		return
	}

	// Rate-limit gate: while cooling down, attempts are rejected outright.
	if remaining := pc.cooldown.Remaining(time.Now()); remaining > 0 {
		pc.lastErr = helpers.NewRateLimitError(
			"provider '%s' is rate limited, retry in %s", provider, remaining.Round(time.Second))
		pc.state = stateClosed
		subs := snapshot(pc.subs)
		err := pc.lastErr
		cm.resolveReadyLocked(pc)
		cm.mu.Unlock()
		cm.notifyError(subs, err)
		return
	}

	pc.state = stateConnecting
	pc.everAttempted = true
	pc.gen++
	gen := pc.gen
	pcfg := pc.cfg
	cm.mu.Unlock()

	conn, resp, err := cm.dialer.Dial(cm.socketURL(pcfg), nil)

	cm.mu.Lock()
	if pc.gen != gen {
		cm.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		pc.state = stateClosed
		pc.lastErr = helpers.WrapTransportError(
			fmt.Sprintf("failed to connect to provider '%s'", provider), err)

		if isRateLimitSignal(err.Error()) || (resp != nil && resp.StatusCode == http.StatusTooManyRequests) {
			pc.cooldown.Trip(cm.cooldownPeriod, time.Now())
			cm.Logger.Warning("Provider %s rate limited, cooling down for %s", provider, cm.cooldownPeriod)
		}

		subs := snapshot(pc.subs)
		connErr := pc.lastErr
		cm.resolveReadyLocked(pc)
		cm.scheduleReconnectLocked(provider, pc)
		cm.mu.Unlock()

		cm.Logger.Error("Connect attempt for %s failed: %v", provider, err)
		cm.notifyError(subs, connErr)
		cm.notifyState(subs, false)
		return
	}

	pc.conn = conn
	pc.state = stateOpen
	pc.lastErr = nil
	subs := snapshot(pc.subs)
	symbols := uniqueSymbols(pc.subs)
	cm.resolveReadyLocked(pc)
	cm.mu.Unlock()

	cm.Logger.Info("Connected to provider %s (%d symbols)", provider, len(symbols))

	// (Re)subscribe everything registered so far over the wire.
	for _, sym := range symbols {
		cm.sendControl(pc, conn, "subscribe", sym)
	}
	cm.notifyState(subs, true)

	go cm.readLoop(provider, pc, conn, gen)
}

// -----------------------------------------------------------------------------

// scheduleReconnectLocked books the next attempt. Exceeding the attempt bound
// is terminal for the provider until explicitly reset. Caller holds cm.mu.
func (cm *ConnectionManager) scheduleReconnectLocked(provider string, pc *providerConn) {
	if len(pc.subs) == 0 {
		return
	}

	if cm.policy.Exhausted(pc.attempts) {
		subs := snapshot(pc.subs)
		err := cm.terminalError(provider, pc)
		pc.lastErr = err
		go func() {
			cm.notifyError(subs, err)
			cm.notifyState(subs, false)
		}()
		cm.Logger.Error("Provider %s: giving up after %d attempts", provider, pc.attempts)
		return
	}

	// An active cooldown overrides the exponential formula.
	delay := pc.cooldown.Remaining(time.Now())
	if delay <= 0 {
		delay = cm.policy.NextDelay(pc.attempts)
	}
	pc.attempts++

	cm.Logger.Info("Provider %s: reconnect attempt %d in %s", provider, pc.attempts, delay.Round(time.Millisecond))
	pc.reconnectTimer = time.AfterFunc(delay, func() {
		cm.startAttempt(provider)
	})
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) startAttempt(provider string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pc := cm.conns[provider]
	if pc == nil || len(pc.subs) == 0 {
		return
	}
	if pc.state == stateOpen || pc.state == stateConnecting {
		return
	}
	cm.ensureAttemptLocked(provider, pc)
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) terminalError(provider string, pc *providerConn) error {
	msg := fmt.Sprintf("provider '%s' unreachable after %d attempts", provider, pc.attempts)
	if len(pc.cfg.Token) > 60 {
		msg += "; the API token looks too long - verify you copied the API key, not a secret or session token"
	}
	return helpers.WrapTransportError(msg, pc.lastErr)
}

// -----------------------------------------------------------------------------
// Read Loop & Frame Routing
// -----------------------------------------------------------------------------

func (cm *ConnectionManager) readLoop(provider string, pc *providerConn, conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			cm.handleSocketClose(provider, gen, err)
			return
		}
		cm.handleFrame(provider, pc, conn, data)
	}
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) handleSocketClose(provider string, gen int, err error) {
	cm.mu.Lock()
	pc := cm.conns[provider]
	if pc == nil || pc.gen != gen {
		cm.mu.Unlock()
		return
	}

	pc.conn = nil
	pc.state = stateClosed
	subs := snapshot(pc.subs)

	// A normal or going-away closure never triggers reconnection.
	normal := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	if !normal && len(pc.subs) > 0 {
		pc.lastErr = helpers.WrapTransportError(
			fmt.Sprintf("connection to provider '%s' lost", provider), err)
		cm.scheduleReconnectLocked(provider, pc)
	}
	cm.mu.Unlock()

	if normal {
		cm.Logger.Info("Provider %s connection closed", provider)
	} else {
		cm.Logger.Warning("Provider %s connection lost: %v", provider, err)
	}
	cm.notifyState(subs, false)
}

// -----------------------------------------------------------------------------

// handleFrame parses one wire frame. Malformed frames are logged and dropped;
// they never take the connection down.
func (cm *ConnectionManager) handleFrame(provider string, pc *providerConn, conn *websocket.Conn, data []byte) {
	var msg models.MWireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		cm.Logger.Warning("Provider %s: dropping malformed frame: %v", provider, err)
		return
	}

	switch msg.Type {
	case "ping":
		cm.writeJSON(pc, conn, models.MWireMessage{Type: "pong"})

	case "trade":
		var trades []models.MWireTrade
		if err := json.Unmarshal(msg.Data, &trades); err != nil {
			cm.Logger.Warning("Provider %s: dropping malformed trade batch: %v", provider, err)
			return
		}
		cm.routeTrades(provider, trades)

	case "error":
		cm.handleErrorFrame(provider, pc, msg.Msg)

	default:
		cm.Logger.Debug("Provider %s: ignoring frame type %q", provider, msg.Type)
	}
}

// -----------------------------------------------------------------------------

// routeTrades fans batched trade entries out to every subscription whose
// symbol matches, preserving wire-arrival order.
func (cm *ConnectionManager) routeTrades(provider string, trades []models.MWireTrade) {
	cm.mu.Lock()
	pc := cm.conns[provider]
	if pc == nil {
		cm.mu.Unlock()
		return
	}
	subs := snapshot(pc.subs)
	cm.mu.Unlock()

	for _, sub := range subs {
		var events []models.MTradeEvent
		for _, t := range trades {
			if t.Symbol != sub.Symbol {
				continue
			}
			events = append(events, models.MTradeEvent{
				Symbol:          t.Symbol,
				Price:           t.Price,
				Volume:          t.Volume,
				TimestampMillis: t.Timestamp,
				Provider:        provider,
			})
		}
		if len(events) > 0 {
			sub.OnTrades(events)
		}
	}
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) handleErrorFrame(provider string, pc *providerConn, msg string) {
	lower := strings.ToLower(msg)

	// Authentication failures are fatal for the provider: disconnect now and
	// report a non-retryable error instead of scheduling reconnection.
	if isAuthSignal(lower) {
		cm.mu.Lock()
		pc.gen++ // stop the current read loop from scheduling a reconnect
		conn := pc.conn
		pc.conn = nil
		pc.state = stateClosed
		guidance := fmt.Sprintf("provider '%s' rejected the API token: %s", provider, msg)
		if len(pc.cfg.Token) > 60 {
			guidance += "; the token looks too long - verify you copied the API key, not a secret or session token"
		}
		pc.lastErr = helpers.NewAuthError("%s", guidance)
		subs := snapshot(pc.subs)
		err := pc.lastErr
		cm.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		cm.Logger.Error("Provider %s: authentication failed: %s", provider, msg)
		cm.notifyError(subs, err)
		cm.notifyState(subs, false)
		return
	}

	if isRateLimitSignal(lower) {
		pc.cooldown.Trip(cm.cooldownPeriod, time.Now())
		cm.Logger.Warning("Provider %s: rate limited (%s), cooling down for %s", provider, msg, cm.cooldownPeriod)
		return
	}

	cm.Logger.Warning("Provider %s: error frame: %s", provider, msg)
}

// -----------------------------------------------------------------------------
// Exposed Operations
// -----------------------------------------------------------------------------

func (cm *ConnectionManager) IsConnected(provider string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pc := cm.conns[provider]
	return pc != nil && pc.state == stateOpen
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) GetSubscribedSymbols(provider string) []string {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pc := cm.conns[provider]
	if pc == nil {
		return nil
	}
	return uniqueSymbols(pc.subs)
}

// -----------------------------------------------------------------------------

// HasAttempted reports whether a connect has ever been tried for the
// provider; the session layer derives "reconnecting" vs "connecting" from it.
func (cm *ConnectionManager) HasAttempted(provider string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pc := cm.conns[provider]
	return pc != nil && pc.everAttempted
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) LastError(provider string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pc := cm.conns[provider]
	if pc == nil {
		return nil
	}
	return pc.lastErr
}

// -----------------------------------------------------------------------------

// ResetReconnectAttempts clears the attempt counter and any rate-limit
// cooldown; the manual recovery path.
func (cm *ConnectionManager) ResetReconnectAttempts(provider string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	pc := cm.conns[provider]
	if pc == nil {
		return
	}
	pc.attempts = 0
	pc.lastErr = nil
	pc.cooldown.Reset()
}

// -----------------------------------------------------------------------------

// ForceReconnect drops the current socket, resets counters and dials again.
func (cm *ConnectionManager) ForceReconnect(provider string) {
	cm.mu.Lock()
	pc := cm.conns[provider]
	if pc == nil {
		cm.mu.Unlock()
		return
	}

	pc.gen++
	conn := pc.conn
	pc.conn = nil
	pc.state = stateClosed
	pc.attempts = 0
	pc.lastErr = nil
	pc.cooldown.Reset()
	if pc.reconnectTimer != nil {
		pc.reconnectTimer.Stop()
		pc.reconnectTimer = nil
	}
	cm.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	cm.startAttempt(provider)
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) DisconnectAll() {
	cm.mu.Lock()
	conns := make(map[string]*providerConn, len(cm.conns))
	for name, pc := range cm.conns {
		conns[name] = pc
		pc.gen++
		if pc.reconnectTimer != nil {
			pc.reconnectTimer.Stop()
			pc.reconnectTimer = nil
		}
	}
	cm.conns = make(map[string]*providerConn)
	cm.mu.Unlock()

	for name, pc := range conns {
		if pc.conn != nil {
			cm.closeNormally(pc, pc.conn)
		}
		cm.notifyState(snapshot(pc.subs), false)
		cm.Logger.Info("Disconnected provider %s", name)
	}
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func (cm *ConnectionManager) socketURL(pcfg models.MProviderConfig) string {
	return pcfg.URL + "?token=" + url.QueryEscape(pcfg.Token)
}

// -----------------------------------------------------------------------------

// teardownLocked stops timers and removes the provider entry. Caller holds
// cm.mu and is responsible for closing any live socket afterwards.
func (cm *ConnectionManager) teardownLocked(provider string, pc *providerConn) {
	pc.gen++
	if pc.reconnectTimer != nil {
		pc.reconnectTimer.Stop()
		pc.reconnectTimer = nil
	}
	pc.state = stateClosed
	delete(cm.conns, provider)
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) resolveReadyLocked(pc *providerConn) {
	if pc.ready != nil {
		close(pc.ready)
		pc.ready = nil
	}
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) sendControl(pc *providerConn, conn *websocket.Conn, frameType, symbol string) {
	cm.writeJSON(pc, conn, models.MControlFrame{Type: frameType, Symbol: symbol})
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) writeJSON(pc *providerConn, conn *websocket.Conn, v interface{}) {
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()

	if err := conn.WriteJSON(v); err != nil {
		cm.Logger.Warning("Write failed: %v", err)
	}
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) closeNormally(pc *providerConn, conn *websocket.Conn) {
	pc.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	pc.writeMu.Unlock()
	conn.Close()
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) notifyError(subs []*Subscription, err error) {
	for _, s := range subs {
		if s.OnError != nil {
			s.OnError(err)
		}
	}
}

// -----------------------------------------------------------------------------

func (cm *ConnectionManager) notifyState(subs []*Subscription, connected bool) {
	for _, s := range subs {
		if s.OnState != nil {
			s.OnState(connected)
		}
	}
}

// -----------------------------------------------------------------------------

func snapshot(subs []*Subscription) []*Subscription {
	out := make([]*Subscription, len(subs))
	copy(out, subs)
	return out
}

// -----------------------------------------------------------------------------

func uniqueSymbols(subs []*Subscription) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, s := range subs {
		if !seen[s.Symbol] {
			seen[s.Symbol] = true
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols
}

// -----------------------------------------------------------------------------

func isAuthSignal(lower string) bool {
	return strings.Contains(lower, "auth") ||
		strings.Contains(lower, "api key") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid token") ||
		strings.Contains(lower, "forbidden")
}

// -----------------------------------------------------------------------------

func isRateLimitSignal(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "429") ||
		strings.Contains(lower, "rate") ||
		strings.Contains(lower, "too many")
}
