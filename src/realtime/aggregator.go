package realtime

import (
	"sync"
	"time"

	"finboard/src/logger"
	"finboard/src/models"
	"finboard/src/utils"
)

// -----------------------------------------------------------------------------
// Second Buffer
// -----------------------------------------------------------------------------

// SecondBuffer folds a raw trade stream into one OHLCV bar per second. Trades
// for the current second accumulate in place; the first trade of a new second
// flushes the previous bar before being accepted, so a bar never mixes
// seconds. A settle timer flushes the tail bar once the stream goes quiet.
type SecondBuffer struct {
	Logger *logger.Logger

	mu          sync.Mutex
	second      int64 // unix second of the bucket being built, -1 when empty
	open        float64
	high        float64
	low         float64
	close       float64
	volume      float64
	firstMillis int64
	lastMillis  int64
	tradeCount  int

	settleDelay time.Duration
	settleTimer *time.Timer

	ring *utils.BarRing
	sink func(bar models.MOHLCVBar)
}

// -----------------------------------------------------------------------------

// NewSecondBuffer builds a buffer emitting completed bars to sink and into an
// internal ring of ringCap bars. A nil sink keeps bars ring-only.
func NewSecondBuffer(ringCap int, settleDelay time.Duration, sink func(models.MOHLCVBar), log *logger.Logger) *SecondBuffer {
	return &SecondBuffer{
		Logger:      log,
		second:      -1,
		settleDelay: settleDelay,
		ring:        utils.NewBarRing(ringCap),
		sink:        sink,
	}
}

// -----------------------------------------------------------------------------

// AddTrade folds one trade into the current bucket. Trades are applied in
// arrival order; every trade resets the settle timer.
func (sb *SecondBuffer) AddTrade(trade models.MTradeEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sec := trade.TimestampMillis / 1000

	if sb.second >= 0 && sec != sb.second {
		sb.emitLocked(sb.flushLocked())
	}

	if sb.second < 0 {
		sb.second = sec
		sb.open = trade.Price
		sb.high = trade.Price
		sb.low = trade.Price
		sb.firstMillis = trade.TimestampMillis
	} else {
		if trade.Price > sb.high {
			sb.high = trade.Price
		}
		if trade.Price < sb.low {
			sb.low = trade.Price
		}
	}
	sb.close = trade.Price
	sb.volume += trade.Volume
	sb.lastMillis = trade.TimestampMillis
	sb.tradeCount++

	sb.resetSettleTimerLocked()
}

// -----------------------------------------------------------------------------

// ForceFlush emits the in-progress bar immediately, if any.
func (sb *SecondBuffer) ForceFlush() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.second < 0 {
		return
	}
	sb.emitLocked(sb.flushLocked())
}

// -----------------------------------------------------------------------------

// Bars returns the completed bars currently retained, oldest first.
func (sb *SecondBuffer) Bars() []models.MOHLCVBar {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.ring.GetAll()
}

// -----------------------------------------------------------------------------

// LatestBars returns up to n of the most recent completed bars, oldest first.
func (sb *SecondBuffer) LatestBars(n int) []models.MOHLCVBar {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.ring.GetLatest(n)
}

// -----------------------------------------------------------------------------

// Stop cancels the settle timer and flushes any pending bar.
func (sb *SecondBuffer) Stop() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.settleTimer != nil {
		sb.settleTimer.Stop()
		sb.settleTimer = nil
	}
	if sb.second < 0 {
		return
	}
	sb.emitLocked(sb.flushLocked())
}

// -----------------------------------------------------------------------------

// flushLocked converts the accumulated bucket into a bar and resets the
// bucket. Caller holds sb.mu.
func (sb *SecondBuffer) flushLocked() models.MOHLCVBar {
	bar := models.MOHLCVBar{
		Time:       time.UnixMilli(sb.firstMillis).Format("15:04:05"),
		Timestamp:  sb.lastMillis,
		Open:       sb.open,
		High:       sb.high,
		Low:        sb.low,
		Close:      sb.close,
		Volume:     sb.volume,
		ReceivedAt: time.Now().UnixMilli(),
	}

	sb.second = -1
	sb.open = 0
	sb.high = 0
	sb.low = 0
	sb.close = 0
	sb.volume = 0
	sb.firstMillis = 0
	sb.lastMillis = 0
	sb.tradeCount = 0

	return bar
}

// -----------------------------------------------------------------------------

func (sb *SecondBuffer) resetSettleTimerLocked() {
	if sb.settleDelay <= 0 {
		return
	}
	if sb.settleTimer != nil {
		sb.settleTimer.Stop()
	}
	sb.settleTimer = time.AfterFunc(sb.settleDelay, sb.settleFlush)
}

// -----------------------------------------------------------------------------

// settleFlush fires when no trade has arrived for the settle delay, so a
// quiet stream still surfaces its final bar.
func (sb *SecondBuffer) settleFlush() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.second < 0 {
		return
	}
	sb.emitLocked(sb.flushLocked())
}

// -----------------------------------------------------------------------------

// emitLocked appends the sealed bar to the ring and notifies the sink. Caller
// holds sb.mu, which keeps bars in flush order and readers off a mid-write
// ring; the sink must not call back into the buffer.
func (sb *SecondBuffer) emitLocked(bar models.MOHLCVBar) {
	sb.ring.Append(bar)
	if sb.sink != nil {
		sb.sink(bar)
	}
}
