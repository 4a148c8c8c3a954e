package models

import "encoding/json"

// -----------------------------------------------------------------------------
// Wire Protocol (upstream realtime provider)
// -----------------------------------------------------------------------------

// MWireMessage is the envelope for every JSON text frame on a provider socket.
type MWireMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Msg  string          `json:"msg,omitempty"`
}

// MWireTrade is one batched trade entry inside a "trade" frame.
type MWireTrade struct {
	Symbol     string   `json:"s"`
	Price      float64  `json:"p"`
	Volume     float64  `json:"v"`
	Timestamp  int64    `json:"t"` // milliseconds
	Conditions []string `json:"c,omitempty"`
}

// MControlFrame is a subscribe/unsubscribe control frame.
type MControlFrame struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// -----------------------------------------------------------------------------
// Internal Events
// -----------------------------------------------------------------------------

// MTradeEvent is a routed tick. Ephemeral, never stored beyond aggregation.
type MTradeEvent struct {
	Symbol          string  `json:"symbol"`
	Price           float64 `json:"price"`
	Volume          float64 `json:"volume"`
	TimestampMillis int64   `json:"timestamp"`
	Provider        string  `json:"provider"`
}

// MOHLCVBar is one sealed per-second candle. Immutable once emitted.
type MOHLCVBar struct {
	Time       string  `json:"time"` // HH:MM:SS display label
	Timestamp  int64   `json:"timestamp"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
	ReceivedAt int64   `json:"received_at"`
}

// -----------------------------------------------------------------------------
// Display Surface
// -----------------------------------------------------------------------------

// MStreamStats are rolling-window statistics over the current bar ring.
type MStreamStats struct {
	BarCount      int     `json:"bar_count"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	AvgClose      float64 `json:"avg_close"`
	TotalVolume   float64 `json:"total_volume"`
	SpanSeconds   int64   `json:"span_seconds"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	MarketOpen    bool    `json:"market_open"`
}
