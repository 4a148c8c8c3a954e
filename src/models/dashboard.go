package models

import "time"

// MDashboard is a persisted dashboard layout. The browser original kept this
// in localStorage; the backend keeps it server-side so layouts survive
// devices. Bars and ticks are never persisted.
type MDashboard struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Theme     string    `json:"theme"`
	Layout    string    `json:"layout"` // opaque JSON blob owned by the view layer
	UpdatedAt time.Time `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// Hub Push Messages
// -----------------------------------------------------------------------------

// MPushMessage is the envelope broadcast to dashboard websocket clients.
type MPushMessage struct {
	Type      string      `json:"type"` // "bar", "state", "dataset"
	WidgetID  string      `json:"widget_id,omitempty"`
	Symbol    string      `json:"symbol,omitempty"`
	Bar       *MOHLCVBar  `json:"bar,omitempty"`
	State     string      `json:"state,omitempty"`
	Dataset   interface{} `json:"dataset,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// MSubscribeCommand is a client -> hub command.
type MSubscribeCommand struct {
	Command string   `json:"command"`
	Widgets []string `json:"widgets"`
}
