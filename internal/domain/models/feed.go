package models

import "time"

// PriceUpdate is one simulated live quote. Superseded by the next update
// for the same symbol; never persisted as-is.
type PriceUpdate struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Timestamp     int64   `json:"timestamp"` // unix seconds
	Fallback      bool    `json:"fallback,omitempty"`
}

// FeedStatus enumerates the simulated connection lifecycle.
type FeedStatus string

const (
	StatusDisconnected FeedStatus = "disconnected"
	StatusConnecting   FeedStatus = "connecting"
	StatusConnected    FeedStatus = "connected"
)

// ConnectionState is the health snapshot of the feed. Degraded means the
// feed is running but at least one watched symbol is served from
// fallback data; LastError carries the upstream cause.
type ConnectionState struct {
	Status    FeedStatus `json:"status"`
	Since     time.Time  `json:"since"`
	Degraded  bool       `json:"degraded"`
	LastError string     `json:"last_error,omitempty"`
}

// Connected reports whether updates are flowing.
func (s ConnectionState) Connected() bool { return s.Status == StatusConnected }
