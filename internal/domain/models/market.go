package models

import "time"

// Candle is one OHLCV record of a historical series.
type Candle struct {
	Timestamp int64   `json:"timestamp"` // unix seconds
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// HistoryOrigin tags where a history result came from.
type HistoryOrigin string

const (
	OriginUpstream HistoryOrigin = "upstream"
	OriginCache    HistoryOrigin = "cache"
	OriginFallback HistoryOrigin = "fallback"
)

// History is a tagged historical-series result. When the upstream fetch
// failed and a fallback series was synthesized, Origin is OriginFallback
// and Cause carries the upstream error message.
type History struct {
	Symbol    string        `json:"symbol"`
	Candles   []Candle      `json:"candles"`
	Origin    HistoryOrigin `json:"origin"`
	Cause     string        `json:"cause,omitempty"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// LastClose returns the most recent close price of the series.
func (h *History) LastClose() (float64, bool) {
	if h == nil || len(h.Candles) == 0 {
		return 0, false
	}
	return h.Candles[len(h.Candles)-1].Close, true
}

// SymbolMatch is one search hit from the upstream provider.
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
	Type     string `json:"type,omitempty"`
}
