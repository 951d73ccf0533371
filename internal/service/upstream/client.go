package upstream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
	xhttp "StockPulse/pkg/http"
)

// Client implements a HistorySource backed by the upstream stock-data
// REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
}

// New creates a new upstream HistorySource.
func New(baseURL, apiKey string, timeout time.Duration) drepo.HistorySource {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type candlePayload struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type historicalPayload struct {
	Symbol  string          `json:"symbol"`
	Candles []candlePayload `json:"candles"`
}

type searchPayload struct {
	Matches []struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Exchange string `json:"exchange"`
		Type     string `json:"type"`
	} `json:"matches"`
}

// Historical fetches a candle series for one symbol.
func (c *Client) Historical(ctx context.Context, symbol, period, interval string) ([]models.Candle, error) {
	var payload historicalPayload
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     fmt.Sprintf("%s/v1/stocks/%s/history", c.baseURL, symbol),
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"period":   {period},
			"interval": {interval},
		},
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("historical %s: %w", symbol, err)
	}
	if len(payload.Candles) == 0 {
		return nil, fmt.Errorf("historical %s: empty series", symbol)
	}

	candles := make([]models.Candle, len(payload.Candles))
	for i, p := range payload.Candles {
		candles[i] = models.Candle{
			Timestamp: p.Timestamp,
			Open:      p.Open,
			High:      p.High,
			Low:       p.Low,
			Close:     p.Close,
			Volume:    p.Volume,
		}
	}
	return candles, nil
}

// Search looks up symbols matching a free-text query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.SymbolMatch, error) {
	var payload searchPayload
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     fmt.Sprintf("%s/v1/stocks/search", c.baseURL),
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"q":     {query},
			"limit": {strconv.Itoa(limit)},
		},
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	matches := make([]models.SymbolMatch, len(payload.Matches))
	for i, m := range payload.Matches {
		matches[i] = models.SymbolMatch{
			Symbol:   m.Symbol,
			Name:     m.Name,
			Exchange: m.Exchange,
			Type:     m.Type,
		}
	}
	return matches, nil
}

func (c *Client) headers() map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if c.apiKey != "" {
		h["X-API-Key"] = c.apiKey
	}
	return h
}
