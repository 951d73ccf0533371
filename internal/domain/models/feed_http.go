package models

// HistoricalRequest is the query for the historical endpoint.
type HistoricalRequest struct {
	Symbol   string `param:"symbol" validate:"required,min=1,max=12"`
	Period   string `query:"period" default:"1y" validate:"oneof=1d 5d 1mo 3mo 6mo 1y 2y 5y 10y ytd max"`
	Interval string `query:"interval" default:"1d" validate:"oneof=1m 5m 15m 30m 1h 1d 1wk 1mo"`
}

// SearchRequest is the query for symbol search.
type SearchRequest struct {
	Query string `query:"query" validate:"required,min=1"`
	Limit int    `query:"limit" default:"10" validate:"gte=1,lte=50"`
}

// UpdatesRequest is the query for stored update history.
type UpdatesRequest struct {
	Symbol string `param:"symbol" validate:"required,min=1,max=12"`
	From   string `query:"from"`
	To     string `query:"to"`
	Limit  int    `query:"limit" default:"500" validate:"gte=1,lte=10000"`
}

// WatchRequest is the body for feed subscribe/unsubscribe.
type WatchRequest struct {
	Symbol string `json:"symbol" validate:"required,min=1,max=12"`
}
