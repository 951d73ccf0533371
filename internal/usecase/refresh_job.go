package usecase

import (
	"context"
	"fmt"

	drepo "StockPulse/internal/domain/repository"
	"StockPulse/pkg/queue"
)

// RefreshMessageType is the queue message type for history refreshes.
const RefreshMessageType = "history.refresh"

// RefreshPayload asks for one symbol's series to be refetched.
type RefreshPayload struct {
	Symbol   string `json:"symbol"`
	Period   string `json:"period"`
	Interval string `json:"interval"`
}

// RefreshHistoryJob refetches a symbol's historical series from the
// upstream provider and rewrites the cache. Failed fetches are retried
// by the queue.
type RefreshHistoryJob struct {
	history drepo.HistoryProvider
}

// NewRefreshHistoryJob creates the queue job.
func NewRefreshHistoryJob(history drepo.HistoryProvider) *RefreshHistoryJob {
	return &RefreshHistoryJob{history: history}
}

func (j *RefreshHistoryJob) Name() string { return "refresh-history" }

func (j *RefreshHistoryJob) Type() string { return RefreshMessageType }

func (j *RefreshHistoryJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[RefreshPayload](payload)
	if err != nil {
		return fmt.Errorf("refresh payload: %w", err)
	}
	if p.Symbol == "" {
		return fmt.Errorf("refresh payload: symbol empty")
	}

	if _, err := j.history.Refresh(ctx, p.Symbol, p.Period, p.Interval); err != nil {
		return fmt.Errorf("refresh %s: %w", p.Symbol, err)
	}
	return nil
}

var _ queue.Job = (*RefreshHistoryJob)(nil)
