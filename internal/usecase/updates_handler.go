package usecase

import (
	"context"
	"encoding/json"
	"time"

	"StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	pkgkafka "StockPulse/pkg/kafka"
)

// KafkaUpdatesHandler consumes published price updates from Kafka and
// writes them to storage. Runs only when the backend is kafka and the
// ingest consumer is enabled.
type KafkaUpdatesHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaUpdatesHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaUpdatesHandler {
	return &KafkaUpdatesHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaUpdatesHandler) Topic() string { return h.topic }

// Handle decodes one update message and stores it.
func (h *KafkaUpdatesHandler) Handle(ctx context.Context, b []byte) error {
	var u models.PriceUpdate
	if err := json.Unmarshal(b, &u); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if u.Timestamp > 1e11 { // ms
		u.Timestamp = u.Timestamp / 1000
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(u.Timestamp, 0)).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &u)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordUpdateEmitted("clickhouse", u.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaUpdatesHandler)(nil)
