package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/domain/repository"
	pkgkafka "StockPulse/pkg/kafka"
)

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(db *sql.DB, table string) repository.Storage {
	return &ClickHouseStorage{db: db, table: table}
}

func (s *ClickHouseStorage) Store(ctx context.Context, u *models.PriceUpdate) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, change, change_percent, fallback) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		time.Unix(u.Timestamp, 0),
		u.Symbol,
		u.Price,
		u.Change,
		u.ChangePercent,
		boolToUInt8(u.Fallback),
	)
	return err
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, updates []*models.PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	// Multi-row VALUES insert, chunked to limit round-trip size.
	const chunkSize = 2000
	for start := 0; start < len(updates); start += chunkSize {
		end := start + chunkSize
		if end > len(updates) {
			end = len(updates)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, u := range updates[start:end] {
			if u == nil || u.Symbol == "" || u.Timestamp == 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args,
				time.Unix(u.Timestamp, 0),
				u.Symbol,
				u.Price,
				u.Change,
				u.ChangePercent,
				boolToUInt8(u.Fallback),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, change, change_percent, fallback) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceUpdate, error) {
	q := fmt.Sprintf("SELECT symbol, ts, price, change, change_percent, fallback FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []*models.PriceUpdate
	for rows.Next() {
		var u models.PriceUpdate
		var ts time.Time
		var fallback uint8
		if err := rows.Scan(&u.Symbol, &ts, &u.Price, &u.Change, &u.ChangePercent, &fallback); err != nil {
			return nil, err
		}
		u.Timestamp = ts.Unix()
		u.Fallback = fallback != 0
		updates = append(updates, &u)
	}
	return updates, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // connection owned by pkg/clickhouse
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates a Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, u *models.PriceUpdate) error {
	return p.producer.Publish(ctx, p.topic, []byte(u.Symbol), u)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, updates []*models.PriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(updates))
	for i, u := range updates {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(u.Symbol),
			Value: u,
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
