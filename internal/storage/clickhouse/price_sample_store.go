package clickhouse

import (
	"context"
	"fmt"
	"time"

	"tokenwatch/internal/domain"
	"tokenwatch/internal/observability"
	"tokenwatch/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore using ClickHouse.
// MergeTree does not enforce ordering at insert time, so the
// per-(token, source) stream invariant is checked against the stored
// high-water mark before the batch is sent.
type PriceSampleStore struct {
	conn *Conn
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(conn *Conn) *PriceSampleStore {
	return &PriceSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// InsertBulk appends samples. A sample that does not advance its
// (token, source) stream fails the whole batch with ErrOutOfOrder
// before anything is written.
func (s *PriceSampleStore) InsertBulk(ctx context.Context, samples []*domain.PriceSample) (err error) {
	if len(samples) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "price_insert_bulk", time.Since(start).Seconds(), err)
	}()

	type key struct {
		address string
		source  string
	}
	pending := make(map[key]int64, len(samples))
	for _, sample := range samples {
		if sample == nil || sample.TokenAddress == "" || sample.Source == "" {
			return storage.ErrInvalidInput
		}
		k := key{sample.TokenAddress, sample.Source}
		last, ok := pending[k]
		if !ok {
			stored, err := s.maxTimestamp(ctx, sample.TokenAddress, sample.Source)
			if err != nil {
				return fmt.Errorf("check stream high-water mark: %w", err)
			}
			last = stored
		}
		if sample.Timestamp <= last {
			return storage.ErrOutOfOrder
		}
		pending[k] = sample.Timestamp
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_samples (
			token_address, source, price_usd, volume_24h, market_cap, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sample := range samples {
		err = batch.Append(
			sample.TokenAddress, sample.Source, sample.PriceUSD,
			sample.Volume24h, sample.MarketCap, uint64(sample.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves samples for a token within [start, end]
// (inclusive), ordered by timestamp ASC.
func (s *PriceSampleStore) GetByTimeRange(ctx context.Context, address string, start, end int64) ([]*domain.PriceSample, error) {
	query := `
		SELECT token_address, source, price_usd, volume_24h, market_cap, timestamp_ms
		FROM price_samples
		WHERE token_address = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, source ASC
	`

	rows, err := s.conn.Query(ctx, query, address, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceSamples(rows)
}

// GetLatest retrieves the newest sample for a token across all sources.
func (s *PriceSampleStore) GetLatest(ctx context.Context, address string) (*domain.PriceSample, error) {
	query := `
		SELECT token_address, source, price_usd, volume_24h, market_cap, timestamp_ms
		FROM price_samples
		WHERE token_address = ?
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("query latest sample: %w", err)
	}
	defer rows.Close()

	samples, err := scanPriceSamples(rows)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, storage.ErrNotFound
	}
	return samples[0], nil
}

// maxTimestamp returns the stored high-water mark for one stream, 0
// when the stream is empty.
func (s *PriceSampleStore) maxTimestamp(ctx context.Context, address, source string) (int64, error) {
	query := `
		SELECT max(timestamp_ms) FROM price_samples
		WHERE token_address = ? AND source = ?
	`

	var maxTS uint64
	if err := s.conn.QueryRow(ctx, query, address, source).Scan(&maxTS); err != nil {
		return 0, err
	}
	return int64(maxTS), nil
}

// scanPriceSamples scans multiple rows.
func scanPriceSamples(rows chRows) ([]*domain.PriceSample, error) {
	var samples []*domain.PriceSample

	for rows.Next() {
		var sample domain.PriceSample
		var timestampMs uint64

		err := rows.Scan(
			&sample.TokenAddress, &sample.Source, &sample.PriceUSD,
			&sample.Volume24h, &sample.MarketCap, &timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price sample row: %w", err)
		}

		sample.Timestamp = int64(timestampMs)
		samples = append(samples, &sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price sample rows: %w", err)
	}
	return samples, nil
}
