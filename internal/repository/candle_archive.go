package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PriceWorm/internal/domain/models"
	domrepo "PriceWorm/internal/domain/repository"
)

// Schema statements for the candle archive, idempotent.
var ArchiveSchema = []string{
	`CREATE DATABASE IF NOT EXISTS priceworm`,
	`CREATE TABLE IF NOT EXISTS priceworm.candles_1m (
		open_time DateTime,
		symbol    LowCardinality(String),
		open      Float64,
		high      Float64,
		low       Float64,
		close     Float64,
		volume    Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (symbol, open_time)
	TTL open_time + INTERVAL 30 DAY`,
}

// ClickHouseArchive persists fetched 1-minute candles and serves range
// queries from local storage. Implements domain repository.CandleArchive.
type ClickHouseArchive struct {
	db    *sql.DB
	table string
}

// NewClickHouseArchive creates a ClickHouse candle archive.
func NewClickHouseArchive(db *sql.DB) domrepo.CandleArchive {
	return &ClickHouseArchive{db: db, table: "priceworm.candles_1m"}
}

func (a *ClickHouseArchive) StoreBatch(ctx context.Context, symbol string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	// multi-row VALUES insert to reduce round-trips
	const chunkSize = 2000
	for start := 0; start < len(candles); start += chunkSize {
		end := start + chunkSize
		if end > len(candles) {
			end = len(candles)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, c := range candles[start:end] {
			if c.OpenTime.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, c.OpenTime, symbol, c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (open_time, symbol, open, high, low, close, volume) VALUES %s",
			a.table, strings.Join(values, ","))
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store candles: %w", err)
		}
	}
	return nil
}

func (a *ClickHouseArchive) Query(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	var q string
	switch tf {
	case domrepo.TF1m:
		q = fmt.Sprintf(`SELECT open_time, open, high, low, close, volume
			FROM %s FINAL
			WHERE symbol = ? AND open_time >= ? AND open_time < ?
			ORDER BY open_time`, a.table)
	default:
		// coarser frames are rolled up from the 1m base
		q = fmt.Sprintf(`SELECT
				toStartOfInterval(open_time, INTERVAL %d MINUTE) AS bucket,
				argMin(open, open_time) AS open,
				max(high) AS high,
				min(low) AS low,
				argMax(close, open_time) AS close,
				sum(volume) AS volume
			FROM %s FINAL
			WHERE symbol = ? AND open_time >= ? AND open_time < ?
			GROUP BY bucket
			ORDER BY bucket`, bucketMinutes(tf), a.table)
	}

	rows, err := a.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func bucketMinutes(tf domrepo.Timeframe) int {
	switch tf {
	case domrepo.TF1h:
		return 60
	case domrepo.TF4h:
		return 240
	default:
		return 1
	}
}

func (a *ClickHouseArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *ClickHouseArchive) Close() error {
	return nil // pool is managed by pkg/clickhouse
}
