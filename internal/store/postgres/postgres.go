// Package postgres stores closed candles in a PostgreSQL table through gorm.
package postgres

import (
	"context"
	"time"

	"connector/internal/model"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const _defaultBatchSize = 500

// candleRow is keyed by (symbol, timeframe, open_time).
type candleRow struct {
	Symbol    string          `gorm:"primaryKey;size:32"`
	Timeframe string          `gorm:"primaryKey;size:8"`
	OpenTime  time.Time       `gorm:"primaryKey"`
	Open      decimal.Decimal `gorm:"type:numeric;not null"`
	High      decimal.Decimal `gorm:"type:numeric;not null"`
	Low       decimal.Decimal `gorm:"type:numeric;not null"`
	Close     decimal.Decimal `gorm:"type:numeric;not null"`
	Volume    decimal.Decimal `gorm:"type:numeric;not null"`
}

func (candleRow) TableName() string {
	return "candles"
}

func toRow(symbol string, tf model.Timeframe, c model.Candle) candleRow {
	return candleRow{
		Symbol:    symbol,
		Timeframe: string(tf),
		OpenTime:  c.Time.UTC(),
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
}

func (r candleRow) candle() model.Candle {
	return model.Candle{
		Time:   r.OpenTime.UTC(),
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}

type Store struct {
	db        *gorm.DB
	batchSize int
}

// New wraps db. batchSize caps rows per INSERT, 0 keeps the default.
func New(db *gorm.DB, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = _defaultBatchSize
	}
	return &Store{db: db, batchSize: batchSize}
}

// Init creates or migrates the candle table.
func (s *Store) Init(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&candleRow{}); err != nil {
		return errors.Wrap(err, "migrate candles")
	}
	return nil
}

// SaveCandles upserts candles by their key, overwriting prices and volume.
func (s *Store) SaveCandles(ctx context.Context, symbol string, tf model.Timeframe, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	rows := make([]candleRow, 0, len(candles))
	for _, c := range model.NormalizeCandles(candles) {
		rows = append(rows, toRow(symbol, tf, c))
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "open_time"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).
		CreateInBatches(rows, s.batchSize).Error
	if err != nil {
		return errors.Wrap(err, "upsert candles").With("symbol", symbol).With("timeframe", tf).With("count", len(rows))
	}
	return nil
}

// LoadCandles returns candles with open time in [start, end] ascending. Zero
// bounds are open.
func (s *Store) LoadCandles(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Candle, error) {
	query := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, string(tf))
	if !start.IsZero() {
		query = query.Where("open_time >= ?", start.UTC())
	}
	if !end.IsZero() {
		query = query.Where("open_time <= ?", end.UTC())
	}

	var rows []candleRow
	if err := query.Order("open_time ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query candles").With("symbol", symbol).With("timeframe", tf)
	}

	result := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.candle())
	}
	return result, nil
}
