package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

// DBFile is the archive file name under the storage root.
const DBFile = "archive.db"

// TradeRecord is one archived public trade. (market, trade_id) is unique so
// replays after a reconnect are dropped by the insert.
type TradeRecord struct {
	ID      uint   `gorm:"primaryKey"`
	Market  string `gorm:"size:64;not null;uniqueIndex:idx_market_trade;index:idx_market_time,priority:1"`
	TradeID string `gorm:"size:64;not null;uniqueIndex:idx_market_trade"`
	Time    int64  `gorm:"not null;index:idx_market_time,priority:2"`
	Side    string `gorm:"size:4;not null"`
	Price   string `gorm:"not null"`
	Size    string `gorm:"not null"`
}

// FillRecord journals one simulated order fill.
type FillRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Market     string `gorm:"size:64;not null;index"`
	OrderID    string `gorm:"size:64;not null;index"`
	Side       string `gorm:"size:4;not null"`
	Price      string `gorm:"not null"`
	Filled     string `gorm:"not null"`
	Remain     string `gorm:"not null"`
	Status     string `gorm:"size:16;not null"`
	UpdateTime int64  `gorm:"not null"`
	CreatedAt  time.Time
}

// Archive persists trades and simulated fills in sqlite.
type Archive struct {
	db *gorm.DB
}

// NewArchive opens (or creates) the archive under dbRoot.
func NewArchive(dbRoot string) (*Archive, error) {
	if dbRoot == "" {
		return nil, &domain.ConfigError{Field: "storage.db_root", Err: fmt.Errorf("storage root is empty")}
	}
	if err := os.MkdirAll(dbRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}
	return open(filepath.Join(dbRoot, DBFile))
}

func open(dsn string) (*Archive, error) {
	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&TradeRecord{}, &FillRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Archive{db: db}, nil
}

// InsertTrades stores trades, skipping ids already archived for the market.
// It returns the number of new rows.
func (a *Archive) InsertTrades(ctx context.Context, market string, trades []domain.Trade) (int64, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	rows := make([]TradeRecord, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, TradeRecord{
			Market:  market,
			TradeID: t.ID,
			Time:    int64(t.Time),
			Side:    string(t.Side),
			Price:   t.Price.String(),
			Size:    t.Size.String(),
		})
	}
	res := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 500)
	return res.RowsAffected, res.Error
}

// Trades returns archived trades in [from, to) ordered by time.
func (a *Archive) Trades(ctx context.Context, market string, from, to quant.MicroSec) ([]domain.Trade, error) {
	var rows []TradeRecord
	err := a.db.WithContext(ctx).
		Where("market = ? AND time >= ? AND time < ?", market, int64(from), int64(to)).
		Order("time, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.Trade, 0, len(rows))
	for _, r := range rows {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("trade %s price: %w", r.TradeID, err)
		}
		size, err := decimal.NewFromString(r.Size)
		if err != nil {
			return nil, fmt.Errorf("trade %s size: %w", r.TradeID, err)
		}
		out = append(out, domain.Trade{
			Time:  quant.MicroSec(r.Time),
			Side:  domain.Side(r.Side),
			Price: price,
			Size:  size,
			ID:    r.TradeID,
		})
	}
	return out, nil
}

// CountTrades returns the number of archived trades for a market.
func (a *Archive) CountTrades(ctx context.Context, market string) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&TradeRecord{}).Where("market = ?", market).Count(&n).Error
	return n, err
}

// RecordFills journals the state of each filled order.
func (a *Archive) RecordFills(ctx context.Context, market string, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	rows := make([]FillRecord, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, FillRecord{
			Market:     market,
			OrderID:    o.ID,
			Side:       string(o.Side),
			Price:      o.ExecutePrice.String(),
			Filled:     o.ExecuteSize.String(),
			Remain:     o.RemainSize.String(),
			Status:     string(o.Status),
			UpdateTime: int64(o.UpdateTime),
		})
	}
	return a.db.WithContext(ctx).Create(&rows).Error
}

// Fills returns the journal for one order, oldest first.
func (a *Archive) Fills(ctx context.Context, market, orderID string) ([]FillRecord, error) {
	var rows []FillRecord
	err := a.db.WithContext(ctx).
		Where("market = ? AND order_id = ?", market, orderID).
		Order("id").
		Find(&rows).Error
	return rows, err
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ domain.TradeArchive = (*Archive)(nil)
