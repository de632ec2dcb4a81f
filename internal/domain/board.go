package domain

import (
	"github.com/shopspring/decimal"

	"rbot_go/pkg/quant"
)

// BoardItem is one price level. Size zero deletes the level.
type BoardItem struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// NewBoardItem is a convenience for parsers and tests.
func NewBoardItem(price, size string) (BoardItem, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return BoardItem{}, err
	}
	s, err := decimal.NewFromString(size)
	if err != nil {
		return BoardItem{}, err
	}
	return BoardItem{Price: p, Size: s}, nil
}

// BoardTransfer is a normalized book update: a full snapshot or a diff.
type BoardTransfer struct {
	LastUpdateTime quant.MicroSec `json:"last_update_time"`
	FirstUpdateID  int64          `json:"first_update_id"`
	LastUpdateID   int64          `json:"last_update_id"`
	Bids           []BoardItem    `json:"bids"`
	Asks           []BoardItem    `json:"asks"`
	Snapshot       bool           `json:"snapshot"`
}

// Empty reports whether the transfer carries no levels.
func (b *BoardTransfer) Empty() bool {
	return len(b.Bids) == 0 && len(b.Asks) == 0
}
