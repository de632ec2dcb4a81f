package binance

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gbinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

// Depth limits accepted by /api/v3/depth.
var depthLimits = []int{5, 10, 20, 50, 100, 500, 1000, 5000}

// DepthSource fetches REST depth snapshots for one symbol.
type DepthSource struct {
	client *gbinance.Client
	symbol string
	limit  int
}

// NewDepthSource uses the public API; baseURL overrides the endpoint when
// non-empty.
func NewDepthSource(baseURL, symbol string, depth int) *DepthSource {
	client := gbinance.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: 7 * time.Second}
	if baseURL != "" {
		client.BaseURL = strings.TrimRight(baseURL, "/")
	}

	chosen := depthLimits[len(depthLimits)-1]
	for _, v := range depthLimits {
		if depth > 0 && depth <= v {
			chosen = v
			break
		}
	}
	return &DepthSource{client: client, symbol: strings.ToUpper(symbol), limit: chosen}
}

func (s *DepthSource) Limit() int { return s.limit }

func (s *DepthSource) Snapshot(ctx context.Context) (*domain.BoardTransfer, error) {
	depth, err := s.client.NewDepthService().Symbol(s.symbol).Limit(s.limit).Do(ctx)
	if err != nil {
		return nil, domain.NewNetworkError("depth snapshot", s.client.BaseURL, err)
	}

	bt := &domain.BoardTransfer{
		LastUpdateTime: quant.Now(),
		FirstUpdateID:  depth.LastUpdateID,
		LastUpdateID:   depth.LastUpdateID,
		Bids:           make([]domain.BoardItem, 0, len(depth.Bids)),
		Asks:           make([]domain.BoardItem, 0, len(depth.Asks)),
		Snapshot:       true,
	}
	for _, b := range depth.Bids {
		item, err := level(b.Price, b.Quantity)
		if err != nil {
			return nil, err
		}
		bt.Bids = append(bt.Bids, item)
	}
	for _, a := range depth.Asks {
		item, err := level(a.Price, a.Quantity)
		if err != nil {
			return nil, err
		}
		bt.Asks = append(bt.Asks, item)
	}
	return bt, nil
}

func level(price, size string) (domain.BoardItem, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.BoardItem{}, fmt.Errorf("%w: depth price %q", domain.ErrMalformedMessage, price)
	}
	q, err := decimal.NewFromString(size)
	if err != nil {
		return domain.BoardItem{}, fmt.Errorf("%w: depth size %q", domain.ErrMalformedMessage, size)
	}
	return domain.BoardItem{Price: p, Size: q}, nil
}

var _ domain.BoardSource = (*DepthSource)(nil)
