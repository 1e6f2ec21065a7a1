package exchange

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketDataService 并发拉取一个周期所需的行情、挂单与仓位。
type MarketDataService struct {
	gateway Gateway
	logger  *zap.Logger
}

// NewMarketDataService 创建市场数据服务。
func NewMarketDataService(gateway Gateway, logger *zap.Logger) *MarketDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataService{
		gateway: gateway,
		logger:  logger,
	}
}

// Snapshot 拉取最新价格、K线、挂单与仓位。任一读取失败则整体失败。
func (s *MarketDataService) Snapshot(ctx context.Context, symbol string, req SnapshotRequest) (MarketSnapshot, error) {
	defaultReq := DefaultSnapshotRequest()
	if req.Interval == "" {
		req.Interval = defaultReq.Interval
	}
	if req.CandleLimit <= 0 {
		req.CandleLimit = defaultReq.CandleLimit
	}

	var (
		price     float64
		candles   []Candle
		orders    []Order
		positions []Position
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := s.gateway.Ticker(groupCtx, symbol)
		if err != nil {
			return err
		}
		price = data
		return nil
	})

	group.Go(func() error {
		data, err := s.gateway.Candles(groupCtx, symbol, req.Interval, req.CandleLimit)
		if err != nil {
			return err
		}
		candles = data
		return nil
	})

	group.Go(func() error {
		data, err := s.gateway.OpenOrders(groupCtx, symbol)
		if err != nil {
			return err
		}
		orders = data
		return nil
	})

	group.Go(func() error {
		data, err := s.gateway.Positions(groupCtx, symbol)
		if err != nil {
			return err
		}
		positions = data
		return nil
	})

	if err := group.Wait(); err != nil {
		return MarketSnapshot{}, fmt.Errorf("exchange: 获取市场快照失败: %w", err)
	}

	snapshot := MarketSnapshot{
		Symbol:      symbol,
		Price:       price,
		Candles:     candles,
		Orders:      orders,
		Positions:   positions,
		RetrievedAt: time.Now().UTC(),
	}

	s.logger.Debug("市场快照已更新",
		zap.String("symbol", symbol),
		zap.Float64("price", price),
		zap.Int("candles", len(candles)),
		zap.Int("orders", len(orders)),
		zap.Int("positions", len(positions)),
	)

	return snapshot, nil
}
