package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"fuzzy-grid/internal/config"
)

// Client 基于 ccxt 的 Binance USDⓈ-M 网关实现，内置重试机制。
type Client struct {
	cfg    config.ExchangeConfig
	logger *zap.Logger
	api    *ccxt.Binanceusdm

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 构造 Binance USDⓈ-M 客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, errors.New("exchange: 缺少 api_key 或 api_secret")
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"apiKey":          cfg.APIKey,
		"secret":          cfg.APISecret,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		api:    ex,
	}, nil
}

// Ticker 获取最新成交价。
func (c *Client) Ticker(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := c.callWithRetry(ctx, "fetch_ticker", func() error {
		ticker, err := c.api.FetchTicker(symbol)
		if err != nil {
			return err
		}
		price = firstPositive(derefFloat(ticker.Last), derefFloat(ticker.Close))
		if price <= 0 {
			return fmt.Errorf("%s 缺少有效价格", symbol)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return price, nil
}

// Candles 获取指定周期的K线数据，按时间升序。
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}
	if interval == "" {
		interval = DefaultInterval
	}

	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return nil, err
	}

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", interval), func() error {
		result, err := c.api.FetchOHLCV(
			symbol,
			ccxt.WithFetchOHLCVTimeframe(interval),
			ccxt.WithFetchOHLCVLimit(int64(limit)),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(item.Timestamp).UTC(),
			Open:     item.Open,
			High:     item.High,
			Low:      item.Low,
			Close:    item.Close,
			Volume:   item.Volume,
		})
	}

	return candles, nil
}

// OpenOrders 获取交易对的全部挂单。
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return nil, err
	}

	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "fetch_open_orders", func() error {
		result, err := c.api.FetchOpenOrders(ccxt.WithFetchOpenOrdersSymbol(symbol))
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, convertOrder(o))
	}
	return orders, nil
}

// Positions 获取交易对的非零仓位。
func (c *Client) Positions(ctx context.Context, symbol string) ([]Position, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return nil, err
	}

	var raw []ccxt.Position
	err := c.callWithRetry(ctx, "fetch_positions", func() error {
		result, err := c.api.FetchPositions()
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	return filterPositions(raw, symbol), nil
}

// SymbolFilters 从市场元数据读取价格与数量精度。
func (c *Client) SymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return SymbolFilters{}, err
	}

	marketMap, ok := c.api.Market(symbol).(map[string]interface{})
	if !ok {
		return SymbolFilters{}, &GatewayError{Op: "market", Err: fmt.Errorf("未找到交易对 %s", symbol)}
	}

	filters := parseSymbolFilters(marketMap)
	if filters.TickSize <= 0 {
		return SymbolFilters{}, &GatewayError{Op: "market", Err: fmt.Errorf("%s 缺少 tickSize", symbol)}
	}
	return filters, nil
}

// PlaceOrder 提交委托。拒单不重试，直接返回。
func (c *Client) PlaceOrder(ctx context.Context, intent OrderIntent) (OrderResult, error) {
	params := map[string]interface{}{}
	if intent.ReduceOnly {
		params["reduceOnly"] = true
	}
	if intent.TimeInForce != "" {
		params["timeInForce"] = intent.TimeInForce
	}
	if intent.StopPrice > 0 {
		params["stopPrice"] = intent.StopPrice
	}
	if intent.Type == OrderTypeTrailingStop {
		params["callbackRate"] = intent.CallbackRate
		if intent.ActivationPrice > 0 {
			params["activationPrice"] = intent.ActivationPrice
		}
	}

	opts := []ccxt.CreateOrderOptions{ccxt.WithCreateOrderParams(params)}
	if intent.Type == OrderTypeLimit {
		opts = append(opts, ccxt.WithCreateOrderPrice(intent.Price))
	}

	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return OrderResult{}, err
	}

	var result OrderResult
	op := fmt.Sprintf("create_order_%s", strings.ToLower(string(intent.Type)))
	err := c.callWithRetry(ctx, op, func() error {
		order, err := c.api.CreateOrder(intent.Symbol, string(intent.Type), strings.ToLower(string(intent.Side)), intent.Quantity, opts...)
		if err != nil {
			return err
		}
		result = OrderResult{ID: derefString(order.Id), Status: derefString(order.Status)}
		return nil
	})
	if err != nil {
		return OrderResult{}, err
	}
	return result, nil
}

// CancelOrder 撤销单个挂单。
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return c.callWithRetry(ctx, "cancel_order", func() error {
		_, err := c.api.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(symbol))
		return err
	})
}

// SetLeverage 设置交易对杠杆。
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return err
	}

	return c.callWithRetry(ctx, "set_leverage", func() error {
		_, err := c.api.SetLeverage(int64(leverage), ccxt.WithSetLeverageSymbol(symbol))
		return err
	})
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		_, err := c.api.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("exchange", c.cfg.Name))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &GatewayError{Op: operation, Err: ctxErr}
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return &GatewayError{Op: operation, Err: normalizedErr}
		}

		if !retry || attempt >= maxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return &GatewayError{Op: operation, Err: normalizedErr, Retryable: retry}
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &GatewayError{Op: operation, Err: ctx.Err()}
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
