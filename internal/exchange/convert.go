package exchange

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

func convertOrder(o ccxt.Order) Order {
	order := Order{
		ID:       derefString(o.Id),
		Symbol:   derefString(o.Symbol),
		Type:     OrderType(strings.ToUpper(derefString(o.Type))),
		Side:     OrderSide(strings.ToUpper(derefString(o.Side))),
		Price:    derefFloat(o.Price),
		Quantity: derefFloat(o.Amount),
	}

	// 原始回报中的 type / stopPrice 比统一字段更可靠。
	if o.Info != nil {
		if raw, ok := o.Info["type"].(string); ok && raw != "" {
			order.Type = OrderType(strings.ToUpper(raw))
		}
		if raw, ok := o.Info["origType"].(string); ok && raw != "" && order.Type == "" {
			order.Type = OrderType(strings.ToUpper(raw))
		}
		order.StopPrice = parseNumeric(o.Info["stopPrice"])
		if order.StopPrice == 0 && order.Type == OrderTypeTrailingStop {
			order.StopPrice = parseNumeric(o.Info["activatePrice"])
		}
		order.ReduceOnly = parseBool(o.Info["reduceOnly"])
		if order.Price == 0 {
			order.Price = parseNumeric(o.Info["price"])
		}
	}

	return order
}

func convertPosition(p ccxt.Position) (Position, bool) {
	symbol := derefString(p.Symbol)
	size := math.Abs(derefFloat(p.Contracts))
	if symbol == "" || size == 0 {
		return Position{}, false
	}

	side := strings.ToUpper(strings.TrimSpace(derefString(p.Side)))
	if side == "SHORT" {
		size = -size
	}

	return Position{
		Symbol:        symbol,
		Quantity:      size,
		EntryPrice:    derefFloat(p.EntryPrice),
		MarkPrice:     derefFloat(p.MarkPrice),
		UnrealizedPnL: derefFloat(p.UnrealizedPnl),
	}, true
}

// filterPositions 只保留目标交易对的非零仓位。ccxt 返回统一符号，配置可能是交易所原始符号。
func filterPositions(raw []ccxt.Position, symbol string) []Position {
	positions := make([]Position, 0, 1)
	for _, p := range raw {
		pos, ok := convertPosition(p)
		if !ok || !SameSymbol(pos.Symbol, symbol) {
			continue
		}
		positions = append(positions, pos)
	}
	return positions
}

// SameSymbol 判断两个符号是否指向同一交易对。
func SameSymbol(a, b string) bool {
	return NormalizeSymbol(a) == NormalizeSymbol(b)
}

// NormalizeSymbol 把 XRP/USDT:USDT、xrp/usdt 与 XRPUSDT 统一为 XRPUSDT。
func NormalizeSymbol(s string) string {
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "/", ""))
}

// parseSymbolFilters 解析 Binance 市场元数据。
// 优先使用 info 中的 pricePrecision / quantityPrecision 与 PRICE_FILTER、LOT_SIZE。
func parseSymbolFilters(market map[string]interface{}) SymbolFilters {
	var filters SymbolFilters

	info, _ := market["info"].(map[string]interface{})
	if info != nil {
		if _, ok := info["pricePrecision"]; ok {
			filters.PricePrecision = int(parseNumeric(info["pricePrecision"]))
		}
		if _, ok := info["quantityPrecision"]; ok {
			filters.QuantityPrecision = int(parseNumeric(info["quantityPrecision"]))
		}
		if rawFilters, ok := info["filters"].([]interface{}); ok {
			for _, item := range rawFilters {
				f, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				switch f["filterType"] {
				case "PRICE_FILTER":
					filters.TickSize = parseNumeric(f["tickSize"])
				case "LOT_SIZE":
					filters.StepSize = parseNumeric(f["stepSize"])
				}
			}
		}
	}

	if precision, ok := market["precision"].(map[string]interface{}); ok {
		if filters.TickSize == 0 {
			filters.TickSize = parseNumeric(precision["price"])
		}
		if filters.StepSize == 0 {
			filters.StepSize = parseNumeric(precision["amount"])
		}
	}

	if filters.PricePrecision == 0 && filters.TickSize > 0 {
		filters.PricePrecision = decimalsOf(filters.TickSize)
	}
	if filters.QuantityPrecision == 0 && filters.StepSize > 0 {
		filters.QuantityPrecision = decimalsOf(filters.StepSize)
	}

	return filters
}

// decimalsOf 返回步长对应的小数位数，例如 0.01 -> 2。
func decimalsOf(step float64) int {
	if step <= 0 || step >= 1 {
		return 0
	}
	return int(math.Round(-math.Log10(step)))
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func parseBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	}
	return false
}

func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		return v
	case *float64:
		if v != nil {
			return *v
		}
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case fmt.Stringer:
		s := strings.TrimSpace(v.String())
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}
