//go:build integration
// +build integration

package execution

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"fuzzy-grid/internal/config"
	"fuzzy-grid/internal/exchange"
)

func TestExecutorIntegration_BinanceSandboxFlatten(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("integration test panic: %v", r)
		}
	}()

	configPath := os.Getenv("GRID_CONFIG")
	if configPath == "" {
		configPath = "../../configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if !cfg.Exchange.UseSandbox {
		t.Skip("exchange.use_sandbox=false，出于安全考虑跳过真实下单测试")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := exchange.NewClient(cfg.Exchange, zap.NewNop())
	if err != nil {
		t.Fatalf("初始化交易所客户端失败: %v", err)
	}

	svc := exchange.NewMarketDataService(client, zap.NewNop())
	snapshot, err := svc.Snapshot(ctx, cfg.Exchange.Symbol, exchange.DefaultSnapshotRequest())
	if err != nil {
		t.Fatalf("获取市场快照失败: %v", err)
	}
	if snapshot.Price <= 0 {
		t.Fatalf("无法解析有效市场价格")
	}

	exec := NewExecutor(client, cfg.Exchange.Symbol, zap.NewNop())
	result, err := exec.Flatten(ctx, ReasonStartup)
	if err != nil {
		t.Fatalf("Flatten 失败: %v", err)
	}

	after, err := client.OpenOrders(ctx, cfg.Exchange.Symbol)
	if err != nil {
		t.Fatalf("查询挂单失败: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("强平后仍有 %d 笔挂单", len(after))
	}

	t.Logf("撤单 %d 笔，平仓 %d 笔，已实现盈亏 %.4f", len(result.Cancelled), len(result.Closed), result.RealizedPnL())
}
