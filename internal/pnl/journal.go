// Package pnl 维护按行追加的盈亏流水文件。
package pnl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"fuzzy-grid/internal/config"
	"fuzzy-grid/internal/position"
)

// Journal 以 "<ISO 时间> - <内容>" 的格式逐行记录盈亏。
type Journal struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// NewJournal 创建按大小滚动的流水文件。Path 为空时丢弃写入。
func NewJournal(cfg config.RotatingFileConfig) (*Journal, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return NewJournalWriter(io.Discard), nil
	}
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("pnl: 创建目录 %q 失败: %w", dir, err)
		}
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	j := NewJournalWriter(lj)
	j.closer = lj
	return j, nil
}

// NewJournalWriter 使用任意 io.Writer 创建流水。
func NewJournalWriter(w io.Writer) *Journal {
	return &Journal{w: w, now: time.Now}
}

// Realized 记录一笔已实现盈亏。
func (j *Journal) Realized(symbol string, pnl float64) error {
	quote := quoteAsset(symbol)
	if pnl >= 0 {
		return j.write(fmt.Sprintf("Profit: %.4f %s (%s)", pnl, quote, symbol))
	}
	return j.write(fmt.Sprintf("Loss: %.4f %s (%s)", -pnl, quote, symbol))
}

// Totals 记录会话累计盈亏。
func (j *Journal) Totals(symbol string, totals position.Totals) error {
	quote := quoteAsset(symbol)
	if err := j.write(fmt.Sprintf("Total Profit: %.2f %s", totals.Profit, quote)); err != nil {
		return err
	}
	if err := j.write(fmt.Sprintf("Total Loss: %.2f %s", totals.Loss, quote)); err != nil {
		return err
	}
	return j.write(fmt.Sprintf("Net: %.2f %s (%d trades)", totals.Net(), quote, totals.Trades))
}

// Close 关闭底层文件。
func (j *Journal) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

func (j *Journal) write(message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	line := fmt.Sprintf("%s - %s\n", j.now().UTC().Format("2006-01-02T15:04:05.000Z"), message)
	if _, err := io.WriteString(j.w, line); err != nil {
		return fmt.Errorf("pnl: 写入盈亏流水失败: %w", err)
	}
	return nil
}

// quoteAsset 从 XRP/USDT:USDT 或 XRPUSDT 中取计价币种。
func quoteAsset(symbol string) string {
	if idx := strings.Index(symbol, ":"); idx >= 0 {
		return symbol[idx+1:]
	}
	if idx := strings.Index(symbol, "/"); idx >= 0 {
		return symbol[idx+1:]
	}
	for _, q := range []string{"USDT", "USDC", "BUSD"} {
		if strings.HasSuffix(strings.ToUpper(symbol), q) {
			return q
		}
	}
	return "USDT"
}
