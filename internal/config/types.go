package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Exchange   ExchangeConfig   `mapstructure:"exchange"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Indicators IndicatorConfig  `mapstructure:"indicators"`
	Extreme    ExtremeConfig    `mapstructure:"extreme"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Grid       GridConfig       `mapstructure:"grid"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	PnLLog     PnLLogConfig     `mapstructure:"pnl_log"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Symbol     string      `mapstructure:"symbol"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// TradingConfig 控制下单规模与节奏。
type TradingConfig struct {
	Interval       string        `mapstructure:"interval"`
	CandleLimit    int           `mapstructure:"candle_limit"`
	Leverage       int           `mapstructure:"leverage"`
	BaseNotional   float64       `mapstructure:"base_notional"`
	GridCount      int           `mapstructure:"grid_count"`
	FlattenOnStart bool          `mapstructure:"flatten_on_start"`
	MarketEntry    bool          `mapstructure:"market_entry"`
	LegPause       time.Duration `mapstructure:"leg_pause"`
	TimeInForce    string        `mapstructure:"time_in_force"`
}

// IndicatorConfig 控制指标周期与窗口。
type IndicatorConfig struct {
	ShortEMAWindow  int     `mapstructure:"short_ema_window"`
	ShortEMAPeriod  int     `mapstructure:"short_ema_period"`
	LongEMAWindow   int     `mapstructure:"long_ema_window"`
	LongEMAPeriod   int     `mapstructure:"long_ema_period"`
	RSIPeriod       int     `mapstructure:"rsi_period"`
	ATRPeriod       int     `mapstructure:"atr_period"`
	ATRSmoothing    string  `mapstructure:"atr_smoothing"`
	MACDShort       int     `mapstructure:"macd_short"`
	MACDLong        int     `mapstructure:"macd_long"`
	MACDSignal      int     `mapstructure:"macd_signal"`
	BollingerPeriod int     `mapstructure:"bollinger_period"`
	BollingerMult   float64 `mapstructure:"bollinger_mult"`
	VolumeAvgWindow int     `mapstructure:"volume_avg_window"`
	ADXPeriod       int     `mapstructure:"adx_period"`
	HistoryBuffer   int     `mapstructure:"history_buffer"`
}

// Band 为隶属度区间。
type Band struct {
	Low  float64 `mapstructure:"low"`
	High float64 `mapstructure:"high"`
}

// ExtremeConfig 控制极端行情闸门。ATR 区间为绝对值，需按交易对价格量级配置。
type ExtremeConfig struct {
	HighVolatility    Band      `mapstructure:"high_volatility"`
	ExtremeVolatility Band      `mapstructure:"extreme_volatility"`
	VolumeSpike       Band      `mapstructure:"volume_spike"`
	BelowVWAP         Band      `mapstructure:"below_vwap"`
	AboveVWAP         Band      `mapstructure:"above_vwap"`
	Weights           []float64 `mapstructure:"weights"`
	Threshold         float64   `mapstructure:"threshold"`
}

// ClassifierConfig 控制方向分类与动态阈值。
type ClassifierConfig struct {
	BuyWeights  []float64 `mapstructure:"buy_weights"`
	SellWeights []float64 `mapstructure:"sell_weights"`

	Oversold      Band    `mapstructure:"oversold"`
	Overbought    Band    `mapstructure:"overbought"`
	BandProximity float64 `mapstructure:"band_proximity"`
	VWAPDistance  float64 `mapstructure:"vwap_distance"`

	BaseThreshold float64 `mapstructure:"base_threshold"`
	LowThreshold  float64 `mapstructure:"low_threshold"`
	HighThreshold float64 `mapstructure:"high_threshold"`
	ATRLow        float64 `mapstructure:"atr_low"`
	ATRHigh       float64 `mapstructure:"atr_high"`
	ADXStrong     float64 `mapstructure:"adx_strong"`
	ADXBump       float64 `mapstructure:"adx_bump"`
	MaxThreshold  float64 `mapstructure:"max_threshold"`

	RequireTrendAlignment bool `mapstructure:"require_trend_alignment"`
}

// 保护单触发价距当前价的最小距离下限，配置值不得低于此。
const (
	MinGridTicks       = 5
	MinGridDistancePct = 0.002
)

// GridConfig 控制网格间距与保护单距离。
type GridConfig struct {
	SpacingATR     float64        `mapstructure:"spacing_atr"`
	EntryBufferATR float64        `mapstructure:"entry_buffer_atr"`
	BracketATR     float64        `mapstructure:"bracket_atr"`
	BracketPadATR  float64        `mapstructure:"bracket_pad_atr"`
	MinTicks       int            `mapstructure:"min_ticks"`
	MinDistancePct float64        `mapstructure:"min_distance_pct"`
	Trailing       TrailingConfig `mapstructure:"trailing"`
}

// TrailingConfig 控制追踪止损。
type TrailingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ActivationATR  float64 `mapstructure:"activation_atr"`
	CallbackFactor float64 `mapstructure:"callback_factor"`
	MinCallback    float64 `mapstructure:"min_callback"`
	MaxCallback    float64 `mapstructure:"max_callback"`
}

// RiskConfig 管理日内亏损上限。
type RiskConfig struct {
	MaxDailyLoss       float64 `mapstructure:"max_daily_loss"`
	DailyLossResetHour int     `mapstructure:"daily_loss_reset_hour"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string             `mapstructure:"level"`
	Encoding         string             `mapstructure:"encoding"`
	Development      bool               `mapstructure:"development"`
	OutputPaths      []string           `mapstructure:"output_paths"`
	ErrorOutputPaths []string           `mapstructure:"error_output_paths"`
	File             RotatingFileConfig `mapstructure:"file"`
}

// RotatingFileConfig 描述滚动日志文件。Path 为空表示不写文件。
type RotatingFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// PnLLogConfig 控制盈亏流水文件。
type PnLLogConfig struct {
	File RotatingFileConfig `mapstructure:"file"`
}

// MonitorConfig 控制监控 HTTP 服务。
type MonitorConfig struct {
	Port int `mapstructure:"port"`
}

// SchedulerConfig 控制主循环节奏。
type SchedulerConfig struct {
	LoopInterval time.Duration `mapstructure:"loop_interval"`
	TickTimeout  time.Duration `mapstructure:"tick_timeout"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Symbol == "" {
		err = multierr.Append(err, errors.New("exchange.symbol 不能为空"))
	}
	if c.Exchange.APIKey == "" {
		err = multierr.Append(err, errors.New("exchange.api_key 不能为空"))
	}
	if c.Exchange.APISecret == "" {
		err = multierr.Append(err, errors.New("exchange.api_secret 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}

	if c.Trading.Interval == "" {
		err = multierr.Append(err, errors.New("trading.interval 不能为空"))
	}
	if c.Trading.CandleLimit <= 0 {
		err = multierr.Append(err, errors.New("trading.candle_limit 必须大于0"))
	}
	if c.Trading.Leverage <= 0 {
		err = multierr.Append(err, errors.New("trading.leverage 必须大于0"))
	}
	if c.Trading.BaseNotional <= 0 {
		err = multierr.Append(err, errors.New("trading.base_notional 必须大于0"))
	}
	if c.Trading.GridCount <= 0 {
		err = multierr.Append(err, errors.New("trading.grid_count 必须大于0"))
	}
	if c.Trading.LegPause < 0 {
		err = multierr.Append(err, errors.New("trading.leg_pause 不能为负"))
	}

	if c.Indicators.ATRSmoothing != "simple" && c.Indicators.ATRSmoothing != "wilder" {
		err = multierr.Append(err, fmt.Errorf("indicators.atr_smoothing 仅支持 simple/wilder，当前 %q", c.Indicators.ATRSmoothing))
	}
	for name, period := range map[string]int{
		"short_ema_period":  c.Indicators.ShortEMAPeriod,
		"long_ema_period":   c.Indicators.LongEMAPeriod,
		"rsi_period":        c.Indicators.RSIPeriod,
		"atr_period":        c.Indicators.ATRPeriod,
		"macd_short":        c.Indicators.MACDShort,
		"macd_signal":       c.Indicators.MACDSignal,
		"bollinger_period":  c.Indicators.BollingerPeriod,
		"volume_avg_window": c.Indicators.VolumeAvgWindow,
		"adx_period":        c.Indicators.ADXPeriod,
	} {
		if period <= 0 {
			err = multierr.Append(err, fmt.Errorf("indicators.%s 必须大于0", name))
		}
	}
	if c.Indicators.MACDLong <= c.Indicators.MACDShort {
		err = multierr.Append(err, errors.New("indicators.macd_long 必须大于 macd_short"))
	}
	if c.Indicators.ShortEMAWindow < c.Indicators.ShortEMAPeriod || c.Indicators.LongEMAWindow < c.Indicators.LongEMAPeriod {
		err = multierr.Append(err, errors.New("indicators EMA 窗口不能小于周期"))
	}
	if c.Indicators.CandlesRequired() > c.Trading.CandleLimit {
		err = multierr.Append(err, fmt.Errorf("trading.candle_limit 至少需要 %d", c.Indicators.CandlesRequired()))
	}

	if len(c.Extreme.Weights) != 5 {
		err = multierr.Append(err, errors.New("extreme.weights 必须包含5个权重"))
	}
	if !inUnit(c.Extreme.Threshold) {
		err = multierr.Append(err, errors.New("extreme.threshold 必须位于(0,1]"))
	}
	if len(c.Classifier.BuyWeights) != 5 || len(c.Classifier.SellWeights) != 5 {
		err = multierr.Append(err, errors.New("classifier.buy_weights/sell_weights 必须包含5个权重"))
	}
	for name, v := range map[string]float64{
		"base_threshold": c.Classifier.BaseThreshold,
		"low_threshold":  c.Classifier.LowThreshold,
		"high_threshold": c.Classifier.HighThreshold,
		"max_threshold":  c.Classifier.MaxThreshold,
	} {
		if !inUnit(v) {
			err = multierr.Append(err, fmt.Errorf("classifier.%s 必须位于(0,1]", name))
		}
	}
	if c.Classifier.LowThreshold > c.Classifier.BaseThreshold || c.Classifier.BaseThreshold > c.Classifier.HighThreshold {
		err = multierr.Append(err, errors.New("classifier 阈值需满足 low <= base <= high"))
	}
	if c.Classifier.ATRLow > c.Classifier.ATRHigh {
		err = multierr.Append(err, errors.New("classifier.atr_low 不能大于 atr_high"))
	}

	if c.Grid.SpacingATR < 0 || c.Grid.EntryBufferATR < 0 || c.Grid.BracketATR < 0 || c.Grid.BracketPadATR < 0 {
		err = multierr.Append(err, errors.New("grid ATR 倍数不能为负"))
	}
	if c.Grid.MinTicks < MinGridTicks {
		err = multierr.Append(err, fmt.Errorf("grid.min_ticks 不能小于 %d", MinGridTicks))
	}
	if c.Grid.MinDistancePct < MinGridDistancePct {
		err = multierr.Append(err, fmt.Errorf("grid.min_distance_pct 不能小于 %g", MinGridDistancePct))
	}
	if c.Grid.Trailing.Enabled && (c.Grid.Trailing.MinCallback <= 0 || c.Grid.Trailing.MinCallback > c.Grid.Trailing.MaxCallback) {
		err = multierr.Append(err, errors.New("grid.trailing callback 区间非法"))
	}

	if c.Risk.MaxDailyLoss < 0 {
		err = multierr.Append(err, errors.New("risk.max_daily_loss 不能为负"))
	}
	if c.Risk.DailyLossResetHour < 0 || c.Risk.DailyLossResetHour > 23 {
		err = multierr.Append(err, errors.New("risk.daily_loss_reset_hour 必须位于[0,23]"))
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		err = multierr.Append(err, errors.New("monitor.port 非法"))
	}
	if c.Scheduler.LoopInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.loop_interval 必须大于0"))
	}
	if c.Scheduler.TickTimeout < 0 {
		err = multierr.Append(err, errors.New("scheduler.tick_timeout 不能为负"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

// CandlesRequired 返回计算全部指标所需的最少K线数。
func (c IndicatorConfig) CandlesRequired() int {
	need := c.MACDLong + c.MACDSignal
	for _, n := range []int{
		c.ShortEMAWindow,
		c.LongEMAWindow,
		c.RSIPeriod + 1,
		c.ATRPeriod + 1,
		c.BollingerPeriod,
		c.VolumeAvgWindow,
		2*c.ADXPeriod + 1,
	} {
		if n > need {
			need = n
		}
	}
	return need + c.HistoryBuffer
}

func inUnit(v float64) bool {
	return v > 0 && v <= 1
}
