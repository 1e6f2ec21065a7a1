package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "grid"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default 返回仅包含默认值的配置，不做校验（凭证为空）。
func Default() Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		panic(fmt.Sprintf("config: 默认配置无法解析: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	equalWeights := []float64{0.2, 0.2, 0.2, 0.2, 0.2}

	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.name", "binanceusdm")
	v.SetDefault("exchange.symbol", "XRP/USDT:USDT")
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 3)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("trading.interval", "15m")
	v.SetDefault("trading.candle_limit", 100)
	v.SetDefault("trading.leverage", 10)
	v.SetDefault("trading.base_notional", 5.0)
	v.SetDefault("trading.grid_count", 3)
	v.SetDefault("trading.flatten_on_start", true)
	v.SetDefault("trading.market_entry", false)
	v.SetDefault("trading.leg_pause", "1s")
	v.SetDefault("trading.time_in_force", "GTC")

	v.SetDefault("indicators.short_ema_window", 10)
	v.SetDefault("indicators.short_ema_period", 5)
	v.SetDefault("indicators.long_ema_window", 20)
	v.SetDefault("indicators.long_ema_period", 20)
	v.SetDefault("indicators.rsi_period", 14)
	v.SetDefault("indicators.atr_period", 14)
	v.SetDefault("indicators.atr_smoothing", "simple")
	v.SetDefault("indicators.macd_short", 12)
	v.SetDefault("indicators.macd_long", 26)
	v.SetDefault("indicators.macd_signal", 9)
	v.SetDefault("indicators.bollinger_period", 20)
	v.SetDefault("indicators.bollinger_mult", 2.0)
	v.SetDefault("indicators.volume_avg_window", 20)
	v.SetDefault("indicators.adx_period", 14)
	v.SetDefault("indicators.history_buffer", 5)

	v.SetDefault("extreme.high_volatility.low", 0.05)
	v.SetDefault("extreme.high_volatility.high", 0.1)
	v.SetDefault("extreme.extreme_volatility.low", 0.1)
	v.SetDefault("extreme.extreme_volatility.high", 0.2)
	v.SetDefault("extreme.volume_spike.low", 1.5)
	v.SetDefault("extreme.volume_spike.high", 3.0)
	v.SetDefault("extreme.below_vwap.low", 0.8)
	v.SetDefault("extreme.below_vwap.high", 0.9)
	v.SetDefault("extreme.above_vwap.low", 1.1)
	v.SetDefault("extreme.above_vwap.high", 1.2)
	v.SetDefault("extreme.weights", equalWeights)
	v.SetDefault("extreme.threshold", 0.75)

	v.SetDefault("classifier.buy_weights", equalWeights)
	v.SetDefault("classifier.sell_weights", equalWeights)
	v.SetDefault("classifier.oversold.low", 30.0)
	v.SetDefault("classifier.oversold.high", 50.0)
	v.SetDefault("classifier.overbought.low", 50.0)
	v.SetDefault("classifier.overbought.high", 70.0)
	v.SetDefault("classifier.band_proximity", 0.02)
	v.SetDefault("classifier.vwap_distance", 0.05)
	v.SetDefault("classifier.base_threshold", 0.75)
	v.SetDefault("classifier.low_threshold", 0.65)
	v.SetDefault("classifier.high_threshold", 0.8)
	v.SetDefault("classifier.atr_low", 0.05)
	v.SetDefault("classifier.atr_high", 0.1)
	v.SetDefault("classifier.adx_strong", 25.0)
	v.SetDefault("classifier.adx_bump", 0.05)
	v.SetDefault("classifier.max_threshold", 0.9)
	v.SetDefault("classifier.require_trend_alignment", true)

	v.SetDefault("grid.spacing_atr", 1.0)
	v.SetDefault("grid.entry_buffer_atr", 0.1)
	v.SetDefault("grid.bracket_atr", 1.0)
	v.SetDefault("grid.bracket_pad_atr", 0.1)
	v.SetDefault("grid.min_ticks", 5)
	v.SetDefault("grid.min_distance_pct", 0.002)
	v.SetDefault("grid.trailing.enabled", true)
	v.SetDefault("grid.trailing.activation_atr", 0.5)
	v.SetDefault("grid.trailing.callback_factor", 1.0)
	v.SetDefault("grid.trailing.min_callback", 0.1)
	v.SetDefault("grid.trailing.max_callback", 5.0)

	v.SetDefault("risk.max_daily_loss", 0.0)
	v.SetDefault("risk.daily_loss_reset_hour", 0)

	v.SetDefault("database.path", "data/fuzzy_grid.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("pnl_log.file.path", "profit_loss_logs.txt")
	v.SetDefault("pnl_log.file.max_size_mb", 10)
	v.SetDefault("pnl_log.file.max_backups", 10)
	v.SetDefault("pnl_log.file.max_age_days", 0)
	v.SetDefault("pnl_log.file.compress", false)

	v.SetDefault("monitor.port", 0)

	v.SetDefault("scheduler.loop_interval", "10s")
	v.SetDefault("scheduler.tick_timeout", "30s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
