package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"oracle-miss-alerts/internal/logging"
	"oracle-miss-alerts/internal/snapshot"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ChainConfig covers Symphony REST API access.
type ChainConfig struct {
	APIBase           string        `mapstructure:"api_base"`
	Denom             string        `mapstructure:"denom"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	FetchWorkers      int           `mapstructure:"fetch_workers"`
	PageLimit         int           `mapstructure:"page_limit"`
}

// MonitorConfig governs the monitoring cycle.
type MonitorConfig struct {
	Interval            time.Duration `mapstructure:"interval"`
	LowBalanceThreshold float64       `mapstructure:"low_balance_threshold"`
	RunAtStart          bool          `mapstructure:"run_at_start"`
	StartupDelay        time.Duration `mapstructure:"startup_delay"`
	MaxRowsPerSection   int           `mapstructure:"max_rows_per_section"`
	ReportTitle         string        `mapstructure:"report_title"`
}

// LowBalanceThresholdBase returns the low-balance cutoff converted from
// display units (MLD) to base units (note).
func (c MonitorConfig) LowBalanceThresholdBase() decimal.Decimal {
	return decimal.NewFromFloat(c.LowBalanceThreshold).Mul(snapshot.NoteUnitsPerMLD)
}

// AlertingConfig selects and parameterises the report destination.
type AlertingConfig struct {
	Destination string         `mapstructure:"destination"`
	Discord     DiscordConfig  `mapstructure:"discord"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
}

// DiscordConfig 描述 Discord 频道投递参数。
type DiscordConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChannelID      string        `mapstructure:"channel_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MetricsConfig sets the optional Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables win over file entries
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ORACLEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "oraclewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("chain.api_base", "https://rest.cosmos.directory/symphony")
	v.SetDefault("chain.denom", snapshot.BaseDenom)
	v.SetDefault("chain.request_timeout", "10s")
	v.SetDefault("chain.max_attempts", 3)
	v.SetDefault("chain.retry_base_delay", "250ms")
	v.SetDefault("chain.requests_per_second", 8.0)
	v.SetDefault("chain.fetch_workers", 8)
	v.SetDefault("chain.page_limit", 200)

	v.SetDefault("monitor.interval", "5m")
	v.SetDefault("monitor.low_balance_threshold", 1.0)
	v.SetDefault("monitor.run_at_start", true)
	v.SetDefault("monitor.startup_delay", "0s")
	v.SetDefault("monitor.max_rows_per_section", 10)

	v.SetDefault("alerting.destination", "discord")
	v.SetDefault("alerting.discord.api_base", "https://discord.com/api/v10")
	v.SetDefault("alerting.discord.request_timeout", "10s")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.request_timeout", "10s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9311")
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

// Validate performs structural sanity checks on the configuration values.
// Delivery credentials are checked separately by ValidateDelivery so that
// commands that never deliver (preview, version) run without them.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be greater than zero")
	}
	if c.Monitor.LowBalanceThreshold < 0 {
		return fmt.Errorf("monitor.low_balance_threshold cannot be negative")
	}
	if c.Monitor.MaxRowsPerSection <= 0 {
		return fmt.Errorf("monitor.max_rows_per_section must be greater than zero")
	}
	if c.Chain.APIBase == "" {
		return fmt.Errorf("chain.api_base must be configured")
	}
	if c.Chain.FetchWorkers <= 0 {
		return fmt.Errorf("chain.fetch_workers must be greater than zero")
	}
	if c.Alerting.Destination != "discord" && c.Alerting.Destination != "telegram" {
		return fmt.Errorf("alerting.destination 必须为 discord 或 telegram, 实际 %q", c.Alerting.Destination)
	}
	return nil
}

// ValidateDelivery checks that the selected destination carries its
// credential and target id. Failure here is startup-fatal for the
// monitoring commands, never a cycle error.
func (c *Config) ValidateDelivery() error {
	switch c.Alerting.Destination {
	case "discord":
		if c.Alerting.Discord.BotToken == "" {
			return fmt.Errorf("alerting.discord.bot_token 必须配置")
		}
		if c.Alerting.Discord.ChannelID == "" {
			return fmt.Errorf("alerting.discord.channel_id 必须配置")
		}
	case "telegram":
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveThreshold returns the CLI override converted to base units when
// set, otherwise the configured cutoff.
func (c *Config) ResolveThreshold(override float64) decimal.Decimal {
	if override > 0 {
		return decimal.NewFromFloat(override).Mul(snapshot.NoteUnitsPerMLD)
	}
	return c.Monitor.LowBalanceThresholdBase()
}
