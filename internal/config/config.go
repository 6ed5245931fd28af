package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tradewatch/internal/logging"
	"tradewatch/internal/units"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Detector DetectorConfig `mapstructure:"detector"`
	History  HistoryConfig  `mapstructure:"history"`
	Market   MarketConfig   `mapstructure:"market"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ChainConfig covers the Polygon RPC endpoint and the watched contracts.
type ChainConfig struct {
	RPCURL                 string        `mapstructure:"rpc_url"`
	USDCAddress            string        `mapstructure:"usdc_address"`
	CTFExchangeAddress     string        `mapstructure:"ctf_exchange_address"`
	NegRiskExchangeAddress string        `mapstructure:"negrisk_exchange_address"`
	ShareTokenAddress      string        `mapstructure:"share_token_address"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	RequestTimeout         time.Duration `mapstructure:"request_timeout"`
	BackoffInitial         time.Duration `mapstructure:"backoff_initial"`
	BackoffMax             time.Duration `mapstructure:"backoff_max"`
}

// DetectorConfig tunes trade qualification.
type DetectorConfig struct {
	MinNotional string `mapstructure:"min_notional"`
	MaxInFlight int    `mapstructure:"max_in_flight"`
}

// HistoryConfig sizes the in-memory recent trade buffer.
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// MarketConfig points at the market metadata API.
type MarketConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ServerConfig covers the combined HTTP + websocket listener.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the trade archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ApplicationName string        `mapstructure:"application_name"`
}

// ArchiveConfig controls retention of archived trades.
type ArchiveConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
	LockKey       int64         `mapstructure:"lock_key"`
}

// AlertingConfig defines large-trade alert routing.
type AlertingConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	MinNotional string         `mapstructure:"min_notional"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// AMQPConfig enables publishing trades to a RabbitMQ topic exchange.
type AMQPConfig struct {
	URL           string `mapstructure:"url"`
	Exchange      string `mapstructure:"exchange"`
	RoutingPrefix string `mapstructure:"routing_prefix"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// legacyEnv maps config keys to the unprefixed environment names older deployments used.
var legacyEnv = map[string][]string{
	"chain.rpc_url":         {"POLYGON_RPC_URL", "POLYGON_WSS_URL"},
	"server.port":           {"PORT", "WS_PORT"},
	"detector.min_notional": {"MIN_USDC"},
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TRADEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

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
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, names := range legacyEnv {
		envName := "TRADEWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, envName}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tradewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("chain.usdc_address", "0x2791bca1f2de4661ed88a30c99a7a9449aa84174")
	v.SetDefault("chain.ctf_exchange_address", "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e")
	v.SetDefault("chain.negrisk_exchange_address", "0xc5d563a36ae78145c45a50134d48a1215220f80a")
	v.SetDefault("chain.share_token_address", "0x4d97dcd97ec945f40cf65f87097ace5ea0476045")
	v.SetDefault("chain.poll_interval", "4s")
	v.SetDefault("chain.request_timeout", "15s")
	v.SetDefault("chain.backoff_initial", "1s")
	v.SetDefault("chain.backoff_max", "30s")

	v.SetDefault("detector.min_notional", "500")
	v.SetDefault("detector.max_in_flight", 16)

	v.SetDefault("history.capacity", 100)

	v.SetDefault("market.base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("market.request_timeout", "10s")
	v.SetDefault("market.user_agent", "tradewatch/1.0")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.heartbeat_interval", "30s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"https://*", "http://*"})

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.connect_timeout", "5s")
	v.SetDefault("database.application_name", "tradewatch")

	v.SetDefault("archive.retention", "720h")
	v.SetDefault("archive.prune_schedule", "@hourly")
	v.SetDefault("archive.lock_key", 74726164)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_notional", "10000")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("amqp.exchange", "tradewatch.trades")
	v.SetDefault("amqp.routing_prefix", "trade")

	v.SetDefault("export.max_data_points", 100000)
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if _, err := units.ToUnits(c.Detector.MinNotional, units.USDCDecimals); err != nil {
		return fmt.Errorf("detector.min_notional: %w", err)
	}
	if c.Detector.MaxInFlight <= 0 {
		return fmt.Errorf("detector.max_in_flight must be greater than zero")
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be greater than zero")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.HeartbeatInterval <= 0 {
		return fmt.Errorf("server.heartbeat_interval must be greater than zero")
	}
	if c.Chain.PollInterval <= 0 {
		return fmt.Errorf("chain.poll_interval must be greater than zero")
	}
	if c.Chain.BackoffInitial <= 0 || c.Chain.BackoffMax < c.Chain.BackoffInitial {
		return fmt.Errorf("chain.backoff_initial must be positive and not exceed chain.backoff_max")
	}
	for key, addr := range map[string]string{
		"chain.usdc_address":             c.Chain.USDCAddress,
		"chain.ctf_exchange_address":     c.Chain.CTFExchangeAddress,
		"chain.negrisk_exchange_address": c.Chain.NegRiskExchangeAddress,
		"chain.share_token_address":      c.Chain.ShareTokenAddress,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", key, addr)
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Enabled {
		if _, err := units.ToUnits(c.Alerting.MinNotional, units.USDCDecimals); err != nil {
			return fmt.Errorf("alerting.min_notional: %w", err)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
