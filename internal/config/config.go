package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"pairwatch/internal/logging"
)

// minIntervalFloor is the lowest polling floor an operator may configure.
const minIntervalFloor = 5 * time.Second

// legacyTokenEnv is honoured when telegram.bot_token is not configured.
const legacyTokenEnv = "TELEGRAM_BOT_TOKEN"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Market   MarketConfig   `mapstructure:"market"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// TelegramConfig describes the bot connection.
type TelegramConfig struct {
	BotToken    string        `mapstructure:"bot_token"`
	APIBase     string        `mapstructure:"api_base"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	// AllowedChats restricts the bot to these chat ids; empty allows all.
	AllowedChats []int64 `mapstructure:"allowed_chats"`
}

// MarketConfig covers the upstream market data API. URLs are templates in
// which {pair} is substituted.
type MarketConfig struct {
	PriceURL       string        `mapstructure:"price_url"`
	TradesURL      string        `mapstructure:"trades_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// WatchConfig seeds new subscribers and bounds their settings.
type WatchConfig struct {
	DefaultPair     string          `mapstructure:"default_pair"`
	DefaultInterval time.Duration   `mapstructure:"default_interval"`
	MinInterval     time.Duration   `mapstructure:"min_interval"`
	DefaultMinUSD   decimal.Decimal `mapstructure:"default_min_usd"`
	OrderKey        string          `mapstructure:"order_key"`
}

// RedisConfig enables the shared price cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PriceTTL time.Duration `mapstructure:"price_ttl"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the alert journal.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PAIRWATCH")
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

	if cfg.Telegram.BotToken == "" {
		cfg.Telegram.BotToken = strings.TrimSpace(os.Getenv(legacyTokenEnv))
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
	v.SetDefault("app.name", "pairwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "10s")
	v.SetDefault("telegram.send_timeout", "10s")
	v.SetDefault("telegram.allowed_chats", []int64{})

	v.SetDefault("market.price_url", "https://api.dexscreener.com/latest/dex/pairs/solana/{pair}")
	v.SetDefault("market.trades_url", "")
	v.SetDefault("market.request_timeout", "10s")
	v.SetDefault("market.user_agent", "")

	v.SetDefault("watch.default_pair", "")
	v.SetDefault("watch.default_interval", "60s")
	v.SetDefault("watch.min_interval", "10s")
	v.SetDefault("watch.default_min_usd", "0")
	v.SetDefault("watch.order_key", "timestamp")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.price_ttl", "5s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToDecimalHookFunc(),
		)
	}
}

// stringToDecimalHookFunc decodes strings and numbers into decimal.Decimal.
func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(value)
			if cleaned == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(cleaned)
		case int:
			return decimal.NewFromInt(int64(value)), nil
		case int64:
			return decimal.NewFromInt(value), nil
		case float64:
			return decimal.NewFromFloat(value), nil
		default:
			return data, nil
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Watch.MinInterval < minIntervalFloor {
		return fmt.Errorf("watch.min_interval must be at least %s", minIntervalFloor)
	}
	if c.Watch.DefaultInterval < c.Watch.MinInterval {
		return fmt.Errorf("watch.default_interval (%s) is below watch.min_interval (%s)", c.Watch.DefaultInterval, c.Watch.MinInterval)
	}
	if c.Watch.DefaultMinUSD.IsNegative() {
		return fmt.Errorf("watch.default_min_usd cannot be negative")
	}
	switch strings.ToLower(c.Watch.OrderKey) {
	case "timestamp", "sequence":
	default:
		return fmt.Errorf("watch.order_key must be timestamp or sequence, got %q", c.Watch.OrderKey)
	}
	if c.Market.RequestTimeout <= 0 {
		return fmt.Errorf("market.request_timeout must be greater than zero")
	}
	if c.Telegram.PollTimeout <= 0 {
		return fmt.Errorf("telegram.poll_timeout must be greater than zero")
	}
	if c.Redis.Addr != "" && c.Redis.PriceTTL <= 0 {
		return fmt.Errorf("redis.price_ttl must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// RequireBot checks the settings needed to run the long-lived bot.
func (c *Config) RequireBot() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required (or set %s)", legacyTokenEnv)
	}
	return nil
}

// Allowed reports whether chatID may use the bot.
func (t TelegramConfig) Allowed(chatID int64) bool {
	return len(t.AllowedChats) == 0 || lo.Contains(t.AllowedChats, chatID)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
