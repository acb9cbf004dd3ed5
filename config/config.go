// Package config loads process configuration from the environment, an
// optional .env file and an optional YAML overlay named by CONFIG_FILE.
//
// Precedence, lowest first: built-in defaults, YAML overlay, environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"coinstream/internal/model"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Price source modes.
const (
	SourceAuto      = "auto"
	SourceLive      = "live"
	SourceSimulated = "simulated"
)

// Config holds all application configuration.
type Config struct {
	ListenAddr  string
	MetricsAddr string

	// Market
	Symbols        []string
	QuoteAsset     string
	Timeframes     []model.Timeframe
	PriceSource    string
	PriceTimeout   time.Duration
	BinanceBaseURL string
	SimSeed        int64
	BasePrices     map[string]float64

	// Job intervals
	PriceInterval     time.Duration
	OverviewInterval  time.Duration
	SentimentInterval time.Duration
	NewsInterval      time.Duration
	StrategyInterval  time.Duration

	// Infrastructure
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ClientBuffer int
	WarmupBars   int

	// Notifications
	AlertWebhookURL  string
	TelegramBotToken string
	TelegramChatID   string

	LogLevel string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:        ":8080",
		MetricsAddr:       ":9090",
		Symbols:           []string{"BTC", "ETH", "ADA", "SOL", "DOT", "LINK"},
		QuoteAsset:        "USDT",
		Timeframes:        []model.Timeframe{"1m", "1h", "1d"},
		PriceSource:       SourceAuto,
		PriceTimeout:      4 * time.Second,
		SimSeed:           42,
		PriceInterval:     5 * time.Second,
		OverviewInterval:  30 * time.Second,
		SentimentInterval: 300 * time.Second,
		NewsInterval:      600 * time.Second,
		StrategyInterval:  900 * time.Second,
		SQLitePath:        "data/coinstream.db",
		ClientBuffer:      256,
		WarmupBars:        50,
		LogLevel:          "info",
	}
}

// fileConfig is the YAML overlay. Absent keys leave defaults untouched.
type fileConfig struct {
	Symbols     []string           `yaml:"symbols"`
	QuoteAsset  string             `yaml:"quote_asset"`
	Timeframes  []string           `yaml:"timeframes"`
	PriceSource string             `yaml:"price_source"`
	BasePrices  map[string]float64 `yaml:"base_prices"`
	Intervals   struct {
		Price     time.Duration `yaml:"price"`
		Overview  time.Duration `yaml:"overview"`
		Sentiment time.Duration `yaml:"sentiment"`
		News      time.Duration `yaml:"news"`
		Strategy  time.Duration `yaml:"strategy"`
	} `yaml:"intervals"`
}

// Load reads .env (if present), the CONFIG_FILE overlay (if set) and the
// environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if len(fc.Symbols) > 0 {
		c.Symbols = normalizeSymbols(fc.Symbols)
	}
	if fc.QuoteAsset != "" {
		c.QuoteAsset = strings.ToUpper(fc.QuoteAsset)
	}
	if len(fc.Timeframes) > 0 {
		tfs, err := ParseTimeframes(strings.Join(fc.Timeframes, ","))
		if err != nil {
			return fmt.Errorf("config: %s: %w", path, err)
		}
		c.Timeframes = tfs
	}
	if fc.PriceSource != "" {
		c.PriceSource = fc.PriceSource
	}
	if len(fc.BasePrices) > 0 {
		c.BasePrices = make(map[string]float64, len(fc.BasePrices))
		for sym, p := range fc.BasePrices {
			c.BasePrices[strings.ToUpper(sym)] = p
		}
	}
	setDuration(&c.PriceInterval, fc.Intervals.Price)
	setDuration(&c.OverviewInterval, fc.Intervals.Overview)
	setDuration(&c.SentimentInterval, fc.Intervals.Sentiment)
	setDuration(&c.NewsInterval, fc.Intervals.News)
	setDuration(&c.StrategyInterval, fc.Intervals.Strategy)
	return nil
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func (c *Config) applyEnv() error {
	var errs []error

	envString(&c.ListenAddr, "LISTEN_ADDR")
	envString(&c.MetricsAddr, "METRICS_ADDR")
	if v, ok := os.LookupEnv("SYMBOLS"); ok {
		c.Symbols = normalizeSymbols(strings.Split(v, ","))
	}
	if v, ok := os.LookupEnv("QUOTE_ASSET"); ok {
		c.QuoteAsset = strings.ToUpper(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv("TIMEFRAMES"); ok {
		tfs, err := ParseTimeframes(v)
		errs = append(errs, err)
		if err == nil {
			c.Timeframes = tfs
		}
	}
	envString(&c.PriceSource, "PRICE_SOURCE")
	envString(&c.BinanceBaseURL, "BINANCE_BASE_URL")
	errs = append(errs,
		envDuration(&c.PriceTimeout, "PRICE_TIMEOUT"),
		envDuration(&c.PriceInterval, "PRICE_INTERVAL"),
		envDuration(&c.OverviewInterval, "OVERVIEW_INTERVAL"),
		envDuration(&c.SentimentInterval, "SENTIMENT_INTERVAL"),
		envDuration(&c.NewsInterval, "NEWS_INTERVAL"),
		envDuration(&c.StrategyInterval, "STRATEGY_INTERVAL"),
	)
	if v, ok := os.LookupEnv("SIM_SEED"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SIM_SEED: %w", err))
		}
		c.SimSeed = n
	}

	envString(&c.SQLitePath, "SQLITE_PATH")
	envString(&c.RedisAddr, "REDIS_ADDR")
	envString(&c.RedisPassword, "REDIS_PASSWORD")
	errs = append(errs,
		envInt(&c.RedisDB, "REDIS_DB"),
		envInt(&c.ClientBuffer, "CLIENT_BUFFER"),
		envInt(&c.WarmupBars, "WARMUP_BARS"),
	)

	envString(&c.AlertWebhookURL, "ALERT_WEBHOOK_URL")
	envString(&c.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	envString(&c.TelegramChatID, "TELEGRAM_CHAT_ID")
	envString(&c.LogLevel, "LOG_LEVEL")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate reports settings the process cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("no symbols configured"))
	}
	if len(c.Timeframes) == 0 {
		errs = append(errs, errors.New("no timeframes configured"))
	}
	for _, tf := range c.Timeframes {
		if tf.Duration() == 0 {
			errs = append(errs, fmt.Errorf("unknown timeframe %q", tf))
		}
	}
	switch c.PriceSource {
	case SourceAuto, SourceLive, SourceSimulated:
	default:
		errs = append(errs, fmt.Errorf("PRICE_SOURCE must be auto, live or simulated, got %q", c.PriceSource))
	}
	for _, iv := range []struct {
		name string
		d    time.Duration
	}{
		{"PRICE_INTERVAL", c.PriceInterval},
		{"OVERVIEW_INTERVAL", c.OverviewInterval},
		{"SENTIMENT_INTERVAL", c.SentimentInterval},
		{"NEWS_INTERVAL", c.NewsInterval},
		{"STRATEGY_INTERVAL", c.StrategyInterval},
		{"PRICE_TIMEOUT", c.PriceTimeout},
	} {
		if iv.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", iv.name))
		}
	}
	if c.PriceTimeout >= c.PriceInterval {
		errs = append(errs, fmt.Errorf("PRICE_TIMEOUT (%s) must be shorter than PRICE_INTERVAL (%s)", c.PriceTimeout, c.PriceInterval))
	}
	if c.ClientBuffer <= 0 {
		errs = append(errs, errors.New("CLIENT_BUFFER must be positive"))
	}
	if c.WarmupBars < 0 {
		errs = append(errs, errors.New("WARMUP_BARS must not be negative"))
	}
	for sym, p := range c.BasePrices {
		if p <= 0 {
			errs = append(errs, fmt.Errorf("base price for %s must be positive", sym))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseTimeframes parses a comma-separated list such as "1m,1h,1d".
// Duplicates are dropped; order is preserved.
func ParseTimeframes(s string) ([]model.Timeframe, error) {
	seen := make(map[model.Timeframe]bool)
	var tfs []model.Timeframe
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tf, err := model.ParseTimeframe(p)
		if err != nil {
			return nil, err
		}
		if !seen[tf] {
			seen[tf] = true
			tfs = append(tfs, tf)
		}
	}
	return tfs, nil
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func envDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	// bare numbers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
