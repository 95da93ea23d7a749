package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"caucion-rate-alerts/internal/logging"
	"caucion-rate-alerts/internal/market"
	"caucion-rate-alerts/internal/rates"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Market    MarketConfig    `mapstructure:"market"`
	PPI       PPIConfig       `mapstructure:"ppi"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// MarketConfig describes the weekly trading window in market-local time.
type MarketConfig struct {
	OpenHour    int      `mapstructure:"open_hour"`
	OpenMinute  int      `mapstructure:"open_minute"`
	CloseHour   int      `mapstructure:"close_hour"`
	CloseMinute int      `mapstructure:"close_minute"`
	Weekdays    []string `mapstructure:"weekdays"`
}

// PPIConfig covers broker API access.
type PPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PublicKey      string        `mapstructure:"public_key"`
	PrivateKey     string        `mapstructure:"private_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	Tenors         []string      `mapstructure:"tenors"`
}

// TelegramConfig describes the bot identity and privileged chats.
type TelegramConfig struct {
	BotToken  string  `mapstructure:"bot_token"`
	AdminIDs  []int64 `mapstructure:"admin_ids"`
	ChannelID int64   `mapstructure:"channel_id"`
}

// AlertingConfig tunes notification dispatch.
type AlertingConfig struct {
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	Publish         PublishConfig `mapstructure:"publish"`
}

// PublishConfig governs the public channel broadcast.
type PublishConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MinRisePoints float64 `mapstructure:"min_rise_points"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CAUCIONWATCHER")
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
	v.SetDefault("app.name", "caucionwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.startup_delay", "10s")

	// BYMA caución trading hours, Monday through Friday.
	v.SetDefault("market.open_hour", 10)
	v.SetDefault("market.open_minute", 30)
	v.SetDefault("market.close_hour", 16)
	v.SetDefault("market.close_minute", 30)
	v.SetDefault("market.weekdays", []string{"mon", "tue", "wed", "thu", "fri"})

	v.SetDefault("ppi.base_url", "https://clientapi.portfoliopersonal.com")
	v.SetDefault("ppi.request_timeout", "10s")
	v.SetDefault("ppi.user_agent", "caucionwatcher/1.0")
	v.SetDefault("ppi.tenors", []string{"D1", "D2", "D3"})

	v.SetDefault("alerting.delivery_timeout", "10s")
	v.SetDefault("alerting.publish.enabled", false)
	v.SetDefault("alerting.publish.min_rise_points", 5.0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9102")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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

// minInterval is the documented polling floor; anything faster hammers the
// broker for data it refreshes slower than this anyway.
const minInterval = 30 * time.Second

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval < minInterval {
		return fmt.Errorf("scheduler.interval must be at least %s", minInterval)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.DeliveryTimeout <= 0 {
		return fmt.Errorf("alerting.delivery_timeout must be greater than zero")
	}
	if c.Alerting.Publish.Enabled {
		if c.Alerting.Publish.MinRisePoints <= 0 {
			return fmt.Errorf("alerting.publish.min_rise_points must be greater than zero")
		}
		if c.Telegram.ChannelID == 0 {
			return fmt.Errorf("telegram.channel_id must be configured when publishing is enabled")
		}
	}
	if _, err := c.Market.Window(); err != nil {
		return err
	}
	if _, err := c.PPI.TenorList(); err != nil {
		return err
	}
	return nil
}

// Window converts the raw market section into a calendar window.
func (m MarketConfig) Window() (market.Window, error) {
	if m.OpenHour < 0 || m.OpenHour > 23 || m.CloseHour < 0 || m.CloseHour > 23 {
		return market.Window{}, fmt.Errorf("market hours out of range")
	}
	if m.OpenMinute < 0 || m.OpenMinute > 59 || m.CloseMinute < 0 || m.CloseMinute > 59 {
		return market.Window{}, fmt.Errorf("market minutes out of range")
	}
	open := m.OpenHour*60 + m.OpenMinute
	close := m.CloseHour*60 + m.CloseMinute
	if open >= close {
		return market.Window{}, fmt.Errorf("market window must open before it closes")
	}
	if len(m.Weekdays) == 0 {
		return market.Window{}, fmt.Errorf("market.weekdays must not be empty")
	}

	days := make([]time.Weekday, 0, len(m.Weekdays))
	for _, raw := range m.Weekdays {
		day, err := parseWeekday(raw)
		if err != nil {
			return market.Window{}, err
		}
		days = append(days, day)
	}

	return market.Window{
		OpenHour:    m.OpenHour,
		OpenMinute:  m.OpenMinute,
		CloseHour:   m.CloseHour,
		CloseMinute: m.CloseMinute,
		Weekdays:    days,
	}, nil
}

// TenorList converts the raw tenor names into typed tenors.
func (p PPIConfig) TenorList() ([]rates.Tenor, error) {
	tenors := make([]rates.Tenor, 0, len(p.Tenors))
	for _, raw := range p.Tenors {
		tenor := rates.Tenor(strings.ToUpper(strings.TrimSpace(raw)))
		if !tenor.Valid() {
			return nil, fmt.Errorf("unknown tenor %q in ppi.tenors", raw)
		}
		tenors = append(tenors, tenor)
	}
	return tenors, nil
}

// IsAdmin reports whether chatID belongs to the admin allowlist.
func (t TelegramConfig) IsAdmin(chatID int64) bool {
	for _, id := range t.AdminIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func parseWeekday(raw string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	case "sun", "sunday":
		return time.Sunday, nil
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", raw)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
