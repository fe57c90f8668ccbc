package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"market-pulse-alerts/internal/logging"
	"market-pulse-alerts/internal/storage"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database storage.Config `mapstructure:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Monitors MonitorsConfig `mapstructure:"monitors"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// PipelineConfig tunes the dedup/buffer/synthesis core.
type PipelineConfig struct {
	// Mode is "unified" (admitted alerts accumulate toward synthesis) or
	// "individual" (admitted alerts dispatch immediately).
	Mode string `mapstructure:"mode"`

	BaseTick     time.Duration `mapstructure:"base_tick"`
	AlignToStart bool          `mapstructure:"align_to_start"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`

	Cooldown         time.Duration `mapstructure:"cooldown"`
	DedupRetention   time.Duration `mapstructure:"dedup_retention"`
	DedupGCThreshold int           `mapstructure:"dedup_gc_threshold"`

	// Fingerprint specificity. Hashing more material means fewer false
	// duplicates but more repeat spam; see alert.FingerprintSpec.
	FingerprintMaxNumbers    int `mapstructure:"fingerprint_max_numbers"`
	FingerprintMaxFields     int `mapstructure:"fingerprint_max_fields"`
	FingerprintFieldValueLen int `mapstructure:"fingerprint_field_value_len"`

	SynthesisInterval     time.Duration `mapstructure:"synthesis_interval"`
	SynthesisCooldown     time.Duration `mapstructure:"synthesis_cooldown"`
	MinConfluence         float64       `mapstructure:"min_confluence"`
	ExceptionalConfluence float64       `mapstructure:"exceptional_confluence"`
	CriticalMass          int           `mapstructure:"critical_mass"`
	MinAlerts             int           `mapstructure:"min_alerts"`
	BufferCap             int           `mapstructure:"buffer_cap"`
	BufferMaxAge          time.Duration `mapstructure:"buffer_max_age"`

	MonitorTimeout time.Duration `mapstructure:"monitor_timeout"`
}

// MonitorsConfig wires the per-source monitors.
type MonitorsConfig struct {
	UserAgent      string         `mapstructure:"user_agent"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	FedRates       FedRatesConfig `mapstructure:"fedrates"`
	Calendar       CalendarConfig `mapstructure:"calendar"`
	DarkPool       DarkPoolConfig `mapstructure:"darkpool"`
	Trending       TrendingConfig `mapstructure:"trending"`
}

// FedRatesConfig covers the rate-probability monitor.
type FedRatesConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	BaseURL  string        `mapstructure:"base_url"`
	SwingPct float64       `mapstructure:"swing_pct"`
}

// CalendarConfig covers the economic-calendar monitor.
type CalendarConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	BaseURL    string        `mapstructure:"base_url"`
	LeadWindow time.Duration `mapstructure:"lead_window"`
}

// DarkPoolConfig covers the dark-pool level monitor.
type DarkPoolConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Interval          time.Duration `mapstructure:"interval"`
	BaseURL           string        `mapstructure:"base_url"`
	Symbols           []string      `mapstructure:"symbols"`
	TouchTolerancePct float64       `mapstructure:"touch_tolerance_pct"`
}

// TrendingConfig covers the trending-topics monitor.
type TrendingConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BaseURL   string        `mapstructure:"base_url"`
	SpikePct  float64       `mapstructure:"spike_pct"`
	MaxTopics int           `mapstructure:"max_topics"`
}

// WebhookConfig defines the outbound hook sink.
type WebhookConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// HTTPConfig parameterises the REST/WebSocket surface.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int           `mapstructure:"max_data_points"`
	BucketSize    time.Duration `mapstructure:"bucket_size"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PULSEWATCHER")
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
	v.SetDefault("app.name", "pulsewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("pipeline.mode", "unified")
	v.SetDefault("pipeline.base_tick", "30s")
	v.SetDefault("pipeline.align_to_start", true)
	v.SetDefault("pipeline.startup_delay", "0s")
	v.SetDefault("pipeline.cooldown", "120s")
	v.SetDefault("pipeline.dedup_retention", "1h")
	v.SetDefault("pipeline.dedup_gc_threshold", 100)
	v.SetDefault("pipeline.fingerprint_max_numbers", 5)
	v.SetDefault("pipeline.fingerprint_max_fields", 6)
	v.SetDefault("pipeline.fingerprint_field_value_len", 50)
	v.SetDefault("pipeline.synthesis_interval", "60s")
	v.SetDefault("pipeline.synthesis_cooldown", "300s")
	v.SetDefault("pipeline.min_confluence", 70.0)
	v.SetDefault("pipeline.exceptional_confluence", 80.0)
	v.SetDefault("pipeline.critical_mass", 5)
	v.SetDefault("pipeline.min_alerts", 3)
	v.SetDefault("pipeline.buffer_cap", 20)
	v.SetDefault("pipeline.buffer_max_age", "30m")
	v.SetDefault("pipeline.monitor_timeout", "15s")

	v.SetDefault("monitors.user_agent", "pulsewatcher/1.0")
	v.SetDefault("monitors.request_timeout", "10s")
	v.SetDefault("monitors.fedrates.enabled", false)
	v.SetDefault("monitors.fedrates.interval", "5m")
	v.SetDefault("monitors.fedrates.swing_pct", 5.0)
	v.SetDefault("monitors.calendar.enabled", false)
	v.SetDefault("monitors.calendar.interval", "10m")
	v.SetDefault("monitors.calendar.lead_window", "1h")
	v.SetDefault("monitors.darkpool.enabled", false)
	v.SetDefault("monitors.darkpool.interval", "1m")
	v.SetDefault("monitors.darkpool.symbols", []string{"SPY", "QQQ"})
	v.SetDefault("monitors.darkpool.touch_tolerance_pct", 0.1)
	v.SetDefault("monitors.trending.enabled", false)
	v.SetDefault("monitors.trending.interval", "15m")
	v.SetDefault("monitors.trending.spike_pct", 200.0)
	v.SetDefault("monitors.trending.max_topics", 5)

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.username", "pulsewatcher")
	v.SetDefault("webhook.timeout", "10s")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8089")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.bucket_size", "1h")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.retention", "720h")
	v.SetDefault("database.advisory_lock_key", int64(0x70756C73))
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
	switch c.Pipeline.Mode {
	case "unified", "individual":
	default:
		return fmt.Errorf("pipeline.mode must be unified or individual, got %q", c.Pipeline.Mode)
	}
	if c.Pipeline.BaseTick <= 0 {
		return fmt.Errorf("pipeline.base_tick must be greater than zero")
	}
	if c.Pipeline.Cooldown <= 0 {
		return fmt.Errorf("pipeline.cooldown must be greater than zero")
	}
	if c.Pipeline.MinConfluence < 0 || c.Pipeline.MinConfluence > 100 {
		return fmt.Errorf("pipeline.min_confluence must be within [0,100]")
	}
	if c.Pipeline.ExceptionalConfluence < c.Pipeline.MinConfluence {
		return fmt.Errorf("pipeline.exceptional_confluence cannot be below min_confluence")
	}
	if c.Pipeline.CriticalMass <= 0 {
		return fmt.Errorf("pipeline.critical_mass must be greater than zero")
	}
	if c.Pipeline.BufferCap <= 0 {
		return fmt.Errorf("pipeline.buffer_cap must be greater than zero")
	}
	if c.Webhook.Enabled && strings.TrimSpace(c.Webhook.URL) == "" {
		return fmt.Errorf("webhook.url is required when webhook.enabled")
	}
	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr is required when http.enabled")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
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

// Unified reports whether admitted alerts accumulate toward synthesis.
func (c *Config) Unified() bool {
	return c.Pipeline.Mode == "unified"
}
