// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for steadyhand.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Drivers DriversConfig `mapstructure:"drivers" yaml:"drivers"`
	Proxy   ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	Logs    LogsConfig    `mapstructure:"logs" yaml:"logs"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
	Run     RunConfig     `mapstructure:"run" yaml:"run"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects the browser and where it runs.
type BrowserConfig struct {
	// Kind is one of chrome, firefox or edge.
	Kind string `mapstructure:"kind" yaml:"kind"`
	// RemoteURL switches to remote execution when non-empty.
	RemoteURL         string `mapstructure:"remote_url" yaml:"remote_url"`
	ChromeUserDataDir string `mapstructure:"chrome_user_data_dir" yaml:"chrome_user_data_dir"`
	FirefoxBinary     string `mapstructure:"firefox_binary" yaml:"firefox_binary"`
	EdgeBinary        string `mapstructure:"edge_binary" yaml:"edge_binary"`
}

// DriversConfig locates the local driver-service installation.
type DriversConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Version   string `mapstructure:"version" yaml:"version"`
}

// ProxyConfig is the outbound HTTP proxy injected into every capability set.
type ProxyConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
	// Capture starts a local recording proxy in front of Host:Port.
	Capture bool `mapstructure:"capture" yaml:"capture"`
}

// Address joins host and port. It is empty unless both are set.
func (p ProxyConfig) Address() string {
	if p.Host == "" || p.Port == "" {
		return ""
	}
	return p.Host + ":" + p.Port
}

// LogsConfig tunes the log capture pipeline.
type LogsConfig struct {
	// ConsoleAllowList names the engines whose console buffer may be polled
	// through a remote endpoint.
	ConsoleAllowList []string `mapstructure:"console_allow_list" yaml:"console_allow_list"`
	// DriverLogFile, when set, is tailed into the application log.
	DriverLogFile string `mapstructure:"driver_log_file" yaml:"driver_log_file"`
	BufferLevel   string `mapstructure:"buffer_level" yaml:"buffer_level"`
}

// ReportConfig configures attachment sinks.
type ReportConfig struct {
	Directory     string `mapstructure:"directory" yaml:"directory"`
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	DatabaseURL   string `mapstructure:"database_url" yaml:"database_url"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	File    string `mapstructure:"file" yaml:"file"`
}

// RunConfig configures the smoke runner.
type RunConfig struct {
	Workers       int           `mapstructure:"workers" yaml:"workers"`
	URL           string        `mapstructure:"url" yaml:"url"`
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "steadyhand")
	v.SetDefault("logger.log_file", "steadyhand.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.kind", "chrome")
	v.SetDefault("browser.remote_url", "")

	// -- Drivers --
	v.SetDefault("drivers.directory", "drivers")
	v.SetDefault("drivers.version", "1.52.0")

	// -- Proxy --
	v.SetDefault("proxy.capture", false)

	// -- Logs --
	v.SetDefault("logs.console_allow_list", []string{"chrome", "chromium", "msedge", "edge"})
	v.SetDefault("logs.buffer_level", "info")

	// -- Report --
	v.SetDefault("report.directory", "target/report")
	v.SetDefault("report.screenshot_dir", "target/screenshots")

	// -- Tracing --
	v.SetDefault("tracing.enabled", false)

	// -- Run --
	v.SetDefault("run.workers", 1)
	v.SetDefault("run.url", "about:blank")
	v.SetDefault("run.action_timeout", "5s")
}

// BindEnvironment maps the conventional unprefixed environment names onto config keys.
func BindEnvironment(v *viper.Viper) {
	_ = v.BindEnv("browser.kind", "STEADYHAND_BROWSER_KIND", "BROWSER")
	_ = v.BindEnv("browser.remote_url", "STEADYHAND_BROWSER_REMOTE_URL", "REMOTE_URL")
	_ = v.BindEnv("browser.chrome_user_data_dir", "STEADYHAND_BROWSER_CHROME_USER_DATA_DIR", "SEL_CHROME_USER_DATA_DIR")
	_ = v.BindEnv("browser.firefox_binary", "STEADYHAND_BROWSER_FIREFOX_BINARY", "MOZ_FIREFOX_BINARY")
	_ = v.BindEnv("proxy.host", "STEADYHAND_PROXY_HOST", "HTTP_PROXY_HOST")
	_ = v.BindEnv("proxy.port", "STEADYHAND_PROXY_PORT", "HTTP_PROXY_PORT")
	_ = v.BindEnv("report.database_url", "STEADYHAND_REPORT_DATABASE_URL", "DATABASE_URL")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	BindEnvironment(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// http.proxyHost style keys are accepted as an alias for the proxy section.
	if cfg.Proxy.Host == "" {
		cfg.Proxy.Host = v.GetString("http.proxyhost")
		if cfg.Proxy.Port == "" {
			cfg.Proxy.Port = v.GetString("http.proxyport")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Browser.Kind) {
	case "chrome", "firefox", "edge":
	default:
		return fmt.Errorf("browser.kind must be one of chrome, firefox, edge (got %q)", c.Browser.Kind)
	}
	if c.Proxy.Port != "" {
		if _, err := strconv.Atoi(c.Proxy.Port); err != nil {
			return fmt.Errorf("proxy.port must be numeric: %w", err)
		}
	}
	if c.Report.DatabaseURL != "" {
		if _, err := url.Parse(c.Report.DatabaseURL); err != nil {
			return fmt.Errorf("report.database_url is not a valid url: %w", err)
		}
	}
	if c.Run.Workers <= 0 {
		return fmt.Errorf("run.workers must be a positive integer")
	}
	if c.Run.ActionTimeout <= 0 {
		return fmt.Errorf("run.action_timeout must be a positive duration")
	}
	return nil
}
