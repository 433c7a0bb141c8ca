// Package config reads and validates the dealerdiff configuration.
//
// Values are taken from a yaml file, then overridden by environment
// variables (optionally loaded from a .env file). Credentials are usually
// passed via the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dealerdiff/dealerdiff/internal/types"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GlobalConfig holds the browser and timing settings shared by all vehicles.
type GlobalConfig struct {
	DriverKind           string  `yaml:"driver_kind" env:"BROWSER_DRIVER_TYPE"`
	Headless             bool    `yaml:"headless" env:"HEADLESS_MODE"`
	SettleSeconds        float64 `yaml:"settle_seconds" env:"SETTLE_SECONDS"`
	ClickDelayMS         int     `yaml:"click_delay_ms"`
	WaitStrategy         string  `yaml:"wait_strategy"` // fixed or poll
	WaitTimeoutSeconds   float64 `yaml:"wait_timeout_seconds"`
	NavigationIntervalMS int     `yaml:"navigation_interval_ms"`
	UserAgent            string  `yaml:"user_agent" env:"USER_AGENT"`
	ExecPath             string  `yaml:"exec_path" env:"BROWSER_EXEC_PATH"`
	MaxRetries           int     `yaml:"max_retries"`
}

// SourcesConfig names the two websites. The names end up in the report and
// in error rows, e.g. "Ford.ca Error".
type SourcesConfig struct {
	Manufacturer string `yaml:"manufacturer"`
	Dealer       string `yaml:"dealer"`
}

// Site describes where to find the data of one vehicle on one website.
type Site struct {
	URL              string `yaml:"url"`
	HeroImageURL     string `yaml:"hero_image_url"`
	HeroImageLocator string `yaml:"hero_image_locator"`
	HeroImageAttr    string `yaml:"hero_image_attr,omitempty"`
	ButtonsLocator   string `yaml:"buttons_locator,omitempty"`
	NameLocator      string `yaml:"name_locator"`
	PriceLocator     string `yaml:"price_locator"`
	FirstLineOnly    bool   `yaml:"first_line_only,omitempty"`
}

// Vehicle is one entry of the vehicle table.
type Vehicle struct {
	Model        string `yaml:"model"`
	Skip         bool   `yaml:"skip"`
	Manufacturer Site   `yaml:"manufacturer"`
	Dealer       Site   `yaml:"dealer"`
}

// NavSite describes the navigation menu of one website.
type NavSite struct {
	URL             string `yaml:"url"`
	MainMenuLocator string `yaml:"main_menu_locator"`
	SubMenuLocator  string `yaml:"sub_menu_locator"`
	NameLocator     string `yaml:"name_locator"`
	PriceLocator    string `yaml:"price_locator"`
}

// NavigationConfig configures the navigation menu comparison.
type NavigationConfig struct {
	Skip         bool     `yaml:"skip"`
	Models       []string `yaml:"models"`
	Categories   []string `yaml:"categories"`
	Manufacturer NavSite  `yaml:"manufacturer"`
	Dealer       NavSite  `yaml:"dealer"`
}

// ReportConfig configures the assembled report.
type ReportConfig struct {
	Title           string `yaml:"title"`
	ImageComparison bool   `yaml:"image_comparison"`
}

// WriterConfig defines the necessary paramters to make a new writer
// which is responsible for writing the report to a specific output
// eg. stdout.
type WriterConfig struct {
	Type     string   `yaml:"type"`
	Uri      string   `yaml:"uri"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	DryRun   bool     `yaml:"dryrun"`
	FileDir  string   `yaml:"filedir"`
	Formats  []string `yaml:"formats"`
	// email
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Bcc      string `yaml:"bcc"`
	Subject  string `yaml:"subject"`
}

// HistoryConfig configures the sqlite run history.
type HistoryConfig struct {
	Path string `yaml:"path" env:"HISTORY_PATH"`
}

// MetricsConfig configures pushing run metrics to a Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL"`
	Job            string `yaml:"job"`
}

// Credentials are only ever read from the environment.
type Credentials struct {
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	APIUser      string `env:"API_USER"`
	APIPassword  string `env:"API_PASSWORD"`
}

// Config defines the overall structure of the dealerdiff configuration.
type Config struct {
	Global      GlobalConfig     `yaml:"global"`
	Sources     SourcesConfig    `yaml:"sources"`
	Navigation  NavigationConfig `yaml:"navigation"`
	Vehicles    []Vehicle        `yaml:"vehicles"`
	Report      ReportConfig     `yaml:"report"`
	Writers     []WriterConfig   `yaml:"writers"`
	History     HistoryConfig    `yaml:"history"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Credentials Credentials      `yaml:"-"`
}

// DefaultConfig returns the engineering defaults every config starts from.
func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			DriverKind:         "chrome",
			Headless:           true,
			SettleSeconds:      3,
			ClickDelayMS:       1000,
			WaitStrategy:       WaitStrategyFixed,
			WaitTimeoutSeconds: 15,
			MaxRetries:         3,
		},
		Sources: SourcesConfig{
			Manufacturer: "Manufacturer",
			Dealer:       "Dealer",
		},
		Navigation: NavigationConfig{
			Skip: true,
		},
		Report: ReportConfig{
			Title: "Manufacturer vs Dealer Price Comparison",
		},
		Writers: []WriterConfig{
			{Type: "stdout"},
		},
		Metrics: MetricsConfig{
			Job: "dealerdiff",
		},
	}
}

const (
	WaitStrategyFixed = "fixed"
	WaitStrategyPoll  = "poll"
)

// NewConfig reads the configuration at configPath. A .env file next to the
// working directory is loaded first if it exists so that its values take
// part in the environment overrides.
func NewConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := DefaultConfig()
	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	d := yaml.NewDecoder(file)
	d.KnownFields(true)
	if err := d.Decode(config); err != nil {
		return nil, fmt.Errorf("error decoding config file %s: %w", configPath, err)
	}

	if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}
	slog.Debug(fmt.Sprintf("read config %s with %d vehicles", configPath, len(config.Vehicles)))
	return config, nil
}

// EnabledVehicles returns the vehicles that are not skipped, in
// configuration order.
func (c *Config) EnabledVehicles() []Vehicle {
	result := []Vehicle{}
	for _, v := range c.Vehicles {
		if !v.Skip {
			result = append(result, v)
		}
	}
	return result
}

// Vehicle returns the vehicle with the given model name.
func (c *Config) Vehicle(model string) (Vehicle, bool) {
	for _, v := range c.Vehicles {
		if v.Model == model {
			return v, true
		}
	}
	return Vehicle{}, false
}

// SettleDuration is the pause after navigation.
func (g *GlobalConfig) SettleDuration() time.Duration {
	return time.Duration(g.SettleSeconds * float64(time.Second))
}

// ClickDelay is the pause after clicking a carousel or menu control.
func (g *GlobalConfig) ClickDelay() time.Duration {
	return time.Duration(g.ClickDelayMS) * time.Millisecond
}

// WaitTimeout bounds the polling wait strategy.
func (g *GlobalConfig) WaitTimeout() time.Duration {
	return time.Duration(g.WaitTimeoutSeconds * float64(time.Second))
}

// NavigationInterval is the minimum time between two page loads.
func (g *GlobalConfig) NavigationInterval() time.Duration {
	return time.Duration(g.NavigationIntervalMS) * time.Millisecond
}

// SourceName returns the display name of src.
func (c *Config) SourceName(src types.Source) string {
	if src == types.SourceManufacturer {
		return c.Sources.Manufacturer
	}
	return c.Sources.Dealer
}
