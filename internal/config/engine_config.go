package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig holds the tracking engine's process-level settings. The
// control plane's GET/PUT config surface exposes exactly the three
// fields marked "control plane" below; of those, only LogLevel can be
// changed in a running process. Everything else is fixed at process start.
type EngineConfig struct {
	MaxConcurrentWorkers int    `mapstructure:"max_concurrent_workers"` // control plane
	MaxBrowsers          int    `mapstructure:"max_browsers"`           // control plane
	LogLevel             string `mapstructure:"log_level"`              // control plane

	ProxyFile        string        `mapstructure:"proxy_file"`
	MinProxyInterval time.Duration `mapstructure:"min_proxy_interval"`
	MaxUsagePerProxy int           `mapstructure:"max_usage_per_proxy"`
	CoolingPeriod    time.Duration `mapstructure:"cooling_period"`

	BrowserMaxAge     time.Duration `mapstructure:"browser_max_age"`
	BrowserResetCount int           `mapstructure:"browser_reset_count"`

	SMTPAddr       string        `mapstructure:"smtp_addr"`
	SMTPFrom       string        `mapstructure:"smtp_from"`
	SMTPUsername   string        `mapstructure:"smtp_username"`
	SMTPPassword   string        `mapstructure:"smtp_password"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`

	DatabaseURL string `mapstructure:"database_url"`
	MQTTBroker  string `mapstructure:"mqtt_broker"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	HTTPAddr    string `mapstructure:"http_addr"`
}

func defaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxConcurrentWorkers: 4,
		MaxBrowsers:          4,
		LogLevel:             "info",
		MinProxyInterval:     3 * time.Second,
		MaxUsagePerProxy:     100,
		CoolingPeriod:        10 * time.Minute,
		BrowserMaxAge:        30 * time.Minute,
		BrowserResetCount:    50,
		WebhookTimeout:       10 * time.Second,
		HTTPAddr:             ":8080",
	}
}

var reloadMu sync.Mutex
var lastReload time.Time

// LoadEngineConfig reads config.yaml (or $TRACKER_CONFIG_FILE) plus TRACKER_*
// environment overrides, and, when onChange is non-nil, wires it to fire
// with a freshly decoded config on subsequent file writes.
func LoadEngineConfig(onChange func(*EngineConfig)) (*EngineConfig, error) {
	cfg := defaultEngineConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("TRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv("TRACKER_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	viper.WatchConfig()
	if onChange != nil {
		viper.OnConfigChange(func(_ fsnotify.Event) {
			reloadMu.Lock()
			defer reloadMu.Unlock()
			if now := time.Now(); now.Sub(lastReload) < 500*time.Millisecond {
				return
			}
			lastReload = time.Now()

			reloaded := defaultEngineConfig()
			if err := viper.Unmarshal(reloaded); err != nil {
				return
			}
			onChange(reloaded)
		})
	}

	return cfg, nil
}
