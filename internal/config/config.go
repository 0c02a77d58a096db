package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Collectors CollectorsConfig `yaml:"collectors" mapstructure:"collectors"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CollectorsConfig enables and configures each pricing data source.
type CollectorsConfig struct {
	Yelp     YelpConfig     `yaml:"yelp" mapstructure:"yelp"`
	Places   PlacesConfig   `yaml:"places" mapstructure:"places"`
	Website  WebsiteConfig  `yaml:"website" mapstructure:"website"`
	Delivery DeliveryConfig `yaml:"delivery" mapstructure:"delivery"`
	Manual   ManualConfig   `yaml:"manual" mapstructure:"manual"`
	Demo     bool           `yaml:"demo" mapstructure:"demo"`
}

// YelpConfig holds Yelp Fusion API settings.
type YelpConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxResults  int     `yaml:"max_results" mapstructure:"max_results"`
}

// PlacesConfig holds Google Places API settings.
type PlacesConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// WebsiteTarget names one competitor menu page to scrape.
type WebsiteTarget struct {
	Name    string  `yaml:"name" mapstructure:"name"`
	Address string  `yaml:"address" mapstructure:"address"`
	MenuURL string  `yaml:"menu_url" mapstructure:"menu_url"`
	Lat     float64 `yaml:"lat" mapstructure:"lat"`
	Lng     float64 `yaml:"lng" mapstructure:"lng"`
}

// WebsiteConfig holds restaurant-website scrape settings.
type WebsiteConfig struct {
	Enabled     bool            `yaml:"enabled" mapstructure:"enabled"`
	Targets     []WebsiteTarget `yaml:"targets" mapstructure:"targets"`
	TimeoutSecs int             `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// DeliveryConfig holds delivery-platform API settings.
type DeliveryConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	PlatformName string  `yaml:"platform_name" mapstructure:"platform_name"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ManualConfig points at a YAML file of manually entered observations.
type ManualConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "pricing.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("collectors.yelp.base_url", "https://api.yelp.com/v3")
	v.SetDefault("collectors.yelp.timeout_secs", 15)
	v.SetDefault("collectors.yelp.rate_per_sec", 3)
	v.SetDefault("collectors.yelp.max_results", 20)
	v.SetDefault("collectors.places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("collectors.places.timeout_secs", 15)
	v.SetDefault("collectors.places.rate_per_sec", 3)
	v.SetDefault("collectors.website.timeout_secs", 20)
	v.SetDefault("collectors.delivery.platform_name", "DoorDash")
	v.SetDefault("collectors.delivery.timeout_secs", 15)
	v.SetDefault("collectors.delivery.rate_per_sec", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}
	if c.Collectors.Yelp.Enabled && c.Collectors.Yelp.APIKey == "" {
		problems = append(problems, "collectors.yelp.api_key is required when yelp is enabled")
	}
	if c.Collectors.Places.Enabled && c.Collectors.Places.APIKey == "" {
		problems = append(problems, "collectors.places.api_key is required when places is enabled")
	}
	if c.Collectors.Website.Enabled && len(c.Collectors.Website.Targets) == 0 {
		problems = append(problems, "collectors.website.targets is required when website is enabled")
	}
	if c.Collectors.Delivery.Enabled && c.Collectors.Delivery.APIKey == "" {
		problems = append(problems, "collectors.delivery.api_key is required when delivery is enabled")
	}
	if c.Collectors.Manual.Enabled && c.Collectors.Manual.Path == "" {
		problems = append(problems, "collectors.manual.path is required when manual is enabled")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
