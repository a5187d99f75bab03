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
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Travel    TravelConfig    `yaml:"travel" mapstructure:"travel"`
	Green     GreenConfig     `yaml:"green" mapstructure:"green"`
	Nearest   NearestConfig   `yaml:"nearest" mapstructure:"nearest"`
	Isochrone IsochroneConfig `yaml:"isochrone" mapstructure:"isochrone"`
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures where networks and green features are read from.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// TravelConfig points at an optional YAML mode table.
type TravelConfig struct {
	ModesFile string `yaml:"modes_file" mapstructure:"modes_file"`
}

// GreenConfig configures how land cover becomes green space.
type GreenConfig struct {
	PixelAreaSqm float64 `yaml:"pixel_area_sqm" mapstructure:"pixel_area_sqm"`
	Codes        []int   `yaml:"codes" mapstructure:"codes"`
	Strategy     string  `yaml:"strategy" mapstructure:"strategy"`
	MaxPixels    int     `yaml:"max_pixels" mapstructure:"max_pixels"`
	CellSizeDeg  float64 `yaml:"cell_size_deg" mapstructure:"cell_size_deg"`
}

// NearestConfig tunes the nearest-green search.
type NearestConfig struct {
	LowWater      int     `yaml:"low_water" mapstructure:"low_water"`
	HighWater     int     `yaml:"high_water" mapstructure:"high_water"`
	MaxCandidates int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	BatchSize     int     `yaml:"batch_size" mapstructure:"batch_size"`
	CutoffMeters  float64 `yaml:"cutoff_meters" mapstructure:"cutoff_meters"`
	StrictExtent  bool    `yaml:"strict_extent" mapstructure:"strict_extent"`
}

// IsochroneConfig selects the reach expansion.
type IsochroneConfig struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy"`
}

// EngineConfig bounds engine fan-out.
type EngineConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GREENTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.schema", "osm")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("green.pixel_area_sqm", 100.0)
	v.SetDefault("green.codes", []int{10, 20, 30, 60, 95, 100})
	v.SetDefault("green.strategy", "components")
	v.SetDefault("green.max_pixels", 10000)
	v.SetDefault("green.cell_size_deg", 0.001)
	v.SetDefault("nearest.low_water", 2000)
	v.SetDefault("nearest.high_water", 10000)
	v.SetDefault("nearest.max_candidates", 5000)
	v.SetDefault("nearest.batch_size", 100)
	v.SetDefault("nearest.cutoff_meters", 100000.0)
	v.SetDefault("nearest.strict_extent", false)
	v.SetDefault("isochrone.strategy", "dijkstra")
	v.SetDefault("engine.max_concurrency", 4)

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

// Validate checks value ranges and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}
	if c.Green.PixelAreaSqm <= 0 {
		problems = append(problems, "green.pixel_area_sqm must be > 0")
	}
	switch c.Green.Strategy {
	case "components", "pixels":
	default:
		problems = append(problems, "green.strategy must be components or pixels")
	}
	if c.Nearest.LowWater < 1 || c.Nearest.HighWater < c.Nearest.LowWater {
		problems = append(problems, "nearest.low_water must be >= 1 and <= nearest.high_water")
	}
	if c.Nearest.MaxCandidates < 1 {
		problems = append(problems, "nearest.max_candidates must be >= 1")
	}
	if c.Nearest.BatchSize < 1 {
		problems = append(problems, "nearest.batch_size must be >= 1")
	}
	if c.Nearest.CutoffMeters <= 0 {
		problems = append(problems, "nearest.cutoff_meters must be > 0")
	}
	switch c.Isochrone.Strategy {
	case "dijkstra", "flood":
	default:
		problems = append(problems, "isochrone.strategy must be dijkstra or flood")
	}
	if c.Engine.MaxConcurrency < 1 || c.Engine.MaxConcurrency > 64 {
		problems = append(problems, "engine.max_concurrency must be between 1 and 64")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
