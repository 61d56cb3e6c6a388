package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cruiseplan/siteselect/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Grid       GridConfig       `yaml:"grid" mapstructure:"grid"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Select     SelectConfig     `yaml:"select" mapstructure:"select"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-bookkeeping database.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	Path        string           `yaml:"path" mapstructure:"path"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PathsConfig names the input layers and the output directory. Legend,
// scoring and areas are optional for commands that do not consume them.
type PathsConfig struct {
	Boundary  string `yaml:"boundary" mapstructure:"boundary"`
	Manifest  string `yaml:"manifest" mapstructure:"manifest"`
	Cover     string `yaml:"cover" mapstructure:"cover"`
	Legend    string `yaml:"legend" mapstructure:"legend"`
	Scoring   string `yaml:"scoring" mapstructure:"scoring"`
	Areas     string `yaml:"areas" mapstructure:"areas"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// GridConfig configures lattice generation.
type GridConfig struct {
	CellAreaHa float64 `yaml:"cell_area_ha" mapstructure:"cell_area_ha"`
	SRID       int     `yaml:"srid" mapstructure:"srid"`
}

// ExtractConfig configures per-tile extraction. Workers 0 means one
// worker per core minus one.
type ExtractConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// SelectConfig configures block aggregation and ranking.
type SelectConfig struct {
	BlockSideM float64 `yaml:"block_side_m" mapstructure:"block_side_m"`
	MaxBlocks  int     `yaml:"max_blocks" mapstructure:"max_blocks"`
}

// ValidationConfig configures reference-plot generation.
type ValidationConfig struct {
	SpacingM     float64 `yaml:"spacing_m" mapstructure:"spacing_m"`
	InnerRadiusM float64 `yaml:"inner_radius_m" mapstructure:"inner_radius_m"`
	OuterRadiusM float64 `yaml:"outer_radius_m" mapstructure:"outer_radius_m"`
	Count        int     `yaml:"count" mapstructure:"count"`
	Seed         uint64  `yaml:"seed" mapstructure:"seed"`
	SharedStream bool    `yaml:"shared_stream" mapstructure:"shared_stream"`
	AreaField    string  `yaml:"area_field" mapstructure:"area_field"`
}

// FetchConfig configures tile raster acquisition.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	Workers     int    `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("SITESELECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "siteselect.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("paths.output_dir", "out")
	v.SetDefault("grid.cell_area_ha", 16)
	v.SetDefault("grid.srid", 3035)
	v.SetDefault("extract.workers", 0)
	v.SetDefault("select.block_side_m", 100000)
	v.SetDefault("select.max_blocks", 150)
	v.SetDefault("validation.spacing_m", 500)
	v.SetDefault("validation.inner_radius_m", 1000)
	v.SetDefault("validation.outer_radius_m", 5000)
	v.SetDefault("validation.count", 20)
	v.SetDefault("validation.area_field", "id")
	v.SetDefault("fetch.user_agent", "siteselect/1.0")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.workers", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the fields a command needs before it starts. Mode is
// the command name; each mode checks only the inputs it consumes, so a
// fetch-only deployment does not have to configure scoring inputs.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	switch mode {
	case "run", "extract":
		problems = append(problems, c.boundaryManifestProblems()...)
		if c.Paths.Cover == "" {
			problems = append(problems, "paths.cover is required")
		}
		problems = append(problems, c.gridProblems()...)
		problems = append(problems, c.selectProblems()...)
		if c.Extract.Workers < 0 || c.Extract.Workers > 64 {
			problems = append(problems, "extract.workers must be between 0 and 64")
		}
	case "grid":
		problems = append(problems, c.boundaryManifestProblems()...)
		problems = append(problems, c.gridProblems()...)
	case "select":
		problems = append(problems, c.boundaryManifestProblems()...)
		problems = append(problems, c.selectProblems()...)
	case "validate":
		problems = append(problems, c.boundaryManifestProblems()...)
		if c.Paths.Areas == "" {
			problems = append(problems, "paths.areas is required")
		}
		if c.Validation.SpacingM <= 0 {
			problems = append(problems, "validation.spacing_m must be > 0")
		}
		if c.Validation.InnerRadiusM < 0 || c.Validation.OuterRadiusM < c.Validation.InnerRadiusM {
			problems = append(problems, "validation radii must satisfy 0 <= inner_radius_m <= outer_radius_m")
		}
		if c.Validation.Count < 1 {
			problems = append(problems, "validation.count must be >= 1")
		}
	case "fetch":
		if c.Paths.Manifest == "" {
			problems = append(problems, "paths.manifest is required")
		}
		if c.Fetch.Workers < 0 || c.Fetch.Workers > 32 {
			problems = append(problems, "fetch.workers must be between 0 and 32")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0")
		}
	case "status", "export":
		// Store checks above are enough.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) boundaryManifestProblems() []string {
	var problems []string
	if c.Paths.Boundary == "" {
		problems = append(problems, "paths.boundary is required")
	}
	if c.Paths.Manifest == "" {
		problems = append(problems, "paths.manifest is required")
	}
	return problems
}

func (c *Config) gridProblems() []string {
	var problems []string
	if c.Grid.CellAreaHa <= 0 {
		problems = append(problems, "grid.cell_area_ha must be > 0")
	}
	if c.Grid.SRID <= 0 {
		problems = append(problems, "grid.srid must be > 0")
	}
	return problems
}

func (c *Config) selectProblems() []string {
	var problems []string
	if c.Select.BlockSideM <= 0 {
		problems = append(problems, "select.block_side_m must be > 0")
	}
	if c.Select.MaxBlocks < 1 {
		problems = append(problems, "select.max_blocks must be >= 1")
	}
	return problems
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
