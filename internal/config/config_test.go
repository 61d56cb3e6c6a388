package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "siteselect.db", cfg.Store.Path)
	assert.Equal(t, int32(10), cfg.Store.Pool.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.Pool.MinConns)
	assert.Equal(t, "out", cfg.Paths.OutputDir)
	assert.InDelta(t, 16.0, cfg.Grid.CellAreaHa, 0.001)
	assert.Equal(t, 3035, cfg.Grid.SRID)
	assert.Equal(t, 0, cfg.Extract.Workers)
	assert.InDelta(t, 100000.0, cfg.Select.BlockSideM, 0.001)
	assert.Equal(t, 150, cfg.Select.MaxBlocks)
	assert.InDelta(t, 500.0, cfg.Validation.SpacingM, 0.001)
	assert.InDelta(t, 1000.0, cfg.Validation.InnerRadiusM, 0.001)
	assert.InDelta(t, 5000.0, cfg.Validation.OuterRadiusM, 0.001)
	assert.Equal(t, 20, cfg.Validation.Count)
	assert.Equal(t, "id", cfg.Validation.AreaField)
	assert.False(t, cfg.Validation.SharedStream)
	assert.Equal(t, "siteselect/1.0", cfg.Fetch.UserAgent)
	assert.Equal(t, 300, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, 4, cfg.Fetch.Workers)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/siteselect
  pool:
    max_conns: 25
paths:
  boundary: data/study_area.shp
  manifest: data/tiles.csv
grid:
  cell_area_ha: 25
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/siteselect", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(25), cfg.Store.Pool.MaxConns)
	assert.Equal(t, "data/study_area.shp", cfg.Paths.Boundary)
	assert.Equal(t, "data/tiles.csv", cfg.Paths.Manifest)
	assert.InDelta(t, 25.0, cfg.Grid.CellAreaHa, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 150, cfg.Select.MaxBlocks)
	assert.Equal(t, int32(2), cfg.Store.Pool.MinConns)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SITESELECT_STORE_DRIVER", "sqlite")
	t.Setenv("SITESELECT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SITESELECT_SELECT_MAX_BLOCKS", "75")
	t.Setenv("SITESELECT_PATHS_OUTPUT_DIR", "/srv/siteselect/out")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Select.MaxBlocks)
	assert.Equal(t, "/srv/siteselect/out", cfg.Paths.OutputDir)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "siteselect.db"
	cfg.Grid.CellAreaHa = 16
	cfg.Grid.SRID = 3035
	cfg.Select.BlockSideM = 100000
	cfg.Select.MaxBlocks = 150
	cfg.Validation.SpacingM = 500
	cfg.Validation.InnerRadiusM = 1000
	cfg.Validation.OuterRadiusM = 5000
	cfg.Validation.Count = 20
	cfg.Fetch.Workers = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRun_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Paths.Boundary = "data/study_area.shp"
	cfg.Paths.Manifest = "data/tiles.csv"
	cfg.Paths.Cover = "data/clc2018.bin"

	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_MissingInputs(t *testing.T) {
	cfg := validDefaults()
	// Boundary, manifest and cover are all unset

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "paths.boundary is required")
	assert.Contains(t, err.Error(), "paths.manifest is required")
	assert.Contains(t, err.Error(), "paths.cover is required")
}

func TestValidateGrid_NoCoverNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.Paths.Boundary = "data/study_area.shp"
	cfg.Paths.Manifest = "data/tiles.csv"

	assert.NoError(t, cfg.Validate("grid"))
}

func TestValidateSelect_NeedsBoundaryManifest(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("select")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "paths.boundary is required")

	cfg.Paths.Boundary = "data/study_area.shp"
	cfg.Paths.Manifest = "data/tiles.csv"
	assert.NoError(t, cfg.Validate("select"))
}

func TestValidateValidate_MissingAreas(t *testing.T) {
	cfg := validDefaults()
	cfg.Paths.Boundary = "data/study_area.shp"
	cfg.Paths.Manifest = "data/tiles.csv"

	err := cfg.Validate("validate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "paths.areas is required")
}

func TestValidateValidate_BadRadii(t *testing.T) {
	cfg := validDefaults()
	cfg.Paths.Boundary = "data/study_area.shp"
	cfg.Paths.Manifest = "data/tiles.csv"
	cfg.Paths.Areas = "data/stands.shp"
	cfg.Validation.OuterRadiusM = 500 // below inner

	err := cfg.Validate("validate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "inner_radius_m <= outer_radius_m")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("status")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/siteselect"
	assert.NoError(t, cfg.Validate("status"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "oracle"

	err := cfg.Validate("status")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateWorkerBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Paths.Boundary = "data/study_area.shp"
	cfg.Paths.Manifest = "data/tiles.csv"
	cfg.Paths.Cover = "data/clc2018.bin"

	cfg.Extract.Workers = -1
	err := cfg.Validate("extract")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "extract.workers must be between 0 and 64")

	cfg.Extract.Workers = 65
	err = cfg.Validate("extract")
	assert.Error(t, err)

	cfg.Extract.Workers = 64
	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidateFetch(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("fetch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "paths.manifest is required")

	cfg.Paths.Manifest = "data/tiles.csv"
	assert.NoError(t, cfg.Validate("fetch"))
}
