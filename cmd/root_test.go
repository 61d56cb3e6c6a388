package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruiseplan/siteselect/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"run", "grid", "extract", "select", "validate", "fetch", "status", "serve", "export"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "siteselect", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	flag := runCmd.Flags().Lookup("workers")
	require.NotNil(t, flag, "run command should have --workers flag")
	assert.Equal(t, "0", flag.DefValue)

	forceFlag := runCmd.Flags().Lookup("force")
	require.NotNil(t, forceFlag, "run command should have --force flag")
	assert.Equal(t, "false", forceFlag.DefValue)
}

func TestSelectCommand_Flags(t *testing.T) {
	flag := selectCmd.Flags().Lookup("max-blocks")
	require.NotNil(t, flag, "select command should have --max-blocks flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestValidateCommand_Flags(t *testing.T) {
	for _, name := range []string{"areas", "count", "seed", "shared-stream"} {
		assert.NotNil(t, validateCmd.Flags().Lookup(name), "validate should have --%s flag", name)
	}
}

func TestFetchCommand_Flags(t *testing.T) {
	for _, name := range []string{"workers", "force"} {
		assert.NotNil(t, fetchCmd.Flags().Lookup(name), "fetch should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestStatusCommand_Args(t *testing.T) {
	assert.NoError(t, statusCmd.Args(statusCmd, nil))
	assert.NoError(t, statusCmd.Args(statusCmd, []string{"abc"}))
	assert.Error(t, statusCmd.Args(statusCmd, []string{"a", "b"}))
}

func TestPipelineOptions_MapsConfig(t *testing.T) {
	cfg = &config.Config{}
	cfg.Paths.Boundary = "data/study_area.shp"
	cfg.Paths.Manifest = "data/tiles.csv"
	cfg.Paths.Cover = "data/clc2018.bin"
	cfg.Paths.Legend = "data/legend.yaml"
	cfg.Paths.Scoring = "data/scoring.yaml"
	cfg.Paths.OutputDir = "out"
	cfg.Grid.SRID = 3035
	cfg.Grid.CellAreaHa = 16
	cfg.Select.BlockSideM = 100000
	cfg.Select.MaxBlocks = 150
	cfg.Extract.Workers = 8

	opts := pipelineOptions()
	assert.Equal(t, "data/study_area.shp", opts.Boundary)
	assert.Equal(t, "data/tiles.csv", opts.Manifest)
	assert.Equal(t, "data/clc2018.bin", opts.Cover)
	assert.Equal(t, "data/legend.yaml", opts.Legend)
	assert.Equal(t, "data/scoring.yaml", opts.Scoring)
	assert.Equal(t, "out", opts.OutputDir)
	assert.Equal(t, 3035, opts.SRID)
	assert.InDelta(t, 16.0, opts.CellAreaHa, 0.001)
	assert.InDelta(t, 100000.0, opts.BlockSideM, 0.001)
	assert.Equal(t, 150, opts.MaxBlocks)
	assert.Equal(t, 8, opts.Workers)
	assert.False(t, opts.Force)
}
