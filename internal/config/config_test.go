package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "auto", cfg.Model.Format)
	assert.Equal(t, 500, cfg.Background.Size)
	assert.Equal(t, "l2coe", cfg.Partition.Strategy)
	assert.Equal(t, []int{1, 2, 3}, cfg.Partition.Depths)
	assert.Equal(t, 20, cfg.Partition.SamplesLeaf)
	assert.True(t, cfg.Decompose.Logit)
	assert.Nil(t, cfg.Subset())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
model:
  path: models/gbm.json
data:
  path: data/bike.csv
  subset: [0, 2]
background:
  size: 200
  seed: 7
partition:
  strategy: gadget-pdp
  depths: [2]
  samples_leaf: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gbm", cfg.Model.Name)
	assert.Equal(t, "bike", cfg.Data.Name)
	assert.Equal(t, []int{0, 2}, cfg.Subset())
	assert.Equal(t, 200, cfg.Background.Size)
	assert.Equal(t, "gadget-pdp", cfg.Partition.Strategy)
	assert.Equal(t, []int{2}, cfg.Partition.Depths)
	assert.Equal(t, 0.01, cfg.Partition.RelativeDecrease)

	tc := cfg.TreeConfig(2)
	assert.Equal(t, 2, tc.MaxDepth)
	assert.Equal(t, 10, tc.SamplesLeaf)

	cfg.Output.Dir = "results"
	assert.Equal(t, filepath.Join("results", "bike", "gbm_7"), cfg.ResultDir())
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("FDTREE_PARTITION_STRATEGY", "cart")
	t.Setenv("FDTREE_BACKGROUND_SIZE", "64")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "cart", cfg.Partition.Strategy)
	assert.Equal(t, 64, cfg.Background.Size)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"format", func(c *Config) { c.Model.Format = "onnx" }, "model.format"},
		{"subset", func(c *Config) { c.Data.Subset = []int{-1} }, "data.subset"},
		{"background", func(c *Config) { c.Background.Size = 0 }, "background.size"},
		{"workers", func(c *Config) { c.Decompose.Workers = -2 }, "decompose.workers"},
		{"strategy", func(c *Config) { c.Partition.Strategy = "xgboost" }, "strategy"},
		{"no depths", func(c *Config) { c.Partition.Depths = nil }, "partition.depths"},
		{"negative depth", func(c *Config) { c.Partition.Depths = []int{1, -1} }, "partition.depths"},
		{"samples leaf", func(c *Config) { c.Partition.SamplesLeaf = 0 }, "samples_leaf"},
		{"negative impurity", func(c *Config) { c.Partition.NegligibleImpurity = -1 }, "negligible_impurity"},
		{"plot without losses", func(c *Config) { c.Output.PlotLosses = true }, "output.plot_losses"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "log-level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.ParamName)
		})
	}
}

func TestDump(t *testing.T) {
	cfg := Default()
	cfg.Model.Path = "m.json"
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	require.NoError(t, Dump(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, *cfg, back)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "m", loaded.Model.Name)
}
