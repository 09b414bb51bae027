// Package config loads run configuration from YAML files and FDTREE_
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/fdtree/ensemble"
	"github.com/YuminosukeSato/fdtree/partition"
	"github.com/YuminosukeSato/fdtree/pkg/errors"
	"github.com/YuminosukeSato/fdtree/pkg/log"
)

// EnvPrefix prefixes every environment override, e.g.
// FDTREE_PARTITION_STRATEGY for partition.strategy.
const EnvPrefix = "FDTREE"

// Config is the configuration of one run.
type Config struct {
	Model      ModelConfig      `mapstructure:"model" yaml:"model"`
	Data       DataConfig       `mapstructure:"data" yaml:"data"`
	Background BackgroundConfig `mapstructure:"background" yaml:"background"`
	Decompose  DecomposeConfig  `mapstructure:"decompose" yaml:"decompose"`
	Partition  PartitionConfig  `mapstructure:"partition" yaml:"partition"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// ModelConfig locates the ensemble to explain.
type ModelConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	// Format is "auto", "lightgbm" or "xgboost".
	Format string `mapstructure:"format" yaml:"format"`
	// Name labels results; defaults to the file name without extension.
	Name string `mapstructure:"name" yaml:"name"`
}

// DataConfig locates the feature table.
type DataConfig struct {
	// Path is a CSV file with a header row of feature names.
	Path string `mapstructure:"path" yaml:"path"`
	// Name labels results; defaults to the file name without extension.
	Name string `mapstructure:"name" yaml:"name"`
	// Subset lists the analysed feature indices; empty means all features.
	Subset []int `mapstructure:"subset" yaml:"subset"`
}

// BackgroundConfig controls the background sample.
type BackgroundConfig struct {
	Size int    `mapstructure:"size" yaml:"size"`
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
	// RecomputeCovers replaces the stored covers with background counts.
	RecomputeCovers bool `mapstructure:"recompute_covers" yaml:"recompute_covers"`
}

// DecomposeConfig controls the decomposition engine.
type DecomposeConfig struct {
	Logit   bool `mapstructure:"logit" yaml:"logit"`
	Workers int  `mapstructure:"workers" yaml:"workers"`
	// CacheDir stores decomposition tensors; empty disables caching.
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir"`
}

// PartitionConfig holds the tree strategy and hyperparameters.
type PartitionConfig struct {
	Strategy           string  `mapstructure:"strategy" yaml:"strategy"`
	Depths             []int   `mapstructure:"depths" yaml:"depths"`
	SamplesLeaf        int     `mapstructure:"samples_leaf" yaml:"samples_leaf"`
	NegligibleImpurity float64 `mapstructure:"negligible_impurity" yaml:"negligible_impurity"`
	RelativeDecrease   float64 `mapstructure:"relative_decrease" yaml:"relative_decrease"`
	SaveLosses         bool    `mapstructure:"save_losses" yaml:"save_losses"`
	MaxCandidates      int     `mapstructure:"max_candidates" yaml:"max_candidates"`
	Seed               uint64  `mapstructure:"seed" yaml:"seed"`
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	// Dir is the results root; empty keeps results in memory only.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// PlotLosses writes the root loss curves of every tree, requires
	// partition.save_losses.
	PlotLosses bool `mapstructure:"plot_losses" yaml:"plot_losses"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	tree := partition.DefaultConfig()
	return &Config{
		Model: ModelConfig{Format: ensemble.FormatAuto},
		Data:  DataConfig{Subset: []int{}},
		Background: BackgroundConfig{
			Size: 500,
			Seed: 42,
		},
		Decompose: DecomposeConfig{
			Logit:    true,
			CacheDir: ".fdtree-cache",
		},
		Partition: PartitionConfig{
			Strategy:           partition.StrategyL2CoE,
			Depths:             []int{1, 2, 3},
			SamplesLeaf:        tree.SamplesLeaf,
			NegligibleImpurity: tree.NegligibleImpurity,
			RelativeDecrease:   tree.RelativeDecrease,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("model.path", d.Model.Path)
	v.SetDefault("model.format", d.Model.Format)
	v.SetDefault("model.name", d.Model.Name)

	v.SetDefault("data.path", d.Data.Path)
	v.SetDefault("data.name", d.Data.Name)
	v.SetDefault("data.subset", d.Data.Subset)

	v.SetDefault("background.size", d.Background.Size)
	v.SetDefault("background.seed", d.Background.Seed)
	v.SetDefault("background.recompute_covers", d.Background.RecomputeCovers)

	v.SetDefault("decompose.logit", d.Decompose.Logit)
	v.SetDefault("decompose.workers", d.Decompose.Workers)
	v.SetDefault("decompose.cache_dir", d.Decompose.CacheDir)

	v.SetDefault("partition.strategy", d.Partition.Strategy)
	v.SetDefault("partition.depths", d.Partition.Depths)
	v.SetDefault("partition.samples_leaf", d.Partition.SamplesLeaf)
	v.SetDefault("partition.negligible_impurity", d.Partition.NegligibleImpurity)
	v.SetDefault("partition.relative_decrease", d.Partition.RelativeDecrease)
	v.SetDefault("partition.save_losses", d.Partition.SaveLosses)
	v.SetDefault("partition.max_candidates", d.Partition.MaxCandidates)
	v.SetDefault("partition.seed", d.Partition.Seed)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.plot_losses", d.Output.PlotLosses)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.console", d.Logging.Console)
}

// New returns a viper instance with defaults and environment overrides
// registered. A non-empty path is read as the config file.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	return v, nil
}

// Load reads the configuration at path (optional) with environment
// overrides and validates it.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.fillNames()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) fillNames() {
	if c.Model.Name == "" && c.Model.Path != "" {
		c.Model.Name = stem(c.Model.Path)
	}
	if c.Data.Name == "" && c.Data.Path != "" {
		c.Data.Name = stem(c.Data.Path)
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Validate rejects unusable values. Paths are not checked for existence.
func (c *Config) Validate() error {
	if !slices.Contains([]string{ensemble.FormatAuto, ensemble.FormatLightGBM, ensemble.FormatXGBoost}, c.Model.Format) {
		return errors.NewValidationError("model.format", "must be auto, lightgbm or xgboost", c.Model.Format)
	}
	for _, f := range c.Data.Subset {
		if f < 0 {
			return errors.NewValidationError("data.subset", "feature indices must be non-negative", f)
		}
	}
	if c.Background.Size <= 0 {
		return errors.NewValidationError("background.size", "must be positive", c.Background.Size)
	}
	if c.Decompose.Workers < 0 {
		return errors.NewValidationError("decompose.workers", "must be non-negative", c.Decompose.Workers)
	}
	if _, err := partition.Lookup(c.Partition.Strategy); err != nil {
		return err
	}
	if len(c.Partition.Depths) == 0 {
		return errors.NewValidationError("partition.depths", "at least one depth is required", c.Partition.Depths)
	}
	for _, d := range c.Partition.Depths {
		if d < 0 {
			return errors.NewValidationError("partition.depths", "depths must be non-negative", d)
		}
	}
	if err := c.TreeConfig(0).Validate(); err != nil {
		return err
	}
	if c.Output.PlotLosses && !c.Partition.SaveLosses {
		return errors.NewValidationError("output.plot_losses", "requires partition.save_losses", c.Output.PlotLosses)
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// TreeConfig returns the partition hyperparameters for one depth.
func (c *Config) TreeConfig(depth int) partition.Config {
	return partition.Config{
		MaxDepth:           depth,
		SamplesLeaf:        c.Partition.SamplesLeaf,
		NegligibleImpurity: c.Partition.NegligibleImpurity,
		RelativeDecrease:   c.Partition.RelativeDecrease,
		SaveLosses:         c.Partition.SaveLosses,
		MaxCandidates:      c.Partition.MaxCandidates,
		Seed:               c.Partition.Seed,
	}
}

// Subset returns the analysed features, nil for all.
func (c *Config) Subset() []int {
	if len(c.Data.Subset) == 0 {
		return nil
	}
	return c.Data.Subset
}

// ResultDir returns <output>/<dataset>/<model>_<seed>.
func (c *Config) ResultDir() string {
	return filepath.Join(c.Output.Dir, c.Data.Name, fmt.Sprintf("%s_%d", c.Model.Name, c.Background.Seed))
}

// Dump writes the resolved configuration as YAML.
func Dump(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}
