package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/fdtree/internal/config"
	"github.com/YuminosukeSato/fdtree/pkg/log"
)

type rootCmdConfig struct {
	configPath string
	logLevel   string
}

func main() {
	if err := cliParser().Execute(); err != nil {
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	root := &rootCmdConfig{}
	rootCmd := &cobra.Command{
		Use:   "fdtree",
		Short: "fdtree partitions the input space of tree ensembles into interaction-free regions",
		Long: `fdtree decomposes a LightGBM or XGBoost ensemble into a grand mean, main
effects and interactions over a background sample, then grows shallow trees
whose leaves are regions where the ensemble is close to additive.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&root.configPath, "config", "c", "", "path to a YAML run configuration")
	rootCmd.PersistentFlags().StringVar(&root.logLevel, "log-level", "", "log level (debug, info, warn, error), overrides logging.level")
	rootCmd.AddCommand(
		versionCmd(),
		strategiesCmd(),
		decomposeCmd(root),
		fitCmd(root),
		predictCmd(root),
	)
	return rootCmd
}

// flagBinding maps a command flag to a configuration key.
type flagBinding struct {
	key  string
	flag string
}

// loadConfig resolves the run configuration from defaults, the config file,
// FDTREE_ variables and the flags the user set, then applies its logging
// settings.
func loadConfig(root *rootCmdConfig, flags *pflag.FlagSet, bindings []flagBinding) (*config.Config, error) {
	v, err := config.New(root.configPath)
	if err != nil {
		return nil, err
	}
	if err := bind(v, flags, bindings); err != nil {
		return nil, err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, err
	}
	if root.logLevel != "" {
		cfg.Logging.Level = root.logLevel
	}
	if err := applyLogging(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bind(v *viper.Viper, flags *pflag.FlagSet, bindings []flagBinding) error {
	for _, b := range bindings {
		f := flags.Lookup(b.flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", b.flag)
		}
		if err := v.BindPFlag(b.key, f); err != nil {
			return err
		}
	}
	return nil
}

func applyLogging(lc config.LoggingConfig) error {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	log.SetOutput(os.Stderr, lc.Console)
	log.SetLevel(level)
	return nil
}

// addInputFlags registers the flags shared by decompose and fit.
func addInputFlags(flags *pflag.FlagSet) []flagBinding {
	d := config.Default()
	flags.StringP("model", "m", "", "path to a LightGBM dump_model or XGBoost JSON model")
	flags.String("format", d.Model.Format, "model format: auto, lightgbm or xgboost")
	flags.StringP("data", "d", "", "path to a CSV feature table with a header row")
	flags.IntSlice("subset", nil, "indices of the analysed features (default all)")
	flags.Int("background-size", d.Background.Size, "number of background rows")
	flags.Uint64("seed", d.Background.Seed, "seed of the background sample")
	flags.Bool("recompute-covers", d.Background.RecomputeCovers, "derive branch fractions from the background sample")
	flags.String("cache-dir", d.Decompose.CacheDir, "directory of cached decompositions, empty disables caching")
	flags.Int("workers", d.Decompose.Workers, "decomposition workers, 0 for one per CPU")
	return []flagBinding{
		{"model.path", "model"},
		{"model.format", "format"},
		{"data.path", "data"},
		{"data.subset", "subset"},
		{"background.size", "background-size"},
		{"background.seed", "seed"},
		{"background.recompute_covers", "recompute-covers"},
		{"decompose.cache_dir", "cache-dir"},
		{"decompose.workers", "workers"},
	}
}
