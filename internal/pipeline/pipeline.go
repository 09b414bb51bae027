// Package pipeline runs the end-to-end workflow: load an ensemble and its
// data, decompose the ensemble on a background sample, and fit one
// partition tree per requested depth.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/anova"
	"github.com/YuminosukeSato/fdtree/ensemble"
	"github.com/YuminosukeSato/fdtree/internal/config"
	"github.com/YuminosukeSato/fdtree/partition"
	"github.com/YuminosukeSato/fdtree/pkg/errors"
	"github.com/YuminosukeSato/fdtree/pkg/log"
)

// DepthResult is the tree fitted for one maximum depth.
type DepthResult struct {
	Depth         int
	Tree          *partition.Tree
	TotalImpurity float64
	// Groups assigns every data row to a region.
	Groups []int
	Rules  []string
	// Path is where the tree was saved, empty when not saved.
	Path string
}

// Result is the outcome of Run.
type Result struct {
	Model *ensemble.Model
	// Data is the full feature table, Background the rows drawn from it.
	Data       *mat.Dense
	Background *mat.Dense
	Tensor     *anova.Tensor
	CacheHit   bool
	// Fidelity is the R² of the additive part of the decomposition against
	// the decomposed output on the background.
	Fidelity float64
	// Importance is the background variance of each main effect and of the
	// residual, (d+1) × outputs.
	Importance *mat.Dense
	// ComponentNames labels the rows of Importance.
	ComponentNames []string
	// FeatureNames are the names of the analysed features.
	FeatureNames []string
	Trees        []DepthResult
	// Dir is the result directory, empty when nothing was written.
	Dir string
}

// Run executes the workflow described by cfg: Decompose followed by Fit.
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	res, err := Decompose(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Fit(ctx, cfg, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Decompose loads the model and data, draws the background sample and
// computes (or reads from the cache) its decomposition. ctx is checked
// between stages; a stage itself runs to completion.
func Decompose(ctx context.Context, cfg *config.Config) (*Result, error) {
	logger := log.GetLoggerWithName("pipeline")

	model, err := ensemble.Load(cfg.Model.Path, cfg.Model.Format)
	if err != nil {
		return nil, err
	}
	X, names, err := LoadCSV(cfg.Data.Path)
	if err != nil {
		return nil, err
	}
	if _, d := X.Dims(); d != model.NumFeatures {
		return nil, errors.NewDimensionError("pipeline.Decompose", model.NumFeatures, d, 1)
	}
	subset := cfg.Subset()
	for _, f := range subset {
		if f >= model.NumFeatures {
			return nil, errors.NewValidationError("data.subset",
				fmt.Sprintf("feature index out of range [0, %d)", model.NumFeatures), f)
		}
	}
	logger.Info("Inputs loaded",
		log.ModelPathKey, cfg.Model.Path,
		log.TreesKey, len(model.Trees),
		log.SamplesKey, X.RawMatrix().Rows,
		log.FeaturesKey, model.NumFeatures,
		log.SubsetKey, subset,
	)

	background, err := SampleBackground(X, cfg.Background.Size, cfg.Background.Seed)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Model:        model,
		Data:         X,
		Background:   background,
		FeatureNames: selectNames(names, subset),
	}
	if res.Tensor, res.CacheHit, err = decompose(cfg, model, background, subset); err != nil {
		return nil, err
	}
	if err := anova.CheckAdditivity(res.Tensor, model, background, anova.DefaultTolerance); err != nil {
		return nil, err
	}
	if err := anova.CheckCentered(res.Tensor, anova.DefaultTolerance); err != nil {
		return nil, err
	}
	if res.Fidelity, err = anova.Fidelity(res.Tensor); err != nil {
		return nil, err
	}
	res.Importance = anova.Importance(res.Tensor)
	res.ComponentNames = componentNames(names)
	logger.Info("Decomposition ready",
		log.CacheHitKey, res.CacheHit,
		log.R2ScoreKey, res.Fidelity,
	)
	return res, nil
}

// Fit prepares the strategy target from a decomposed result and fits one
// tree per configured depth, saving them when an output directory is set.
func Fit(ctx context.Context, cfg *config.Config, res *Result) error {
	logger := log.GetLoggerWithName("pipeline")
	start := time.Now()
	subset := cfg.Subset()

	target, err := partition.Prepare(cfg.Partition.Strategy, res.Tensor, subset)
	if err != nil {
		return err
	}
	fitX := Columns(res.Background, subset)
	dataX := Columns(res.Data, subset)

	if cfg.Output.Dir != "" {
		res.Dir = cfg.ResultDir()
		if err := config.Dump(cfg, filepath.Join(res.Dir, "config.yaml")); err != nil {
			return err
		}
	}

	res.Trees = res.Trees[:0]
	for _, depth := range cfg.Partition.Depths {
		if err := ctx.Err(); err != nil {
			return err
		}
		dr, err := fitDepth(cfg, res, depth, fitX, target, dataX, logger)
		if err != nil {
			return err
		}
		res.Trees = append(res.Trees, *dr)
	}

	logger.Info("Trees fitted",
		log.StrategyKey, cfg.Partition.Strategy,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func decompose(cfg *config.Config, model *ensemble.Model, background *mat.Dense, subset []int) (*anova.Tensor, bool, error) {
	opts := []anova.Option{
		anova.WithLogit(cfg.Decompose.Logit),
		anova.WithBackgroundCovers(cfg.Background.RecomputeCovers),
		anova.WithWorkers(cfg.Decompose.Workers),
	}
	compute := func() (*anova.Tensor, error) {
		return anova.Decompose(model, background, opts...)
	}
	if cfg.Decompose.CacheDir == "" {
		h, err := compute()
		return h, false, err
	}

	n, _ := background.Dims()
	key := anova.CacheKey{
		BackgroundSize:   n,
		NumFeatures:      model.NumFeatures,
		NumOutputs:       model.NumOutputs,
		Subset:           subset,
		Fingerprint:      anova.Fingerprint(background),
		ModelFingerprint: model.Fingerprint(),
		BackgroundCovers: cfg.Background.RecomputeCovers,
	}
	dir := filepath.Join(cfg.Decompose.CacheDir, cfg.Data.Name, fmt.Sprintf("%s_%d", cfg.Model.Name, cfg.Background.Seed))
	return anova.NewCache(dir).LoadOrCompute(key, compute)
}

func fitDepth(cfg *config.Config, res *Result, depth int, fitX, target, dataX *mat.Dense, logger log.Logger) (*DepthResult, error) {
	tree, err := partition.New(cfg.Partition.Strategy, res.FeatureNames,
		partition.WithConfig(cfg.TreeConfig(depth)),
	)
	if err != nil {
		return nil, err
	}
	if err := tree.Fit(fitX, target); err != nil {
		return nil, err
	}
	groups, rules, err := tree.Predict(dataX)
	if err != nil {
		return nil, err
	}
	dr := &DepthResult{
		Depth:         depth,
		Tree:          tree,
		TotalImpurity: tree.TotalImpurity(),
		Groups:        groups,
		Rules:         rules,
	}
	logger.Info("Tree fitted",
		log.DepthKey, depth,
		log.LossKey, dr.TotalImpurity,
		log.LeavesKey, len(rules),
	)
	for g, rule := range rules {
		logger.Debug("Region", log.NodeKey, g, log.RuleKey, rule)
	}

	if res.Dir == "" {
		return dr, nil
	}
	base := fmt.Sprintf("%s_N_%d_depth_%d", cfg.Partition.Strategy, res.Tensor.N, depth)
	dr.Path = filepath.Join(res.Dir, base+".gob")
	if err := tree.Save(dr.Path); err != nil {
		return nil, err
	}
	if cfg.Output.PlotLosses && !tree.Nodes[0].IsLeaf() {
		if err := tree.PlotLosses(0, filepath.Join(res.Dir, base+"_losses.png")); err != nil {
			return nil, err
		}
	}
	return dr, nil
}

func selectNames(names []string, subset []int) []string {
	if subset == nil {
		return append([]string(nil), names...)
	}
	out := make([]string, len(subset))
	for i, f := range subset {
		out[i] = names[f]
	}
	return out
}

func componentNames(names []string) []string {
	out := append([]string(nil), names...)
	return append(out, "interactions")
}
