// Package fdtree explains tree ensembles by partitioning their input space
// into regions where the model is close to additive.
//
// The workflow has two stages. The anova package decomposes a LightGBM or
// XGBoost ensemble over a background sample into a grand mean, one main
// effect per feature and a residual that holds every interaction. The
// partition package then grows a shallow tree (an FDTree) on that
// decomposition; its leaves are the regions and its paths the rules.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/fdtree/anova"
//	    "github.com/YuminosukeSato/fdtree/ensemble"
//	    "github.com/YuminosukeSato/fdtree/partition"
//	)
//
//	func main() {
//	    model, err := ensemble.LoadAuto("model.json")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    // background: an N × d *mat.Dense drawn from the training data
//	    h, err := anova.Decompose(model, background)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    target, err := partition.Prepare(partition.StrategyL2CoE, h, nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    tree, err := partition.New(partition.StrategyL2CoE, model.FeatureNames,
//	        partition.WithMaxDepth(2))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := tree.Fit(background, target); err != nil {
//	        log.Fatal(err)
//	    }
//	    _, rules, _ := tree.Predict(background)
//	    fmt.Println(rules)
//	}
//
// # Packages
//
//   - ensemble: tree ensemble model, LightGBM and XGBoost JSON loaders
//   - anova: interventional decomposition, tensor cache, additivity checks
//   - partition: FDTree growth, strategies, rules, persistence, plots
//   - metrics: regression scores used for fidelity
//   - core/model: estimator interfaces and gob snapshots
//   - core/parallel: row-range parallelism
//   - pkg/errors, pkg/log: error types and zerolog-backed logging
//
// The fdtree command (cmd/fdtree) runs the whole workflow from a YAML
// configuration.
package fdtree

// Version is the release of the module.
const Version = "0.1.0"
