// Package log defines standard attribute keys for decomposition and
// partitioning operations.
//
// These keys follow a hierarchical naming convention (e.g. "data.samples",
// "partition.depth") so that log output can be filtered consistently.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the ensemble or tree being operated on.
	// Examples: "lightgbm", "xgboost", "FDTree"
	ModelNameKey = "model.name"

	// ModelPathKey is the file an ensemble or fitted tree was loaded from.
	ModelPathKey = "model.path"

	// TreesKey is the number of trees in an ensemble.
	TreesKey = "model.trees"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "decompose", "prepare"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	// Examples: "anova", "partition", "pipeline"
	ComponentKey = "ml.component"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of rows being processed.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of feature columns.
	FeaturesKey = "data.features"

	// OutputsKey indicates the number of ensemble outputs.
	OutputsKey = "data.outputs"

	// ComponentsKey is the size of the component axis of a decomposition tensor.
	ComponentsKey = "data.components"

	// SubsetKey lists the analysed feature indices.
	SubsetKey = "data.subset"
)

// Partitioning
const (
	// StrategyKey names the partition strategy ("gadget-pdp", "l2coe", ...).
	StrategyKey = "partition.strategy"

	// DepthKey is a node depth or the configured maximum depth.
	DepthKey = "partition.depth"

	// NodeKey is the index of a node in the tree arena.
	NodeKey = "partition.node"

	// SplitFeatureKey is the feature chosen for a split.
	SplitFeatureKey = "partition.feature"

	// ThresholdKey is the threshold chosen for a split.
	ThresholdKey = "partition.threshold"

	// ImpurityKey is a node impurity.
	ImpurityKey = "partition.impurity"

	// LeavesKey is the number of leaves (groups) of a fitted tree.
	LeavesKey = "partition.leaves"

	// RuleKey is the rule text of a region.
	RuleKey = "partition.rule"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// LossKey records a total loss such as the summed leaf impurity.
	LossKey = "metrics.loss"

	// R2ScoreKey records the fidelity of the additive part of a decomposition.
	R2ScoreKey = "metrics.r2_score"
)

// Error, cache and configuration context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	// Populated by Error when the first field is an error.
	StacktraceKey = "error.stacktrace"

	// CachePathKey is the location of a cached tensor.
	CachePathKey = "cache.path"

	// CacheHitKey reports whether a cached tensor was reused.
	CacheHitKey = "cache.hit"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute value constants.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationDecompose = "decompose"
	OperationPrepare   = "prepare"
	OperationLoad      = "load"
	OperationSave      = "save"
)
