package partition

import (
	"fmt"

	"github.com/YuminosukeSato/fdtree/core/model"
	"github.com/YuminosukeSato/fdtree/pkg/errors"
	"github.com/YuminosukeSato/fdtree/pkg/log"
)

const (
	snapshotKind    = "FDTree"
	snapshotVersion = 1
)

// snapshot is the persisted form of a fitted tree.
type snapshot struct {
	Strategy     string
	Config       Config
	FeatureNames []string
	Nodes        []Node
	NumTargets   int
}

// Save writes the fitted tree to path.
func (t *Tree) Save(path string) error {
	if err := t.RequireFitted(snapshotKind, "Save"); err != nil {
		return err
	}
	s := snapshot{
		Strategy:     t.Strategy,
		Config:       t.Config,
		FeatureNames: t.FeatureNames,
		Nodes:        t.Nodes,
		NumTargets:   t.NumTargets,
	}
	if err := model.SaveModel(&s, snapshotKind, snapshotVersion, path); err != nil {
		return err
	}
	t.log().Debug("Tree saved", log.OperationKey, log.OperationSave, log.ModelPathKey, path)
	return nil
}

// Load replaces the tree with the one stored at path.
func (t *Tree) Load(path string) error {
	var s snapshot
	if _, err := model.LoadModel(&s, snapshotKind, snapshotVersion, path); err != nil {
		return err
	}
	obj, err := Lookup(s.Strategy)
	if err != nil {
		return err
	}
	if err := s.Config.Validate(); err != nil {
		return err
	}
	if err := validateNodes(s.Nodes, len(s.FeatureNames)); err != nil {
		return errors.Wrapf(err, "load %s", path)
	}

	t.Strategy = s.Strategy
	t.Config = s.Config
	t.FeatureNames = s.FeatureNames
	t.Nodes = s.Nodes
	t.NumTargets = s.NumTargets
	t.objective = obj
	t.SetFitted()
	t.log().Debug("Tree loaded", log.OperationKey, log.OperationLoad, log.ModelPathKey, path)
	return nil
}

// LoadTree reads a tree saved with Save.
func LoadTree(path string, opts ...Option) (*Tree, error) {
	t := &Tree{logger: log.GetLoggerWithName("partition")}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.Load(path); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) log() log.Logger {
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("partition")
	}
	return t.logger
}

// validateNodes checks a stored arena before it is walked: children come after
// their parent, every node but the root has exactly one parent, internal
// nodes have two children on a known feature and leaves have none.
func validateNodes(nodes []Node, numFeatures int) error {
	if len(nodes) == 0 {
		return errors.NewValidationError("nodes", "tree has no nodes", 0)
	}
	parents := make([]int, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if len(n.Splits) != len(n.Objectives) {
			return errors.NewValidationError("nodes",
				fmt.Sprintf("node %d records %d split lists and %d loss lists", i, len(n.Splits), len(n.Objectives)), i)
		}
		for f := range n.Splits {
			if len(n.Splits[f]) != len(n.Objectives[f]) {
				return errors.NewValidationError("nodes",
					fmt.Sprintf("node %d feature %d has mismatched losses", i, f), i)
			}
		}
		if n.IsLeaf() {
			if n.Feature != -1 || n.Left != -1 || n.Right != -1 {
				return errors.NewValidationError("nodes", fmt.Sprintf("leaf %d is malformed", i), i)
			}
			continue
		}
		if n.Feature >= numFeatures {
			return errors.NewValidationError("nodes",
				fmt.Sprintf("node %d splits on feature %d of %d", i, n.Feature, numFeatures), n.Feature)
		}
		for _, c := range []int{n.Left, n.Right} {
			if c <= i || c >= len(nodes) {
				return errors.NewValidationError("nodes",
					fmt.Sprintf("node %d has child %d outside (%d, %d)", i, c, i, len(nodes)), c)
			}
			parents[c]++
		}
	}
	for i := 1; i < len(nodes); i++ {
		if parents[i] != 1 {
			return errors.NewValidationError("nodes",
				fmt.Sprintf("node %d has %d parents", i, parents[i]), i)
		}
	}
	return nil
}
