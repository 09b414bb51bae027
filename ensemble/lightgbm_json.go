package ensemble

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// lgbmModel mirrors the JSON written by LightGBM's Booster.dump_model().
type lgbmModel struct {
	Name                string         `json:"name"`
	Version             string         `json:"version"`
	NumClass            int            `json:"num_class"`
	NumTreePerIteration int            `json:"num_tree_per_iteration"`
	MaxFeatureIdx       int            `json:"max_feature_idx"`
	Objective           string         `json:"objective"`
	AverageOutput       bool           `json:"average_output"`
	FeatureNames        []string       `json:"feature_names"`
	TreeInfo            []lgbmTreeInfo `json:"tree_info"`
}

type lgbmTreeInfo struct {
	TreeIndex     int          `json:"tree_index"`
	NumLeaves     int          `json:"num_leaves"`
	Shrinkage     float64      `json:"shrinkage"`
	TreeStructure lgbmTreeNode `json:"tree_structure"`
}

type lgbmTreeNode struct {
	// Internal nodes
	SplitFeature  *int            `json:"split_feature"`
	Threshold     json.RawMessage `json:"threshold"`
	DecisionType  string          `json:"decision_type"`
	DefaultLeft   bool            `json:"default_left"`
	InternalCount float64         `json:"internal_count"`
	LeftChild     *lgbmTreeNode   `json:"left_child"`
	RightChild    *lgbmTreeNode   `json:"right_child"`

	// Leaves
	LeafValue float64 `json:"leaf_value"`
	LeafCount float64 `json:"leaf_count"`
}

// LoadLightGBMJSON loads a LightGBM model dumped with dump_model().
// Leaf values already include shrinkage. internal_count and leaf_count
// become node covers.
func LoadLightGBMJSON(path string) (*Model, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.NewModelError("LoadLightGBMJSON", "read file", err)
	}
	return ParseLightGBMJSON(data)
}

// ParseLightGBMJSON decodes a LightGBM JSON dump held in memory.
func ParseLightGBMJSON(data []byte) (*Model, error) {
	var lm lgbmModel
	if err := json.Unmarshal(data, &lm); err != nil {
		return nil, errors.NewModelError("LoadLightGBMJSON", "decode JSON", err)
	}

	perIteration := lm.NumTreePerIteration
	if perIteration <= 0 {
		perIteration = 1
	}

	m := &Model{
		NumFeatures:   lm.MaxFeatureIdx + 1,
		NumOutputs:    perIteration,
		FeatureNames:  lm.FeatureNames,
		AverageOutput: lm.AverageOutput,
		Source:        "lightgbm",
	}
	m.Objective, m.Link = parseLightGBMObjective(lm.Objective)
	m.BaseScore = make([]float64, m.NumOutputs)

	weight := 1.0
	if lm.AverageOutput && len(lm.TreeInfo) > 0 {
		iterations := (len(lm.TreeInfo) + perIteration - 1) / perIteration
		weight = 1.0 / float64(iterations)
	}

	m.Trees = make([]Tree, 0, len(lm.TreeInfo))
	for i := range lm.TreeInfo {
		info := &lm.TreeInfo[i]
		tree := Tree{
			TreeIndex: info.TreeIndex,
			Class:     i % perIteration,
			Weight:    weight,
		}
		if _, err := tree.appendLightGBMNode(&info.TreeStructure); err != nil {
			return nil, errors.Wrapf(err, "tree %d", info.TreeIndex)
		}
		m.Trees = append(m.Trees, tree)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// appendLightGBMNode flattens the nested node into the arena in preorder and
// returns its index.
func (t *Tree) appendLightGBMNode(n *lgbmTreeNode) (int, error) {
	id := len(t.Nodes)
	if n.LeftChild == nil && n.RightChild == nil {
		t.Nodes = append(t.Nodes, Node{
			NodeID:     id,
			LeftChild:  -1,
			RightChild: -1,
			NodeType:   LeafNode,
			LeafValue:  n.LeafValue,
			Cover:      n.LeafCount,
		})
		return id, nil
	}
	if n.LeftChild == nil || n.RightChild == nil || n.SplitFeature == nil {
		return 0, errors.NewModelError("LoadLightGBMJSON", fmt.Sprintf("node %d is incomplete", id), nil)
	}
	if n.DecisionType != "" && n.DecisionType != "<=" {
		return 0, errors.NewModelError("LoadLightGBMJSON",
			fmt.Sprintf("unsupported decision type %q (categorical splits are not supported)", n.DecisionType), nil)
	}

	var threshold float64
	if err := json.Unmarshal(n.Threshold, &threshold); err != nil {
		return 0, errors.NewModelError("LoadLightGBMJSON", fmt.Sprintf("node %d threshold", id), err)
	}

	t.Nodes = append(t.Nodes, Node{
		NodeID:       id,
		NodeType:     NumericalNode,
		SplitFeature: *n.SplitFeature,
		Threshold:    threshold,
		Decision:     DecisionLessEqual,
		DefaultLeft:  n.DefaultLeft,
		Cover:        n.InternalCount,
	})

	left, err := t.appendLightGBMNode(n.LeftChild)
	if err != nil {
		return 0, err
	}
	right, err := t.appendLightGBMNode(n.RightChild)
	if err != nil {
		return 0, err
	}
	t.Nodes[id].LeftChild = left
	t.Nodes[id].RightChild = right
	return id, nil
}

// parseLightGBMObjective maps strings such as "binary sigmoid:1" or
// "multiclass num_class:3" to an objective and link.
func parseLightGBMObjective(obj string) (ObjectiveType, LinkType) {
	parts := strings.Fields(obj)
	if len(parts) == 0 {
		return RegressionL2, LinkIdentity
	}
	switch parts[0] {
	case "binary", "cross_entropy":
		return BinaryLogistic, LinkSigmoid
	case "multiclass", "softmax":
		return MulticlassSoftmax, LinkSoftmax
	case "multiclassova", "multiclass_ova", "ova", "ovr":
		return ObjectiveType(parts[0]), LinkSigmoid
	case "regression", "regression_l2", "l2", "mean_squared_error", "mse":
		return RegressionL2, LinkIdentity
	default:
		return ObjectiveType(parts[0]), LinkIdentity
	}
}
