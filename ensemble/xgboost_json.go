package ensemble

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// xgbModel corresponds to an XGBoost JSON model (save_model("*.json")).
type xgbModel struct {
	Learner xgbLearner `json:"learner"`
}

type xgbLearner struct {
	FeatureNames      []string        `json:"feature_names"`
	GradientBooster   xgbBooster      `json:"gradient_booster"`
	LearnerModelParam xgbLearnerParam `json:"learner_model_param"`
	Objective         xgbObjective    `json:"objective"`
}

type xgbLearnerParam struct {
	// "5E-1" before XGBoost 2.1, "[5E-1]" (one value per target) from 2.1 on.
	BaseScore  string      `json:"base_score"`
	NumClass   json.Number `json:"num_class"`
	NumFeature json.Number `json:"num_feature"`
}

type xgbObjective struct {
	Name string `json:"name"`
}

type xgbBooster struct {
	Name  string         `json:"name"`
	Model xgbBoosterBody `json:"model"`
}

type xgbBoosterBody struct {
	Trees    []xgbTree `json:"trees"`
	TreeInfo []int     `json:"tree_info"`
}

// xgbTree is one tree in an XGBoost model as decoded from JSON.
type xgbTree struct {
	ID              int          `json:"id"`
	DefaultLeft     []int        `json:"default_left"`
	LeftChildren    []int        `json:"left_children"`
	RightChildren   []int        `json:"right_children"`
	SplitConditions []float64    `json:"split_conditions"`
	SplitIndices    []int        `json:"split_indices"`
	SumHessian      []float64    `json:"sum_hessian"`
	TreeParam       xgbTreeParam `json:"tree_param"`
}

type xgbTreeParam struct {
	NumNodes json.Number `json:"num_nodes"`
}

// LoadXGBoostJSON loads an XGBoost gbtree model saved in JSON format.
// sum_hessian becomes the node cover and split_conditions holds the leaf
// values of leaves.
func LoadXGBoostJSON(path string) (*Model, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.NewModelError("LoadXGBoostJSON", "read file", err)
	}
	return ParseXGBoostJSON(data)
}

// ParseXGBoostJSON decodes an XGBoost JSON model held in memory.
func ParseXGBoostJSON(data []byte) (*Model, error) {
	var xm xgbModel
	if err := json.Unmarshal(data, &xm); err != nil {
		return nil, errors.NewModelError("LoadXGBoostJSON", "decode JSON", err)
	}
	learner := &xm.Learner
	if learner.GradientBooster.Name != "" && learner.GradientBooster.Name != "gbtree" {
		return nil, errors.NewModelError("LoadXGBoostJSON",
			fmt.Sprintf("unsupported booster %q", learner.GradientBooster.Name), nil)
	}

	numFeature, err := numberOr(learner.LearnerModelParam.NumFeature, 0)
	if err != nil {
		return nil, errors.NewModelError("LoadXGBoostJSON", "num_feature", err)
	}
	numClass, err := numberOr(learner.LearnerModelParam.NumClass, 0)
	if err != nil {
		return nil, errors.NewModelError("LoadXGBoostJSON", "num_class", err)
	}
	baseScores, err := parseBaseScore(learner.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, errors.NewModelError("LoadXGBoostJSON", "base_score", err)
	}

	m := &Model{
		NumFeatures:  int(numFeature),
		NumOutputs:   1,
		FeatureNames: learner.FeatureNames,
		Source:       "xgboost",
	}
	if numClass > 1 {
		m.NumOutputs = int(numClass)
	}
	m.Objective, m.Link = parseXGBoostObjective(learner.Objective.Name)

	if len(baseScores) != 1 && len(baseScores) != m.NumOutputs {
		return nil, errors.NewModelError("LoadXGBoostJSON",
			fmt.Sprintf("base_score has %d values for %d outputs", len(baseScores), m.NumOutputs), nil)
	}
	// base_score is stored in output space; logistic objectives need the margin.
	m.BaseScore = make([]float64, m.NumOutputs)
	for o := range m.BaseScore {
		b := baseScores[0]
		if len(baseScores) > 1 {
			b = baseScores[o]
		}
		if m.Link == LinkSigmoid && b > 0 && b < 1 {
			b = math.Log(b / (1 - b))
		}
		m.BaseScore[o] = b
	}

	body := &learner.GradientBooster.Model
	m.Trees = make([]Tree, 0, len(body.Trees))
	for i := range body.Trees {
		tree, err := convertXGBoostTree(&body.Trees[i])
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		tree.TreeIndex = i
		if i < len(body.TreeInfo) {
			tree.Class = body.TreeInfo[i]
		}
		m.Trees = append(m.Trees, tree)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func convertXGBoostTree(xt *xgbTree) (Tree, error) {
	numNodes, err := xt.TreeParam.NumNodes.Int64()
	if err != nil {
		return Tree{}, errors.NewModelError("LoadXGBoostJSON", "getting num nodes as int64", err)
	}
	n := int(numNodes)
	for name, l := range map[string]int{
		"left_children":    len(xt.LeftChildren),
		"right_children":   len(xt.RightChildren),
		"split_conditions": len(xt.SplitConditions),
		"split_indices":    len(xt.SplitIndices),
		"default_left":     len(xt.DefaultLeft),
	} {
		if l != n {
			return Tree{}, errors.NewModelError("LoadXGBoostJSON",
				fmt.Sprintf("%s has %d entries, want %d", name, l, n), nil)
		}
	}

	tree := Tree{Weight: 1, Nodes: make([]Node, n)}
	for i := 0; i < n; i++ {
		node := Node{
			NodeID:       i,
			LeftChild:    xt.LeftChildren[i],
			RightChild:   xt.RightChildren[i],
			SplitFeature: xt.SplitIndices[i],
			DefaultLeft:  xt.DefaultLeft[i] == 1,
			Decision:     DecisionLess,
		}
		if i < len(xt.SumHessian) {
			node.Cover = xt.SumHessian[i]
		}
		if node.LeftChild == -1 {
			node.RightChild = -1
			node.NodeType = LeafNode
			node.LeafValue = xt.SplitConditions[i]
		} else {
			node.NodeType = NumericalNode
			node.Threshold = xt.SplitConditions[i]
		}
		tree.Nodes[i] = node
	}
	return tree, nil
}

func parseXGBoostObjective(name string) (ObjectiveType, LinkType) {
	switch name {
	case "binary:logistic", "reg:logistic":
		return BinaryLogistic, LinkSigmoid
	case "multi:softprob", "multi:softmax":
		return MulticlassSoftmax, LinkSoftmax
	case "", "reg:squarederror", "reg:linear":
		return RegressionL2, LinkIdentity
	default:
		return ObjectiveType(name), LinkIdentity
	}
}

func numberOr(n json.Number, def int64) (int64, error) {
	if n == "" {
		return def, nil
	}
	return n.Int64()
}

// parseBaseScore reads a scalar or bracketed list of base scores. A missing
// value is XGBoost's default of 0.5.
func parseBaseScore(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []float64{0.5}, nil
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	parts := strings.Split(s, ",")
	scores := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %q", p)
		}
		scores[i] = v
	}
	return scores, nil
}
