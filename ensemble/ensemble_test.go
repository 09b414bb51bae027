package ensemble

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

func TestLoadLightGBMJSON(t *testing.T) {
	m, err := LoadLightGBMJSON(filepath.Join("testdata", "lightgbm_regression.json"))
	require.NoError(t, err)

	assert.Equal(t, 3, m.NumFeatures)
	assert.Equal(t, 1, m.NumOutputs)
	assert.Equal(t, []string{"age", "income", "hours"}, m.FeatureNames)
	assert.Equal(t, RegressionL2, m.Objective)
	assert.False(t, m.HasLink())
	require.Len(t, m.Trees, 2)
	require.Len(t, m.Trees[0].Nodes, 5)
	assert.True(t, m.HasCovers())
	assert.Equal(t, []int{0, 1}, m.Trees[0].UsedFeatures())

	X := mat.NewDense(3, 3, []float64{
		0.2, 0.0, 0.0,
		0.7, 0.5, 2.0,
		0.7, 0.1, math.NaN(),
	})
	pred, err := m.Predict(X)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pred.At(0, 0), 1e-12)
	assert.InDelta(t, 3.5, pred.At(1, 0), 1e-12)
	assert.InDelta(t, 1.5, pred.At(2, 0), 1e-12, "NaN follows the default direction")

	f, err := m.Trees[0].LeftFraction(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, f, 1e-12)
}

func TestLoadXGBoostJSON(t *testing.T) {
	m, err := LoadXGBoostJSON(filepath.Join("testdata", "xgboost_binary.json"))
	require.NoError(t, err)

	assert.Equal(t, 2, m.NumFeatures)
	assert.Equal(t, BinaryLogistic, m.Objective)
	assert.True(t, m.HasLink())
	assert.InDelta(t, 0.0, m.BaseScore[0], 1e-12, "base_score 0.5 is margin 0")
	assert.True(t, m.HasCovers())

	X := mat.NewDense(2, 2, []float64{
		0.2, 3.0,
		0.5, 1.0,
	})
	raw, err := m.PredictRaw(X)
	require.NoError(t, err)
	assert.InDelta(t, 0.4+0.2, raw.At(0, 0), 1e-6)
	assert.InDelta(t, -0.4-0.1, raw.At(1, 0), 1e-6, "XGBoost splits are strict")

	prob, err := m.Predict(X)
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-0.6)), prob.At(0, 0), 1e-6)
}

func TestXGBoostBaseScoreFormats(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "xgboost_binary.json"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		score   string
		margin  float64
		wantErr bool
	}{
		{"scalar", `"5E-1"`, 0, false},
		{"bracketed vector", `"[5E-1]"`, 0, false},
		{"bracketed with spaces", `" [ 7.5E-1 ] "`, math.Log(3), false},
		{"missing defaults to one half", `""`, 0, false},
		{"too many values", `"[5E-1,2.5E-1]"`, 0, true},
		{"not a number", `"[abc]"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(string(raw), `"base_score": "5E-1"`, `"base_score": `+tt.score, 1)
			m, err := ParseXGBoostJSON([]byte(data))
			if tt.wantErr {
				require.Error(t, err)
				var me *errors.ModelError
				assert.True(t, errors.As(err, &me))
				return
			}
			require.NoError(t, err)
			require.Len(t, m.BaseScore, 1)
			assert.InDelta(t, tt.margin, m.BaseScore[0], 1e-12)
		})
	}
}

func TestLoadAutoDetects(t *testing.T) {
	tests := []struct {
		file   string
		source string
	}{
		{"lightgbm_regression.json", FormatLightGBM},
		{"xgboost_binary.json", FormatXGBoost},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			m, err := LoadAuto(filepath.Join("testdata", tt.file))
			require.NoError(t, err)
			assert.Equal(t, tt.source, m.Source)
		})
	}

	t.Run("unknown layout", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "other.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"trees": []}`), 0o644))
		_, err := LoadAuto(path)
		require.Error(t, err)
		var me *errors.ModelError
		assert.True(t, errors.As(err, &me))
	})

	t.Run("unknown format name", func(t *testing.T) {
		_, err := Load(filepath.Join("testdata", "xgboost_binary.json"), "catboost")
		require.Error(t, err)
	})
}

func TestTreeValidate(t *testing.T) {
	leaf := func(v float64) Node { return Node{LeftChild: -1, RightChild: -1, LeafValue: v, Cover: 1} }

	tests := []struct {
		name    string
		nodes   []Node
		wantErr bool
	}{
		{
			name:  "single leaf",
			nodes: []Node{leaf(1)},
		},
		{
			name: "valid split",
			nodes: []Node{
				{LeftChild: 1, RightChild: 2, SplitFeature: 0, Cover: 2},
				leaf(0), leaf(1),
			},
		},
		{
			name: "child out of range",
			nodes: []Node{
				{LeftChild: 1, RightChild: 5, SplitFeature: 0},
				leaf(0),
			},
			wantErr: true,
		},
		{
			name: "cycle",
			nodes: []Node{
				{LeftChild: 1, RightChild: 2, SplitFeature: 0},
				{LeftChild: 0, RightChild: 2, SplitFeature: 0},
				leaf(1),
			},
			wantErr: true,
		},
		{
			name: "feature out of range",
			nodes: []Node{
				{LeftChild: 1, RightChild: 2, SplitFeature: 3},
				leaf(0), leaf(1),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := Tree{Nodes: tt.nodes, Weight: 1}
			err := tree.Validate(2)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMissingCoverIsConfigurationError(t *testing.T) {
	m := &Model{
		NumFeatures: 1,
		NumOutputs:  1,
		Trees: []Tree{{
			Weight: 1,
			Nodes: []Node{
				{LeftChild: 1, RightChild: 2, SplitFeature: 0, Threshold: 0},
				{LeftChild: -1, RightChild: -1, LeafValue: -1},
				{LeftChild: -1, RightChild: -1, LeafValue: 1},
			},
		}},
	}
	require.NoError(t, m.Validate())
	assert.False(t, m.HasCovers())

	err := m.CheckCovers()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingCover))
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	X := mat.NewDense(4, 1, []float64{-1, -2, 1, -3})
	require.NoError(t, m.RecomputeCovers(X))
	assert.True(t, m.HasCovers())
	f, err := m.Trees[0].LeftFraction(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, f, 1e-12)
}

func TestRecomputeCoversUnreachedSubtree(t *testing.T) {
	m := &Model{
		NumFeatures: 2,
		NumOutputs:  1,
		Trees: []Tree{{
			Weight: 1,
			Nodes: []Node{
				{LeftChild: 1, RightChild: 2, SplitFeature: 0, Threshold: 0},
				{LeftChild: -1, RightChild: -1, LeafValue: 0},
				{LeftChild: 3, RightChild: 4, SplitFeature: 1, Threshold: 0},
				{LeftChild: -1, RightChild: -1, LeafValue: 1},
				{LeftChild: -1, RightChild: -1, LeafValue: 2},
			},
		}},
	}
	X := mat.NewDense(2, 2, []float64{-1, 0, -2, 0})
	require.NoError(t, m.RecomputeCovers(X))

	tree := &m.Trees[0]
	root, err := tree.LeftFraction(0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, root, 1e-12)
	inner, err := tree.LeftFraction(2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, inner, 1e-12)
}

func TestPredictSoftmax(t *testing.T) {
	leaf := func(v float64) Node { return Node{LeftChild: -1, RightChild: -1, LeafValue: v, Cover: 1} }
	m := &Model{
		NumFeatures: 1,
		NumOutputs:  3,
		Link:        LinkSoftmax,
		Trees: []Tree{
			{Class: 0, Weight: 1, Nodes: []Node{leaf(1)}},
			{Class: 1, Weight: 1, Nodes: []Node{leaf(2)}},
			{Class: 2, Weight: 1, Nodes: []Node{leaf(3)}},
		},
	}
	require.NoError(t, m.Validate())

	out, err := m.Predict(mat.NewDense(1, 1, []float64{0}))
	require.NoError(t, err)
	sum := out.At(0, 0) + out.At(0, 1) + out.At(0, 2)
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, out.At(0, 2), out.At(0, 1))

	_, err = m.PredictRaw(mat.NewDense(1, 2, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}
