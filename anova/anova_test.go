package anova

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/fdtree/ensemble"
	"github.com/YuminosukeSato/fdtree/pkg/errors"
	"github.com/YuminosukeSato/fdtree/pkg/log"
)

func leaf(v, cover float64) ensemble.Node {
	return ensemble.Node{LeftChild: -1, RightChild: -1, LeafValue: v, Cover: cover}
}

func split(feature int, threshold float64, left, right int, cover float64) ensemble.Node {
	return ensemble.Node{
		LeftChild:    left,
		RightChild:   right,
		NodeType:     ensemble.NumericalNode,
		SplitFeature: feature,
		Threshold:    threshold,
		Cover:        cover,
	}
}

// additiveTree depends on feature 0 only.
func additiveTree() ensemble.Tree {
	return ensemble.Tree{Weight: 1, Nodes: []ensemble.Node{
		split(0, 0, 1, 2, 100),
		leaf(-1, 50),
		leaf(1, 50),
	}}
}

// interactionTree is 2 when x1 <= 0 and x2 > 0, and 0 otherwise.
func interactionTree() ensemble.Tree {
	return ensemble.Tree{Weight: 1, Nodes: []ensemble.Node{
		split(1, 0, 1, 4, 100),
		split(2, 0, 2, 3, 50),
		leaf(0, 25),
		leaf(2, 25),
		leaf(0, 50),
	}}
}

func testModel(trees ...ensemble.Tree) *ensemble.Model {
	return &ensemble.Model{
		Trees:       trees,
		NumFeatures: 3,
		NumOutputs:  1,
		BaseScore:   []float64{0.25},
	}
}

func normalBackground(n, d int, seed uint64) *mat.Dense {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, seed+1)}
	data := make([]float64, n*d)
	for i := range data {
		data[i] = dist.Rand()
	}
	return mat.NewDense(n, d, data)
}

func TestDecomposeAdditiveModel(t *testing.T) {
	model := testModel(additiveTree())
	bg := normalBackground(200, 3, 1)

	h, err := Decompose(model, bg)
	require.NoError(t, err)

	n, k, o := h.Dims()
	assert.Equal(t, 200, n)
	assert.Equal(t, 5, k)
	assert.Equal(t, 1, o)

	require.NoError(t, CheckAdditivity(h, model, bg, DefaultTolerance))
	require.NoError(t, CheckCentered(h, 1e-9))

	for s := 0; s < n; s++ {
		assert.InDelta(t, 0, h.At(s, h.Residual(), 0), 1e-9, "no interaction in a single-feature tree")
		assert.InDelta(t, 0, h.At(s, 2, 0), 1e-12)
		assert.InDelta(t, 0, h.At(s, 3, 0), 1e-12)
	}

	fid, err := Fidelity(h)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, fid, 1e-9)
}

func TestDecomposeInteraction(t *testing.T) {
	model := testModel(additiveTree(), interactionTree())
	bg := normalBackground(300, 3, 7)

	h, err := Decompose(model, bg)
	require.NoError(t, err)
	require.NoError(t, CheckAdditivity(h, model, bg, DefaultTolerance))
	require.NoError(t, CheckCentered(h, 1e-9))

	imp := Importance(h)
	assert.Greater(t, imp.At(3, 0), 0.0, "residual carries the x1·x2 interaction")
	assert.Greater(t, imp.At(0, 0), 0.0)

	fid, err := Fidelity(h)
	require.NoError(t, err)
	assert.Less(t, fid, 1.0)

	t.Run("conditional expectation", func(t *testing.T) {
		tree := interactionTree()
		fractions, err := tree.LeftFractions()
		require.NoError(t, err)
		// x1 <= 0: E over x2 split = 0.5*0 + 0.5*2 = 1
		assert.InDelta(t, 1.0, conditional(&tree, fractions, 0, 1, []float64{0, -1, 0}), 1e-12)
		assert.InDelta(t, 0.0, conditional(&tree, fractions, 0, 1, []float64{0, 1, 0}), 1e-12)
		// unconditional: 0.5 * 1 + 0.5 * 0
		assert.InDelta(t, 0.5, conditional(&tree, fractions, 0, -1, nil), 1e-12)
	})
}

func TestDecomposeParallelMatchesSequential(t *testing.T) {
	model := testModel(additiveTree(), interactionTree())
	bg := normalBackground(500, 3, 3)

	par, err := Decompose(model, bg, WithParallel(true), WithWorkers(4))
	require.NoError(t, err)
	seq, err := Decompose(model, bg, WithParallel(false))
	require.NoError(t, err)
	assert.Equal(t, seq.Data, par.Data)
}

func TestDecomposeMulticlass(t *testing.T) {
	a, b := additiveTree(), interactionTree()
	b.Class = 1
	model := &ensemble.Model{
		Trees:       []ensemble.Tree{a, b},
		NumFeatures: 3,
		NumOutputs:  2,
		Link:        ensemble.LinkSoftmax,
	}
	bg := normalBackground(100, 3, 11)

	h, err := Decompose(model, bg)
	require.NoError(t, err)
	assert.Equal(t, 2, h.O)
	require.NoError(t, CheckAdditivity(h, model, bg, DefaultTolerance))
	for s := 0; s < h.N; s++ {
		assert.InDelta(t, 0, h.At(s, 1, 1), 1e-12, "feature 0 does not reach output 1")
	}
}

func TestDecomposeErrors(t *testing.T) {
	bg := normalBackground(10, 3, 5)

	t.Run("empty background", func(t *testing.T) {
		_, err := Decompose(testModel(additiveTree()), &mat.Dense{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrEmptyBackground))
	})

	t.Run("column mismatch", func(t *testing.T) {
		_, err := Decompose(testModel(additiveTree()), normalBackground(10, 2, 5))
		var de *errors.DimensionError
		require.True(t, errors.As(err, &de))
	})

	t.Run("missing covers", func(t *testing.T) {
		tree := additiveTree()
		tree.Nodes[1].Cover, tree.Nodes[2].Cover = 0, 0
		_, err := Decompose(testModel(tree), bg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrMissingCover))
	})

	t.Run("background covers recover", func(t *testing.T) {
		tree := additiveTree()
		tree.Nodes[1].Cover, tree.Nodes[2].Cover = 0, 0
		model := testModel(tree)
		h, err := Decompose(model, bg, WithBackgroundCovers(true))
		require.NoError(t, err)
		require.NoError(t, CheckAdditivity(h, model, bg, DefaultTolerance))
		assert.Zero(t, model.Trees[0].Nodes[1].Cover, "caller's covers must stay untouched")
		assert.Zero(t, model.Trees[0].Nodes[2].Cover)
	})

	t.Run("logit disabled on linked model", func(t *testing.T) {
		model := testModel(additiveTree())
		model.Link = ensemble.LinkSigmoid
		_, err := Decompose(model, bg, WithLogit(false))
		var ve *errors.ValidationError
		require.True(t, errors.As(err, &ve))
	})
}

func TestDecomposeLogsProgress(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	_, err := Decompose(testModel(additiveTree()), normalBackground(20, 3, 2), WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Decomposition completed"))
	assert.True(t, logger.ContainsField(log.OperationKey, log.OperationDecompose))
	assert.True(t, logger.ContainsField(log.SamplesKey, float64(20)))
}

func TestTensorViews(t *testing.T) {
	h := NewTensor(2, 4, 1)
	for s := 0; s < 2; s++ {
		for k := 0; k < 4; k++ {
			h.Set(s, k, 0, float64(10*s+k))
		}
	}

	sel, err := h.Select([]int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, sel.K)
	assert.Equal(t, 12.0, sel.At(1, 1, 0))

	_, err = h.Select([]int{4})
	require.Error(t, err)

	sum := h.SumComponents(1, 4)
	assert.Equal(t, 6.0, sum.At(0, 0))
	assert.Equal(t, 36.0, sum.At(1, 0))
	assert.Equal(t, []float64{3, 13}, h.Component(3, 0))
	assert.Equal(t, 2, h.NumFeatures())

	out := h.Output(0)
	r, c := out.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)
}

func TestCacheRoundTrip(t *testing.T) {
	model := testModel(additiveTree(), interactionTree())
	bg := normalBackground(50, 3, 9)
	h, err := Decompose(model, bg)
	require.NoError(t, err)

	cache := NewCache(t.TempDir())
	key := CacheKey{
		BackgroundSize:   50,
		NumFeatures:      3,
		NumOutputs:       1,
		Subset:           []int{0, 2},
		Fingerprint:      Fingerprint(bg),
		ModelFingerprint: model.Fingerprint(),
	}
	assert.Equal(t, "H_N_50_S_0-2.bin", key.FileName())

	require.NoError(t, cache.Save(key, h))
	got, err := cache.Load(key)
	require.NoError(t, err)
	assert.Equal(t, h.Data, got.Data, "cache must reload bit-for-bit")

	tests := []struct {
		name   string
		modify func(k *CacheKey)
		field  string
	}{
		{"fingerprint", func(k *CacheKey) { k.Fingerprint++ }, "background fingerprint"},
		{"feature count", func(k *CacheKey) { k.NumFeatures = 4 }, "feature count"},
		{"outputs", func(k *CacheKey) { k.NumOutputs = 2 }, "outputs"},
		{"model", func(k *CacheKey) { k.ModelFingerprint++ }, "model fingerprint"},
		{"background covers", func(k *CacheKey) { k.BackgroundCovers = true }, "background covers"},
		{"subset", func(k *CacheKey) { k.Subset = []int{1, 2} }, "feature subset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := key
			tt.modify(&other)
			// read the stored entry with different header expectations
			f, err := os.Open(cache.Path(key))
			require.NoError(t, err)
			defer f.Close()
			_, err = readTensor(f, cache.Path(key), other)
			var cm *errors.CacheMismatchError
			require.True(t, errors.As(err, &cm))
			assert.Equal(t, tt.field, cm.Field)
		})
	}

	t.Run("missing entry", func(t *testing.T) {
		_, err := cache.Load(CacheKey{BackgroundSize: 7, NumFeatures: 3, NumOutputs: 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})

	t.Run("wrong shape rejected on save", func(t *testing.T) {
		err := cache.Save(CacheKey{BackgroundSize: 49, NumFeatures: 3, NumOutputs: 1}, h)
		var de *errors.DimensionError
		require.True(t, errors.As(err, &de))
	})
}

func TestLoadOrComputeRecomputesStaleEntries(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf, false)
	defer log.SetOutput(&bytes.Buffer{}, false)

	model := testModel(additiveTree())
	bg := normalBackground(30, 3, 4)
	cache := NewCache(filepath.Join(t.TempDir(), "cache"))
	key := CacheKey{
		BackgroundSize:   30,
		NumFeatures:      3,
		NumOutputs:       1,
		Fingerprint:      Fingerprint(bg),
		ModelFingerprint: model.Fingerprint(),
	}

	calls := 0
	compute := func() (*Tensor, error) {
		calls++
		return Decompose(model, bg)
	}

	_, hit, err := cache.LoadOrCompute(key, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = cache.LoadOrCompute(key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, calls)

	stale := key
	stale.Fingerprint++
	_, hit, err = cache.LoadOrCompute(stale, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
	assert.Contains(t, buf.String(), "StaleCacheWarning")

	// the entry was overwritten for the new key
	_, err = cache.Load(stale)
	require.NoError(t, err)

	recovered := stale
	recovered.BackgroundCovers = true
	_, hit, err = cache.LoadOrCompute(recovered, compute)
	require.NoError(t, err)
	assert.False(t, hit, "entries computed with other branch fractions are not reused")
	assert.Equal(t, 3, calls)
}

func TestLoadOrComputeRecomputesCorruptEntries(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf, false)
	defer log.SetOutput(&bytes.Buffer{}, false)

	model := testModel(additiveTree(), interactionTree())
	bg := normalBackground(20, 3, 8)
	key := CacheKey{
		BackgroundSize:   20,
		NumFeatures:      3,
		NumOutputs:       1,
		Subset:           []int{1},
		Fingerprint:      Fingerprint(bg),
		ModelFingerprint: model.Fingerprint(),
	}
	compute := func() (*Tensor, error) { return Decompose(model, bg) }

	// magic(4) + version(2) + header + one subset entry(4)
	payloadLenAt := int64(len(cacheMagic) + 2 + binary.Size(cacheHeader{}) + 4)

	tests := []struct {
		name    string
		corrupt func(t *testing.T, path string)
	}{
		{"oversized payload length", func(t *testing.T, path string) {
			f, err := os.OpenFile(path, os.O_WRONLY, 0)
			require.NoError(t, err)
			defer f.Close()
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], 1<<62)
			_, err = f.WriteAt(b[:], payloadLenAt)
			require.NoError(t, err)
		}},
		{"oversized subset length", func(t *testing.T, path string) {
			f, err := os.OpenFile(path, os.O_WRONLY, 0)
			require.NoError(t, err)
			defer f.Close()
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], 1<<30)
			_, err = f.WriteAt(b[:], payloadLenAt-8)
			require.NoError(t, err)
		}},
		{"truncated payload", func(t *testing.T, path string) {
			require.NoError(t, os.Truncate(path, payloadLenAt+20))
		}},
		{"garbage", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte("not a tensor"), 0o644))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewCache(t.TempDir())
			want, hit, err := cache.LoadOrCompute(key, compute)
			require.NoError(t, err)
			require.False(t, hit)

			tt.corrupt(t, cache.Path(key))
			_, err = cache.Load(key)
			require.Error(t, err)

			got, hit, err := cache.LoadOrCompute(key, compute)
			require.NoError(t, err)
			assert.False(t, hit)
			assert.Equal(t, want.Data, got.Data)

			_, hit, err = cache.LoadOrCompute(key, compute)
			require.NoError(t, err)
			assert.True(t, hit, "the recomputed entry replaces the corrupt one")
		})
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 2, []float64{1, 2, 3, 4.0000001})
	c := mat.NewDense(1, 4, []float64{1, 2, 3, 4})
	assert.Equal(t, Fingerprint(a), Fingerprint(mat.DenseCopyOf(a)))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}
