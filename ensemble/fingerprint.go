package ensemble

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// Clone returns a deep copy of the model. Trees and nodes share no memory
// with the original.
func (m *Model) Clone() *Model {
	c := *m
	c.Trees = make([]Tree, len(m.Trees))
	for i, t := range m.Trees {
		t.Nodes = append([]Node(nil), t.Nodes...)
		c.Trees[i] = t
	}
	c.FeatureNames = append([]string(nil), m.FeatureNames...)
	c.BaseScore = append([]float64(nil), m.BaseScore...)
	return &c
}

// Fingerprint hashes everything that changes the model output or its
// decomposition with FNV-64a: shape, link, base scores, and per node the
// children, split feature, threshold, decision, default direction, leaf value
// and cover. Feature names and the source format are not part of it.
func (m *Model) Fingerprint() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	putInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	putBool := func(v bool) {
		if v {
			putInt(1)
		} else {
			putInt(0)
		}
	}

	putInt(int64(m.NumFeatures))
	putInt(int64(m.NumOutputs))
	putInt(int64(m.Link))
	putBool(m.AverageOutput)
	h.Write([]byte(m.Objective))
	putInt(int64(len(m.BaseScore)))
	for _, b := range m.BaseScore {
		putFloat(b)
	}
	putInt(int64(len(m.Trees)))
	for i := range m.Trees {
		t := &m.Trees[i]
		putInt(int64(t.Class))
		putFloat(t.Weight)
		putInt(int64(len(t.Nodes)))
		for j := range t.Nodes {
			n := &t.Nodes[j]
			putInt(int64(n.LeftChild))
			putInt(int64(n.RightChild))
			putInt(int64(n.SplitFeature))
			putFloat(n.Threshold)
			putInt(int64(n.Decision))
			putBool(n.DefaultLeft)
			putFloat(n.LeafValue)
			putFloat(n.Cover)
		}
	}
	return h.Sum64()
}
