package anova

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
	"github.com/YuminosukeSato/fdtree/pkg/log"
)

const (
	cacheMagic   = "FDTH"
	cacheVersion = uint16(2)
)

// denseHeaderSize is the length of the header gonum writes before the
// elements of a marshalled mat.Dense.
var denseHeaderSize = func() int {
	b, err := mat.NewDense(1, 1, nil).MarshalBinary()
	if err != nil {
		panic(err)
	}
	return len(b) - 8
}()

// CacheKey identifies a decomposition on disk. A cached tensor is reused
// only when every field matches the request.
type CacheKey struct {
	BackgroundSize int
	NumFeatures    int
	NumOutputs     int
	// Subset is the analysed feature subset; nil means all features.
	Subset []int
	// Fingerprint identifies the background rows.
	Fingerprint uint64
	// ModelFingerprint identifies the ensemble, see ensemble.Model.Fingerprint.
	ModelFingerprint uint64
	// BackgroundCovers records whether branch fractions were recomputed from
	// the background before decomposing.
	BackgroundCovers bool
}

// FileName returns H_N_<n>_S_<subset>.bin.
func (k CacheKey) FileName() string {
	return fmt.Sprintf("H_N_%d_S_%s.bin", k.BackgroundSize, subsetTag(k.Subset))
}

func subsetTag(subset []int) string {
	if subset == nil {
		return "all"
	}
	parts := make([]string, len(subset))
	for i, f := range subset {
		parts[i] = strconv.Itoa(f)
	}
	return strings.Join(parts, "-")
}

// Fingerprint hashes the shape and the float bits of a background sample with
// FNV-64a, so that two samples of the same size but different rows do not
// share a cache entry.
func Fingerprint(background mat.Matrix) uint64 {
	h := fnv.New64a()
	r, c := background.Dims()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(r))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(c))
	h.Write(buf[:])
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(background.At(i, j)))
			h.Write(buf[:])
		}
	}
	return h.Sum64()
}

// Cache stores decomposition tensors in a directory. Reads and writes of one
// entry are serialised across processes by a lock file next to it.
type Cache struct {
	Dir    string
	logger log.Logger
}

// NewCache returns a cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{Dir: dir, logger: log.GetLoggerWithName("anova.cache")}
}

// Path returns the file that holds key.
func (c *Cache) Path(key CacheKey) string {
	return filepath.Join(c.Dir, key.FileName())
}

type cacheHeader struct {
	N, K, O          uint32
	NumFeatures      uint32
	Fingerprint      uint64
	ModelFingerprint uint64
	BackgroundCovers bool
	SubsetLen        int32 // -1 encodes a nil subset
}

// Save writes h under key, atomically replacing any previous entry.
func (c *Cache) Save(key CacheKey, h *Tensor) (err error) {
	if h.N != key.BackgroundSize {
		return errors.NewDimensionError("Cache.Save", key.BackgroundSize, h.N, 0)
	}
	if h.K != key.NumFeatures+2 {
		return errors.NewDimensionError("Cache.Save", key.NumFeatures+2, h.K, 1)
	}
	if h.O != key.NumOutputs {
		return errors.NewDimensionError("Cache.Save", key.NumOutputs, h.O, 2)
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "create cache directory %s", c.Dir)
	}

	path := c.Path(key)
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.Wrapf(err, "lock %s", path)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = errors.Wrapf(uerr, "unlock %s", path)
		}
	}()

	tmp, err := os.CreateTemp(c.Dir, key.FileName()+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temporary cache file")
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := writeTensor(w, key, h); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "flush cache file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close cache file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename cache file to %s", path)
	}

	c.logger.Debug("Tensor cached", log.CachePathKey, path, log.SamplesKey, h.N, log.ComponentsKey, h.K)
	return nil
}

// Load reads the tensor stored under key. A missing file yields an error
// matching fs.ErrNotExist; a stored entry whose header disagrees with key or
// whose payload is malformed yields a *errors.CacheMismatchError.
func (c *Cache) Load(key CacheKey) (h *Tensor, err error) {
	defer errors.Recover(&err, "Cache.Load")
	path := c.Path(key)
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, errors.Wrapf(err, "lock %s", path)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = errors.Wrapf(uerr, "unlock %s", path)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open cache %s", path)
	}
	defer f.Close()

	return readTensor(bufio.NewReader(f), path, key)
}

// LoadOrCompute returns the cached tensor for key, or calls compute and
// stores its result when the entry is missing, stale or unreadable. A stale
// entry is reported through errors.Warn. The boolean reports a cache hit.
func (c *Cache) LoadOrCompute(key CacheKey, compute func() (*Tensor, error)) (*Tensor, bool, error) {
	path := c.Path(key)

	h, err := c.Load(key)
	switch {
	case err == nil:
		c.logger.Info("Reusing cached tensor", log.CachePathKey, path, log.CacheHitKey, true)
		return h, true, nil
	case errors.Is(err, fs.ErrNotExist):
		c.logger.Debug("No cached tensor", log.CachePathKey, path)
	default:
		errors.Warn(errors.NewStaleCacheWarning(path, err.Error()))
	}

	h, err = compute()
	if err != nil {
		return nil, false, err
	}
	if err := c.Save(key, h); err != nil {
		return nil, false, err
	}
	c.logger.Info("Tensor computed and cached", log.CachePathKey, path, log.CacheHitKey, false)
	return h, false, nil
}

func writeTensor(w io.Writer, key CacheKey, h *Tensor) error {
	if _, err := io.WriteString(w, cacheMagic); err != nil {
		return errors.Wrap(err, "write cache header")
	}
	hdr := cacheHeader{
		N:           uint32(h.N),
		K:           uint32(h.K),
		O:           uint32(h.O),
		NumFeatures:      uint32(key.NumFeatures),
		Fingerprint:      key.Fingerprint,
		ModelFingerprint: key.ModelFingerprint,
		BackgroundCovers: key.BackgroundCovers,
		SubsetLen:        -1,
	}
	if key.Subset != nil {
		hdr.SubsetLen = int32(len(key.Subset))
	}
	if err := binary.Write(w, binary.LittleEndian, cacheVersion); err != nil {
		return errors.Wrap(err, "write cache header")
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return errors.Wrap(err, "write cache header")
	}
	for _, f := range key.Subset {
		if err := binary.Write(w, binary.LittleEndian, int32(f)); err != nil {
			return errors.Wrap(err, "write cache subset")
		}
	}

	for o := 0; o < h.O; o++ {
		payload, err := h.Output(o).MarshalBinary()
		if err != nil {
			return errors.Wrapf(err, "marshal output %d", o)
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(len(payload))); err != nil {
			return errors.Wrap(err, "write cache payload")
		}
		if _, err := w.Write(payload); err != nil {
			return errors.Wrap(err, "write cache payload")
		}
	}
	return nil
}

func readTensor(r io.Reader, path string, key CacheKey) (*Tensor, error) {
	magic := make([]byte, len(cacheMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errors.Wrap(err, "read cache header")
	}
	if string(magic) != cacheMagic {
		return nil, errors.NewCacheMismatchError(path, "format", cacheMagic, string(magic))
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, errors.Wrap(err, "read cache header")
	}
	if version != cacheVersion {
		return nil, errors.NewCacheMismatchError(path, "version", cacheVersion, version)
	}
	var hdr cacheHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "read cache header")
	}

	switch {
	case int(hdr.N) != key.BackgroundSize:
		return nil, errors.NewCacheMismatchError(path, "background size", key.BackgroundSize, hdr.N)
	case int(hdr.NumFeatures) != key.NumFeatures:
		return nil, errors.NewCacheMismatchError(path, "feature count", key.NumFeatures, hdr.NumFeatures)
	case int(hdr.K) != key.NumFeatures+2:
		return nil, errors.NewCacheMismatchError(path, "components", key.NumFeatures+2, hdr.K)
	case int(hdr.O) != key.NumOutputs:
		return nil, errors.NewCacheMismatchError(path, "outputs", key.NumOutputs, hdr.O)
	case hdr.Fingerprint != key.Fingerprint:
		return nil, errors.NewCacheMismatchError(path, "background fingerprint", key.Fingerprint, hdr.Fingerprint)
	case hdr.ModelFingerprint != key.ModelFingerprint:
		return nil, errors.NewCacheMismatchError(path, "model fingerprint", key.ModelFingerprint, hdr.ModelFingerprint)
	case hdr.BackgroundCovers != key.BackgroundCovers:
		return nil, errors.NewCacheMismatchError(path, "background covers", key.BackgroundCovers, hdr.BackgroundCovers)
	case hdr.SubsetLen < -1 || int(hdr.SubsetLen) > key.NumFeatures:
		return nil, errors.NewCacheMismatchError(path, "subset length", len(key.Subset), hdr.SubsetLen)
	}

	var subset []int
	if hdr.SubsetLen >= 0 {
		subset = make([]int, hdr.SubsetLen)
		for i := range subset {
			var f int32
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, errors.Wrap(err, "read cache subset")
			}
			subset[i] = int(f)
		}
	}
	if subsetTag(subset) != subsetTag(key.Subset) {
		return nil, errors.NewCacheMismatchError(path, "feature subset", subsetTag(key.Subset), subsetTag(subset))
	}

	h := NewTensor(int(hdr.N), int(hdr.K), int(hdr.O))
	for o := 0; o < h.O; o++ {
		var size uint64
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, errors.Wrap(err, "read cache payload")
		}
		if want := uint64(denseHeaderSize + 8*h.N*h.K); size != want {
			return nil, errors.NewCacheMismatchError(path, "payload size", want, size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, errors.Wrap(err, "read cache payload")
		}
		var m mat.Dense
		if err := m.UnmarshalBinary(payload); err != nil {
			return nil, errors.Wrapf(err, "unmarshal output %d", o)
		}
		if err := h.SetOutput(o, &m); err != nil {
			return nil, errors.NewCacheMismatchError(path, "payload shape", fmt.Sprintf("%d×%d", h.N, h.K), err.Error())
		}
	}
	return h, nil
}
