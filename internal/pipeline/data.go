package pipeline

import (
	"encoding/csv"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// LoadCSV reads a numeric table whose first row holds the column names.
// Empty cells and "NaN" are read as missing values.
func LoadCSV(path string) (*mat.Dense, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open data %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV is LoadCSV over a reader.
func ReadCSV(r io.Reader) (*mat.Dense, []string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, errors.WithStack(errors.ErrEmptyData)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "read header")
	}
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
	}

	var data []float64
	rows := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "read row %d", rows+1)
		}
		for j, cell := range record {
			v, err := parseCell(cell)
			if err != nil {
				return nil, nil, errors.NewValueError("pipeline.ReadCSV",
					"row "+strconv.Itoa(rows+1)+" column "+names[j]+": "+err.Error())
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, nil, errors.WithStack(errors.ErrEmptyData)
	}
	return mat.NewDense(rows, len(names), data), names, nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// SampleBackground draws size distinct rows of X without replacement,
// keeping their original order. All rows are returned when size >= N.
func SampleBackground(X mat.Matrix, size int, seed uint64) (*mat.Dense, error) {
	n, d := X.Dims()
	if n == 0 || size <= 0 {
		return nil, errors.WithStack(errors.ErrEmptyBackground)
	}
	if size >= n {
		return mat.DenseCopyOf(X), nil
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	idx := rng.Perm(n)[:size]
	sort.Ints(idx)

	out := mat.NewDense(size, d, nil)
	row := make([]float64, d)
	for i, r := range idx {
		mat.Row(row, r, X)
		out.SetRow(i, row)
	}
	return out, nil
}

// Columns returns the listed columns of X; nil keeps every column.
func Columns(X mat.Matrix, cols []int) *mat.Dense {
	if cols == nil {
		return mat.DenseCopyOf(X)
	}
	n, _ := X.Dims()
	out := mat.NewDense(n, len(cols), nil)
	for i := 0; i < n; i++ {
		for j, c := range cols {
			out.Set(i, j, X.At(i, c))
		}
	}
	return out
}
