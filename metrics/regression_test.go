package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMSE(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   *mat.VecDense
		yPred   *mat.VecDense
		want    float64
		wantErr bool
	}{
		{
			name:  "perfect prediction",
			yTrue: mat.NewVecDense(5, []float64{1, 2, 3, 4, 5}),
			yPred: mat.NewVecDense(5, []float64{1, 2, 3, 4, 5}),
			want:  0,
		},
		{
			name:  "simple case",
			yTrue: mat.NewVecDense(4, []float64{1, 2, 3, 4}),
			yPred: mat.NewVecDense(4, []float64{1.5, 2.5, 2.5, 3.5}),
			want:  0.25,
		},
		{
			name:  "larger errors",
			yTrue: mat.NewVecDense(3, []float64{10, 20, 30}),
			yPred: mat.NewVecDense(3, []float64{12, 18, 33}),
			want:  17.0 / 3.0,
		},
		{
			name:    "dimension mismatch",
			yTrue:   mat.NewVecDense(3, []float64{1, 2, 3}),
			yPred:   mat.NewVecDense(2, []float64{1, 2}),
			wantErr: true,
		},
		{
			name:    "empty vectors",
			yTrue:   &mat.VecDense{},
			yPred:   &mat.VecDense{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MSE(tt.yTrue, tt.yPred)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)

			rmse, err := RMSE(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.InDelta(t, math.Sqrt(tt.want), rmse, 1e-10)
		})
	}
}

func TestR2Score(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		yPred []float64
		want  float64
	}{
		{"perfect", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"mean predictor", []float64{1, 2, 3}, []float64{2, 2, 2}, 0},
		{"partial", []float64{1, 2, 3, 4}, []float64{1.5, 2.5, 2.5, 3.5}, 0.8},
		{"constant exact", []float64{5, 5}, []float64{5, 5}, 1},
		{"constant off", []float64{5, 5}, []float64{4, 6}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := R2Score(
				mat.NewVecDense(len(tt.yTrue), tt.yTrue),
				mat.NewVecDense(len(tt.yPred), tt.yPred),
			)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)
		})
	}
}

func TestMatrixScores(t *testing.T) {
	yTrue := mat.NewDense(3, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
	})
	yPred := mat.NewDense(3, 2, []float64{
		1, 20,
		2, 20,
		3, 20,
	})

	r2, err := R2Matrix(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r2, 1e-10)

	mse, err := MSEMatrix(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, (0+200.0/3)/2, mse, 1e-10)

	_, err = R2Matrix(yTrue, mat.NewDense(3, 1, nil))
	require.Error(t, err)
}
