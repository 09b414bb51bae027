// Package metrics はデコンポジションの忠実度を測る回帰指標を提供します。
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("MSE", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("MSE", n, yPred.Len(), 0)
	}

	// MSE = (1/n) * ||yTrue - yPred||²
	d := floats.Distance(mat.Col(nil, 0, yTrue), mat.Col(nil, 0, yPred), 2)
	return d * d / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// R2Score は決定係数（R²）を計算する
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("R2Score", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("R2Score", n, yPred.Len(), 0)
	}

	truth := mat.Col(nil, 0, yTrue)
	pred := mat.Col(nil, 0, yPred)
	yMean := stat.Mean(truth, nil)

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := range truth {
		tss += (truth[i] - yMean) * (truth[i] - yMean)
		rss += (truth[i] - pred[i]) * (truth[i] - pred[i])
	}

	// すべてのyTrueが同じ値の場合、完全一致なら1、そうでなければ0とみなす
	if tss == 0 {
		if rss == 0 {
			return 1, nil
		}
		return 0, nil
	}

	// R² = 1 - RSS/TSS
	return 1 - rss/tss, nil
}

// MSEMatrix は N × O 行列の各列のMSEを計算し、列平均を返す
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	return columnAverage("MSEMatrix", yTrue, yPred, MSE)
}

// R2Matrix は N × O 行列の各列のR²を計算し、列平均を返す（多出力モデル用）
func R2Matrix(yTrue, yPred mat.Matrix) (float64, error) {
	return columnAverage("R2Matrix", yTrue, yPred, R2Score)
}

func columnAverage(op string, yTrue, yPred mat.Matrix, score func(a, b *mat.VecDense) (float64, error)) (float64, error) {
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()
	if rTrue == 0 || cTrue == 0 {
		return 0, errors.NewValueError(op, "empty matrix")
	}
	if rTrue != rPred {
		return 0, errors.NewDimensionError(op, rTrue, rPred, 0)
	}
	if cTrue != cPred {
		return 0, errors.NewDimensionError(op, cTrue, cPred, 1)
	}

	scores := make([]float64, cTrue)
	for j := 0; j < cTrue; j++ {
		a := mat.NewVecDense(rTrue, mat.Col(nil, j, yTrue))
		b := mat.NewVecDense(rPred, mat.Col(nil, j, yPred))
		s, err := score(a, b)
		if err != nil {
			return 0, err
		}
		scores[j] = s
	}
	return stat.Mean(scores, nil), nil
}
