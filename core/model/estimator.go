package model

import "gonum.org/v1/gonum/mat"

// Fitter は特徴量 X と目的行列 Y から学習するモデルのインターフェース
type Fitter interface {
	// Fit は X (N × p) と Y (N × m) でモデルを学習させる
	Fit(X, Y mat.Matrix) error
}

// Partitioner はサンプルを領域（グループ）に割り当てるモデルのインターフェース
type Partitioner interface {
	Fitter
	// Predict は各行のグループ番号と、グループごとの規則文字列を返す
	Predict(X mat.Matrix) (groups []int, rules []string, err error)
	// TotalImpurity は葉の不純度の総和を返す
	TotalImpurity() float64
}

// Persistable はファイルへ保存・復元できるモデルのインターフェース
type Persistable interface {
	Save(path string) error
	Load(path string) error
}
