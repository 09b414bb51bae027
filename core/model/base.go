package model

import "github.com/YuminosukeSato/fdtree/pkg/errors"

// BaseEstimator は学習済みフラグを持つ構造体に埋め込む基底。
// Fit 開始時に Reset し、成功時のみ SetFitted する。
type BaseEstimator struct {
	fitted bool
}

// IsFitted はモデルが学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	return e.fitted
}

// SetFitted はモデルを学習済み状態に設定する
func (e *BaseEstimator) SetFitted() {
	e.fitted = true
}

// Reset は学習済み状態を取り消す
func (e *BaseEstimator) Reset() {
	e.fitted = false
}

// RequireFitted は未学習のとき kind と method を含む NotFittedError を返す
func (e *BaseEstimator) RequireFitted(kind, method string) error {
	if !e.fitted {
		return errors.NewNotFittedError(kind, method)
	}
	return nil
}
