package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// PanicError は Recover が捕捉した panic を表すエラーです。
type PanicError struct {
	Operation string      // panic を捕捉した操作（例: "partition.Fit", "Cache.Load"）
	Value     interface{} // panic に渡された値
	Previous  error       // panic 前に関数が返そうとしていたエラー
	Stack     string      // 捕捉時点のゴルーチンのスタック
}

func (e *PanicError) Error() string {
	msg := fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
	if e.Previous != nil {
		msg += fmt.Sprintf(" (original error: %v)", e.Previous)
	}
	return msg
}

// Unwrap は panic 前のエラー、なければ error 型の panic 値を返します。
func (e *PanicError) Unwrap() error {
	if e.Previous != nil {
		return e.Previous
	}
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// String はスタックを含む詳細表示です。
func (e *PanicError) String() string {
	return fmt.Sprintf("%s\nStack trace:\n%s", e.Error(), e.Stack)
}

// MarshalZerologObject は zerolog への構造化出力を実装します。
func (e *PanicError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type", "PanicError").
		Str("operation", e.Operation).
		Str("panic", fmt.Sprint(e.Value)).
		Str("stack", e.Stack)
	if e.Previous != nil {
		event.Str("previous", e.Previous.Error())
	}
}

// NewPanicError は現在のスタックを記録した PanicError を作成します。
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		Operation: operation,
		Value:     panicValue,
		Stack:     string(debug.Stack()),
	}
}

// Recover は defer で使い、panic を *PanicError に変換して err に設定します。
//
//	func (t *Tree) Fit(X, Y mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "partition.Fit")
//	    ...
//	}
//
// 既に err が設定されていた場合は Previous として保持します。
func Recover(err *error, operation string) {
	if r := recover(); r != nil {
		pe := NewPanicError(operation, r)
		pe.Previous = *err
		*err = pe
	}
}

// SafeExecute は fn を実行し、panic をエラーとして返します。
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
