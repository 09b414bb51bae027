package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// header はスナップショットの先頭に書かれる識別情報
type header struct {
	Magic   string
	Kind    string
	Version int
}

const magic = "fdtree-model"

// SaveModel はモデルを kind と version 付きでファイルに保存する。
// 一時ファイルに書いてから rename するため、途中で失敗しても既存ファイルは壊れない。
//
// 使用例:
//
//	err := model.SaveModel(snapshot, "FDTree", 1, "tree_depth2.gob")
func SaveModel(m interface{}, kind string, version int, filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewModelError("SaveModel", "create directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp-*")
	if err != nil {
		return errors.NewModelError("SaveModel", "create file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := SaveModelToWriter(m, kind, version, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.NewModelError("SaveModel", "close file", err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return errors.NewModelError("SaveModel", "rename file", err)
	}
	return nil
}

// LoadModel はファイルからモデルを読み込む。kind が一致しない場合や
// version が新しすぎる場合はエラーを返す。
func LoadModel(m interface{}, kind string, maxVersion int, filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, errors.NewModelError("LoadModel", "open file", err)
	}
	defer file.Close()

	return LoadModelFromReader(m, kind, maxVersion, file)
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(m interface{}, kind string, version int, w io.Writer) error {
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(header{Magic: magic, Kind: kind, Version: version}); err != nil {
		return errors.NewModelError("SaveModel", "encode header", err)
	}
	if err := encoder.Encode(m); err != nil {
		return errors.NewModelError("SaveModel", "encode model", err)
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込み、保存時の version を返す
func LoadModelFromReader(m interface{}, kind string, maxVersion int, r io.Reader) (int, error) {
	decoder := gob.NewDecoder(r)

	var h header
	if err := decoder.Decode(&h); err != nil {
		return 0, errors.NewModelError("LoadModel", "decode header", err)
	}
	if h.Magic != magic {
		return 0, errors.NewModelError("LoadModel", "not an fdtree snapshot", nil)
	}
	if h.Kind != kind {
		return 0, errors.NewModelError("LoadModel", "snapshot kind "+h.Kind+" is not "+kind, nil)
	}
	if h.Version > maxVersion {
		return 0, errors.NewValidationError("version", "snapshot is newer than this build supports", h.Version)
	}
	if err := decoder.Decode(m); err != nil {
		return 0, errors.NewModelError("LoadModel", "decode model", err)
	}
	return h.Version, nil
}
