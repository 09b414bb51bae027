package ensemble

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/fdtree/pkg/errors"
)

// Format names accepted by Load.
const (
	FormatAuto     = "auto"
	FormatLightGBM = "lightgbm"
	FormatXGBoost  = "xgboost"
)

// Load reads a model in the given format. FormatAuto (or "") detects the
// format from the top-level JSON keys.
func Load(path, format string) (*Model, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.NewModelError("ensemble.Load", "read file", err)
	}

	if format == "" || format == FormatAuto {
		format, err = DetectFormat(data)
		if err != nil {
			return nil, err
		}
	}

	switch format {
	case FormatLightGBM:
		return ParseLightGBMJSON(data)
	case FormatXGBoost:
		return ParseXGBoostJSON(data)
	default:
		return nil, errors.NewValidationError("model.format", "must be one of auto, lightgbm, xgboost", format)
	}
}

// LoadAuto is Load with format detection.
func LoadAuto(path string) (*Model, error) {
	return Load(path, FormatAuto)
}

// DetectFormat inspects the top-level keys of a JSON model dump.
func DetectFormat(data []byte) (string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return "", errors.NewModelError("ensemble.DetectFormat", "decode JSON", err)
	}
	if _, ok := top["learner"]; ok {
		return FormatXGBoost, nil
	}
	if _, ok := top["tree_info"]; ok {
		return FormatLightGBM, nil
	}
	return "", errors.NewModelError("ensemble.DetectFormat", "neither a LightGBM dump_model nor an XGBoost JSON model", nil)
}
