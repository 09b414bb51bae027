package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fderrors "github.com/YuminosukeSato/fdtree/pkg/errors"
)

func TestTestLoggerCapturesFields(t *testing.T) {
	logger, _ := NewTestLogger(LevelInfo)
	child := logger.With(StrategyKey, "l2coe")

	child.Debug("hidden")
	child.Info("Fit completed", DepthKey, 2, LossKey, 0.5)

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "l2coe", entries[0][StrategyKey])
	assert.True(t, logger.ContainsField(DepthKey, float64(2)))
	assert.False(t, logger.ContainsMessage("hidden"))

	logger.Clear()
	entries, err = logger.GetLogEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTestLoggerLeadingError(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)
	logger.Error("Decomposition failed", fderrors.ErrEmptyBackground, OperationKey, OperationDecompose)

	assert.True(t, logger.ContainsField("error", fderrors.ErrEmptyBackground.Error()))
	assert.True(t, logger.ContainsField(OperationKey, OperationDecompose))
}

func TestTestLoggerProvider(t *testing.T) {
	p, _ := NewTestLoggerProvider(LevelDebug)
	SetProvider(p)
	defer SetProvider(nil)

	GetLoggerWithName("anova").Info("started")
	assert.True(t, p.Logger().ContainsField(ComponentKey, "anova"))
}

func TestZerologProviderJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, false)
	SetLevel(LevelDebug)
	defer func() {
		SetLevel(LevelInfo)
	}()

	logger := GetLoggerWithName("partition").With(StrategyKey, "cart")
	logger.Debug("split chosen", NodeKey, 3, ThresholdKey, 0.25)
	err := fderrors.NewValidationError("strategy", "unknown", "foo")
	logger.Error("configuration rejected", err, DepthKey, 1)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "debug", first["level"])
	assert.Equal(t, "partition", first[ComponentKey])
	assert.Equal(t, "cart", first[StrategyKey])
	assert.Equal(t, 0.25, first[ThresholdKey])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "error", second["level"])
	assert.Contains(t, second["error"], "validation failed")
	assert.NotEmpty(t, second[StacktraceKey])
}

func TestZerologLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, false)
	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	logger := GetLogger()
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
	assert.False(t, logger.Enabled(context.Background(), LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), LevelError))
}

func TestWarnRoutedThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, false)
	defer SetOutput(&bytes.Buffer{}, false)

	fderrors.Warn(fderrors.NewStaleCacheWarning("H_N_10_S_0.bin", "fingerprint mismatch"))
	assert.Contains(t, buf.String(), "StaleCacheWarning")
	assert.Contains(t, buf.String(), "H_N_10_S_0.bin")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
