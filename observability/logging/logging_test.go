package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithOptionsWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := SetupWithOptions("discountd", "test", Options{Output: &buf})
	defer closer.Close()
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	logger.Info("discount: updated", "numerator", 10)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "discount: updated", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "discountd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWithOptionsRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "discountd.log")
	var buf bytes.Buffer
	logger, closer := SetupWithOptions("discountd", "", Options{
		Output: &buf,
		Level:  slog.LevelWarn,
		File:   &FileConfig{Path: path, MaxSizeMB: 1},
	})
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	logger.Info("dropped below level")
	logger.Warn("discount: update rejected", "reason", "ceiling")
	require.NoError(t, closer.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "update rejected")
	require.NotContains(t, string(contents), "dropped below level")
	require.Equal(t, buf.String(), string(contents))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("signature", "0xdeadbeef").Value.String())
	require.Equal(t, "cps1abc", MaskField("user", "cps1abc").Value.String())
	require.Equal(t, " ", MaskField("signature", " ").Value.String())
	require.Contains(t, RedactionAllowlist(), "request_id")
}
