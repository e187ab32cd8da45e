package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"orgfinder/internal/config"
)

func TestLoadKeywordsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reference.yaml")
	require.NoError(t, os.WriteFile(path, []byte("times: [\"Monday: 9:00 AM - 5:00 PM\"]\naddresses: [\"1901 Vine St\"]\nservices: [Wi-Fi, Printing]\n"), 0o600))

	core, logs := observer.New(zapcore.InfoLevel)
	cfg := &config.Config{}
	cfg.Search.ReferenceFile = path

	keywords := loadKeywords(context.Background(), cfg, nil, zap.New(core))
	require.NotNil(t, keywords)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Loaded reference keywords", entry.Message)
	assert.Equal(t, map[string]interface{}{
		"source":    path,
		"times":     int64(1),
		"addresses": int64(1),
		"services":  int64(2),
	}, entry.ContextMap())
}

func TestLoadKeywordsMissingFile(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := &config.Config{}
	cfg.Search.ReferenceFile = filepath.Join(t.TempDir(), "missing.yaml")

	assert.Nil(t, loadKeywords(context.Background(), cfg, nil, zap.New(core)))

	warnings := logs.FilterLevelExact(zapcore.WarnLevel)
	require.Equal(t, 1, warnings.Len())
	assert.Equal(t, "Reference keywords unavailable, specificity check disabled", warnings.All()[0].Message)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"GET", "POST"}, splitList(" GET, ,POST "))
	assert.Nil(t, splitList(""))
}
