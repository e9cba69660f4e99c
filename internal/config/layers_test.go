package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSystemConfig(t *testing.T) {
	cfg := DefaultSystemConfig()

	assert.False(t, cfg.SanityCheck.Enabled, "sanity check needs no evidence")
	assert.True(t, cfg.RedFlagDetection.Enabled)
	assert.Len(t, cfg.RedFlagDetection.KnowledgeSources, 4)
	assert.Equal(t, []KnowledgeSource{SourceESIHandbook}, cfg.HandbookVerification.KnowledgeSources)
	assert.True(t, cfg.Global.EnableRAGGlobally)
	assert.True(t, cfg.Global.CostTrackingEnabled)
}

func TestLayerByNumber(t *testing.T) {
	cfg := DefaultSystemConfig()

	require.NotNil(t, cfg.Layer(1))
	assert.Equal(t, "Sanity Check", cfg.Layer(1).LayerName)
	assert.Equal(t, "Final Decision", cfg.Layer(7).LayerName)
	assert.Nil(t, cfg.Layer(0))
	assert.Nil(t, cfg.Layer(8))
}

func TestAllowsSource(t *testing.T) {
	layer := LayerConfig{KnowledgeSources: []KnowledgeSource{SourceESIHandbook, SourceVitalRanges}}
	assert.True(t, layer.AllowsSource(SourceESIHandbook))
	assert.False(t, layer.AllowsSource(SourceLabIndications))
}

func TestLayerManagerMissingFileYieldsDefaults(t *testing.T) {
	m := NewLayerManager(filepath.Join(t.TempDir(), "absent.json"))
	cfg := m.Load()
	assert.Equal(t, DefaultSystemConfig(), cfg)
}

func TestLayerManagerMalformedFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag_config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cfg := NewLayerManager(path).Load()
	assert.Equal(t, DefaultSystemConfig(), cfg)
}

func TestLayerManagerSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rag_config.json")
	m := NewLayerManager(path)

	cfg := DefaultSystemConfig()
	cfg.RedFlagDetection.Enabled = false
	cfg.Global.CostTrackingEnabled = false
	require.NoError(t, m.Save(cfg))

	loaded := m.Load()
	assert.False(t, loaded.RedFlagDetection.Enabled)
	assert.False(t, loaded.Global.CostTrackingEnabled)
	assert.True(t, loaded.HandbookVerification.Enabled, "untouched layers survive")
}

func TestLayerManagerHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag_config.json")
	m := NewLayerManager(path)

	first := m.Load()
	assert.True(t, first.FinalDecision.Enabled)

	edited := DefaultSystemConfig()
	edited.FinalDecision.Enabled = false
	require.NoError(t, m.Save(edited))

	// No restart, no cache: the next Load observes the edit.
	second := m.Load()
	assert.False(t, second.FinalDecision.Enabled)
}
