package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// 设置必填环境变量，绕过 Validate 检查
	t.Setenv("ARK_API_KEY", "dummy-key")
	t.Setenv("ARK_MODEL_ID", "dummy-model")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "carecompanion.db", cfg.Storage.Path)
	assert.Equal(t, "chroma_db", cfg.RAG.PersistDir)
	assert.Equal(t, "nephrology", cfg.RAG.Collection)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, "https://api.tavily.com", cfg.WebSearch.BaseURL)
	assert.Equal(t, 20*time.Second, cfg.WebSearch.Timeout)
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.MaxAge)
}

func TestLoad_ConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	content := []byte(`
log_level: "debug"
ark:
  api_key: "file-key"
  model_id: "file-model"
  embedding_model: "file-embedding"
storage:
  path: "test.db"
  busy_timeout: "10s"
rag:
  persist_dir: "/var/lib/carecompanion/index"
  top_k: 5
web_search:
  max_results: 2
retention:
  enabled: false
  keep_latest: 50
`)
	require.NoError(t, os.WriteFile(configFile, content, 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "file-embedding", cfg.Ark.EmbeddingModel)
	assert.Equal(t, "test.db", cfg.Storage.Path)
	assert.Equal(t, 10*time.Second, cfg.Storage.BusyTimeout)
	assert.Equal(t, "/var/lib/carecompanion/index", cfg.RAG.PersistDir)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 2, cfg.WebSearch.MaxResults)
	assert.False(t, cfg.Retention.Enabled)
	assert.Equal(t, 50, cfg.Retention.KeepLatest)

	// 未覆盖的字段保持默认值
	assert.Equal(t, DefaultConfig().RAG.Collection, cfg.RAG.Collection)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CARECOMPANION_LOG_LEVEL", "warn")
	t.Setenv("CARECOMPANION_STORAGE_PATH", "env.db")
	t.Setenv("CARECOMPANION_RAG_TOP_K", "4")
	t.Setenv("TAVILY_API_KEY", "tvly-test")
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL_ID", "test-model")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "env.db", cfg.Storage.Path)
	assert.Equal(t, 4, cfg.RAG.TopK)
	assert.Equal(t, "tvly-test", cfg.WebSearch.APIKey)
}

func TestLoad_ValidateArk(t *testing.T) {
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL_ID", "")
	t.Chdir(t.TempDir())

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ark.api_key is required")
}

func TestValidate_TopK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ark.APIKey = "k"
	cfg.Ark.ModelID = "m"
	cfg.RAG.TopK = 0
	assert.ErrorContains(t, cfg.Validate(), "rag.top_k")
}
