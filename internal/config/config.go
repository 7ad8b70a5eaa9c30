package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wwwzy/CareCompanion/internal/retention"
	"github.com/wwwzy/CareCompanion/internal/storage"
)

type ArkConfig struct {
	APIKey         string `mapstructure:"api_key"`
	ModelID        string `mapstructure:"model_id"`
	BaseURL        string `mapstructure:"base_url"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// RAGConfig 描述持久化向量库的位置与检索参数
type RAGConfig struct {
	PersistDir string `mapstructure:"persist_dir"`
	Collection string `mapstructure:"collection"`
	Compress   bool   `mapstructure:"compress"`
	TopK       int    `mapstructure:"top_k"`
}

type WebSearchConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Storage   storage.Config   `mapstructure:"storage"`
	Ark       ArkConfig        `mapstructure:"ark"`
	RAG       RAGConfig        `mapstructure:"rag"`
	WebSearch WebSearchConfig  `mapstructure:"web_search"`
	Retention retention.Config `mapstructure:"retention"`
	LogLevel  string           `mapstructure:"log_level"`
}

func Load(cfgFile string) (*Config, error) {
	// 1. 初始化 Viper
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.carecompanion")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CARECOMPANION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal 只认识 viper 已知的 key，所有 key 都需要在这里注册默认值
	setDefaults(v)

	// 2. 读取配置文件（不存在时使用默认值）
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// 3. 反序列化 (文件/环境变量 覆盖 默认值)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// 4. 验证关键配置
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Ark.APIKey == "" {
		return fmt.Errorf("ark.api_key is required (or set ARK_API_KEY env var)")
	}
	if c.Ark.ModelID == "" {
		return fmt.Errorf("ark.model_id is required (or set ARK_MODEL_ID env var)")
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// -------------------------------------------------------------------------
	// Global / Storage
	// -------------------------------------------------------------------------
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.in_memory", d.Storage.InMemory)
	v.SetDefault("storage.enable_wal", d.Storage.EnableWAL)
	v.SetDefault("storage.busy_timeout", d.Storage.BusyTimeout)

	// -------------------------------------------------------------------------
	// Ark (chat model + embeddings)
	// -------------------------------------------------------------------------
	v.SetDefault("ark.api_key", "")
	v.SetDefault("ark.model_id", "")
	v.SetDefault("ark.base_url", d.Ark.BaseURL)
	v.SetDefault("ark.embedding_model", "")

	_ = v.BindEnv("ark.api_key", "ARK_API_KEY")
	_ = v.BindEnv("ark.model_id", "ARK_MODEL_ID")
	_ = v.BindEnv("ark.base_url", "ARK_BASE_URL")
	_ = v.BindEnv("ark.embedding_model", "ARK_EMBEDDING_MODEL")

	// -------------------------------------------------------------------------
	// RAG 向量库
	// -------------------------------------------------------------------------
	v.SetDefault("rag.persist_dir", d.RAG.PersistDir)
	v.SetDefault("rag.collection", d.RAG.Collection)
	v.SetDefault("rag.compress", d.RAG.Compress)
	v.SetDefault("rag.top_k", d.RAG.TopK)

	// -------------------------------------------------------------------------
	// Web Search
	// -------------------------------------------------------------------------
	v.SetDefault("web_search.api_key", "")
	v.SetDefault("web_search.base_url", d.WebSearch.BaseURL)
	v.SetDefault("web_search.max_results", d.WebSearch.MaxResults)
	v.SetDefault("web_search.timeout", d.WebSearch.Timeout)

	_ = v.BindEnv("web_search.api_key", "TAVILY_API_KEY")

	// -------------------------------------------------------------------------
	// 事件清理
	// -------------------------------------------------------------------------
	v.SetDefault("retention.enabled", d.Retention.Enabled)
	v.SetDefault("retention.interval", d.Retention.Interval)
	v.SetDefault("retention.max_age", d.Retention.MaxAge)
	v.SetDefault("retention.keep_latest", d.Retention.KeepLatest)
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Storage: storage.Config{
			Path:        "carecompanion.db",
			EnableWAL:   true,
			BusyTimeout: 5 * time.Second,
		},
		Ark: ArkConfig{
			BaseURL: "https://ark.cn-beijing.volces.com/api/v3",
		},
		RAG: RAGConfig{
			PersistDir: "chroma_db",
			Collection: "nephrology",
			TopK:       3,
		},
		WebSearch: WebSearchConfig{
			BaseURL:    "https://api.tavily.com",
			MaxResults: 5,
			Timeout:    20 * time.Second,
		},
		Retention: retention.DefaultConfig(),
	}
}
