package rag

import (
	"fmt"
	"os"

	"github.com/philippgille/chromem-go"
)

// StoreConfig 描述磁盘上的 chromem 向量库
type StoreConfig struct {
	PersistDir string
	Collection string
	Compress   bool
}

// OpenCollection 打开持久化向量库中的集合
// 建库（文档切分、写入向量）不在本服务职责内，目录不存在时直接报错
func OpenCollection(cfg StoreConfig, ef chromem.EmbeddingFunc) (*chromem.Collection, error) {
	if cfg.PersistDir == "" {
		return nil, fmt.Errorf("rag persist dir is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("rag collection name is required")
	}
	if _, err := os.Stat(cfg.PersistDir); err != nil {
		return nil, fmt.Errorf("open vector index %s: %w", cfg.PersistDir, err)
	}

	db, err := chromem.NewPersistentDB(cfg.PersistDir, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("load vector index %s: %w", cfg.PersistDir, err)
	}

	col, err := db.GetOrCreateCollection(cfg.Collection, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", cfg.Collection, err)
	}
	return col, nil
}
