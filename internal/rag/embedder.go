package rag

import (
	"context"
	"fmt"

	arkemb "github.com/cloudwego/eino-ext/components/embedding/ark"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/philippgille/chromem-go"
)

// NewArkEmbedder 初始化 Ark Embedding 模型
func NewArkEmbedder(ctx context.Context, apiKey, model, baseURL string) (embedding.Embedder, error) {
	if apiKey == "" || model == "" {
		return nil, fmt.Errorf("ARK_API_KEY, ARK_EMBEDDING_MODEL must be set")
	}
	emb, err := arkemb.NewEmbedder(ctx, &arkemb.EmbeddingConfig{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: baseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init ark embedder: %w", err)
	}
	return emb, nil
}

// EmbeddingFunc 把 eino Embedder 适配为 chromem 的 EmbeddingFunc
// chromem 以 float32 存储向量，这里逐项转换
func EmbeddingFunc(emb embedding.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := emb.EmbedStrings(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("embed text: %w", err)
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("embed text: expected 1 vector, got %d", len(vectors))
		}
		out := make([]float32, len(vectors[0]))
		for i, v := range vectors[0] {
			out[i] = float32(v)
		}
		return out, nil
	}
}
