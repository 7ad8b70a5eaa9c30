package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
)

const (
	DefaultTopK   = 3
	DefaultSource = "Nephrology Reference"
)

var ErrEmptyQuery = errors.New("rag: query is empty")

// Passage 是一条带出处的检索结果
type Passage struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Service 在参考资料库上做相似度检索
type Service struct {
	retriever retriever.Retriever
	topK      int
}

func NewService(r retriever.Retriever, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{retriever: r, topK: topK}
}

// Retrieve 返回与 query 最相近的 topK 条片段
// patientContext 非空时会拼到问题前面一起检索
func (s *Service) Retrieve(ctx context.Context, query, patientContext string) ([]Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	docs, err := s.retriever.Retrieve(ctx, BuildQuery(query, patientContext), retriever.WithTopK(s.topK))
	if err != nil {
		return nil, fmt.Errorf("retrieve passages: %w", err)
	}

	out := make([]Passage, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		raw, _ := doc.MetaData[MetadataSource].(string)
		out = append(out, Passage{
			Content: doc.Content,
			Source:  SourceName(raw),
		})
	}
	return out, nil
}

func BuildQuery(query, patientContext string) string {
	if patientContext == "" {
		return query
	}
	return fmt.Sprintf("Context: %s\nQuestion: %s", patientContext, query)
}

// SourceName 把文档出处转成展示用名称：存在的文件路径只保留文件名
func SourceName(raw string) string {
	if raw == "" {
		return DefaultSource
	}
	if _, err := os.Stat(raw); err == nil {
		return filepath.Base(raw)
	}
	return raw
}
