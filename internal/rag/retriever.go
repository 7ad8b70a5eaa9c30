package rag

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/philippgille/chromem-go"
)

const MetadataSource = "source"

// IndexRetriever 基于 chromem 集合实现 eino retriever.Retriever
type IndexRetriever struct {
	col  *chromem.Collection
	topK int
}

func NewIndexRetriever(col *chromem.Collection, topK int) *IndexRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &IndexRetriever{col: col, topK: topK}
}

func (r *IndexRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	if r == nil || r.col == nil {
		return nil, fmt.Errorf("vector index not initialized")
	}

	topK := r.topK
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if o.TopK != nil && *o.TopK > 0 {
		topK = *o.TopK
	}

	n := r.col.Count()
	if n == 0 {
		return []*schema.Document{}, nil
	}

	// chromem 并发打分，相似度相同的文档顺序不固定，且可能改变前 topK 的归属
	// 因此取回全部文档，按 相似度降序、ID 升序 排序后再截断
	results, err := r.col.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}
	slices.SortStableFunc(results, func(a, b chromem.Result) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(results) > topK {
		results = results[:topK]
	}

	docs := make([]*schema.Document, 0, len(results))
	for _, res := range results {
		meta := make(map[string]any, len(res.Metadata))
		for k, v := range res.Metadata {
			meta[k] = v
		}
		doc := &schema.Document{
			ID:       res.ID,
			Content:  res.Content,
			MetaData: meta,
		}
		docs = append(docs, doc.WithScore(float64(res.Similarity)))
	}
	return docs, nil
}

var _ retriever.Retriever = (*IndexRetriever)(nil)
