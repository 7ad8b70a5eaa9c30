package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudwego/eino/compose"
	"github.com/wwwzy/CareCompanion/internal/agent"
	"github.com/wwwzy/CareCompanion/internal/config"
	"github.com/wwwzy/CareCompanion/internal/rag"
	"github.com/wwwzy/CareCompanion/internal/storage"
	"github.com/wwwzy/CareCompanion/internal/websearch"
)

// app 持有一次运行所需的全部组件，模型与向量库只初始化一次
type app struct {
	graph compose.Runnable[agent.ConversationState, agent.ConversationState]
	store *storage.Storage
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// newApp 按配置组装 Agent Graph
// persistEvents 为 true 时工具调用写入 sqlite，否则只写日志
func newApp(ctx context.Context, c *config.Config, persistEvents bool) (*app, error) {
	cm, err := agent.NewChatModel(ctx, c.Ark)
	if err != nil {
		return nil, err
	}

	emb, err := rag.NewArkEmbedder(ctx, c.Ark.APIKey, c.Ark.EmbeddingModel, c.Ark.BaseURL)
	if err != nil {
		return nil, err
	}
	col, err := rag.OpenCollection(rag.StoreConfig{
		PersistDir: c.RAG.PersistDir,
		Collection: c.RAG.Collection,
		Compress:   c.RAG.Compress,
	}, rag.EmbeddingFunc(emb))
	if err != nil {
		return nil, err
	}
	retrieval := rag.NewService(rag.NewIndexRetriever(col, c.RAG.TopK), c.RAG.TopK)
	log.Debug().Int("documents", col.Count()).Str("collection", c.RAG.Collection).Msg("vector index loaded")

	search := websearch.New(websearch.Config{
		APIKey:     c.WebSearch.APIKey,
		BaseURL:    c.WebSearch.BaseURL,
		MaxResults: c.WebSearch.MaxResults,
		Timeout:    c.WebSearch.Timeout,
	})

	a := &app{}
	var events agent.EventLogger = agent.LogEventLogger{Logger: log}
	if persistEvents {
		a.store, err = storage.Open(ctx, c.Storage)
		if err != nil {
			return nil, fmt.Errorf("打开事件库失败: %w", err)
		}
		events = agent.NewStoreEventLogger(a.store, log)
	}

	receptionist, err := agent.NewReceptionistAgent(ctx, agent.ReceptionistConfig{
		Model:  cm,
		Events: events,
		Logger: log,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	clinical, err := agent.NewClinicalAgent(ctx, agent.ClinicalConfig{
		Model:     cm,
		Retriever: retrieval,
		Searcher:  search,
		Events:    events,
		Logger:    log,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.graph, err = agent.BuildGraph(ctx, receptionist, clinical)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("构建 Agent Graph 失败: %w", err)
	}
	return a, nil
}

// loadPatient 读取患者资料 JSON，路径为空时返回 nil
func loadPatient(path string) (agent.PatientData, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取患者资料失败: %w", err)
	}
	var patient agent.PatientData
	if err := json.Unmarshal(data, &patient); err != nil {
		return nil, fmt.Errorf("解析患者资料失败: %w", err)
	}
	return patient, nil
}
