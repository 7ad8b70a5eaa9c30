package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/CareCompanion/internal/rag"
	"github.com/wwwzy/CareCompanion/internal/websearch"
)

// ToolName 是 clinical 可调度的工具集合（封闭枚举）
type ToolName string

const (
	ToolRAG       ToolName = "rag_tool"
	ToolWebSearch ToolName = "web_search_tool"

	// ToolTransferToClinical 只提供给 receptionist
	ToolTransferToClinical = "transfer_to_clinical"
)

// ParseToolName 把模型给出的工具名映射到已知工具，未知名称返回 false
func ParseToolName(name string) (ToolName, bool) {
	switch ToolName(name) {
	case ToolRAG, ToolWebSearch:
		return ToolName(name), true
	default:
		return "", false
	}
}

// PassageRetriever 由 rag.Service 实现
type PassageRetriever interface {
	Retrieve(ctx context.Context, query, patientContext string) ([]rag.Passage, error)
}

// WebSearcher 由 websearch.Client 实现
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// RagTool 在肾病参考资料中检索
type RagTool struct {
	retriever PassageRetriever
}

func NewRagTool(r PassageRetriever) *RagTool {
	return &RagTool{retriever: r}
}

func (t *RagTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: string(ToolRAG),
		Desc: "Search the nephrology reference corpus. Use for questions about symptoms, diet, medications or CKD management.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "The patient's question, rewritten as a search query",
				Type:     schema.String,
				Required: true,
			},
			"patient_context": {
				Desc:     "Optional patient context such as diagnosis and medications",
				Type:     schema.String,
				Required: false,
			},
		}),
	}, nil
}

func (t *RagTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Query          string `json:"query"`
		PatientContext string `json:"patient_context"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("invalid arguments: query is required")
	}

	passages, err := t.retriever.Retrieve(ctx, args.Query, args.PatientContext)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(passages)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}

// WebSearchTool 查询最新的网络资料
type WebSearchTool struct {
	searcher WebSearcher
}

func NewWebSearchTool(s WebSearcher) *WebSearchTool {
	return &WebSearchTool{searcher: s}
}

func (t *WebSearchTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: string(ToolWebSearch),
		Desc: "Search the web. Only use when the patient explicitly asks for latest research, new drugs or 2024 updates.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "The web search query",
				Type:     schema.String,
				Required: true,
			},
		}),
	}, nil
}

func (t *WebSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	results, err := t.searcher.Search(ctx, args.Query)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}

// transferToolInfo 只用于让 receptionist 的模型声明“需要转接”，不会被执行
func transferToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ToolTransferToClinical,
		Desc: "Hand the conversation over to the clinical agent when the patient asks a medical question.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"reason": {
				Desc:     "Short reason for the handoff",
				Type:     schema.String,
				Required: false,
			},
		}),
	}
}

// GetToolsInfo 汇总工具描述，用于 BindTools / WithTools
func GetToolsInfo(ctx context.Context, tools ...tool.BaseTool) ([]*schema.ToolInfo, error) {
	toolInfos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get tool info: %w", err)
		}
		toolInfos = append(toolInfos, info)
	}
	return toolInfos, nil
}
