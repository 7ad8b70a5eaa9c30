package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/wwwzy/CareCompanion/internal/rag"
	"github.com/wwwzy/CareCompanion/internal/websearch"
)

// ClinicalConfig 是 ClinicalAgent 的依赖
type ClinicalConfig struct {
	// Model 是不带工具的 base model，工具版本由 WithTools 派生
	Model     model.ToolCallingChatModel
	Retriever PassageRetriever
	Searcher  WebSearcher
	Events    EventLogger
	Logger    zerolog.Logger
}

// ClinicalAgent 回答医疗问题：先让模型决定是否调用工具，再基于工具输出作答
type ClinicalAgent struct {
	chatModel model.ToolCallingChatModel
	toolModel model.ToolCallingChatModel
	template  prompt.ChatTemplate
	tools     map[ToolName]tool.InvokableTool
	events    EventLogger
	log       zerolog.Logger
}

func NewClinicalAgent(ctx context.Context, cfg ClinicalConfig) (*ClinicalAgent, error) {
	if cfg.Model == nil {
		return nil, errors.New("clinical agent: chat model is required")
	}
	if cfg.Retriever == nil || cfg.Searcher == nil {
		return nil, errors.New("clinical agent: retriever and web searcher are required")
	}

	ragTool := NewRagTool(cfg.Retriever)
	webTool := NewWebSearchTool(cfg.Searcher)

	toolsInfo, err := GetToolsInfo(ctx, ragTool, webTool)
	if err != nil {
		return nil, err
	}
	toolModel, err := cfg.Model.WithTools(toolsInfo)
	if err != nil {
		return nil, fmt.Errorf("bind tools to chat model failed: %w", err)
	}

	return &ClinicalAgent{
		chatModel: cfg.Model,
		toolModel: toolModel,
		template:  NewChatTemplate(ClinicalSystemPrompt),
		tools: map[ToolName]tool.InvokableTool{
			ToolRAG:       ragTool,
			ToolWebSearch: webTool,
		},
		events: cfg.Events,
		log:    cfg.Logger.With().Str("agent", AgentClinical).Logger(),
	}, nil
}

// Handle 处理一轮对话，无论成功与否都只追加一条 clinical 消息
func (a *ClinicalAgent) Handle(ctx context.Context, state ConversationState) (out ConversationState, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = a.contain(state, fmt.Errorf("panic: %v", r), debug.Stack())
			err = nil
		}
	}()

	ctx = WithSessionID(ctx, state.SessionID)
	reply, err := a.respond(ctx, state)
	if err != nil {
		return a.contain(state, err, debug.Stack()), nil
	}

	out = state.WithMessages(reply)
	out.CurrentAgent = AgentClinical
	return out, nil
}

// contain 把错误转换成一条面向用户的消息
func (a *ClinicalAgent) contain(state ConversationState, cause error, stack []byte) ConversationState {
	a.log.Error().
		Err(cause).
		Str("session_id", state.SessionID).
		Bytes("stack", stack).
		Msg("clinical agent failed")

	out := state.WithMessages(AssistantMessage(AgentClinical,
		fmt.Sprintf("I encountered a system error: %v. Please try again.", cause)))
	out.CurrentAgent = AgentClinical
	return out
}

func (a *ClinicalAgent) respond(ctx context.Context, state ConversationState) (Message, error) {
	// 1. Init
	msgs, err := a.template.Format(ctx, map[string]any{
		"patient_context": SerializePatientData(state.PatientData),
		"history":         toSchemaMessages(VisibleHistory(state.Messages)),
	})
	if err != nil {
		return Message{}, fmt.Errorf("format clinical prompt failed: %w", err)
	}
	msgs = filterEmpty(msgs)

	// 2. FirstInvoke，失败时降级到 system + 最后一条用户消息
	resp, err := a.toolModel.Generate(ctx, msgs)
	if err != nil {
		a.log.Warn().Err(err).Str("session_id", state.SessionID).Msg("first model call failed, retrying with last user message")
		msgs, resp, err = a.fallback(ctx, state, msgs, err)
		if err != nil {
			return Message{}, err
		}
	}

	// 3. ToolDecision
	if len(resp.ToolCalls) == 0 {
		return a.answer(resp.Content, "", nil), nil
	}
	if len(resp.ToolCalls) > 1 {
		a.log.Debug().Int("tool_calls", len(resp.ToolCalls)).Msg("only the first tool call is executed")
	}
	call := resp.ToolCalls[0]

	args, err := parseToolArgs(call.Function.Arguments)
	if err != nil {
		// 无法解析的参数也要先记录原文
		safeLogEvent(ctx, a.log, a.events, state.SessionID, AgentClinical, call.Function.Name,
			map[string]any{"raw": call.Function.Arguments})
		return Message{}, err
	}
	safeLogEvent(ctx, a.log, a.events, state.SessionID, AgentClinical, call.Function.Name, maps.Clone(args))

	name, ok := ParseToolName(call.Function.Name)
	if !ok {
		a.log.Warn().Str("tool", call.Function.Name).Msg("unknown tool requested, answering directly")
		return a.answer(resp.Content, "", nil), nil
	}

	if name == ToolRAG {
		if pc := PatientContext(state.PatientData); pc != "" {
			args["patient_context"] = pc
		}
	}

	output, err := a.runTool(ctx, name, args)
	if err != nil {
		return Message{}, err
	}

	// 4. 基于工具输出作答，使用不带工具的模型
	followUp := append(slices.Clone(msgs),
		schema.AssistantMessage(describeToolCall(call.Function.Name, args), nil),
		schema.UserMessage("Tool Output: "+output),
	)
	final, err := a.chatModel.Generate(ctx, followUp)
	if err != nil {
		return Message{}, fmt.Errorf("answer with %s output failed: %w", name, err)
	}

	switch name {
	case ToolRAG:
		return a.answer(final.Content, SourceTypeKnowledgeBase, ragCitations(output)), nil
	default:
		return a.answer(final.Content, SourceTypeWeb, webCitations(output)), nil
	}
}

// fallback 只发送 system 与最后一条用户消息，仅重试一次
func (a *ClinicalAgent) fallback(ctx context.Context, state ConversationState, msgs []*schema.Message, cause error) ([]*schema.Message, *schema.Message, error) {
	last, ok := state.LastUserMessage()
	if !ok {
		return nil, nil, cause
	}

	reduced := make([]*schema.Message, 0, 2)
	if len(msgs) > 0 && msgs[0].Role == schema.System {
		reduced = append(reduced, msgs[0])
	}
	reduced = append(reduced, schema.UserMessage(last.Content))
	reduced = filterEmpty(reduced)

	resp, err := a.toolModel.Generate(ctx, reduced)
	if err != nil {
		return nil, nil, fmt.Errorf("model call failed after fallback: %w", err)
	}
	return reduced, resp, nil
}

func (a *ClinicalAgent) runTool(ctx context.Context, name ToolName, args map[string]any) (string, error) {
	t, ok := a.tools[name]
	if !ok {
		return "", fmt.Errorf("tool %s is not registered", name)
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal %s arguments failed: %w", name, err)
	}
	output, err := t.InvokableRun(ctx, string(argsJSON))
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return output, nil
}

func (a *ClinicalAgent) answer(content, sourceType string, citations []string) Message {
	if !HasDisclaimer(content) {
		a.log.Warn().Msg("clinical answer is missing the disclaimer")
	}
	msg := AssistantMessage(AgentClinical, content)
	msg.SourceType = sourceType
	msg.Citations = citations
	return msg
}

// describeToolCall 以文本形式在历史中记录工具调用
// 后续的工具输出是一条 user 消息，带 tool_calls 的 assistant 消息会被 OpenAI 兼容接口拒绝
func describeToolCall(name string, args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("Calling %s", name)
	}
	return fmt.Sprintf("Calling %s with %s", name, data)
}

// ragCitations 从 rag_tool 输出中提取去重后的来源，保持原有顺序
func ragCitations(output string) []string {
	var passages []rag.Passage
	if err := json.Unmarshal([]byte(output), &passages); err != nil {
		return nil
	}
	sources := make([]string, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, p.Source)
	}
	return dedupe(sources)
}

func webCitations(output string) []string {
	var results []websearch.Result
	if err := json.Unmarshal([]byte(output), &results); err != nil {
		return nil
	}
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	return dedupe(urls)
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
