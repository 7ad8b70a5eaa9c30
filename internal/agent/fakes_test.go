package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/wwwzy/CareCompanion/internal/rag"
	"github.com/wwwzy/CareCompanion/internal/websearch"
)

// step 是脚本化模型的一次返回
type step struct {
	msg   *schema.Message
	err   error
	panic any
}

type modelCall struct {
	Messages []*schema.Message
	Tools    []string
}

type modelScript struct {
	mu    sync.Mutex
	steps []step
	calls []modelCall
}

// scriptedModel 按顺序返回预设结果，WithTools 派生的副本共享同一份脚本
type scriptedModel struct {
	script *modelScript
	tools  []string
}

func newScriptedModel(steps ...step) *scriptedModel {
	return &scriptedModel{script: &modelScript{steps: steps}}
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.script.mu.Lock()
	m.script.calls = append(m.script.calls, modelCall{Messages: input, Tools: m.tools})
	if len(m.script.steps) == 0 {
		m.script.mu.Unlock()
		return nil, errors.New("unexpected model call")
	}
	s := m.script.steps[0]
	m.script.steps = m.script.steps[1:]
	m.script.mu.Unlock()

	if s.panic != nil {
		panic(s.panic)
	}
	return s.msg, s.err
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return &scriptedModel{script: m.script, tools: names}, nil
}

func (m *scriptedModel) Calls() []modelCall {
	m.script.mu.Lock()
	defer m.script.mu.Unlock()
	return append([]modelCall(nil), m.script.calls...)
}

func reply(content string) step {
	return step{msg: schema.AssistantMessage(content, nil)}
}

func toolCall(name, args string) step {
	return step{msg: schema.AssistantMessage("", []schema.ToolCall{
		{ID: "call-" + name, Function: schema.FunctionCall{Name: name, Arguments: args}},
	})}
}

func failure(format string, a ...any) step {
	return step{err: fmt.Errorf(format, a...)}
}

type fakeRetriever struct {
	passages []rag.Passage
	err      error

	calls           int
	query           string
	patientContexts []string
}

func (r *fakeRetriever) Retrieve(_ context.Context, query, patientContext string) ([]rag.Passage, error) {
	r.calls++
	r.query = query
	r.patientContexts = append(r.patientContexts, patientContext)
	return r.passages, r.err
}

type fakeSearcher struct {
	results []websearch.Result
	err     error

	calls int
	query string
}

func (s *fakeSearcher) Search(_ context.Context, query string) ([]websearch.Result, error) {
	s.calls++
	s.query = query
	return s.results, s.err
}

type recordedEvent struct {
	SessionID string
	Agent     string
	Tool      string
	Args      map[string]any
}

type recordingEvents struct {
	events []recordedEvent
}

func (r *recordingEvents) LogAgentEvent(_ context.Context, sessionID, agentName, toolName string, args map[string]any) {
	r.events = append(r.events, recordedEvent{SessionID: sessionID, Agent: agentName, Tool: toolName, Args: args})
}

type panickingEvents struct{}

func (panickingEvents) LogAgentEvent(context.Context, string, string, string, map[string]any) {
	panic("event sink down")
}
