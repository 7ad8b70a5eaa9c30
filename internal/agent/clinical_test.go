package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/CareCompanion/internal/rag"
	"github.com/wwwzy/CareCompanion/internal/websearch"
)

const ckdAnswer = "Leg swelling can be a sign of fluid retention in CKD. Limit salt and contact your care team. " + Disclaimer

func ckdPatient() PatientData {
	return PatientData{
		"patient_name": "John Smith",
		"diagnosis":    "CKD Stage 3",
		"medications":  []any{"Lisinopril", "Furosemide"},
	}
}

func newTestClinical(t *testing.T, m *scriptedModel, r *fakeRetriever, s *fakeSearcher, events EventLogger) *ClinicalAgent {
	t.Helper()
	if r == nil {
		r = &fakeRetriever{}
	}
	if s == nil {
		s = &fakeSearcher{}
	}
	a, err := NewClinicalAgent(context.Background(), ClinicalConfig{
		Model:     m,
		Retriever: r,
		Searcher:  s,
		Events:    events,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return a
}

func TestNewClinicalAgent_RequiresDependencies(t *testing.T) {
	_, err := NewClinicalAgent(context.Background(), ClinicalConfig{})
	assert.Error(t, err)

	_, err = NewClinicalAgent(context.Background(), ClinicalConfig{Model: newScriptedModel()})
	assert.Error(t, err)
}

func TestClinical_RagBranchInjectsPatientContext(t *testing.T) {
	m := newScriptedModel(
		toolCall("rag_tool", `{"query":"leg swelling"}`),
		reply(ckdAnswer),
	)
	r := &fakeRetriever{passages: []rag.Passage{
		{Content: "Edema is common in CKD.", Source: "nephro.pdf"},
		{Content: "Restrict sodium intake.", Source: "nephro.pdf"},
		{Content: "Loop diuretics reduce fluid.", Source: "diuretics.pdf"},
	}}
	events := &recordingEvents{}
	a := newTestClinical(t, m, r, nil, events)

	in := ConversationState{
		SessionID:         "s-1",
		PatientData:       ckdPatient(),
		HandoffToClinical: true,
		Messages: []Message{
			UserMessage("I have swelling in my legs. Should I be worried?"),
			AssistantMessage(AgentReceptionist, "Let me connect you with our clinical agent."),
		},
	}

	out, err := a.Handle(context.Background(), in)
	require.NoError(t, err)

	// 输入状态不变，只追加一条 clinical 消息
	require.Len(t, in.Messages, 2)
	require.Len(t, out.Messages, 3)
	last := out.Messages[2]
	assert.Equal(t, RoleAssistant, last.Role)
	assert.Equal(t, AgentClinical, last.Agent)
	assert.Equal(t, ckdAnswer, last.Content)
	assert.Equal(t, SourceTypeKnowledgeBase, last.SourceType)
	assert.Equal(t, []string{"nephro.pdf", "diuretics.pdf"}, last.Citations)
	assert.Equal(t, AgentClinical, out.CurrentAgent)

	// patient_context 由 Agent 注入
	assert.Equal(t, "leg swelling", r.query)
	assert.Equal(t, []string{"Diagnosis: CKD Stage 3, Meds: Lisinopril, Furosemide"}, r.patientContexts)

	calls := m.Calls()
	require.Len(t, calls, 2)

	// 第一次调用：带工具，末尾的 receptionist 消息被裁掉
	assert.ElementsMatch(t, []string{"rag_tool", "web_search_tool"}, calls[0].Tools)
	require.Len(t, calls[0].Messages, 2)
	assert.Equal(t, schema.System, calls[0].Messages[0].Role)
	assert.Contains(t, calls[0].Messages[0].Content, `"diagnosis":"CKD Stage 3"`)
	assert.Equal(t, schema.User, calls[0].Messages[1].Role)

	// 第二次调用：不带工具，最后是工具输出
	assert.Empty(t, calls[1].Tools)
	require.Len(t, calls[1].Messages, 4)
	assert.Equal(t, schema.Assistant, calls[1].Messages[2].Role)
	assert.Contains(t, calls[1].Messages[2].Content, "rag_tool")
	toolOutput := calls[1].Messages[3]
	assert.Equal(t, schema.User, toolOutput.Role)
	assert.True(t, strings.HasPrefix(toolOutput.Content, "Tool Output: "))
	assert.Contains(t, toolOutput.Content, "Edema is common in CKD.")
	for _, call := range calls {
		for _, msg := range call.Messages {
			assert.NotEmpty(t, strings.TrimSpace(msg.Content))
		}
	}

	require.Len(t, events.events, 1)
	ev := events.events[0]
	assert.Equal(t, "s-1", ev.SessionID)
	assert.Equal(t, AgentClinical, ev.Agent)
	assert.Equal(t, "rag_tool", ev.Tool)
	assert.Equal(t, "leg swelling", ev.Args["query"])
}

func TestClinical_OnlyFirstToolCallIsExecuted(t *testing.T) {
	m := newScriptedModel(
		step{msg: schema.AssistantMessage("", []schema.ToolCall{
			{ID: "1", Function: schema.FunctionCall{Name: "rag_tool", Arguments: `{"query":"potassium foods"}`}},
			{ID: "2", Function: schema.FunctionCall{Name: "web_search_tool", Arguments: `{"query":"potassium 2024"}`}},
		})},
		reply("Avoid bananas. "+Disclaimer),
	)
	r := &fakeRetriever{passages: []rag.Passage{{Content: "High potassium foods", Source: "diet.pdf"}}}
	s := &fakeSearcher{}
	events := &recordingEvents{}
	a := newTestClinical(t, m, r, s, events)

	out, err := a.Handle(context.Background(), ConversationState{
		Messages: []Message{UserMessage("Which foods are high in potassium?")},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, r.calls)
	assert.Equal(t, 0, s.calls)
	require.Len(t, events.events, 1)
	assert.Equal(t, "rag_tool", events.events[0].Tool)

	// 没有患者数据时不注入 patient_context
	assert.Equal(t, []string{""}, r.patientContexts)
	assert.Len(t, out.Messages, 2)
}

func TestClinical_WebBranch(t *testing.T) {
	m := newScriptedModel(
		toolCall("web_search_tool", `{"query":"latest SGLT2 inhibitor research"}`),
		reply("Recent trials show kidney benefits. "+Disclaimer),
	)
	r := &fakeRetriever{}
	s := &fakeSearcher{results: []websearch.Result{
		{Title: "Trial", URL: "https://example.org/a", Content: "SGLT2"},
		{Title: "Trial again", URL: "https://example.org/a", Content: "SGLT2"},
		{Title: "Review", URL: "https://example.org/b", Content: "Review"},
	}}
	a := newTestClinical(t, m, r, s, nil)

	out, err := a.Handle(context.Background(), ConversationState{
		Messages: []Message{UserMessage("What is the latest research on SGLT2 inhibitors?")},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, r.calls)
	assert.Equal(t, "latest SGLT2 inhibitor research", s.query)

	last := out.Messages[len(out.Messages)-1]
	assert.Equal(t, SourceTypeWeb, last.SourceType)
	assert.Equal(t, []string{"https://example.org/a", "https://example.org/b"}, last.Citations)

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Messages[0].Content, "Patient Context: Unknown")
}

func TestClinical_DirectAnswer(t *testing.T) {
	m := newScriptedModel(reply("Hello, how can I help? " + Disclaimer))
	r := &fakeRetriever{}
	a := newTestClinical(t, m, r, nil, nil)

	out, err := a.Handle(context.Background(), ConversationState{
		Messages: []Message{UserMessage("hello")},
	})
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "Hello, how can I help? "+Disclaimer, out.Messages[1].Content)
	assert.Empty(t, out.Messages[1].SourceType)
	assert.Nil(t, out.Messages[1].Citations)
	assert.Equal(t, 0, r.calls)
}

func TestClinical_UnknownToolAnswersDirectly(t *testing.T) {
	m := newScriptedModel(step{msg: schema.AssistantMessage("Let me think about that.", []schema.ToolCall{
		{ID: "1", Function: schema.FunctionCall{Name: "calculator", Arguments: `{"expr":"1+1"}`}},
	})})
	r := &fakeRetriever{}
	events := &recordingEvents{}
	a := newTestClinical(t, m, r, nil, events)

	out, err := a.Handle(context.Background(), ConversationState{
		Messages: []Message{UserMessage("what is 1+1")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Let me think about that.", out.Messages[1].Content)
	assert.Equal(t, 0, r.calls)
	require.Len(t, events.events, 1)
	assert.Equal(t, "calculator", events.events[0].Tool)
	assert.Len(t, m.Calls(), 1)
}

func TestClinical_FallbackUsesLastUserMessage(t *testing.T) {
	m := newScriptedModel(
		failure("context too long"),
		reply("Short answer. "+Disclaimer),
	)
	a := newTestClinical(t, m, nil, nil, nil)

	out, err := a.Handle(context.Background(), ConversationState{
		Messages: []Message{
			UserMessage("first question"),
			AssistantMessage(AgentClinical, "first answer"),
			UserMessage("second question"),
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Messages, 4)
	assert.Equal(t, "Short answer. "+Disclaimer, out.Messages[3].Content)

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].Messages, 4)
	require.Len(t, calls[1].Messages, 2)
	assert.Equal(t, schema.System, calls[1].Messages[0].Role)
	assert.Equal(t, "second question", calls[1].Messages[1].Content)
	assert.NotEmpty(t, calls[1].Tools)
}

func TestClinical_FallbackFailureIsContained(t *testing.T) {
	m := newScriptedModel(
		failure("upstream unavailable"),
		failure("still unavailable"),
	)
	a := newTestClinical(t, m, nil, nil, nil)

	in := ConversationState{Messages: []Message{UserMessage("hi")}}
	out, err := a.Handle(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, out.Messages, 2)
	assert.Equal(t, in.Messages[0], out.Messages[0])
	msg := out.Messages[1]
	assert.Equal(t, AgentClinical, msg.Agent)
	assert.True(t, strings.HasPrefix(msg.Content, "I encountered a system error:"))
	assert.True(t, strings.HasSuffix(msg.Content, "Please try again."))
	assert.Contains(t, msg.Content, "still unavailable")
	assert.Equal(t, AgentClinical, out.CurrentAgent)
}

func TestClinical_NoUserMessagePropagatesFirstError(t *testing.T) {
	m := newScriptedModel(failure("first failure"))
	a := newTestClinical(t, m, nil, nil, nil)

	out, err := a.Handle(context.Background(), ConversationState{})
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	assert.Contains(t, out.Messages[0].Content, "first failure")
	assert.Len(t, m.Calls(), 1)
}

func TestClinical_ToolFailureIsContained(t *testing.T) {
	m := newScriptedModel(toolCall("rag_tool", `{"query":"diet"}`))
	r := &fakeRetriever{err: errors.New("index offline")}
	a := newTestClinical(t, m, r, nil, nil)

	out, err := a.Handle(context.Background(), ConversationState{
		Messages: []Message{UserMessage("What should I eat?")},
	})
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Contains(t, out.Messages[1].Content, "index offline")
	assert.True(t, strings.HasPrefix(out.Messages[1].Content, "I encountered a system error:"))
}

func TestClinical_InvalidToolArgumentsAreContained(t *testing.T) {
	m := newScriptedModel(toolCall("rag_tool", `not json`))
	r := &fakeRetriever{}
	events := &recordingEvents{}
	a := newTestClinical(t, m, r, nil, events)

	out, err := a.Handle(context.Background(), ConversationState{
		SessionID: "s-bad",
		Messages:  []Message{UserMessage("What should I eat?")},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Messages[1].Content, "I encountered a system error:"))
	assert.Equal(t, 0, r.calls)

	// 参数无法解析时仍然记录原始参数
	require.Len(t, events.events, 1)
	assert.Equal(t, "rag_tool", events.events[0].Tool)
	assert.Equal(t, "s-bad", events.events[0].SessionID)
	assert.Equal(t, "not json", events.events[0].Args["raw"])
}

func TestClinical_PanicIsContained(t *testing.T) {
	m := newScriptedModel(step{panic: "nil map"})
	a := newTestClinical(t, m, nil, nil, nil)

	out, err := a.Handle(context.Background(), ConversationState{
		Messages: []Message{UserMessage("hello")},
	})
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)
	assert.Contains(t, out.Messages[1].Content, "panic: nil map")
}

func TestClinical_EventLoggerFailureDoesNotAbort(t *testing.T) {
	m := newScriptedModel(
		toolCall("rag_tool", `{"query":"fluid limits"}`),
		reply("Limit fluids as advised. "+Disclaimer),
	)
	r := &fakeRetriever{passages: []rag.Passage{{Content: "fluid", Source: "fluids.pdf"}}}
	a := newTestClinical(t, m, r, nil, panickingEvents{})

	out, err := a.Handle(context.Background(), ConversationState{
		Messages: []Message{UserMessage("How much water can I drink?")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, "Limit fluids as advised. "+Disclaimer, out.Messages[1].Content)
}
