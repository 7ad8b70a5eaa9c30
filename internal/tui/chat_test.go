package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudwego/eino/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/CareCompanion/internal/agent"
	"github.com/wwwzy/CareCompanion/internal/ui"
)

type handoffBackend struct{}

func (handoffBackend) Invoke(_ context.Context, state agent.ConversationState, _ ...compose.Option) (agent.ConversationState, error) {
	answer := agent.AssistantMessage(agent.AgentClinical, "Swelling can mean fluid retention.")
	answer.Citations = []string{"nephro.pdf"}
	answer.SourceType = agent.SourceTypeKnowledgeBase
	next := state.WithMessages(agent.AssistantMessage(agent.AgentReceptionist, "Connecting you."), answer)
	next.HandoffToClinical = true
	next.CurrentAgent = agent.AgentClinical
	return next, nil
}

func update(t *testing.T, m chatModel, msg tea.Msg) (chatModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	cm, ok := next.(chatModel)
	require.True(t, ok)
	return cm, cmd
}

func TestChatModel_TurnStreamsBothAgents(t *testing.T) {
	ctx := context.Background()
	initial := ui.DefaultInitialState(nil, false)
	m := newChatModel(ctx, handoffBackend{}, initial, ui.ChatOptions{ShowCitations: true})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	m.state = m.state.WithMessages(agent.UserMessage("my legs are swollen"))
	prev := len(m.state.Messages)
	res := invokeBackend(ctx, m.backend, m.state, prev)()
	m, cmd := update(t, m, res)
	require.NotNil(t, cmd)

	// 两条新回复依次展示
	assert.Equal(t, prev, m.streamIdx)
	assert.Equal(t, []int{prev + 1}, m.pending)
	assert.NotContains(t, m.renderChat(), "Swelling can mean")

	for i := 0; i < 20 && m.streamIdx >= 0; i++ {
		m, _ = update(t, m, streamTickMsg{})
	}
	assert.Equal(t, -1, m.streamIdx)
	assert.Empty(t, m.pending)

	view := m.renderChat()
	assert.Contains(t, view, "前台")
	assert.Contains(t, view, "临床助手")
	assert.Contains(t, view, "nephro.pdf")
	assert.Contains(t, m.View(), "CareCompanion")
}

func TestChatModel_BackendErrorIsShown(t *testing.T) {
	m := newChatModel(context.Background(), handoffBackend{}, ui.DefaultInitialState(nil, true), ui.ChatOptions{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	m.thinking = true

	m, _ = update(t, m, backendResultMsg{err: assert.AnError})
	assert.False(t, m.thinking)
	require.Len(t, m.state.Messages, 1)
	assert.Contains(t, m.state.Messages[0].Content, "发生错误")
}

func TestChatModel_QuitKeys(t *testing.T) {
	m := newChatModel(context.Background(), handoffBackend{}, ui.DefaultInitialState(nil, true), ui.ChatOptions{})
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = update(t, m, cancelMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
