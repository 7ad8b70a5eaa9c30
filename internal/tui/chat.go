package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/wwwzy/CareCompanion/internal/agent"
	"github.com/wwwzy/CareCompanion/internal/ui"
)

const streamChunk = 32

var (
	receptionistColor = lipgloss.Color("63")
	clinicalColor     = lipgloss.Color("36")
	userColor         = lipgloss.Color("205")
	mutedColor        = lipgloss.Color("245")
)

type ChatUI struct{}

func (u *ChatUI) Run(ctx context.Context, backend ui.ChatBackend, initial agent.ConversationState, opts ui.ChatOptions) error {
	m := newChatModel(ctx, backend, initial, opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type backendResultMsg struct {
	state     agent.ConversationState
	err       error
	prevCount int
}

type streamTickMsg struct{}
type cancelMsg struct{}

type chatModel struct {
	ctx     context.Context
	backend ui.ChatBackend
	opts    ui.ChatOptions

	state agent.ConversationState

	width  int
	height int

	viewport   viewport.Model
	input      textinput.Model
	spinner    spinner.Model
	thinking   bool
	followTail bool

	// 逐段展示新回复；一轮可能有 receptionist 与 clinical 两条
	pending    []int
	streamIdx  int
	streamPos  int
	streamFull string

	renderer *glamour.TermRenderer
}

func newChatModel(ctx context.Context, backend ui.ChatBackend, initial agent.ConversationState, opts ui.ChatOptions) chatModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot

	ti := textinput.New()
	ti.Placeholder = "输入消息，回车发送"
	ti.Prompt = ""
	ti.Focus()

	vp := viewport.New(0, 0)
	vp.SetContent("")

	return chatModel{
		ctx:        ctx,
		backend:    backend,
		opts:       opts,
		state:      initial,
		viewport:   vp,
		input:      ti,
		spinner:    s,
		followTail: true,
		streamIdx:  -1,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitCancel(m.ctx))
}

func waitCancel(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return cancelMsg{}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case cancelMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		inputHeight := 3
		headerHeight := 1
		footerHeight := 1
		m.viewport.Width = m.width
		m.viewport.Height = max(1, m.height-inputHeight-headerHeight-footerHeight)
		m.input.Width = max(10, m.width-4)

		m.resetMarkdownRenderer()
		m.updateViewportContent(m.renderChat())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case backendResultMsg:
		m.thinking = false
		m.followTail = true
		if msg.err != nil {
			m.state = m.state.WithMessages(agent.AssistantMessage("", fmt.Sprintf("发生错误：%v", msg.err)))
			m.updateViewportContent(m.renderChat())
			return m, nil
		}

		m.state = msg.state
		m.queueStreaming(msg.prevCount)
		m.updateViewportContent(m.renderChat())
		if m.streamIdx >= 0 {
			return m, streamTick()
		}
		return m, nil

	case streamTickMsg:
		if m.streamIdx < 0 {
			return m, nil
		}
		m.streamPos = min(len(m.streamFull), m.streamPos+streamChunk)
		if m.streamPos >= len(m.streamFull) {
			m.nextStream()
		}
		m.updateViewportContent(m.renderChat())
		if m.streamIdx >= 0 {
			return m, streamTick()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "pgup", "pageup":
			m.viewport.PageUp()
			m.followTail = false
			return m, nil
		case "pgdown", "pagedown":
			m.viewport.PageDown()
			if m.viewport.AtBottom() {
				m.followTail = true
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)

		if msg.String() == "enter" && !m.thinking {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, cmd
			}
			switch strings.ToLower(text) {
			case "exit", "quit":
				return m, tea.Quit
			}

			m.state = m.state.WithMessages(agent.UserMessage(text))
			m.followTail = true
			m.updateViewportContent(m.renderChat())

			m.input.SetValue("")
			m.thinking = true
			return m, tea.Batch(cmd, invokeBackend(m.ctx, m.backend, m.state, len(m.state.Messages)))
		}

		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) View() string {
	header := lipgloss.NewStyle().Bold(true).Render("CareCompanion")
	if label := m.currentAgentLabel(); label != "" {
		header += lipgloss.NewStyle().Foreground(mutedColor).Render("  · " + label)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), m.inputView(), m.footerView())
}

func (m chatModel) currentAgentLabel() string {
	if m.state.CurrentAgent == "" {
		return ""
	}
	return ui.AgentLabel(agent.Message{Role: agent.RoleAssistant, Agent: m.state.CurrentAgent})
}

func (m chatModel) footerView() string {
	left := "Enter 发送 | PgUp/PgDn 滚动 | Ctrl+C 退出"
	right := ""
	if m.thinking {
		right = m.spinner.View() + " Thinking..."
	}
	gap := lipgloss.NewStyle().Width(max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)-2)).Render("")
	return lipgloss.NewStyle().Width(m.width).Padding(0, 1).Render(lipgloss.JoinHorizontal(lipgloss.Left, left, gap, right))
}

func (m chatModel) inputView() string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(max(1, m.input.Width+2)).
		Render(m.input.View())
}

func (m *chatModel) updateViewportContent(content string) {
	oldYOffset := m.viewport.YOffset
	m.viewport.SetContent(content)
	if m.followTail {
		m.viewport.GotoBottom()
		return
	}
	m.viewport.SetYOffset(oldYOffset)
}

func invokeBackend(ctx context.Context, backend ui.ChatBackend, state agent.ConversationState, prevCount int) tea.Cmd {
	return func() tea.Msg {
		next, err := backend.Invoke(ctx, state)
		return backendResultMsg{state: next, err: err, prevCount: prevCount}
	}
}

func streamTick() tea.Cmd {
	return tea.Tick(45*time.Millisecond, func(time.Time) tea.Msg { return streamTickMsg{} })
}

// queueStreaming 把本轮新增的 assistant 消息排队逐段展示
func (m *chatModel) queueStreaming(prevCount int) {
	m.pending = m.pending[:0]
	for i, msg := range ui.NewMessages(m.state, prevCount) {
		if msg.Role == agent.RoleAssistant && strings.TrimSpace(msg.Content) != "" {
			m.pending = append(m.pending, prevCount+i)
		}
	}
	m.streamIdx = -1
	m.nextStream()
}

func (m *chatModel) nextStream() {
	m.streamIdx = -1
	m.streamFull = ""
	m.streamPos = 0
	if len(m.pending) == 0 {
		return
	}
	m.streamIdx = m.pending[0]
	m.pending = m.pending[1:]
	m.streamFull = m.state.Messages[m.streamIdx].Content
	m.streamPos = min(len(m.streamFull), streamChunk)
}

func (m *chatModel) resetMarkdownRenderer() {
	if m.width <= 0 {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(m.bubbleMaxContentWidth()),
	)
	if err == nil {
		m.renderer = r
	}
}

func (m chatModel) renderChat() string {
	if m.width <= 0 {
		m.width = 80
	}

	var b strings.Builder
	for i, msg := range m.state.Messages {
		// 还没轮到展示的消息先隐藏
		if m.isPending(i) {
			continue
		}
		content := msg.Content
		if i == m.streamIdx {
			content = m.streamFull[:m.streamPos]
			if strings.TrimSpace(content) == "" {
				content = "…"
			}
		}
		content = strings.TrimRight(content, "\n")
		if strings.TrimSpace(content) == "" {
			continue
		}

		if msg.Role == agent.RoleUser {
			b.WriteString(m.renderUser(content))
		} else {
			b.WriteString(m.renderAssistant(msg, content, i != m.streamIdx))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m chatModel) isPending(i int) bool {
	for _, p := range m.pending {
		if p == i {
			return true
		}
	}
	return false
}

func (m chatModel) bubbleMaxContentWidth() int {
	if m.width <= 0 {
		return 72
	}
	return max(20, m.width-8)
}

func (m chatModel) desiredContentWidth(s string) int {
	w := max(10, maxLineWidth(s))
	return min(m.bubbleMaxContentWidth(), w)
}

func (m chatModel) wrapToWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

func maxLineWidth(s string) int {
	s = strings.TrimRight(s, "\n")
	if strings.TrimSpace(s) == "" {
		return 0
	}
	maxW := 0
	for _, line := range strings.Split(s, "\n") {
		maxW = max(maxW, lipgloss.Width(strings.TrimRight(line, " ")))
	}
	return maxW
}

func agentColor(name string) lipgloss.Color {
	switch name {
	case agent.AgentClinical:
		return clinicalColor
	case agent.AgentReceptionist:
		return receptionistColor
	default:
		return mutedColor
	}
}

func (m chatModel) renderAssistant(msg agent.Message, content string, complete bool) string {
	md := content
	if m.renderer != nil && complete {
		if rendered, err := m.renderer.Render(md); err == nil {
			md = strings.TrimRight(rendered, "\n")
		}
	}
	md = m.wrapToWidth(md, m.desiredContentWidth(md))

	label := lipgloss.NewStyle().Bold(true).Foreground(agentColor(msg.Agent)).Render(ui.AgentLabel(msg))
	body := label + "\n" + md
	if complete && m.opts.ShowCitations {
		if line := ui.CitationLine(msg); line != "" {
			body += "\n" + lipgloss.NewStyle().Foreground(mutedColor).Render(m.wrapToWidth(line, m.bubbleMaxContentWidth()))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(agentColor(msg.Agent)).
		Padding(0, 1).
		MaxWidth(max(20, m.width-4)).
		Render(body)
}

func (m chatModel) renderUser(content string) string {
	content = m.wrapToWidth(content, m.desiredContentWidth(content))
	bubble := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(userColor).
		Padding(0, 1).
		MaxWidth(max(20, m.width-4)).
		Render(content)
	return lipgloss.NewStyle().Width(m.width).Align(lipgloss.Right).Render(bubble)
}
