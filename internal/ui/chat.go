package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/wwwzy/CareCompanion/internal/agent"
)

// ChatBackend 由编译后的 agent graph 实现
type ChatBackend interface {
	Invoke(ctx context.Context, state agent.ConversationState, opts ...compose.Option) (agent.ConversationState, error)
}

type ChatUI interface {
	Run(ctx context.Context, backend ChatBackend, initial agent.ConversationState, opts ChatOptions) error
}

type ChatOptions struct {
	// ShowCitations 为 true 时在回复下方展示来源
	ShowCitations bool
}

// DefaultInitialState 创建新会话
// clinical 为 true 时跳过 receptionist，直接进入 clinical
func DefaultInitialState(patient agent.PatientData, clinical bool) agent.ConversationState {
	state := agent.ConversationState{
		SessionID:         uuid.New().String(),
		PatientData:       patient,
		HandoffToClinical: clinical,
	}
	if clinical {
		state.CurrentAgent = agent.AgentClinical
		return state
	}
	state.CurrentAgent = agent.AgentReceptionist
	state.Messages = []agent.Message{agent.AssistantMessage(agent.AgentReceptionist, agent.ReceptionistGreeting)}
	if name, ok := patient["patient_name"].(string); ok {
		state.UserName = name
	}
	return state
}

// NewMessages 返回本轮新追加的消息
func NewMessages(state agent.ConversationState, prevCount int) []agent.Message {
	if prevCount < 0 || prevCount > len(state.Messages) {
		return nil
	}
	return state.Messages[prevCount:]
}

// AgentLabel 返回消息在界面上的发言人标签
func AgentLabel(msg agent.Message) string {
	if msg.Role == agent.RoleUser {
		return "你"
	}
	switch msg.Agent {
	case agent.AgentReceptionist:
		return "前台"
	case agent.AgentClinical:
		return "临床助手"
	default:
		return "助手"
	}
}

// CitationLine 格式化来源，没有来源时返回空串
func CitationLine(msg agent.Message) string {
	if len(msg.Citations) == 0 {
		return ""
	}
	kind := "知识库"
	if msg.SourceType == agent.SourceTypeWeb {
		kind = "网络"
	}
	return fmt.Sprintf("来源（%s）: %s", kind, strings.Join(msg.Citations, ", "))
}
