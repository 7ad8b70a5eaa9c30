package agent

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	AgentReceptionist = "receptionist"
	AgentClinical     = "clinical"

	SourceTypeKnowledgeBase = "kb"
	SourceTypeWeb           = "web"
)

// Message 是对话中的一条消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Agent   string `json:"agent,omitempty"`

	// 以下字段只用于展示，不会发给模型
	Citations  []string `json:"citations,omitempty"`
	SourceType string   `json:"source_type,omitempty"`
}

// PatientData 由外部提供（诊断、用药等），Agent 只读
type PatientData map[string]any

// ConversationState 定义了在 Graph 中流转的状态
type ConversationState struct {
	// SessionID 只用于日志与事件关联
	SessionID string `json:"session_id"`

	// 按时间顺序排列，只追加不替换
	Messages []Message `json:"messages"`

	PatientData PatientData `json:"patient_data,omitempty"`

	// 最近一次回复的 Agent
	CurrentAgent string `json:"current_agent"`

	// 路由信号：为 true 时交给 clinical
	HandoffToClinical bool `json:"handoff_to_clinical"`

	UserName string `json:"user_name,omitempty"`
}

// WithMessages 返回追加了新消息的状态副本，不修改调用方持有的切片
func (s ConversationState) WithMessages(msgs ...Message) ConversationState {
	merged := make([]Message, 0, len(s.Messages)+len(msgs))
	merged = append(merged, s.Messages...)
	merged = append(merged, msgs...)
	s.Messages = merged
	return s
}

// LastUserMessage 返回最后一条用户消息
func (s ConversationState) LastUserMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(agent, content string) Message {
	return Message{Role: RoleAssistant, Content: content, Agent: agent}
}
