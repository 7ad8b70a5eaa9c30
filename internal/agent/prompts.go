package agent

import (
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Disclaimer 是 clinical 回复结尾要求附带的免责声明
const Disclaimer = "This is an AI assistant for educational purposes only. Always consult healthcare professionals for medical advice."

// ClinicalSystemPrompt 包含动态变量: {patient_context}
const ClinicalSystemPrompt = `You are a Clinical AI assistant for nephrology patients.
You have access to a RAG tool (nephrology reference) and a Web Search tool.

Rules:
1. ALWAYS use the 'rag_tool' for questions about symptoms, diet, medications, or CKD management.
2. ONLY use 'web_search_tool' if the user explicitly asks for "latest research", "new drugs", or "2024 updates".
3. Base your answer strictly on the tool output.
4. Include citations if provided by the tool.
5. ALWAYS end your response with: "` + Disclaimer + `"

Patient Context: {patient_context}
`

// ReceptionistSystemPrompt 包含动态变量: {user_name}
const ReceptionistSystemPrompt = `You are the receptionist of a post-discharge care service for nephrology patients.
Greet the patient, ask for their name if you do not know it yet, and ask how they are feeling.
Do not answer medical questions yourself. When the patient asks anything about symptoms, diet,
medications, test results or their kidney condition, call the 'transfer_to_clinical' tool and
tell the patient you are connecting them with the clinical agent.

Patient name: {user_name}
`

// ReceptionistGreeting 是新会话的开场白
const ReceptionistGreeting = "Hello! I'm your post-discharge care assistant. What's your name?"

// NewChatTemplate 创建 system + history 两段式的模板
// "history" 是参数名，true 表示该字段是可选的
func NewChatTemplate(systemPrompt string) prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.MessagesPlaceholder("history", true),
	)
}

// HasDisclaimer 检查回复是否带有免责声明（忽略大小写与多余空白）
func HasDisclaimer(answer string) bool {
	normalize := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	return strings.Contains(normalize(answer), normalize(Disclaimer))
}
