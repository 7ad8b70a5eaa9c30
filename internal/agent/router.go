package agent

import "github.com/cloudwego/eino/compose"

const (
	NodeReceptionist = "receptionist"
	NodeClinical     = "clinical"
)

// Route 决定本轮由哪个 Agent 处理
// 只看 HandoffToClinical：一旦转接，后续每一轮都直接进入 clinical
func Route(state ConversationState) string {
	if state.HandoffToClinical {
		return NodeClinical
	}
	return NodeReceptionist
}

// afterReceptionist 决定 receptionist 之后是否在同一轮内继续交给 clinical
func afterReceptionist(state ConversationState) string {
	if state.HandoffToClinical {
		return NodeClinical
	}
	return compose.END
}
