package storage

import "time"

// AgentEvent 记录一次 Agent 发起的工具调用。
//
// 记录在工具真正执行之前写入，参数保存为原始 JSON，
// 便于事后按会话回放“哪个 Agent 在什么时候用什么参数调用了哪个工具”。
type AgentEvent struct {
	// ID 为自增主键（内部使用）。
	ID uint64 `gorm:"primaryKey"`
	// SessionID 为会话标识，仅用于关联同一段对话的事件。
	SessionID string `gorm:"size:64;index:idx_agent_events_session_time,priority:1"`
	// Agent 为发起调用的 Agent 名称（receptionist / clinical）。
	Agent string `gorm:"size:64;not null;index"`
	// Tool 为被调用的工具名（rag_tool / web_search_tool ...）。
	Tool string `gorm:"size:128;not null;index"`
	// ArgsJSON 存放模型给出的原始参数。
	ArgsJSON string `gorm:"type:text"`
	// CreatedAt 为事件写入时间；与 SessionID 组成联合索引。
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index:idx_agent_events_session_time,priority:2"`
}
