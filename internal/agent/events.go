package agent

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/wwwzy/CareCompanion/internal/storage"
)

const eventArgsTruncateLimit = 4096

// EventLogger 记录 Agent 的工具调用
// 实现必须是“尽力而为”的：记录失败不能影响工具调用本身
type EventLogger interface {
	LogAgentEvent(ctx context.Context, sessionID, agentName, toolName string, args map[string]any)
}

// LogEventLogger 只写结构化日志
type LogEventLogger struct {
	Logger zerolog.Logger
}

func (l LogEventLogger) LogAgentEvent(_ context.Context, sessionID, agentName, toolName string, args map[string]any) {
	l.Logger.Info().
		Str("session_id", sessionID).
		Str("agent", agentName).
		Str("tool", toolName).
		Interface("args", args).
		Msg("agent tool call")
}

// StoreEventLogger 把事件写入 storage，同时输出日志
type StoreEventLogger struct {
	store  *storage.Storage
	logger zerolog.Logger
}

func NewStoreEventLogger(store *storage.Storage, logger zerolog.Logger) *StoreEventLogger {
	return &StoreEventLogger{store: store, logger: logger}
}

func (l *StoreEventLogger) LogAgentEvent(ctx context.Context, sessionID, agentName, toolName string, args map[string]any) {
	LogEventLogger{Logger: l.logger}.LogAgentEvent(ctx, sessionID, agentName, toolName, args)

	argsJSON, err := json.Marshal(args)
	if err != nil {
		l.logger.Warn().Err(err).Str("tool", toolName).Msg("marshal agent event args failed")
		argsJSON = []byte("{}")
	}

	ev := &storage.AgentEvent{
		SessionID: sessionID,
		Agent:     agentName,
		Tool:      toolName,
		ArgsJSON:  truncate(string(argsJSON), eventArgsTruncateLimit),
	}
	if err := l.store.InsertAgentEvent(ctx, ev); err != nil {
		l.logger.Warn().Err(err).Str("session_id", sessionID).Str("tool", toolName).Msg("insert agent event failed")
	}
}

// safeLogEvent 保证 EventLogger 的 panic 也不会中断工具调用
func safeLogEvent(ctx context.Context, logger zerolog.Logger, events EventLogger, sessionID, agentName, toolName string, args map[string]any) {
	if events == nil {
		return
	}
	if sessionID == "" {
		sessionID = GetSessionID(ctx)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn().Interface("panic", r).Str("tool", toolName).Msg("agent event logger panicked")
		}
	}()
	events.LogAgentEvent(ctx, sessionID, agentName, toolName, args)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// 回退到 rune 边界，避免写入非法 UTF-8
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
