package agent

import (
	"context"
)

type sessionIDKey struct{}

// WithSessionID 将会话 ID 注入 context，供工具与日志使用
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// GetSessionID 从 context 获取会话 ID
func GetSessionID(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return v
	}
	return ""
}
