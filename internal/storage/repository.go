package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultLimit = 200
	maxLimit     = 5000

	defaultDeleteLimit = 500
	maxDeleteLimit     = 900
)

type AgentEventQuery struct {
	// SessionID/Agent/Tool 为可选过滤条件，均为精确匹配。
	SessionID string
	Agent     string
	Tool      string
	// From/To 过滤 CreatedAt 区间：[From, To]（两端包含）。
	From *time.Time
	To   *time.Time
	// Limit 限制返回条数；<=0 使用默认值。
	Limit int
	// Desc 按 CreatedAt 倒序返回（优先返回最新事件）。
	Desc bool
}

func (s *Storage) InsertAgentEvent(ctx context.Context, ev *AgentEvent) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if ev == nil {
		return errors.New("agent event is nil")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("insert agent event: %w", err)
	}
	return nil
}

func (s *Storage) QueryAgentEvents(ctx context.Context, q AgentEventQuery) ([]AgentEvent, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	db := s.db.WithContext(ctx).Model(&AgentEvent{})
	if q.SessionID != "" {
		db = db.Where("session_id = ?", q.SessionID)
	}
	if q.Agent != "" {
		db = db.Where("agent = ?", q.Agent)
	}
	if q.Tool != "" {
		db = db.Where("tool = ?", q.Tool)
	}
	if q.From != nil {
		db = db.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("created_at <= ?", *q.To)
	}
	// id 作为第二排序键，保证同一时刻写入的事件顺序稳定
	if q.Desc {
		db = db.Order("created_at DESC").Order("id DESC")
	} else {
		db = db.Order("created_at ASC").Order("id ASC")
	}

	var out []AgentEvent
	if err := db.Limit(normalizeLimit(q.Limit)).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query agent events: %w", err)
	}
	return out, nil
}

func (s *Storage) CountAgentEvents(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&AgentEvent{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count agent events: %w", err)
	}
	return n, nil
}

func (s *Storage) DeleteAgentEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&AgentEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete agent events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAgentEventsKeepLatest 只保留最新的 keep 条事件，分批删除其余记录
func (s *Storage) DeleteAgentEventsKeepLatest(ctx context.Context, keep int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	if keep < 0 {
		return 0, fmt.Errorf("keep must be >= 0, got %d", keep)
	}

	var total int64
	for {
		var ids []uint64
		err := s.db.WithContext(ctx).Model(&AgentEvent{}).
			Order("id DESC").
			Offset(keep).
			Limit(normalizeDeleteLimit(0)).
			Pluck("id", &ids).Error
		if err != nil {
			return total, fmt.Errorf("select agent event ids: %w", err)
		}
		if len(ids) == 0 {
			return total, nil
		}

		res := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&AgentEvent{})
		if res.Error != nil {
			return total, fmt.Errorf("delete agent events: %w", res.Error)
		}
		total += res.RowsAffected
	}
}

func normalizeLimit(v int) int {
	if v <= 0 {
		return defaultLimit
	}
	if v > maxLimit {
		return maxLimit
	}
	return v
}

func normalizeDeleteLimit(v int) int {
	if v <= 0 {
		return defaultDeleteLimit
	}
	if v > maxDeleteLimit {
		return maxDeleteLimit
	}
	return v
}
