package retention

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/wwwzy/CareCompanion/internal/storage"
)

type ErrorHandler func(err error)

type Config struct {
	// Enabled 控制后台清理是否启用；events prune 命令不受影响
	Enabled bool `mapstructure:"enabled"`
	// Interval 为清理周期
	Interval time.Duration `mapstructure:"interval"`
	// MaxAge 早于该时长的事件会被删除；<=0 表示不按时间清理
	MaxAge time.Duration `mapstructure:"max_age"`
	// KeepLatest 只保留最新的 N 条；<=0 表示不按条数清理
	KeepLatest int `mapstructure:"keep_latest"`

	// OnError 为异步错误回调；默认丢弃
	OnError ErrorHandler `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Interval:   time.Hour,
		MaxAge:     30 * 24 * time.Hour,
		KeepLatest: 10000,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}

// Pruner 按策略定期清理 agent_events
type Pruner struct {
	cfg   Config
	store *storage.Storage
	log   zerolog.Logger
}

func NewPruner(store *storage.Storage, cfg Config, log zerolog.Logger) (*Pruner, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	return &Pruner{cfg: cfg.withDefaults(), store: store, log: log}, nil
}

// Run 先清理一次，之后每个 Interval 清理一次，直到 ctx 结束
func (p *Pruner) Run(ctx context.Context) error {
	if p == nil || p.store == nil {
		return errors.New("pruner not initialized")
	}

	if _, err := p.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.RunOnce(ctx, time.Now().UTC()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}

// RunOnce 执行一次清理，返回删除的条数
func (p *Pruner) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := Prune(ctx, p.store, p.cfg, now)
	if err != nil {
		p.cfg.OnError(err)
		p.log.Warn().Err(err).Msg("prune agent events failed")
		return deleted, err
	}
	if deleted > 0 {
		p.log.Info().Int64("deleted", deleted).Msg("agent events pruned")
	}
	return deleted, nil
}

// Prune 按策略清理一次，供后台任务与 events prune 命令共用
func Prune(ctx context.Context, store *storage.Storage, cfg Config, now time.Time) (int64, error) {
	var total int64

	if cfg.MaxAge > 0 {
		n, err := store.DeleteAgentEventsBefore(ctx, now.Add(-cfg.MaxAge))
		total += n
		if err != nil {
			return total, err
		}
	}

	if ctx.Err() != nil {
		return total, ctx.Err()
	}

	if cfg.KeepLatest > 0 {
		n, err := store.DeleteAgentEventsKeepLatest(ctx, cfg.KeepLatest)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
