package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wwwzy/CareCompanion/internal/retention"
	"github.com/wwwzy/CareCompanion/internal/storage"
)

// eventsCmd 管理工具调用事件
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "查看和清理 Agent 工具调用事件",
	Long:  `工具调用事件记录了每次 rag_tool / web_search_tool / transfer_to_clinical 的调用参数。`,
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出最近的事件",
	RunE:  runEventsList,
}

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "清理旧事件",
	Long: `根据用户指定的保留条数或天数，清理旧的事件记录。
不指定 --keep 与 --days 时按配置文件中的 retention 策略清理。`,
	RunE: runEventsPrune,
}

var eventsInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "显示事件库概况",
	RunE:  runEventsInfo,
}

var (
	listSession string
	listAgent   string
	listTool    string
	listLimit   int

	keepEventCount int
	keepEventDays  int
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListCmd, eventsPruneCmd, eventsInfoCmd)

	eventsListCmd.Flags().StringVar(&listSession, "session", "", "按会话 ID 过滤")
	eventsListCmd.Flags().StringVar(&listAgent, "agent", "", "按 Agent 过滤 (receptionist/clinical)")
	eventsListCmd.Flags().StringVar(&listTool, "tool", "", "按工具名过滤")
	eventsListCmd.Flags().IntVar(&listLimit, "limit", 20, "最多显示 N 条")

	eventsPruneCmd.Flags().IntVar(&keepEventCount, "keep", 0, "保留最近的 N 条记录")
	eventsPruneCmd.Flags().IntVar(&keepEventDays, "days", 0, "保留最近 N 天的记录")
}

func openStore(ctx context.Context) (*storage.Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("打开事件库失败: %w", err)
	}
	return store, nil
}

func runEventsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.QueryAgentEvents(ctx, storage.AgentEventQuery{
		SessionID: listSession,
		Agent:     listAgent,
		Tool:      listTool,
		Limit:     listLimit,
		Desc:      true,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSESSION\tAGENT\tTOOL\tARGS")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ev.CreatedAt.Local().Format(time.DateTime), ev.SessionID, ev.Agent, ev.Tool, truncateArgs(ev.ArgsJSON, 80))
	}
	return w.Flush()
}

func runEventsPrune(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	policy := retention.Config{KeepLatest: keepEventCount}
	if keepEventDays > 0 {
		policy.MaxAge = time.Duration(keepEventDays) * 24 * time.Hour
	}
	if keepEventCount <= 0 && keepEventDays <= 0 {
		policy = cfg.Retention
		if policy.KeepLatest <= 0 && policy.MaxAge <= 0 {
			_ = cmd.Usage()
			return fmt.Errorf("must specify either --keep or --days")
		}
		fmt.Fprintf(out, "Using configured policy: keep_latest=%d max_age=%s\n", policy.KeepLatest, policy.MaxAge)
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if policy.KeepLatest > 0 {
		fmt.Fprintf(out, "Pruning agent events, keeping latest %d records...\n", policy.KeepLatest)
	}
	if policy.MaxAge > 0 {
		fmt.Fprintf(out, "Pruning agent events older than %s...\n", policy.MaxAge)
	}

	deletedCount, err := retention.Prune(ctx, store, policy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("prune agent events: %w", err)
	}

	fmt.Fprintf(out, "Prune completed. Deleted %d records.\n", deletedCount)
	if count, err := store.CountAgentEvents(ctx); err == nil {
		fmt.Fprintf(out, "Remaining Agent Events: %d\n", count)
	}
	return nil
}

func runEventsInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	// 1. 数据库文件信息
	dbSizeStr := "in-memory"
	if !cfg.Storage.InMemory {
		dbPath := cfg.Storage.Path
		if absPath, err := filepath.Abs(dbPath); err == nil {
			dbPath = absPath
		}
		info, err := os.Stat(dbPath)
		switch {
		case os.IsNotExist(err):
			dbSizeStr = "Not Found (Will be created on first run)"
		case err != nil:
			dbSizeStr = fmt.Sprintf("Error: %v", err)
		default:
			dbSizeStr = fmt.Sprintf("%.2f MB (%s)", float64(info.Size())/1024/1024, dbPath)
		}
	}
	fmt.Fprintf(out, "Database File: %s\n", dbSizeStr)

	// 2. 统计
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	count, err := store.CountAgentEvents(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Agent Events: %d\n", count)
	return nil
}

func truncateArgs(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
