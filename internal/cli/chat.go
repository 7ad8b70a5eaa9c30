package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wwwzy/CareCompanion/internal/retention"
	"github.com/wwwzy/CareCompanion/internal/tui"
	"github.com/wwwzy/CareCompanion/internal/ui"
)

var (
	chatUI        string
	chatPatient   string
	chatClinical  bool
	chatEvents    bool
	chatCitations bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式对话模式",
	Long: `与随访助手对话。新会话先由 receptionist 接待，
遇到医疗问题时转交 clinical，之后的每一轮都由 clinical 回答。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		patient, err := loadPatient(chatPatient)
		if err != nil {
			return err
		}

		var uiImpl ui.ChatUI
		switch chatUI {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUI)
		}

		a, err := newApp(ctx, cfg, chatEvents)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.store != nil && cfg.Retention.Enabled {
			startPruner(ctx, a)
		}

		initial := ui.DefaultInitialState(patient, chatClinical)
		log.Info().Str("session_id", initial.SessionID).Bool("clinical", chatClinical).Msg("chat session started")

		return uiImpl.Run(ctx, a.graph, initial, ui.ChatOptions{ShowCitations: chatCitations})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUI, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().StringVar(&chatPatient, "patient", "", "患者资料 JSON 文件（diagnosis、medications 等）")
	chatCmd.Flags().BoolVar(&chatClinical, "clinical", false, "跳过 receptionist，直接与 clinical 对话")
	chatCmd.Flags().BoolVar(&chatEvents, "events", true, "把工具调用事件写入 sqlite")
	chatCmd.Flags().BoolVar(&chatCitations, "citations", true, "在回复下方展示来源")
}

// startPruner 在后台按配置清理事件，随 ctx 结束
func startPruner(ctx context.Context, a *app) {
	p, err := retention.NewPruner(a.store, cfg.Retention, log)
	if err != nil {
		log.Warn().Err(err).Msg("start event pruner failed")
		return
	}
	go func() {
		if err := p.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("event pruner stopped")
		}
	}()
}
