package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wwwzy/CareCompanion/internal/agent"
	"github.com/wwwzy/CareCompanion/internal/ui"
)

var (
	askPatient  string
	askClinical bool
	askEvents   bool
)

// askResult 是 ask 命令的 JSON 输出
type askResult struct {
	SessionID         string          `json:"session_id"`
	CurrentAgent      string          `json:"current_agent"`
	HandoffToClinical bool            `json:"handoff_to_clinical"`
	Messages          []agent.Message `json:"messages"`
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "单轮提问，以 JSON 输出本轮新增的回复",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("问题不能为空")
		}

		patient, err := loadPatient(askPatient)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, askEvents)
		if err != nil {
			return err
		}
		defer a.Close()

		state := ui.DefaultInitialState(patient, askClinical).WithMessages(agent.UserMessage(question))
		prev := len(state.Messages)

		out, err := a.graph.Invoke(ctx, state)
		if err != nil {
			return fmt.Errorf("执行 Agent Graph 失败: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(askResult{
			SessionID:         out.SessionID,
			CurrentAgent:      out.CurrentAgent,
			HandoffToClinical: out.HandoffToClinical,
			Messages:          ui.NewMessages(out, prev),
		})
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askPatient, "patient", "", "患者资料 JSON 文件")
	askCmd.Flags().BoolVar(&askClinical, "clinical", true, "直接由 clinical 回答")
	askCmd.Flags().BoolVar(&askEvents, "events", false, "把工具调用事件写入 sqlite")
}
