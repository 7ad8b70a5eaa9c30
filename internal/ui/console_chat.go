package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wwwzy/CareCompanion/internal/agent"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, initial agent.ConversationState, opts ChatOptions) error {
	in := u.In
	if in == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}

	reader := bufio.NewReader(in)
	state := initial

	fmt.Fprintln(out, "进入 CareCompanion 对话模式。输入 exit/quit 退出。")
	printMessages(out, state.Messages, opts)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "已退出。")
			return nil
		default:
		}

		fmt.Fprint(out, "你: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "已退出。")
				return nil
			}
			return fmt.Errorf("读取输入失败: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Fprintln(out, "已退出。")
			return nil
		}

		state = state.WithMessages(agent.UserMessage(line))
		prev := len(state.Messages)

		next, err := backend.Invoke(ctx, state)
		if err != nil {
			return err
		}
		state = next

		fresh := NewMessages(state, prev)
		if len(fresh) == 0 {
			fmt.Fprintln(out, "助手: (无输出)")
			fmt.Fprintln(out)
			continue
		}
		printMessages(out, fresh, opts)
	}
}

func printMessages(w io.Writer, messages []agent.Message, opts ChatOptions) {
	for _, msg := range messages {
		if msg.Role != agent.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			content = "(无文本输出)"
		}
		fmt.Fprintf(w, "%s: %s\n", AgentLabel(msg), content)
		if opts.ShowCitations {
			if line := CitationLine(msg); line != "" {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
		fmt.Fprintln(w)
	}
}
