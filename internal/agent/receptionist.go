package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const (
	receptionistErrorReply = "Sorry, I encountered an error. Please try again."
	handoffReply           = "Let me connect you with our clinical agent, who can help with your question."
)

type ReceptionistConfig struct {
	Model  model.ToolCallingChatModel
	Events EventLogger
	Logger zerolog.Logger
}

// ReceptionistAgent 负责问候与意图识别，医疗问题通过 transfer_to_clinical 转接
type ReceptionistAgent struct {
	toolModel model.ToolCallingChatModel
	template  prompt.ChatTemplate
	events    EventLogger
	log       zerolog.Logger
}

func NewReceptionistAgent(_ context.Context, cfg ReceptionistConfig) (*ReceptionistAgent, error) {
	if cfg.Model == nil {
		return nil, errors.New("receptionist agent: chat model is required")
	}
	toolModel, err := cfg.Model.WithTools([]*schema.ToolInfo{transferToolInfo()})
	if err != nil {
		return nil, fmt.Errorf("bind tools to chat model failed: %w", err)
	}
	return &ReceptionistAgent{
		toolModel: toolModel,
		template:  NewChatTemplate(ReceptionistSystemPrompt),
		events:    cfg.Events,
		log:       cfg.Logger.With().Str("agent", AgentReceptionist).Logger(),
	}, nil
}

// Handle 追加一条 receptionist 消息，需要转接时设置 HandoffToClinical
func (a *ReceptionistAgent) Handle(ctx context.Context, state ConversationState) (out ConversationState, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = a.contain(state, fmt.Errorf("panic: %v", r), debug.Stack())
			err = nil
		}
	}()

	ctx = WithSessionID(ctx, state.SessionID)

	userName := state.UserName
	if userName == "" {
		userName = "Unknown"
	}
	msgs, err := a.template.Format(ctx, map[string]any{
		"user_name": userName,
		"history":   toSchemaMessages(state.Messages),
	})
	if err != nil {
		return a.contain(state, fmt.Errorf("format receptionist prompt failed: %w", err), debug.Stack()), nil
	}

	resp, err := a.toolModel.Generate(ctx, filterEmpty(msgs))
	if err != nil {
		return a.contain(state, err, debug.Stack()), nil
	}

	handoff := false
	for _, call := range resp.ToolCalls {
		if call.Function.Name != ToolTransferToClinical {
			continue
		}
		handoff = true
		args, perr := parseToolArgs(call.Function.Arguments)
		if perr != nil {
			args = map[string]any{"raw": call.Function.Arguments}
		}
		safeLogEvent(ctx, a.log, a.events, state.SessionID, AgentReceptionist, call.Function.Name, args)
		break
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" && handoff {
		content = handoffReply
	}
	if content == "" {
		content = ReceptionistGreeting
	}

	out = state.WithMessages(AssistantMessage(AgentReceptionist, content))
	out.CurrentAgent = AgentReceptionist
	out.HandoffToClinical = state.HandoffToClinical || handoff
	return out, nil
}

func (a *ReceptionistAgent) contain(state ConversationState, cause error, stack []byte) ConversationState {
	a.log.Error().
		Err(cause).
		Str("session_id", state.SessionID).
		Bytes("stack", stack).
		Msg("receptionist agent failed")

	out := state.WithMessages(AssistantMessage(AgentReceptionist, receptionistErrorReply))
	out.CurrentAgent = AgentReceptionist
	return out
}
