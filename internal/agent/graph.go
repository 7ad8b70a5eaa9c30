package agent

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/compose"
)

// AgentNode 是 Graph 中的一个 Agent
// Handle 需要自行兜底错误，返回的状态只比输入多出新追加的消息
type AgentNode interface {
	Handle(ctx context.Context, state ConversationState) (ConversationState, error)
}

// BuildGraph 构建双 Agent 的路由图
//
//	START --Route--> receptionist --Route--> clinical --> END
//	  \                    \
//	   `--> clinical        `--> END
func BuildGraph(ctx context.Context, receptionist, clinical AgentNode) (compose.Runnable[ConversationState, ConversationState], error) {
	if receptionist == nil || clinical == nil {
		return nil, errors.New("build graph: both agents are required")
	}

	// 初始化 Graph，输入输出都是 ConversationState
	g := compose.NewGraph[ConversationState, ConversationState]()

	// 1. 添加节点
	if err := g.AddLambdaNode(NodeReceptionist, compose.InvokableLambda(receptionist.Handle)); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode(NodeClinical, compose.InvokableLambda(clinical.Handle)); err != nil {
		return nil, err
	}

	// 2. 入口分支：已转接的会话直接进入 clinical
	err := g.AddBranch(compose.START, compose.NewGraphBranch(func(_ context.Context, state ConversationState) (string, error) {
		return Route(state), nil
	}, map[string]bool{
		NodeReceptionist: true,
		NodeClinical:     true,
	}))
	if err != nil {
		return nil, err
	}

	// 3. receptionist 之后重新路由，同一轮内完成转接
	err = g.AddBranch(NodeReceptionist, compose.NewGraphBranch(func(_ context.Context, state ConversationState) (string, error) {
		return afterReceptionist(state), nil
	}, map[string]bool{
		NodeClinical: true,
		compose.END:  true,
	}))
	if err != nil {
		return nil, err
	}

	// 4. clinical 每轮只回复一次
	if err := g.AddEdge(NodeClinical, compose.END); err != nil {
		return nil, err
	}

	return g.Compile(ctx, compose.WithGraphName("care_companion"))
}
