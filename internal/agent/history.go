package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// VisibleHistory 返回模型可见的历史
// 末尾的 assistant 消息（同一轮内 receptionist 的转接语）不发给模型，保证历史以用户消息结尾
func VisibleHistory(msgs []Message) []Message {
	if n := len(msgs); n > 0 && msgs[n-1].Role == RoleAssistant {
		return msgs[:n-1]
	}
	return msgs
}

func toSchemaMessages(msgs []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleUser {
			out = append(out, schema.UserMessage(m.Content))
		} else {
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}

// filterEmpty 去掉内容为空（或只有空白）的消息
func filterEmpty(msgs []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// SerializePatientData 用于 system prompt，无数据时为 "Unknown"
func SerializePatientData(p PatientData) string {
	if len(p) == 0 {
		return "Unknown"
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(p))
	}
	return string(data)
}

// PatientContext 生成传给 rag_tool 的患者摘要，无数据时返回空串
func PatientContext(p PatientData) string {
	if len(p) == 0 {
		return ""
	}
	return fmt.Sprintf("Diagnosis: %s, Meds: %s", patientField(p, "diagnosis"), patientField(p, "medications"))
}

func patientField(p PatientData, key string) string {
	switch v := p[key].(type) {
	case nil:
		return "Unknown"
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// parseToolArgs 解析工具参数；空参数视为 {}
func parseToolArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments %q: %w", raw, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
