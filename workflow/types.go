package workflow

import (
	"slices"
	"time"
)

// Role 标识历史记录的来源。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall 记录模型发起的一次工具调用。
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message 是 ConversationHistory 中的一条记录。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Specialist is the author of an assistant message.
	Specialist string     `json:"specialist,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID and ToolName are set on tool messages.
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func cloneHistory(h []Message) []Message {
	if h == nil {
		return nil
	}
	out := make([]Message, len(h))
	for i, m := range h {
		m.ToolCalls = slices.Clone(m.ToolCalls)
		out[i] = m
	}
	return out
}

// ItemKind tags an Item produced during a specialist invocation.
type ItemKind int

const (
	ItemReasoning ItemKind = iota
	ItemMessage
	ItemToolResult
	ItemHandoff
)

func (k ItemKind) String() string {
	switch k {
	case ItemReasoning:
		return "reasoning"
	case ItemMessage:
		return "message"
	case ItemToolResult:
		return "tool_result"
	case ItemHandoff:
		return "handoff"
	default:
		return "unknown"
	}
}

// Item 是一次调用中按时间顺序产出的单元。
type Item struct {
	Kind ItemKind
	Text string
	// Specialist produced the item.
	Specialist string
	// Target is the handoff destination, only for ItemHandoff.
	Target string
}

func Reasoning(specialist, text string) Item {
	return Item{Kind: ItemReasoning, Specialist: specialist, Text: text}
}

func MessageItem(specialist, text string) Item {
	return Item{Kind: ItemMessage, Specialist: specialist, Text: text}
}

func ToolResult(specialist, text string) Item {
	return Item{Kind: ItemToolResult, Specialist: specialist, Text: text}
}

func Handoff(specialist, target string) Item {
	return Item{Kind: ItemHandoff, Specialist: specialist, Target: target}
}

// State is the per-session WorkflowState.
type State struct {
	History []Message     `json:"history"`
	Context SharedContext `json:"context"`
	Current *Specialist   `json:"-"`
}

func (s State) clone() State {
	return State{
		History: cloneHistory(s.History),
		Context: s.Context,
		Current: s.Current,
	}
}
