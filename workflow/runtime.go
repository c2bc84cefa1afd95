package workflow

import "context"

// RunInput is everything a runtime needs to invoke one specialist.
type RunInput struct {
	Specialist *Specialist
	// History already ends with the new user utterance.
	History []Message
	// Context is a turn-scoped copy; tools write to it by reference.
	Context   *SharedContext
	Registry  *Registry
	Artifacts *Artifacts
}

// RunStream is a lazy sequence of Items from one specialist invocation.
//
// Iterate with Next/Current until Next returns false, then check Err. History
// and LastSpecialist are only meaningful once the stream is exhausted without
// error.
type RunStream interface {
	Next() bool
	Current() Item
	Err() error
	// History is the canonical post-turn history.
	History() []Message
	LastSpecialist() *Specialist
	Close() error
}

// Runtime 抽象模型运行时，便于替换/Mock。
type Runtime interface {
	Run(ctx context.Context, in RunInput) RunStream
}

// StepRequest asks a model for the next step of a specialist.
type StepRequest struct {
	Specialist *Specialist
	History    []Message
	Tools      []ToolSpec
	// Context is the shared context as of this step.
	Context SharedContext
}

// StepResponse is a single model reply: text, tool calls, or both.
type StepResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// Model 抽象大模型客户端：一次调用产出一步。
type Model interface {
	Step(ctx context.Context, req StepRequest) (StepResponse, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}
