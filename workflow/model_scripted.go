package workflow

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedStep is one canned model reply. When Specialist is set the step is
// only served to that specialist.
type ScriptedStep struct {
	Specialist string
	Response   StepResponse
	Err        error
}

// ScriptedModel 一个简单的占位实现，便于本地调试和测试，不调用外部模型。
// Steps are served in order; once exhausted, Fallback answers.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []ScriptedStep
	Fallback func(req StepRequest) StepResponse
	Requests []StepRequest
}

func NewScriptedModel(steps ...ScriptedStep) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// Push appends more steps to the script.
func (m *ScriptedModel) Push(steps ...ScriptedStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

func (m *ScriptedModel) Step(ctx context.Context, req StepRequest) (StepResponse, error) {
	if err := ctx.Err(); err != nil {
		return StepResponse{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if len(m.steps) == 0 {
		if m.Fallback != nil {
			return m.Fallback(req), nil
		}
		return echoStep(req), nil
	}
	next := m.steps[0]
	if next.Specialist != "" && next.Specialist != req.Specialist.Name {
		return StepResponse{}, fmt.Errorf("scripted model: step for %q served to %q", next.Specialist, req.Specialist.Name)
	}
	m.steps = m.steps[1:]
	return next.Response, next.Err
}

// echoStep answers with the last user utterance.
func echoStep(req StepRequest) StepResponse {
	var last string
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Role == RoleUser {
			last = req.History[i].Content
			break
		}
	}
	return StepResponse{Text: fmt.Sprintf("[%s] %s", req.Specialist.Name, last)}
}
