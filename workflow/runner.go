package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxSteps bounds model calls within one run.
const DefaultMaxSteps = 10

const multipleHandoffsOutput = "Multiple handoffs detected, ignoring this one."

var _ Runtime = (*Runner)(nil)

// Runner drives a Model through tool calls and handoffs, producing Items.
// Each RunStream.Next performs at most one model call or one tool call.
type Runner struct {
	model    Model
	maxSteps int
	logger   *zap.Logger
}

type RunnerOption func(*Runner)

func WithMaxSteps(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRunner(model Model, opts ...RunnerOption) (*Runner, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	r := &Runner{model: model, maxSteps: DefaultMaxSteps, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "runner"))
	return r, nil
}

func (r *Runner) Run(ctx context.Context, in RunInput) RunStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &runStream{
		ctx:        ctx,
		cancel:     cancel,
		r:          r,
		in:         in,
		specialist: in.Specialist,
		history:    cloneHistory(in.History),
	}
	if in.Specialist == nil || in.Registry == nil {
		s.fail(errors.New("run input requires a specialist and a registry"))
	}
	return s
}

type pendingCall struct {
	call   ToolCall
	issuer *Specialist
}

type runStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	r      *Runner
	in     RunInput

	specialist *Specialist
	history    []Message
	queue      []Item
	calls      []pendingCall
	handedOff  bool
	steps      int
	current    Item
	done       bool
	err        error
}

func (s *runStream) Next() bool {
	for {
		if len(s.queue) > 0 {
			s.current, s.queue = s.queue[0], s.queue[1:]
			return true
		}
		if s.err != nil || s.done {
			return false
		}
		if err := s.ctx.Err(); err != nil {
			s.fail(err)
			return false
		}
		if len(s.calls) > 0 {
			var c pendingCall
			c, s.calls = s.calls[0], s.calls[1:]
			if err := s.execute(c); err != nil {
				s.fail(err)
			}
			continue
		}
		if s.steps >= s.r.maxSteps {
			s.fail(fmt.Errorf("%w (%d)", ErrMaxSteps, s.r.maxSteps))
			continue
		}
		if err := s.step(); err != nil {
			s.fail(err)
		}
	}
}

func (s *runStream) Current() Item               { return s.current }
func (s *runStream) Err() error                  { return s.err }
func (s *runStream) History() []Message          { return cloneHistory(s.history) }
func (s *runStream) LastSpecialist() *Specialist { return s.specialist }

func (s *runStream) Close() error {
	s.cancel()
	if !s.done && s.err == nil {
		s.err = context.Canceled
	}
	return nil
}

func (s *runStream) fail(err error) {
	if s.err == nil {
		s.err = err
	}
	s.queue = nil
	s.cancel()
}

func (s *runStream) tools() []ToolSpec {
	specs := make([]ToolSpec, 0, len(s.specialist.Tools))
	for _, t := range s.specialist.Tools {
		specs = append(specs, ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	for _, target := range s.in.Registry.Handoffs(s.specialist.Name) {
		desc := "Handoff to the " + target.Name + " agent to handle the request."
		if target.HandoffDescription != "" {
			desc += " " + target.HandoffDescription
		}
		specs = append(specs, ToolSpec{
			Name:        HandoffToolName(target.Name),
			Description: desc,
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		})
	}
	return specs
}

func (s *runStream) step() error {
	s.steps++
	s.handedOff = false
	req := StepRequest{
		Specialist: s.specialist,
		History:    cloneHistory(s.history),
		Tools:      s.tools(),
	}
	if s.in.Context != nil {
		req.Context = *s.in.Context
	}
	resp, err := s.r.model.Step(s.ctx, req)
	if err != nil {
		return fmt.Errorf("%s: model step: %w", s.specialist.Name, err)
	}
	s.history = append(s.history, Message{
		Role:       RoleAssistant,
		Content:    resp.Text,
		Specialist: s.specialist.Name,
		ToolCalls:  resp.ToolCalls,
		CreatedAt:  time.Now(),
	})
	// 空白文本不播报，历史里仍保留原始回复。
	text := strings.TrimSpace(resp.Text)
	if len(resp.ToolCalls) == 0 {
		if text != "" {
			s.queue = append(s.queue, MessageItem(s.specialist.Name, text))
		}
		s.done = true
		return nil
	}
	if text != "" {
		s.queue = append(s.queue, Reasoning(s.specialist.Name, text))
	}
	for _, c := range resp.ToolCalls {
		s.calls = append(s.calls, pendingCall{call: c, issuer: s.specialist})
	}
	return nil
}

func (s *runStream) handoffTarget(issuer *Specialist, toolName string) (*Specialist, bool) {
	for _, target := range s.in.Registry.Handoffs(issuer.Name) {
		if HandoffToolName(target.Name) == toolName {
			return target, true
		}
	}
	return nil, false
}

func (s *runStream) execute(c pendingCall) error {
	if target, ok := s.handoffTarget(c.issuer, c.call.Name); ok {
		if s.handedOff {
			s.appendToolOutput(c, multipleHandoffsOutput)
			return nil
		}
		s.handedOff = true
		out, _ := json.Marshal(map[string]string{"assistant": target.Name})
		s.appendToolOutput(c, string(out))
		s.queue = append(s.queue, Handoff(c.issuer.Name, target.Name))
		s.r.logger.Debug("handoff",
			zap.String("from", c.issuer.Name),
			zap.String("to", target.Name),
		)
		s.specialist = target
		return nil
	}

	tool, ok := c.issuer.Tool(c.call.Name)
	if !ok {
		return fmt.Errorf("%w: %s called %q", ErrUnknownTool, c.issuer.Name, c.call.Name)
	}
	tc := &ToolContext{
		Shared:     s.in.Context,
		Specialist: c.issuer.Name,
		CallID:     c.call.ID,
		Artifacts:  s.in.Artifacts,
	}
	out, err := tool.Call(s.ctx, tc, c.call.Arguments)
	if err != nil {
		if errors.Is(err, ErrMalformedArguments) || IsTransient(err) {
			return fmt.Errorf("tool %s: %w", c.call.Name, err)
		}
		s.r.logger.Warn("tool error reported to model",
			zap.String("tool", c.call.Name),
			zap.Error(err),
		)
		out = "Error: " + err.Error()
	}
	s.appendToolOutput(c, out)
	s.queue = append(s.queue, ToolResult(c.issuer.Name, out))
	return nil
}

func (s *runStream) appendToolOutput(c pendingCall, out string) {
	s.history = append(s.history, Message{
		Role:       RoleTool,
		Content:    out,
		ToolCallID: c.call.ID,
		ToolName:   c.call.Name,
		CreatedAt:  time.Now(),
	})
}
