package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TurnReport describes a finished turn, successful or not.
type TurnReport struct {
	Utterance string
	From      string
	To        string
	Fragments int
	Duration  time.Duration
	Artifacts []string
	Err       error
}

// Workflow 持有一次会话的全部状态：历史、共享上下文与当前 specialist。
// Turns run strictly one after another.
type Workflow struct {
	registry *Registry
	runtime  Runtime
	logger   *zap.Logger
	hooks    []func(TurnReport)

	mu      sync.Mutex
	state   State
	running bool
}

type Option func(*Workflow)

func WithLogger(logger *zap.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithTurnHook registers fn to be called after every turn.
func WithTurnHook(fn func(TurnReport)) Option {
	return func(w *Workflow) {
		if fn != nil {
			w.hooks = append(w.hooks, fn)
		}
	}
}

func New(registry *Registry, runtime Runtime, opts ...Option) (*Workflow, error) {
	if registry == nil {
		return nil, errors.New("specialist registry is required")
	}
	if runtime == nil {
		return nil, errors.New("runtime is required")
	}
	w := &Workflow{
		registry: registry,
		runtime:  runtime,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "workflow"))
	w.state = State{Current: registry.Entry()}
	return w, nil
}

// State returns a copy of the current session state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

func (w *Workflow) Current() *Specialist {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Current
}

func (w *Workflow) Registry() *Registry { return w.registry }

// Reset starts a fresh session. It fails while a turn is in flight.
func (w *Workflow) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrTurnInProgress
	}
	w.state = State{Current: w.registry.Entry()}
	return nil
}

// RunTurn starts one turn for utterance. The returned Turn yields output
// fragments lazily; state is committed only when it is drained without error.
// The caller must drain the Turn or Close it: until then the session rejects
// new turns with ErrTurnInProgress.
func (w *Workflow) RunTurn(ctx context.Context, utterance string) *Turn {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return &Turn{done: true, err: ErrTurnInProgress}
	}
	w.running = true
	base := w.state.clone()
	w.mu.Unlock()

	history := append(base.History, Message{
		Role:      RoleUser,
		Content:   utterance,
		CreatedAt: time.Now(),
	})
	shared := base.Context
	artifacts := &Artifacts{}

	ctx, cancel := context.WithCancel(ctx)
	t := &Turn{
		w:         w,
		ctx:       ctx,
		cancel:    cancel,
		utterance: utterance,
		before:    base.Current,
		active:    base.Current,
		inputLen:  len(history),
		shared:    &shared,
		artifacts: artifacts,
		started:   time.Now(),
	}
	w.logger.Debug("turn started",
		zap.String("specialist", base.Current.Name),
		zap.Int("history", len(base.History)),
	)
	t.stream = w.runtime.Run(ctx, RunInput{
		Specialist: base.Current,
		History:    history,
		Context:    t.shared,
		Registry:   w.registry,
		Artifacts:  artifacts,
	})
	return t
}

// Turn is the lazy fragment sequence of one turn.
//
//	turn := wf.RunTurn(ctx, text)
//	defer turn.Close()
//	for turn.Next() {
//		speak(turn.Current())
//	}
//	if err := turn.Err(); err != nil { ... }
//
// A Turn is not safe for concurrent use.
type Turn struct {
	w         *Workflow
	ctx       context.Context
	cancel    context.CancelFunc
	stream    RunStream
	utterance string
	before    *Specialist
	active    *Specialist
	pending   *Specialist
	inputLen  int
	shared    *SharedContext
	artifacts *Artifacts
	started   time.Time

	current   string
	fragments int
	done      bool
	err       error

	// hold defers the commit of a successful turn to Commit.
	hold     bool
	held     bool
	heldHist []Message
}

func (t *Turn) Next() bool {
	if t.done {
		return false
	}
	for t.stream.Next() {
		it := t.stream.Current()
		switch it.Kind {
		case ItemHandoff:
			target, ok := t.w.registry.Get(it.Target)
			if !ok {
				t.finish(fmt.Errorf("%w: handoff to %q", ErrUnknownSpecialist, it.Target))
				return false
			}
			if !t.w.registry.CanHandoff(t.active.Name, target.Name) {
				t.finish(fmt.Errorf("%w: %s -> %s", ErrForbiddenHandoff, t.active.Name, target.Name))
				return false
			}
			t.active = target
			t.pending = target
			continue
		case ItemToolResult:
			text := strings.TrimSpace(it.Text)
			if text == "" {
				continue
			}
			it.Text = text
		}
		t.current = it.Text
		t.fragments++
		return true
	}
	if err := t.stream.Err(); err != nil {
		t.finish(err)
		return false
	}
	if err := t.ctx.Err(); err != nil {
		t.finish(err)
		return false
	}
	t.finish(nil)
	return false
}

func (t *Turn) Current() string { return t.current }

func (t *Turn) Err() error { return t.err }

// HoldCommit makes a successful turn wait for Commit instead of applying
// its state as soon as the fragments are drained. Call it before Next.
func (t *Turn) HoldCommit() {
	if !t.done {
		t.hold = true
	}
}

// Commit applies a held turn to the session. It returns the turn error if
// the turn failed and ErrTurnNotFinished if it has not been drained.
func (t *Turn) Commit() error {
	if !t.done {
		return ErrTurnNotFinished
	}
	if t.err != nil {
		return t.err
	}
	if t.held {
		t.held = false
		t.settle(t.heldHist, nil)
		t.heldHist = nil
	}
	return nil
}

// Close abandons the turn if it has not been committed. The session state is
// left as it was before the turn.
func (t *Turn) Close() error {
	if t.held {
		t.held = false
		t.heldHist = nil
		t.err = ErrTurnClosed
		t.settle(nil, ErrTurnClosed)
		return nil
	}
	if t.done {
		return nil
	}
	t.cancel()
	_ = t.stream.Close()
	t.finish(ErrTurnClosed)
	return nil
}

// Collect drains the turn.
func (t *Turn) Collect() ([]string, error) {
	var out []string
	for t.Next() {
		out = append(out, t.Current())
	}
	return out, t.Err()
}

func (t *Turn) finish(err error) {
	if t.done {
		return
	}
	t.done = true
	t.cancel()

	var history []Message
	if err == nil {
		history = t.stream.History()
		if len(history) < t.inputLen {
			err = ErrHistoryTruncated
		}
	}
	t.err = err
	if err == nil && t.hold {
		t.held = true
		t.heldHist = history
		return
	}
	t.settle(history, err)
}

// settle applies the outcome to the session, releases it for the next turn
// and reports.
func (t *Turn) settle(history []Message, err error) {
	w := t.w
	w.mu.Lock()
	after := t.before
	if err == nil {
		w.state.History = history
		w.state.Context = *t.shared
		if t.pending != nil {
			w.state.Current = t.pending
		}
		after = w.state.Current
	}
	w.running = false
	w.mu.Unlock()

	report := TurnReport{
		Utterance: t.utterance,
		From:      t.before.Name,
		To:        after.Name,
		Fragments: t.fragments,
		Duration:  time.Since(t.started),
		Artifacts: t.artifacts.Paths(),
		Err:       err,
	}
	if err != nil {
		w.logger.Warn("turn failed, state unchanged",
			zap.String("specialist", report.From),
			zap.Error(err),
		)
		for _, p := range report.Artifacts {
			w.logger.Warn("artifact left by failed turn", zap.String("path", p))
		}
	} else {
		w.logger.Info("turn completed",
			zap.String("from", report.From),
			zap.String("to", report.To),
			zap.Int("fragments", report.Fragments),
			zap.Duration("duration", report.Duration),
		)
	}
	for _, fn := range w.hooks {
		fn(report)
	}
}
