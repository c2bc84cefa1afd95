package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// fakeRuntime replays fixed items and reports the input history plus one
// assistant message as the post-turn history.
type fakeRuntime struct {
	items   []Item
	err     error
	history func(in RunInput) []Message
	mutate  func(ctx *SharedContext)
	inputs  []RunInput
	seen    []SharedContext
}

func (f *fakeRuntime) Run(_ context.Context, in RunInput) RunStream {
	f.inputs = append(f.inputs, in)
	f.seen = append(f.seen, *in.Context)
	if f.mutate != nil {
		f.mutate(in.Context)
	}
	h := append(cloneHistory(in.History), Message{Role: RoleAssistant, Content: "ok", Specialist: in.Specialist.Name})
	if f.history != nil {
		h = f.history(in)
	}
	return &fakeStream{items: f.items, err: f.err, history: h, last: in.Specialist}
}

type fakeStream struct {
	items   []Item
	pos     int
	current Item
	err     error
	history []Message
	last    *Specialist
	closed  bool
}

func (s *fakeStream) Next() bool {
	if s.closed || s.pos >= len(s.items) {
		return false
	}
	s.current = s.items[s.pos]
	s.pos++
	return true
}

func (s *fakeStream) Current() Item {
	return s.current
}

func (s *fakeStream) Err() error {
	if s.pos < len(s.items) && !s.closed {
		return nil
	}
	return s.err
}

func (s *fakeStream) History() []Message          { return s.history }
func (s *fakeStream) LastSpecialist() *Specialist { return s.last }
func (s *fakeStream) Close() error                { s.closed = true; return nil }

func newTestWorkflow(t testing.TB, rt Runtime, opts ...Option) (*Workflow, testSpecialists) {
	t.Helper()
	sp := newTestSpecialists()
	w, err := New(newTestRegistry(t, sp), rt, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	return w, sp
}

func TestWorkflow_ForwardsItemsInOrder(t *testing.T) {
	rt := &fakeRuntime{items: []Item{
		Reasoning("Ad Triage Agent", "A"),
		MessageItem("Ad Triage Agent", "B"),
		ToolResult("Ad Triage Agent", "C"),
		Handoff("Ad Triage Agent", "Ad Copywriter"),
	}}
	w, sp := newTestWorkflow(t, rt)

	out, err := w.RunTurn(context.Background(), "hello").Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, out)
	assert.Same(t, sp.copywriter, w.Current())

	st := w.State()
	require.Len(t, st.History, 2)
	assert.Equal(t, RoleUser, st.History[0].Role)
	assert.Equal(t, "hello", st.History[0].Content)
}

func TestWorkflow_Filtering(t *testing.T) {
	rt := &fakeRuntime{items: []Item{
		Reasoning("Ad Triage Agent", ""),
		ToolResult("Ad Triage Agent", " \n\t"),
		MessageItem("Ad Triage Agent", ""),
		ToolResult("Ad Triage Agent", " saved "),
	}}
	w, _ := newTestWorkflow(t, rt)

	out, err := w.RunTurn(context.Background(), "hi").Collect()
	require.NoError(t, err)
	// Reasoning and messages pass through even when blank; tool results are trimmed.
	assert.Equal(t, []string{"", "", "saved"}, out)
}

func TestWorkflow_LastHandoffWins(t *testing.T) {
	rt := &fakeRuntime{items: []Item{
		Handoff("Ad Triage Agent", "Ad Copywriter"),
		MessageItem("Ad Copywriter", "on it"),
		Handoff("Ad Copywriter", "Image Prompt Generator"),
	}}
	w, sp := newTestWorkflow(t, rt)

	out, err := w.RunTurn(context.Background(), "hi").Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"on it"}, out)
	assert.Same(t, sp.prompter, w.Current())
}

func TestWorkflow_FailureLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		rt      *fakeRuntime
		wantErr error
	}{
		{
			name: "runtime error after items",
			rt: &fakeRuntime{
				items: []Item{MessageItem("Ad Triage Agent", "partial"), Handoff("Ad Triage Agent", "Ad Copywriter")},
				err:   Transient(context.DeadlineExceeded),
			},
			wantErr: context.DeadlineExceeded,
		},
		{
			name:    "unknown handoff target",
			rt:      &fakeRuntime{items: []Item{Handoff("Ad Triage Agent", "Ghost Writer")}},
			wantErr: ErrUnknownSpecialist,
		},
		{
			name: "handoff edge not registered",
			rt: &fakeRuntime{items: []Item{
				Handoff("Ad Triage Agent", "Ad Image Generator"),
				Handoff("Ad Image Generator", "Ad Copywriter"),
			}},
			wantErr: ErrForbiddenHandoff,
		},
		{
			name:    "handoff to self",
			rt:      &fakeRuntime{items: []Item{Handoff("Ad Triage Agent", "Ad Triage Agent")}},
			wantErr: ErrForbiddenHandoff,
		},
		{
			name: "truncated history",
			rt: &fakeRuntime{history: func(in RunInput) []Message {
				return in.History[:len(in.History)-1]
			}},
			wantErr: ErrHistoryTruncated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rt.mutate = func(c *SharedContext) { c.AdCopy = "leaked" }
			w, sp := newTestWorkflow(t, tt.rt)
			before := w.State()

			_, err := w.RunTurn(context.Background(), "hi").Collect()
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, before, w.State())
			assert.Same(t, sp.triage, w.Current())
			assert.Empty(t, w.State().Context.AdCopy)
		})
	}
}

func TestWorkflow_TurnInProgress(t *testing.T) {
	rt := &fakeRuntime{items: []Item{MessageItem("Ad Triage Agent", "one"), MessageItem("Ad Triage Agent", "two")}}
	w, _ := newTestWorkflow(t, rt)

	first := w.RunTurn(context.Background(), "hi")
	require.True(t, first.Next())

	second := w.RunTurn(context.Background(), "again")
	assert.False(t, second.Next())
	assert.ErrorIs(t, second.Err(), ErrTurnInProgress)
	assert.ErrorIs(t, w.Reset(), ErrTurnInProgress)

	out, err := first.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, out)
	require.NoError(t, w.Reset())
	assert.Empty(t, w.State().History)
}

func TestWorkflow_CloseAbandonsTurn(t *testing.T) {
	rt := &fakeRuntime{items: []Item{
		MessageItem("Ad Triage Agent", "one"),
		Handoff("Ad Triage Agent", "Ad Copywriter"),
		MessageItem("Ad Copywriter", "two"),
	}}
	w, sp := newTestWorkflow(t, rt)

	turn := w.RunTurn(context.Background(), "hi")
	require.True(t, turn.Next())
	assert.ErrorIs(t, w.Reset(), ErrTurnInProgress)
	require.NoError(t, turn.Close())
	require.NoError(t, turn.Close())
	assert.False(t, turn.Next())
	assert.ErrorIs(t, turn.Err(), ErrTurnClosed)
	assert.Empty(t, w.State().History)
	assert.Same(t, sp.triage, w.Current())

	// The session accepts the next turn.
	_, err := w.RunTurn(context.Background(), "hi again").Collect()
	require.NoError(t, err)
}

func TestWorkflow_HoldCommit(t *testing.T) {
	tests := []struct {
		name        string
		commit      bool
		wantErr     error
		wantCurrent string
		wantHistory int
	}{
		{name: "commit applies the turn", commit: true, wantCurrent: "Ad Copywriter", wantHistory: 2},
		{name: "close discards the turn", wantErr: ErrTurnClosed, wantCurrent: "Ad Triage Agent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reports []TurnReport
			rt := &fakeRuntime{items: []Item{MessageItem("Ad Triage Agent", "one"), Handoff("Ad Triage Agent", "Ad Copywriter")}}
			rt.mutate = func(c *SharedContext) { c.AdCopy = "Bean There" }
			w, _ := newTestWorkflow(t, rt, WithTurnHook(func(r TurnReport) { reports = append(reports, r) }))

			turn := w.RunTurn(context.Background(), "hi")
			turn.HoldCommit()
			assert.ErrorIs(t, turn.Commit(), ErrTurnNotFinished)
			out, err := turn.Collect()
			require.NoError(t, err)
			assert.Equal(t, []string{"one"}, out)

			// Drained but not yet applied.
			assert.Empty(t, w.State().History)
			assert.ErrorIs(t, w.Reset(), ErrTurnInProgress)
			assert.Empty(t, reports)

			if tt.commit {
				require.NoError(t, turn.Commit())
				require.NoError(t, turn.Commit())
				assert.Equal(t, "Bean There", w.State().Context.AdCopy)
			}
			require.NoError(t, turn.Close())
			assert.ErrorIs(t, turn.Err(), tt.wantErr)

			assert.Equal(t, tt.wantCurrent, w.Current().Name)
			assert.Len(t, w.State().History, tt.wantHistory)
			require.Len(t, reports, 1)
			assert.ErrorIs(t, reports[0].Err, tt.wantErr)
			require.NoError(t, w.Reset())
		})
	}
}

func TestWorkflow_HoldCommitFailedTurn(t *testing.T) {
	w, _ := newTestWorkflow(t, &fakeRuntime{err: errors.New("boom")})
	turn := w.RunTurn(context.Background(), "hi")
	turn.HoldCommit()
	_, err := turn.Collect()
	require.Error(t, err)
	assert.EqualError(t, turn.Commit(), "boom")
	require.NoError(t, w.Reset())
}

func TestWorkflow_CanceledContext(t *testing.T) {
	w, _ := newTestWorkflow(t, &fakeRuntime{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.RunTurn(ctx, "hi").Collect()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, w.State().History)
}

func TestWorkflow_TurnHook(t *testing.T) {
	var reports []TurnReport
	rt := &fakeRuntime{items: []Item{MessageItem("Ad Triage Agent", "hey"), Handoff("Ad Triage Agent", "Ad Image Generator")}}
	w, _ := newTestWorkflow(t, rt, WithTurnHook(func(r TurnReport) { reports = append(reports, r) }))

	_, err := w.RunTurn(context.Background(), "draw it").Collect()
	require.NoError(t, err)
	rt.err = errors.New("boom")
	_, err = w.RunTurn(context.Background(), "again").Collect()
	require.Error(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, "draw it", reports[0].Utterance)
	assert.Equal(t, "Ad Triage Agent", reports[0].From)
	assert.Equal(t, "Ad Image Generator", reports[0].To)
	assert.Equal(t, 1, reports[0].Fragments)
	assert.NoError(t, reports[0].Err)
	assert.Equal(t, "Ad Image Generator", reports[1].From)
	assert.Equal(t, "Ad Image Generator", reports[1].To)
	assert.Error(t, reports[1].Err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &fakeRuntime{})
	assert.Error(t, err)
	_, err = New(newTestRegistry(t, newTestSpecialists()), nil)
	assert.Error(t, err)
}

func TestWorkflow_ContextPersistsAcrossTurns(t *testing.T) {
	rt := &fakeRuntime{}
	rt.mutate = func(c *SharedContext) {
		if c.AdCopy == "" {
			c.AdCopy = "Fresh beans daily"
		}
	}
	w, _ := newTestWorkflow(t, rt)

	for i := 0; i < 4; i++ {
		_, err := w.RunTurn(context.Background(), "next").Collect()
		require.NoError(t, err)
	}
	require.Len(t, rt.seen, 4)
	assert.Empty(t, rt.seen[0].AdCopy)
	for _, c := range rt.seen[1:] {
		assert.Equal(t, "Fresh beans daily", c.AdCopy)
	}
}

func itemGen(names []string) *rapid.Generator[Item] {
	return rapid.Custom(func(t *rapid.T) Item {
		who := rapid.SampledFrom(names).Draw(t, "specialist")
		text := rapid.SampledFrom([]string{"", " ", "\n", "hello", "saved to ad.md"}).Draw(t, "text")
		switch rapid.IntRange(0, 3).Draw(t, "kind") {
		case 0:
			return Reasoning(who, text)
		case 1:
			return MessageItem(who, text)
		case 2:
			return ToolResult(who, text)
		default:
			return Handoff(who, rapid.SampledFrom(names).Draw(t, "target"))
		}
	})
}

func expectedFragments(items []Item) []string {
	var out []string
	for _, it := range items {
		switch it.Kind {
		case ItemHandoff:
			continue
		case ItemToolResult:
			if text := strings.TrimSpace(it.Text); text != "" {
				out = append(out, text)
			}
			continue
		}
		out = append(out, it.Text)
	}
	return out
}

func TestWorkflow_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sp := newTestSpecialists()
		reg := newTestRegistry(t, sp)
		fake := &fakeRuntime{}
		w, err := New(reg, fake)
		require.NoError(rt, err)
		gen := itemGen(reg.Names())

		turns := rapid.IntRange(1, 6).Draw(rt, "turns")
		for i := 0; i < turns; i++ {
			fake.items = rapid.SliceOfN(gen, 0, 8).Draw(rt, "items")
			fake.err = nil
			if rapid.Bool().Draw(rt, "fail") {
				fake.err = errors.New("runtime failure")
			}
			before := w.State()

			out, err := w.RunTurn(context.Background(), "utterance").Collect()
			after := w.State()
			if err != nil {
				assert.Equal(rt, before, after)
				continue
			}
			active := before.Current
			for _, it := range fake.items {
				if it.Kind == ItemHandoff {
					assert.True(rt, reg.CanHandoff(active.Name, it.Target))
					active, _ = reg.Get(it.Target)
				}
			}
			assert.Same(rt, active, after.Current)
			assert.GreaterOrEqual(rt, len(after.History), len(before.History)+1)
			assert.True(rt, reg.Contains(after.Current))
			assert.Equal(rt, expectedFragments(fake.items), out)
		}
	})
}

// The following drive the full Runner with a scripted model through the
// conversation a user would have with the assistant.

type scenario struct {
	w     *Workflow
	sp    testSpecialists
	model *ScriptedModel
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	sp := newTestSpecialists()
	sp.copywriter.Tools = []Tool{MustNewFuncTool("save_ad_copy_to_markdown", "save",
		func(_ context.Context, tc *ToolContext, args struct {
			Title string `json:"title"`
		}) (string, error) {
			tc.Shared.AdCopy = args.Title
			return "Ad copy successfully saved to /tmp/ad.md", nil
		})}
	sp.imager.Tools = []Tool{MustNewFuncTool("generate_ad_image", "draw",
		func(context.Context, *ToolContext, struct{}) (string, error) {
			return "", Transient(errors.New("image endpoint timeout"))
		})}
	model := NewScriptedModel()
	runner, err := NewRunner(model)
	require.NoError(t, err)
	w, err := New(newTestRegistry(t, sp), runner)
	require.NoError(t, err)
	return &scenario{w: w, sp: sp, model: model}
}

func TestScenario_TriageHandsOffToCopywriter(t *testing.T) {
	s := newScenario(t)
	s.model.Push(
		ScriptedStep{Specialist: "Ad Triage Agent", Response: StepResponse{
			ToolCalls: []ToolCall{call("c1", "transfer_to_ad_copywriter", "{}")},
		}},
		ScriptedStep{Specialist: "Ad Copywriter", Response: StepResponse{Text: "What is the coffee shop called?"}},
	)

	out, err := s.w.RunTurn(context.Background(), "I want an ad for a coffee shop.").Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"What is the coffee shop called?"}, out)
	assert.Same(t, s.sp.copywriter, s.w.Current())
	assert.Empty(t, s.w.State().Context.AdCopy)
}

func TestScenario_CopywriterSavesAndHandsOff(t *testing.T) {
	s := newScenario(t)
	s.model.Push(
		ScriptedStep{Response: StepResponse{ToolCalls: []ToolCall{call("c1", "transfer_to_ad_copywriter", "{}")}}},
		ScriptedStep{Response: StepResponse{Text: "What is the coffee shop called?"}},
	)
	_, err := s.w.RunTurn(context.Background(), "I want an ad for a coffee shop.").Collect()
	require.NoError(t, err)

	s.model.Push(
		ScriptedStep{Specialist: "Ad Copywriter", Response: StepResponse{ToolCalls: []ToolCall{
			call("c2", "save_ad_copy_to_markdown", `{"title":"Bean There"}`),
			call("c3", "transfer_to_image_prompt_generator", "{}"),
		}}},
		ScriptedStep{Specialist: "Image Prompt Generator", Response: StepResponse{Text: "Your copy is saved. Shall I draft an image prompt?"}},
	)
	out, err := s.w.RunTurn(context.Background(), "It is called Bean There.").Collect()
	require.NoError(t, err)

	assert.Equal(t, "Bean There", s.w.State().Context.AdCopy)
	assert.Same(t, s.sp.prompter, s.w.Current())
	assert.Contains(t, out, "Your copy is saved. Shall I draft an image prompt?")
	for _, f := range out {
		assert.NotContains(t, f, `"assistant"`)
	}
}

func TestScenario_ImageTimeoutFailsTurn(t *testing.T) {
	s := newScenario(t)
	s.model.Push(
		ScriptedStep{Response: StepResponse{ToolCalls: []ToolCall{call("c1", "transfer_to_ad_image_generator", "{}")}}},
		ScriptedStep{Response: StepResponse{Text: "Ready to draw."}},
	)
	_, err := s.w.RunTurn(context.Background(), "make the image").Collect()
	require.NoError(t, err)
	before := s.w.State()

	s.model.Push(ScriptedStep{Specialist: "Ad Image Generator", Response: StepResponse{
		Text:      "Generating now.",
		ToolCalls: []ToolCall{call("c2", "generate_ad_image", "{}")},
	}})
	turn := s.w.RunTurn(context.Background(), "go ahead")
	out, err := turn.Collect()
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	// Fragments already yielded stay with the caller.
	assert.Equal(t, []string{"Generating now."}, out)
	assert.Equal(t, before, s.w.State())
	assert.Same(t, s.sp.imager, s.w.Current())
}

func TestScenario_BlankToolResultOnly(t *testing.T) {
	rt := &fakeRuntime{items: []Item{ToolResult("Ad Triage Agent", "   ")}}
	w, _ := newTestWorkflow(t, rt)

	out, err := w.RunTurn(context.Background(), "hello?").Collect()
	require.NoError(t, err)
	assert.Empty(t, out)
	h := w.State().History
	require.NotEmpty(t, h)
	assert.Equal(t, "hello?", h[0].Content)
}

func TestScenario_LaterSpecialistSeesEarlierAdCopy(t *testing.T) {
	s := newScenario(t)
	s.model.Push(
		ScriptedStep{Specialist: "Ad Triage Agent", Response: StepResponse{ToolCalls: []ToolCall{call("c1", "transfer_to_ad_copywriter", "{}")}}},
		ScriptedStep{Specialist: "Ad Copywriter", Response: StepResponse{ToolCalls: []ToolCall{call("c2", "save_ad_copy_to_markdown", `{"title":"Bean There"}`)}}},
		ScriptedStep{Specialist: "Ad Copywriter", Response: StepResponse{Text: "Saved your copy."}},
	)
	_, err := s.w.RunTurn(context.Background(), "Write copy for Bean There.").Collect()
	require.NoError(t, err)
	assert.Empty(t, s.model.Requests[0].Context.AdCopy)

	s.model.Push(
		ScriptedStep{Specialist: "Ad Copywriter", Response: StepResponse{ToolCalls: []ToolCall{call("c3", "transfer_to_ad_triage_agent", "{}")}}},
		ScriptedStep{Specialist: "Ad Triage Agent", Response: StepResponse{ToolCalls: []ToolCall{call("c4", "transfer_to_ad_image_generator", "{}")}}},
		ScriptedStep{Specialist: "Ad Image Generator", Response: StepResponse{Text: "Which style should the image have?"}},
	)
	out, err := s.w.RunTurn(context.Background(), "Now make an image for it.").Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"Which style should the image have?"}, out)
	assert.Same(t, s.sp.imager, s.w.Current())

	last := s.model.Requests[len(s.model.Requests)-1]
	assert.Same(t, s.sp.imager, last.Specialist)
	assert.Equal(t, "Bean There", last.Context.AdCopy)
}

func TestScenario_InvalidToolArgumentsReportedToModel(t *testing.T) {
	s := newScenario(t)
	s.model.Push(
		ScriptedStep{Response: StepResponse{ToolCalls: []ToolCall{call("c1", "transfer_to_ad_copywriter", "{}")}}},
		ScriptedStep{Response: StepResponse{ToolCalls: []ToolCall{call("c2", "save_ad_copy_to_markdown", `{"headline":"Bean There"}`)}}},
		ScriptedStep{Response: StepResponse{Text: "Let me try that again."}},
	)
	out, err := s.w.RunTurn(context.Background(), "Write copy for Bean There.").Collect()
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.True(t, strings.HasPrefix(out[0], "Error: "), out[0])
	assert.Equal(t, "Let me try that again.", out[1])
	assert.Empty(t, s.w.State().Context.AdCopy)
	last := s.model.Requests[2].History
	assert.Equal(t, out[0], last[len(last)-1].Content)
}
