package voice

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voice_ad_assistant/workflow"
)

// ApologyText is spoken when a turn fails; the session state is unchanged
// so the user can simply repeat themselves.
const ApologyText = "Sorry, something went wrong on my side. Could you say that again?"

// TurnResult summarises one spoken exchange.
type TurnResult struct {
	Transcript string
	Fragments  []string
	Specialist string
}

// Pipeline connects speech recognition, the workflow and speech synthesis.
// Fragments are synthesized while the workflow is still producing the next
// ones.
type Pipeline struct {
	stt    Transcriber
	tts    Synthesizer
	wf     *workflow.Workflow
	logger *zap.Logger
}

func NewPipeline(stt Transcriber, tts Synthesizer, wf *workflow.Workflow, logger *zap.Logger) (*Pipeline, error) {
	if stt == nil || tts == nil || wf == nil {
		return nil, errors.New("pipeline requires a transcriber, a synthesizer and a workflow")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{stt: stt, tts: tts, wf: wf, logger: logger.With(zap.String("component", "voice"))}, nil
}

// Greet speaks text without touching the session.
func (p *Pipeline) Greet(ctx context.Context, text string, sink io.Writer) error {
	return p.tts.Synthesize(ctx, text, sink)
}

// RunTurn transcribes audio, runs one workflow turn and speaks every
// fragment into sink in order. The turn is committed only once every
// fragment has been spoken; if synthesis fails the session is left as it was.
// An empty transcript returns ErrEmptyTranscript without running a turn.
func (p *Pipeline) RunTurn(ctx context.Context, audio io.Reader, sink io.Writer) (TurnResult, error) {
	text, err := p.stt.Transcribe(ctx, audio)
	if err != nil {
		return TurnResult{}, err
	}
	res := TurnResult{Transcript: text}
	if text == "" {
		return res, ErrEmptyTranscript
	}
	p.logger.Info("user said", zap.String("text", text))

	fragments := make(chan string)
	g, gctx := errgroup.WithContext(ctx)
	turn := p.wf.RunTurn(gctx, text)
	// 语音全部播完才提交本轮状态。
	turn.HoldCommit()

	g.Go(func() error {
		defer close(fragments)
		for turn.Next() {
			f := turn.Current()
			res.Fragments = append(res.Fragments, f)
			select {
			case fragments <- f:
			case <-gctx.Done():
				turn.Close()
				return gctx.Err()
			}
		}
		return turn.Err()
	})
	g.Go(func() error {
		for f := range fragments {
			if strings.TrimSpace(f) == "" {
				continue
			}
			if err := p.tts.Synthesize(gctx, f, sink); err != nil {
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	if err == nil {
		err = turn.Commit()
	} else {
		_ = turn.Close()
	}
	res.Specialist = p.wf.Current().Name
	if err != nil {
		p.logger.Warn("voice turn failed", zap.Error(err))
		if ctx.Err() == nil {
			if aerr := p.tts.Synthesize(ctx, ApologyText, sink); aerr != nil {
				p.logger.Warn("apology not spoken", zap.Error(aerr))
			}
		}
		return res, err
	}
	return res, nil
}
