package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultSTTModel = openai.AudioModelWhisper1
	DefaultTTSModel = openai.SpeechModelTTS1
	DefaultVoice    = "echo"
)

// Transcriber turns one utterance of recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
}

// Synthesizer speaks text, writing 16-bit mono PCM to w.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, w io.Writer) error
}

// OpenAITranscriber uses the audio transcription endpoint. Input is WAV.
type OpenAITranscriber struct {
	client openai.Client
	model  string
}

func NewOpenAITranscriber(model string, opts ...option.RequestOption) *OpenAITranscriber {
	if model == "" {
		model = DefaultSTTModel
	}
	return &OpenAITranscriber{client: openai.NewClient(opts...), model: model}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, "utterance.wav", "audio/wav"),
		Model: t.model,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// OpenAISynthesizer uses the speech endpoint with raw PCM output (24kHz).
type OpenAISynthesizer struct {
	client openai.Client
	model  string
	voice  string
}

func NewOpenAISynthesizer(model, voice string, opts ...option.RequestOption) *OpenAISynthesizer {
	if model == "" {
		model = DefaultTTSModel
	}
	if voice == "" {
		voice = DefaultVoice
	}
	return &OpenAISynthesizer{client: openai.NewClient(opts...), model: model, voice: voice}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, w io.Writer) error {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          s.model,
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("synthesize: read audio: %w", err)
	}
	return nil
}

// TextTranscriber treats the input as an already transcribed utterance.
type TextTranscriber struct{}

func (TextTranscriber) Transcribe(_ context.Context, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// TextSynthesizer writes each fragment as a line of text. Used by the text
// front ends and in tests.
type TextSynthesizer struct{}

func (TextSynthesizer) Synthesize(_ context.Context, text string, w io.Writer) error {
	_, err := io.WriteString(w, text+"\n")
	return err
}

var ErrEmptyTranscript = errors.New("voice: nothing was heard")
