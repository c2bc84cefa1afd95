package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voice_ad_assistant/adstudio"
	"voice_ad_assistant/server"
	"voice_ad_assistant/voice"
)

var (
	listenAddr string
	outDir     string
)

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides server.addr)")
	voiceCmd.Flags().StringVar(&outDir, "out", "voice_out", "directory for synthesized replies")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP/WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := initLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a, err := newApp(cfg, logger, reg)
		if err != nil {
			return err
		}
		srv, err := server.New(server.Options{
			NewWorkflow: a.newWorkflow,
			TurnTimeout: cfg.Server.TurnTimeout,
			Gatherer:    reg,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		addr := cfg.Server.Addr
		if listenAddr != "" {
			addr = listenAddr
		}
		httpServer := &http.Server{
			Addr:              addr,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		errCh := make(chan error, 1)
		go func() {
			logger.Info("server listening", zap.String("addr", addr), zap.String("provider", cfg.LLM.Provider))
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the ad team in the terminal",
	Long:  "Reads one utterance per line from stdin. /reset starts over, /quit exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := initLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync()

		a, err := newApp(cfg, logger, nil)
		if err != nil {
			return err
		}
		wf, err := a.newWorkflow()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "[%s] %s\n", wf.Current().Name, adstudio.Greeting)

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "/quit":
				return nil
			case "/reset":
				if err := wf.Reset(); err != nil {
					fmt.Fprintln(out, "error:", err)
					continue
				}
				fmt.Fprintf(out, "[%s] %s\n", wf.Current().Name, adstudio.Greeting)
				continue
			}

			before := wf.Current().Name
			turnCtx, cancel := context.WithTimeout(ctx, cfg.Server.TurnTimeout)
			turn := wf.RunTurn(turnCtx, line)
			for turn.Next() {
				fmt.Fprintln(out, turn.Current())
			}
			cancel()
			if err := turn.Err(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintln(out, "error:", err)
				continue
			}
			if now := wf.Current().Name; now != before {
				fmt.Fprintf(out, "(now talking to %s)\n", now)
			}
		}
	},
}

var voiceCmd = &cobra.Command{
	Use:   "voice <utterance>...",
	Short: "Run a spoken conversation from recorded utterances",
	Long: `Each argument is one recorded user utterance (WAV, or plain text with --mock).
The greeting and every reply are written to --out as 24 kHz PCM WAV files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := initLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync()

		a, err := newApp(cfg, logger, nil)
		if err != nil {
			return err
		}
		wf, err := a.newWorkflow()
		if err != nil {
			return err
		}
		stt, tts, ext := buildSpeech(cfg.LLM.Provider, cfg.Voice.STTModel, cfg.Voice.TTSModel, cfg.Voice.Voice, cfg.Voice.APIKey)
		pipe, err := voice.NewPipeline(stt, tts, wf, logger)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		format := voice.Format{SampleRate: cfg.Voice.SampleRate}
		save := func(name string, audio []byte) error {
			path := filepath.Join(outDir, name+ext)
			if ext == ".wav" {
				return format.SaveWAV(path, audio)
			}
			return os.WriteFile(path, audio, 0o644)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		out := cmd.OutOrStdout()

		var greeting bytes.Buffer
		if err := pipe.Greet(ctx, adstudio.Greeting, &greeting); err != nil {
			return fmt.Errorf("greeting: %w", err)
		}
		if err := save("greeting", greeting.Bytes()); err != nil {
			return err
		}

		for i, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			var reply bytes.Buffer
			turnCtx, cancel := context.WithTimeout(ctx, cfg.Server.TurnTimeout)
			res, err := pipe.RunTurn(turnCtx, f, &reply)
			cancel()
			f.Close()
			switch {
			case errors.Is(err, voice.ErrEmptyTranscript):
				fmt.Fprintf(out, "%s: nothing heard, skipped\n", path)
				continue
			case err != nil && ctx.Err() != nil:
				return ctx.Err()
			case err != nil:
				fmt.Fprintf(out, "%s: turn failed: %v\n", path, err)
			}
			name := fmt.Sprintf("reply_%02d", i+1)
			if err := save(name, reply.Bytes()); err != nil {
				return err
			}
			fmt.Fprintf(out, "you: %s\n", res.Transcript)
			for _, frag := range res.Fragments {
				fmt.Fprintf(out, "[%s] %s\n", res.Specialist, frag)
			}
			if ext == ".wav" {
				fmt.Fprintf(out, "  -> %s (%s)\n", filepath.Join(outDir, name+ext), format.Duration(reply.Len()))
			} else {
				fmt.Fprintf(out, "  -> %s\n", filepath.Join(outDir, name+ext))
			}
		}
		return nil
	},
}

// buildSpeech picks the speech back ends. The mock provider reads and writes
// plain text so the whole loop runs offline.
func buildSpeech(provider, sttModel, ttsModel, voiceName, apiKey string) (voice.Transcriber, voice.Synthesizer, string) {
	if provider == "mock" {
		return voice.TextTranscriber{}, voice.TextSynthesizer{}, ".txt"
	}
	return voice.NewOpenAITranscriber(sttModel, option.WithAPIKey(apiKey)),
		voice.NewOpenAISynthesizer(ttsModel, voiceName, option.WithAPIKey(apiKey)),
		".wav"
}
