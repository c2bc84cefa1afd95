package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"voice_ad_assistant/config"
)

var (
	configPath string
	logLevel   string
	useMock    bool
)

var rootCmd = &cobra.Command{
	Use:   "voice-ad-assistant",
	Short: "Voice-driven ad creation assistant",
	Long: `A team of ad specialists (triage, copywriter, image prompt generator and
image generator) that talks a user through creating an ad, by voice or text.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults plus environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides log.level")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "use the offline scripted model instead of an LLM provider")
	rootCmd.AddCommand(serveCmd, chatCmd, voiceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the persistent flags on top of the config file.
func loadConfig() (*config.Config, error) {
	var overrides []func(*config.Config)
	if useMock {
		overrides = append(overrides, config.UseMock)
	}
	if logLevel != "" {
		overrides = append(overrides, func(c *config.Config) { c.Log.Level = logLevel })
	}
	return config.Load(configPath, overrides...)
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "json" {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format != "json",
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "json" {
		zapConfig.Encoding = "json"
	}
	return zapConfig.Build()
}
