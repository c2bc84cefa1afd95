package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the whole application configuration.
type Config struct {
	LLM    LLMConfig    `yaml:"llm"`
	Voice  VoiceConfig  `yaml:"voice"`
	Image  ImageConfig  `yaml:"image"`
	AdCopy AdCopyConfig `yaml:"adcopy"`
	Search SearchConfig `yaml:"search"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// LLMConfig 选择驱动 specialist 的模型。
type LLMConfig struct {
	// Provider is openai, deepseek or mock.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	MaxSteps int    `yaml:"max_steps"`
}

type VoiceConfig struct {
	STTModel   string `yaml:"stt_model"`
	TTSModel   string `yaml:"tts_model"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	// APIKey defaults to llm.api_key.
	APIKey string `yaml:"api_key"`
}

type ImageConfig struct {
	Model     string `yaml:"model"`
	Size      string `yaml:"size"`
	OutputDir string `yaml:"output_dir"`
	// APIKey defaults to llm.api_key.
	APIKey string `yaml:"api_key"`
}

type AdCopyConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// SearchConfig enables the copywriter's web_search tool when APIKey is set.
type SearchConfig struct {
	APIKey    string  `yaml:"api_key"`
	Endpoint  string  `yaml:"endpoint"`
	RateLimit float64 `yaml:"rate_limit"`
}

type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	TurnTimeout time.Duration `yaml:"turn_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when a field is not set.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			MaxSteps: 10,
		},
		Voice: VoiceConfig{
			STTModel:   "whisper-1",
			TTSModel:   "tts-1",
			Voice:      "echo",
			SampleRate: 24000,
		},
		Image: ImageConfig{
			Model:     "gpt-image-1",
			Size:      "1024x1024",
			OutputDir: "generated_images",
		},
		AdCopy: AdCopyConfig{OutputDir: "."},
		Search: SearchConfig{
			Endpoint:  "https://google.serper.dev/search",
			RateLimit: 2,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			TurnTimeout: 60 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads YAML from path over the defaults. ${VAR} references are
// expanded from the environment; an empty path loads defaults only.
// OPENAI_API_KEY and SERPER_API_KEY fill keys left empty. Overrides run
// last, before validation.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.inherit()
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Search.APIKey == "" {
		c.Search.APIKey = os.Getenv("SERPER_API_KEY")
	}
}

func (c *Config) inherit() {
	if c.Voice.APIKey == "" {
		c.Voice.APIKey = c.LLM.APIKey
	}
	if c.Image.APIKey == "" {
		c.Image.APIKey = c.LLM.APIKey
	}
}

// UseMock switches the model to the offline scripted provider.
func UseMock(c *Config) {
	c.LLM.Provider = "mock"
}

func (c *Config) Validate() error {
	var errs []string
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	switch c.LLM.Provider {
	case "openai", "deepseek":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Sprintf("%s api key missing; provide llm.api_key or OPENAI_API_KEY", c.LLM.Provider))
		}
		if c.LLM.Model == "" {
			errs = append(errs, "llm.model is required")
		}
		if c.LLM.Provider == "deepseek" && c.LLM.BaseURL == "" {
			errs = append(errs, "deepseek requires llm.base_url (e.g. https://api.deepseek.com/v1)")
		}
	case "mock":
	default:
		errs = append(errs, fmt.Sprintf("unsupported llm provider: %q", c.LLM.Provider))
	}
	if c.LLM.MaxSteps <= 0 {
		errs = append(errs, "llm.max_steps must be positive")
	}
	if c.Voice.SampleRate <= 0 {
		errs = append(errs, "voice.sample_rate must be positive")
	}
	if c.Server.TurnTimeout <= 0 {
		errs = append(errs, "server.turn_timeout must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return errors.New("invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}
