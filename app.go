package main

import (
	"fmt"

	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"voice_ad_assistant/adstudio"
	"voice_ad_assistant/config"
	"voice_ad_assistant/workflow"
)

// app holds what every session shares: the model, the tool back ends and
// the metrics.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	model   workflow.Model
	studio  adstudio.Studio
	metrics *workflow.Metrics
}

func newApp(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*app, error) {
	model, err := buildModel(cfg.LLM)
	if err != nil {
		return nil, err
	}
	studio, err := buildStudio(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		model:   model,
		studio:  studio,
		metrics: workflow.NewMetrics(reg),
	}, nil
}

func buildModel(cfg config.LLMConfig) (workflow.Model, error) {
	settings := &workflow.LLMSettings{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	}
	switch cfg.Provider {
	case "openai":
		return workflow.NewOpenAIModelFromConfig(settings)
	case "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url。
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return workflow.NewOpenAIModelFromConfig(settings)
	case "mock":
		return workflow.NewScriptedModel(), nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

func buildStudio(cfg *config.Config, logger *zap.Logger) (adstudio.Studio, error) {
	var gen adstudio.ImageGenerator
	if cfg.Image.APIKey != "" {
		gen = adstudio.NewOpenAIImages(cfg.Image.Model, cfg.Image.Size, option.WithAPIKey(cfg.Image.APIKey))
	}
	studio := adstudio.Studio{
		Copy:   adstudio.NewCopyWriter(cfg.AdCopy.OutputDir, logger),
		Images: adstudio.NewImageStudio(gen, cfg.Image.OutputDir, logger),
	}
	if cfg.Search.APIKey != "" {
		searcher, err := adstudio.NewSearcher(cfg.Search.APIKey,
			adstudio.WithSearchEndpoint(cfg.Search.Endpoint),
			adstudio.WithSearchRate(cfg.Search.RateLimit, 2),
			adstudio.WithSearchLogger(logger),
		)
		if err != nil {
			return adstudio.Studio{}, fmt.Errorf("init search: %w", err)
		}
		studio.Search = searcher
	}
	return studio, nil
}

// newWorkflow builds a fresh session over the shared back ends.
func (a *app) newWorkflow() (*workflow.Workflow, error) {
	registry, err := adstudio.NewRegistry(a.studio)
	if err != nil {
		return nil, err
	}
	runner, err := workflow.NewRunner(a.model,
		workflow.WithMaxSteps(a.cfg.LLM.MaxSteps),
		workflow.WithRunnerLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	return workflow.New(registry, runner,
		workflow.WithLogger(a.logger),
		workflow.WithTurnHook(a.metrics.Observe),
	)
}
