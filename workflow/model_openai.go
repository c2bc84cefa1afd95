package workflow

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

var _ Model = (*OpenAIModel)(nil)

// OpenAIModel implements Model using the official openai-go SDK (chat completions with tools).
type OpenAIModel struct {
	Model  string
	client openai.Client
}

func NewOpenAIModelFromConfig(cfg *LLMSettings, extra ...option.RequestOption) (*OpenAIModel, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide llm.api_key")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)
	return &OpenAIModel{Model: cfg.Model, client: openai.NewClient(opts...)}, nil
}

func (o *OpenAIModel) Step(ctx context.Context, req StepRequest) (StepResponse, error) {
	model := o.Model
	if req.Specialist.Model != "" {
		model = req.Specialist.Model
	}

	system := req.Specialist.Instructions
	if brief := req.Context.Brief(); brief != "" {
		system += "\n\n" + brief
	}
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
	}
	for _, h := range req.History {
		msgs = append(msgs, convMessage(h))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		})
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return StepResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return StepResponse{}, errors.New("openai: empty choices")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return StepResponse{}, fmt.Errorf("openai: refused: %s", msg.Refusal)
	}
	out := StepResponse{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func convMessage(h Message) openai.ChatCompletionMessageParamUnion {
	switch h.Role {
	case RoleTool:
		return openai.ToolMessage(h.Content, h.ToolCallID)
	case RoleAssistant:
		if len(h.ToolCalls) == 0 {
			return openai.ChatCompletionMessageParamOfAssistant(h.Content)
		}
		mp := openai.ChatCompletionAssistantMessageParam{}
		if h.Content != "" {
			mp.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: param.NewOpt(h.Content),
			}
		}
		for _, tc := range h.ToolCalls {
			mp.ToolCalls = append(mp.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &mp}
	default:
		return openai.UserMessage(h.Content)
	}
}
