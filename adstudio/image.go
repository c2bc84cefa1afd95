package adstudio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"go.uber.org/zap"

	"voice_ad_assistant/workflow"
)

const (
	DefaultImageModel = "gpt-image-1"
	DefaultImageSize  = "1024x1024"
	DefaultImageDir   = "generated_images"
)

// ImageGenerator produces base64 image data for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ImageError is a non-recoverable image failure reported back to the model
// as "Error: <Kind> - <message>".
type ImageError struct {
	Kind string
	Err  error
}

func (e *ImageError) Error() string { return e.Kind + " - " + e.Err.Error() }
func (e *ImageError) Unwrap() error { return e.Err }

var errNoImageData = errors.New("no image data (b64_json) received from OpenAI API")

// OpenAIImages calls the images endpoint through openai-go.
type OpenAIImages struct {
	client openai.Client
	model  string
	size   string
}

func NewOpenAIImages(model, size string, opts ...option.RequestOption) *OpenAIImages {
	if model == "" {
		model = DefaultImageModel
	}
	if size == "" {
		size = DefaultImageSize
	}
	return &OpenAIImages{client: openai.NewClient(opts...), model: model, size: size}
}

func (o *OpenAIImages) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(o.model),
		N:      param.NewOpt[int64](1),
		Size:   openai.ImageGenerateParamsSize(o.size),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", errNoImageData
	}
	return resp.Data[0].B64JSON, nil
}

// ImageStudio turns prompts into PNG files on disk.
type ImageStudio struct {
	gen    ImageGenerator
	dir    string
	logger *zap.Logger
}

func NewImageStudio(gen ImageGenerator, dir string, logger *zap.Logger) *ImageStudio {
	if dir == "" {
		dir = DefaultImageDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageStudio{gen: gen, dir: dir, logger: logger.With(zap.String("component", "images"))}
}

// Create generates an image and saves it as ad_image_<uuid>.png, returning the
// absolute path. Transient API failures are returned as is; everything else
// is an *ImageError.
func (s *ImageStudio) Create(ctx context.Context, prompt string) (string, error) {
	if s.gen == nil {
		return "", &ImageError{Kind: "ClientInitialization", Err: errors.New("image client is not configured")}
	}
	b64, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		if workflow.IsTransient(err) {
			return "", fmt.Errorf("generate image: %w", err)
		}
		return "", classifyImageError(err)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", &ImageError{Kind: "B64DecodeError", Err: fmt.Errorf("failed to decode base64 image data: %w", err)}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &ImageError{Kind: "FileIOError", Err: err}
	}
	path, err := filepath.Abs(filepath.Join(s.dir, "ad_image_"+uuid.NewString()+".png"))
	if err != nil {
		return "", &ImageError{Kind: "FileIOError", Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &ImageError{Kind: "FileIOError", Err: fmt.Errorf("failed to save image to disk: %w", err)}
	}
	s.logger.Info("ad image saved", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

func classifyImageError(err error) error {
	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr):
		return &ImageError{Kind: fmt.Sprintf("APIError_HTTP%d", apiErr.StatusCode), Err: err}
	case errors.Is(err, errNoImageData):
		return &ImageError{Kind: "NoB64JSONData", Err: err}
	default:
		return &ImageError{Kind: "Unexpected", Err: err}
	}
}

type adImageArgs struct {
	ImagePrompt string `json:"image_prompt,omitempty" jsonschema:"the full image prompt to render; defaults to the prompt already generated in this session"`
}

var errNoImagePrompt = errors.New("no image prompt provided and none generated yet")

// Tool exposes Create as generate_ad_image.
func (s *ImageStudio) Tool() workflow.Tool {
	return workflow.MustNewFuncTool(
		"generate_ad_image",
		"Generates an ad image from an image prompt, saves it locally and returns the local file path.",
		func(ctx context.Context, tc *workflow.ToolContext, args adImageArgs) (string, error) {
			prompt := strings.TrimSpace(args.ImagePrompt)
			if prompt == "" && tc.Shared != nil {
				prompt = tc.Shared.ImagePrompt
			}
			if prompt == "" {
				return "", errNoImagePrompt
			}
			path, err := s.Create(ctx, prompt)
			if err != nil {
				s.logger.Warn("image generation failed", zap.Error(err))
				return "", err
			}
			tc.Artifacts.Add(path)
			return path, nil
		})
}
