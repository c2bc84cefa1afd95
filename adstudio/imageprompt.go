package adstudio

import (
	"context"
	"fmt"

	"voice_ad_assistant/workflow"
)

// ImagePrompt wraps an ad concept in the fixed advertising-image template.
func ImagePrompt(concept string) string {
	return fmt.Sprintf("Create an advertising image based on the following concept: '%s'. "+
		"Ensure the image is engaging, high-quality, and directly relevant to the core message. "+
		"Avoid text in the image.", concept)
}

type imagePromptArgs struct {
	FullAdConcept string `json:"full_ad_concept" jsonschema:"the complete ad concept including product, audience, tone and key message"`
}

// NewImagePromptTool returns generate_image_prompt, which stores the prompt
// in the shared context.
func NewImagePromptTool() workflow.Tool {
	return workflow.MustNewFuncTool(
		"generate_image_prompt",
		"Generate an image prompt for ad generation based on a full ad concept string.",
		func(_ context.Context, tc *workflow.ToolContext, args imagePromptArgs) (string, error) {
			prompt := ImagePrompt(args.FullAdConcept)
			if tc.Shared != nil {
				tc.Shared.ImagePrompt = prompt
			}
			return prompt, nil
		})
}
