package adstudio

import (
	"errors"

	"voice_ad_assistant/workflow"
)

const (
	TriageName          = "Ad Triage Agent"
	CopywriterName      = "Ad Copywriter"
	PromptGeneratorName = "Image Prompt Generator"
	ImageGeneratorName  = "Ad Image Generator"
)

// Studio bundles the tool back ends the specialists use. Search is optional.
type Studio struct {
	Copy   *CopyWriter
	Images *ImageStudio
	Search *Searcher
}

// NewRegistry builds the ad team: triage routes to every worker and every
// worker can hand back to triage.
func NewRegistry(s Studio) (*workflow.Registry, error) {
	if s.Copy == nil || s.Images == nil {
		return nil, errors.New("ad studio requires a copy writer and an image studio")
	}

	copyTools := []workflow.Tool{s.Copy.Tool()}
	if s.Search != nil {
		copyTools = append(copyTools, s.Search.Tool())
	}

	triage := &workflow.Specialist{
		Name:               TriageName,
		HandoffDescription: "Routes user requests to the correct specialist.",
		Instructions:       BuildTriageInstructions(),
	}
	copywriter := &workflow.Specialist{
		Name:               CopywriterName,
		HandoffDescription: "Writes or rewrites ad copy and saves it to Markdown.",
		Instructions:       BuildCopywriterInstructions(s.Search != nil),
		Tools:              copyTools,
	}
	prompter := &workflow.Specialist{
		Name:               PromptGeneratorName,
		HandoffDescription: "Creates an image prompt from the ad copy.",
		Instructions:       BuildPromptGeneratorInstructions(),
		Tools:              []workflow.Tool{NewImagePromptTool()},
	}
	imager := &workflow.Specialist{
		Name:               ImageGeneratorName,
		HandoffDescription: "Generates the final image from an image prompt.",
		Instructions:       BuildImageGeneratorInstructions(),
		Tools:              []workflow.Tool{s.Images.Tool()},
	}

	return workflow.NewRegistryBuilder(triage).
		Register(triage, copywriter, prompter, imager).
		Register(copywriter, triage).
		Register(prompter, triage).
		Register(imager, triage).
		Build()
}
