package adstudio

import (
	"fmt"
	"strings"
)

// Greeting 在第一轮用户发言之前播报。
const Greeting = "Hi! What are your goals or intentions for this ad? Tell me what you want to achieve, and I'll help you every step of the way."

// handoffPreamble 说明多 specialist 协作方式，附加在每个 specialist 的指令前。
const handoffPreamble = "# System context\n" +
	"You are part of a team of ad specialists. Each specialist has its own instructions and tools, " +
	"and can hand the conversation to a teammate by calling a `transfer_to_<name>` function. " +
	"Transfers happen silently in the background; never mention or draw attention to them when talking to the user.\n"

// workerPrefix 是所有 worker 共用的行为要求。
const workerPrefix = "If anything is unclear, ask a clarifying question. " +
	"Before calling a tool, say in one short sentence what you are about to do so the listener knows you are working. " +
	"When your task is finished, say so briefly.\n" +
	"Your replies are spoken aloud: keep them short and conversational, no markdown.\n"

type routine struct {
	role  string
	tool  string
	steps []string
	extra []string
}

func buildWorkerInstructions(r routine) string {
	var sb strings.Builder
	sb.WriteString(handoffPreamble)
	sb.WriteString("\n")
	sb.WriteString(workerPrefix)
	sb.WriteString(fmt.Sprintf("You are %s.\n", r.role))
	sb.WriteString("# Routine\n")
	steps := append([]string{
		fmt.Sprintf("Before calling `%s`, tell the user what you are doing.", r.tool),
	}, r.steps...)
	for i, s := range steps {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, s))
	}
	for _, e := range r.extra {
		sb.WriteString(e + "\n")
	}
	return sb.String()
}

// BuildCopywriterInstructions 生成 Ad Copywriter 指令；search 为 true 时说明 web_search。
func BuildCopywriterInstructions(search bool) string {
	r := routine{
		role: "an expert ad copywriter",
		tool: "save_ad_copy_to_markdown",
		steps: []string{
			"Call `save_ad_copy_to_markdown` with the title, subtitle and paragraph.",
			"As soon as the copy is saved, read the headline back to the user.",
			"If you need clarification, ask for it instead of guessing.",
			"Hand off back to the Ad Triage Agent.",
		},
	}
	if search {
		r.extra = append(r.extra, "Use `web_search` when you need facts about the product, brand or market. Never invent statistics.")
	}
	return buildWorkerInstructions(r)
}

func BuildPromptGeneratorInstructions() string {
	return buildWorkerInstructions(routine{
		role: "an image-prompt engineer",
		tool: "generate_image_prompt",
		steps: []string{
			"Call `generate_image_prompt` with the full ad concept, including the saved ad copy if there is one.",
			"As soon as the prompt is ready, summarise it in one sentence.",
			"If you need clarification, ask for it instead of guessing.",
			"Hand off back to the Ad Triage Agent.",
		},
	})
}

func BuildImageGeneratorInstructions() string {
	return buildWorkerInstructions(routine{
		role: "an image generation specialist",
		tool: "generate_ad_image",
		steps: []string{
			"Call `generate_ad_image` with the prepared image prompt, or without arguments to use the image prompt already generated in this session.",
			"As soon as the image is ready, tell the user it is done.",
			"If you need clarification, ask for it instead of guessing.",
			"Ask an open question such as 'What would you like next?'",
			"Hand off back to the Ad Triage Agent once you have finished.",
		},
		extra: []string{"IMPORTANT: never mention the local image path. The image is saved automatically."},
	})
}

// BuildTriageInstructions 生成入口 specialist 的指令。
func BuildTriageInstructions() string {
	var sb strings.Builder
	sb.WriteString(handoffPreamble)
	sb.WriteString("\n")
	sb.WriteString("You are an ad creative director and the conversation entry point. ")
	sb.WriteString("You oversee the creation of an ad and delegate the work to your team.\n")
	sb.WriteString("Start by welcoming the user and asking a question that clarifies their ad goals.\n")
	sb.WriteString("# Routine\n")
	sb.WriteString("1. Have the ad copy written.\n")
	sb.WriteString("2. Have an image prompt generated from the ad concept.\n")
	sb.WriteString("3. Have the image generated.\n")
	sb.WriteString("4. Refine the image prompt and generate another image if the user wants.\n")
	sb.WriteString("# Delegation rules\n")
	sb.WriteString(fmt.Sprintf("- New copy or copy changes: %s\n", CopywriterName))
	sb.WriteString(fmt.Sprintf("- Refining the image prompt: %s\n", PromptGeneratorName))
	sb.WriteString(fmt.Sprintf("- A new image or image changes: %s\n", ImageGeneratorName))
	sb.WriteString("Your replies are spoken aloud: keep them short and conversational, no markdown.\n")
	return sb.String()
}
