package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// NoChangeSentence is the exact prescription answer when the conversation
// contains no explicit instruction.
const NoChangeSentence = "No changes needed to the current prescription."

const (
	TableHeader  = "| Drug Name | Dosage | Route | Duration | Notes |"
	TableDivider = "|-----------|--------|-------|----------|-------|"
	// NoPrescription stands in for an absent latest prescription.
	NoPrescription = "None"
)

var (
	//go:embed template/classifier_prompt.txt
	classifierSystemPrompt string
	//go:embed template/summary_prompt.txt
	summarySystemPrompt string
	//go:embed template/summary_user.txt
	summaryUserPrompt string
	//go:embed template/prescription_prompt.txt
	prescriptionSystemPrompt string
	//go:embed template/prescription_user.txt
	prescriptionUserPrompt string
	//go:embed template/general_prompt.txt
	generalSystemPrompt string
)

const userTemplate = "{{.UserMessage}}"

const generalContextHeader = "Recent conversation (oldest first), for context only:\n"

// promptType is reported as RunInfo.Type on prompt callbacks.
const promptType = "GoTemplate"

// render formats a system + user message pair via the Eino prompt component
// (Go template), which also emits prompt callbacks under "<name>_prompt".
// Conversation data belongs in the user template only.
func render(ctx context.Context, name, system, user string, vars map[string]any) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(strings.TrimSpace(system)),
		schema.UserMessage(strings.TrimSpace(user)),
	)
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      name + "_prompt",
		Type:      promptType,
		Component: components.ComponentOfPrompt,
	})
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) != 2 || msgs[0] == nil || msgs[1] == nil {
		return nil, fmt.Errorf("%s prompt render: unexpected result", name)
	}
	return msgs, nil
}

// RenderClassifier builds the label-only classification request.
func RenderClassifier(ctx context.Context, userMessage string) ([]*schema.Message, error) {
	return render(ctx, "classifier", classifierSystemPrompt, userTemplate, map[string]any{
		"UserMessage": userMessage,
	})
}

type SummaryInput struct {
	Transcript  string
	UserMessage string
}

func RenderSummary(ctx context.Context, in SummaryInput) ([]*schema.Message, error) {
	return render(ctx, "summary", summarySystemPrompt, summaryUserPrompt, map[string]any{
		"Transcript":  in.Transcript,
		"UserMessage": in.UserMessage,
	})
}

type PrescriptionInput struct {
	Transcript string
	// LatestPrescription is empty when none is on record.
	LatestPrescription string
	Guidelines         string
	UserMessage        string
}

func RenderPrescription(ctx context.Context, in PrescriptionInput) ([]*schema.Message, error) {
	rx := in.LatestPrescription
	if rx == "" {
		rx = NoPrescription
	}
	return render(ctx, "prescription", prescriptionSystemPrompt, prescriptionUserPrompt, map[string]any{
		"TableHeader":        TableHeader,
		"TableDivider":       TableDivider,
		"NoChange":           NoChangeSentence,
		"LatestPrescription": rx,
		"Guidelines":         in.Guidelines,
		"Transcript":         in.Transcript,
		"UserMessage":        in.UserMessage,
	})
}

type GeneralInput struct {
	// Transcript is optional context; empty for new conversations.
	Transcript  string
	UserMessage string
}

// RenderGeneral keeps the final human turn as the raw user message. A
// non-empty transcript is sent as an earlier user turn for context.
func RenderGeneral(ctx context.Context, in GeneralInput) ([]*schema.Message, error) {
	msgs, err := render(ctx, "general", generalSystemPrompt, userTemplate, map[string]any{
		"UserMessage": in.UserMessage,
	})
	if err != nil || in.Transcript == "" {
		return msgs, err
	}
	history := schema.UserMessage(generalContextHeader + in.Transcript)
	return []*schema.Message{msgs[0], history, msgs[1]}, nil
}
