// Package reply wraps the text-in/text-out collaborator that drafts
// email replies. An empty reply means "do not reply" and is never an
// error at the session level.
package reply

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Generator produces a reply for a source text. Implementations return
// ("", nil) when no reply should be sent.
type Generator interface {
	GenerateReply(ctx context.Context, sourceText string) (string, error)
}

const (
	defaultModel = openai.ChatModelGPT4

	systemPrompt = "You are a helpful assistant. Generate a brief, professional email reply. " +
		"Keep it under 100 words and natural sounding."

	// Source text is clamped before it reaches the model.
	maxSourceChars = 500
)

// OpenAI drafts replies through a chat-completion model.
type OpenAI struct {
	client openai.Client
	model  openai.ChatModel
}

// Option configures an OpenAI generator.
type Option func(*OpenAI)

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(o *OpenAI) { o.model = openai.ChatModel(model) }
}

func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	o := &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenAI) GenerateReply(ctx context.Context, sourceText string) (string, error) {
	if len(sourceText) > maxSourceChars {
		sourceText = sourceText[:maxSourceChars]
	}

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       o.model,
		MaxTokens:   openai.Int(150),
		Temperature: openai.Float(0.7),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage("Generate a reply to this email: " + sourceText),
		},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// Disabled is the keyless generator: it never replies.
type Disabled struct{}

func (Disabled) GenerateReply(ctx context.Context, sourceText string) (string, error) {
	return "", nil
}
