package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mark3labs/dialogia/internal/ast"
)

// LLMNLU is an NLUClient backed directly by the Claude API. It is the
// "real" collaborator a production deployment plugs in behind the narrow
// NLUClient interface; this keeps the network client itself out of the
// agent's scope, but the agent still owns the thin adapter that shapes the
// model's output into a bookkeeping token array.
//
// The model is instructed to answer with exactly one line of bookkeeping
// tokens rather than a typed program — producing
// a full Program AST from free text is the external parser/type-checker's
// job), which this module does not implement.
type LLMNLU struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewLLMNLU creates an LLMNLU using apiKey, or the ANTHROPIC_API_KEY
// environment variable if apiKey is empty.
func NewLLMNLU(apiKey string, model anthropic.Model) *LLMNLU {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}
	return &LLMNLU{client: anthropic.NewClient(opts...), model: model}
}

const systemPrompt = `You turn a single user utterance into a bookkeeping
token array for a virtual assistant. Reply with exactly one line of
space-separated tokens drawn from: bookkeeping, special, special:yes,
special:no, special:nevermind, command, and quoted string literals. Never
explain your answer.`

// Parse asks the model to classify utterance and splits its one-line reply
// into a token array. It never returns a typed Program — see the type doc.
func (l *LLMNLU) Parse(ctx context.Context, utterance string, locale string) (*ast.Program, []string, error) {
	msg, err := l.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     l.model,
		MaxTokens: 128,
		System: []anthropic.TextBlockParam{
			{Text: fmt.Sprintf("%s\nLocale: %s", systemPrompt, locale)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(utterance)),
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("nlu: claude request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	tokens := strings.Fields(strings.TrimSpace(text.String()))
	if len(tokens) == 0 {
		tokens = []string{"command", utterance}
	}
	return nil, tokens, nil
}

// marshalDebug pretty-prints v as indented JSON, falling back to %v
// formatting when v cannot be marshaled. Nothing in the module calls it.
func marshalDebug(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
