// Package openai classifies utterances with the OpenAI Chat Completions API
// using function calling against the tool catalog.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/tasktalk/tasktalk/internal/agent/classify"
)

// Options configure the OpenAI classifier.
type Options struct {
	Model  string
	APIKey string
}

// Classifier wraps the Chat Completions API behind classify.Classifier.
type Classifier struct {
	client *openai.Client
	opts   Options
}

// New creates a classifier with the official client. An empty APIKey falls
// back to the SDK's OPENAI_API_KEY handling.
func New(optFns ...func(o *Options)) *Classifier {
	opts := Options{Model: openai.ChatModelGPT4oMini}
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)
	return &Classifier{client: &client, opts: opts}
}

// NewFromClient creates a classifier from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Classifier {
	opts := Options{Model: openai.ChatModelGPT4oMini}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Classifier{client: client, opts: opts}
}

// Name implements classify.Classifier.
func (c *Classifier) Name() string { return "openai" }

// Classify implements classify.Classifier.
func (c *Classifier) Classify(ctx context.Context, req classify.Request) (*classify.Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.opts.Model),
		Messages: buildMessages(req),
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.Parameters),
				},
			}
		}
		params.Tools = tools
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	msg := resp.Choices[0].Message
	result := &classify.Result{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		result.Calls = append(result.Calls, classify.ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
			Score:     1,
		})
	}
	return result, nil
}

func buildMessages(req classify.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, turn := range req.History {
		switch turn.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	return append(messages, openai.UserMessage(req.Utterance))
}
