// Package anthropic provides a model wrapper for the Anthropic Claude API.
// Field-style cache markers placed by the prompt cache annotator translate
// directly into cache_control attributes on the outgoing text blocks.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

// Generate implements generation against the Anthropic Messages API
// (including function/tool calling).
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    buildMessages(req.Messages),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}

		if req.Instructions != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
		}

		if len(req.Tools) > 0 {
			params.Tools = buildTools(req.Tools)
		}

		if req.Stream {
			// TODO: adapt anthropic.MessageStreamEvent into model.Chunk values
			errCh <- fmt.Errorf("streaming not yet implemented for Anthropic model")
			return
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		final := core.Message{Role: core.RoleAssistant}
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				tb := block.AsText()
				if tb.Text != "" {
					final.Content = append(final.Content, core.TextBlock{Text: tb.Text})
				}
			case "tool_use":
				tu := block.AsToolUse()
				args := ""
				if tu.Input != nil {
					if argsBytes, err := json.Marshal(tu.Input); err == nil {
						args = string(argsBytes)
					}
				}
				final.Content = append(final.Content, core.ToolCallBlock{
					ID:   tu.ID,
					Name: tu.Name,
					Args: args,
				})
			}
		}

		finishReason := "stop"
		if resp.StopReason != "" {
			finishReason = string(resp.StopReason)
		}

		out <- model.Response{Partial: false, Message: &final, FinishReason: finishReason}
	}()

	return out, errCh
}

// buildMessages converts canonical messages to the Anthropic wire format.
// Tool result messages become user-role tool_result blocks; standalone cache
// marker blocks are skipped (this provider consumes the field-style profile).
func buildMessages(messages []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			continue // handled via the request-level system field
		case core.RoleAssistant:
			if content := buildAssistantContent(msg); len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			if content := buildToolResultContent(msg); len(content) > 0 {
				out = append(out, anthropic.NewUserMessage(content...))
			}
		default:
			if content := buildUserContent(msg); len(content) > 0 {
				out = append(out, anthropic.NewUserMessage(content...))
			}
		}
	}

	return out
}

func buildUserContent(msg core.Message) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, b := range msg.Content {
		if tb, ok := b.(core.TextBlock); ok && tb.Text != "" {
			content = append(content, textBlockParam(tb))
		}
	}

	return content
}

func buildAssistantContent(msg core.Message) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, b := range msg.Content {
		switch block := b.(type) {
		case core.TextBlock:
			if block.Text != "" {
				content = append(content, textBlockParam(block))
			}
		case core.ToolCallBlock:
			var input any
			if block.Args != "" {
				if err := json.Unmarshal([]byte(block.Args), &input); err != nil {
					input = block.Args // fallback to raw string
				}
			}
			content = append(content, anthropic.NewToolUseBlock(block.ID, input, block.Name))
		}
	}

	return content
}

func buildToolResultContent(msg core.Message) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, b := range msg.Content {
		if tc, ok := b.(core.ToolCallBlock); ok && tc.ID != "" {
			text := ""
			if s, ok := tc.Output.(string); ok {
				text = s
			} else if tc.Output != nil {
				text = fmt.Sprintf("%v", tc.Output)
			}
			content = append(content, anthropic.NewToolResultBlock(tc.ID, text, false))
		}
	}

	return content
}

// textBlockParam carries a field-style cache marker through to the wire when
// present.
func textBlockParam(tb core.TextBlock) anthropic.ContentBlockParamUnion {
	param := anthropic.TextBlockParam{Text: tb.Text}
	if tb.CacheControl != nil {
		param.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
	return anthropic.ContentBlockParamUnion{OfText: &param}
}

// buildTools converts tool definitions to the Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if t.Parameters != nil {
			if properties, exists := t.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := t.Parameters["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []any:
					var reqStrings []string
					for _, r := range req {
						if s, ok := r.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}
					inputSchema.Required = reqStrings
				}
			}
		}

		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, t.Name)
	}

	return out
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	// SupportsStreaming stays false until the stream event adaptation
	// lands; callers fall back to non-streaming turns.
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
