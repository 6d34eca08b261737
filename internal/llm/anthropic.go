package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

// AnthropicProvider implements Provider using the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	apiKey string
	model  string
	opts   []option.RequestOption
}

// NewAnthropicProvider creates a new Anthropic provider. An empty apiKey
// falls back to ANTHROPIC_API_KEY.
func NewAnthropicProvider(apiKey, model, baseURL string, httpClient *http.Client) (*AnthropicProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: no API key configured (set ANTHROPIC_API_KEY or providers.anthropic.api_key)")
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		// RetryProvider owns retries.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(append(opts, option.WithAPIKey(apiKey))...)
	return &AnthropicProvider{
		client: &client,
		apiKey: apiKey,
		model:  model,
		opts:   opts,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return fmt.Sprintf("Anthropic (%s)", p.model)
}

func (p *AnthropicProvider) ListModels() []ModelInfo {
	return ListModels("anthropic")
}

// clientFor returns a client for a per-request credential override.
func (p *AnthropicProvider) clientFor(credential string) *anthropic.Client {
	if credential == "" || credential == p.apiKey {
		return p.client
	}
	client := anthropic.NewClient(append(p.opts, option.WithAPIKey(credential))...)
	return &client
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newChunkStream(ctx, p.Name(), func(ctx context.Context, out chan<- Chunk) error {
		system, messages := buildAnthropicMessages(req)
		if len(messages) == 0 {
			return &ProviderError{Kind: KindBadRequest, Provider: p.Name(), Message: "no messages provided"}
		}
		model := chooseModel(req.Model, p.model)

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: int64(ClampOutputTokens("anthropic", model, req.MaxOutputTokens)),
			Messages:  messages,
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		if len(req.Tools) > 0 {
			params.Tools = buildAnthropicTools(req.Tools)
		}
		if req.Temperature > 0 {
			params.Temperature = anthropic.Float(float64(req.Temperature))
		}

		if req.Debug {
			slog.Debug("anthropic stream request", "model", model, "messages", len(messages), "tools", len(req.Tools))
		}

		tools := newNativeToolState()
		stream := p.clientFor(req.Credential).Messages.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if block, ok := variant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					tools.Add(int(variant.Index), block.ID, block.Name, "")
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" {
						if err := send(ctx, out, TextChunk(delta.Text)); err != nil {
							return err
						}
					}
				case anthropic.InputJSONDelta:
					tools.Add(int(variant.Index), "", "", delta.PartialJSON)
				}
			case anthropic.ContentBlockStopEvent:
				if call, ok := tools.Finish(int(variant.Index)); ok {
					if err := send(ctx, out, CallChunk(call)); err != nil {
						return err
					}
				}
			case anthropic.MessageDeltaEvent:
				if variant.Delta.StopReason == anthropic.StopReasonMaxTokens {
					slog.Warn("anthropic response hit max_tokens", "model", model)
				}
			}
		}
		if err := stream.Err(); err != nil {
			return WithPartial(p.Name(), classifyAnthropicError(p.Name(), err), tools.Partial())
		}
		return nil
	}), nil
}

// classifyAnthropicError maps SDK errors, which carry the HTTP response,
// onto the error taxonomy.
func classifyAnthropicError(provider string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		pe := ClassifyStatus(provider, apiErr.StatusCode, []byte(apiErr.RawJSON()), apiErr.Response.Header)
		pe.Cause = err
		return pe
	}
	return AsProviderError(provider, fmt.Errorf("anthropic streaming error: %w", err))
}

func buildAnthropicMessages(req Request) (string, []anthropic.MessageParam) {
	var systemParts []string
	if req.System != "" {
		systemParts = append(systemParts, req.System)
	}
	var out []anthropic.MessageParam

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, MessageText(msg))
		case RoleUser, RoleTool:
			if blocks := buildAnthropicBlocks(msg.Parts, false); len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}
		case RoleAssistant:
			if blocks := buildAnthropicBlocks(msg.Parts, true); len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}

	return strings.Join(systemParts, "\n\n"), out
}

func buildAnthropicBlocks(parts []Part, allowToolUse bool) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case PartToolCall:
			if allowToolUse && part.ToolCall != nil {
				blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCall.ID, toolInputToAny(part.ToolCall.Arguments), part.ToolCall.Name))
			}
		case PartToolResult:
			if part.ToolResult != nil {
				blocks = append(blocks, anthropic.NewToolResultBlock(part.ToolResult.ID, part.ToolResult.Content, part.ToolResult.IsError))
			}
		}
	}
	return blocks
}

func buildAnthropicTools(specs []ToolSpec) []anthropic.ToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: spec.Schema["properties"],
			Required:   SchemaRequired(spec.Schema),
		}
		tool := anthropic.ToolUnionParamOfTool(inputSchema, spec.Name)
		if spec.Description != "" {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

// toolInputToAny decodes stored arguments so the SDK re-encodes them as an
// object rather than a string.
func toolInputToAny(args json.RawMessage) any {
	var v map[string]any
	if err := json.Unmarshal(args, &v); err != nil || v == nil {
		return map[string]any{}
	}
	return v
}
