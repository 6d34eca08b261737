package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider using the OpenAI Chat Completions API.
type OpenAIProvider struct {
	client *openai.Client
	apiKey string
	model  string
	opts   []option.RequestOption
}

// NewOpenAIProvider creates a new OpenAI provider. An empty apiKey falls
// back to OPENAI_API_KEY.
func NewOpenAIProvider(apiKey, model, baseURL string, httpClient *http.Client) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: no API key configured (set OPENAI_API_KEY or providers.openai.api_key)")
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(append(opts, option.WithAPIKey(apiKey))...)
	return &OpenAIProvider{
		client: &client,
		apiKey: apiKey,
		model:  model,
		opts:   opts,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

func (p *OpenAIProvider) ListModels() []ModelInfo {
	return ListModels("openai")
}

func (p *OpenAIProvider) clientFor(credential string) *openai.Client {
	if credential == "" || credential == p.apiKey {
		return p.client
	}
	client := openai.NewClient(append(p.opts, option.WithAPIKey(credential))...)
	return &client
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newChunkStream(ctx, p.Name(), func(ctx context.Context, out chan<- Chunk) error {
		messages := buildOpenAIMessages(req)
		if len(messages) == 0 {
			return &ProviderError{Kind: KindBadRequest, Provider: p.Name(), Message: "no messages provided"}
		}
		model := chooseModel(req.Model, p.model)

		params := openai.ChatCompletionNewParams{
			Model:               model,
			Messages:            messages,
			MaxCompletionTokens: openai.Int(int64(ClampOutputTokens("openai", model, req.MaxOutputTokens))),
		}
		if len(req.Tools) > 0 {
			params.Tools = buildOpenAITools(req.Tools)
		}
		if req.Temperature > 0 {
			params.Temperature = openai.Float(float64(req.Temperature))
		}

		if req.Debug {
			slog.Debug("openai stream request", "model", model, "messages", len(messages), "tools", len(req.Tools))
		}

		tools := newNativeToolState()
		stream := p.clientFor(req.Credential).Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if err := send(ctx, out, TextChunk(choice.Delta.Content)); err != nil {
						return err
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					tools.Add(int(tc.Index), tc.ID, tc.Function.Name, tc.Function.Arguments)
				}
				if choice.FinishReason == "length" {
					slog.Warn("openai response hit max tokens", "model", model)
				}
			}
		}
		if err := stream.Err(); err != nil {
			return WithPartial(p.Name(), classifyOpenAIError(p.Name(), err), tools.Partial())
		}

		for _, call := range tools.Calls() {
			if err := send(ctx, out, CallChunk(call)); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

func classifyOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		pe := ClassifyStatus(provider, apiErr.StatusCode, []byte(apiErr.RawJSON()), apiErr.Response.Header)
		if apiErr.Code == "context_length_exceeded" {
			pe.Kind = KindContextExhausted
		}
		pe.Cause = err
		return pe
	}
	return AsProviderError(provider, fmt.Errorf("openai streaming error: %w", err))
}

func buildOpenAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(MessageText(msg)))
		case RoleUser:
			if text := MessageText(msg); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		case RoleAssistant:
			var toolCalls []openai.ChatCompletionMessageToolCallParam
			for _, part := range msg.Parts {
				if part.Type != PartToolCall || part.ToolCall == nil {
					continue
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: part.ToolCall.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      part.ToolCall.Name,
						Arguments: string(part.ToolCall.Arguments),
					},
				})
			}
			text := MessageText(msg)
			if len(toolCalls) == 0 {
				if text != "" {
					messages = append(messages, openai.AssistantMessage(text))
				}
				continue
			}
			assistant := &openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type == PartToolResult && part.ToolResult != nil {
					messages = append(messages, openai.ToolMessage(part.ToolResult.Content, part.ToolResult.ID))
				}
			}
		}
	}
	return messages
}

func buildOpenAITools(specs []ToolSpec) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(spec.Schema),
			},
		})
	}
	return tools
}
