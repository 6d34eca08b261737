package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// OpenAICompatProvider implements Provider for OpenAI-compatible APIs.
// Used by LM Studio, DeepSeek, vLLM and other compatible servers.
//
// Tool calls may arrive as native deltas or, for models that ignore the
// tools field, as inline text; both are normalized into function_call chunks.
type OpenAICompatProvider struct {
	baseURL     string
	apiKey      string
	model       string
	name        string // Display name: "LM Studio", "DeepSeek", etc.
	catalog     string // ProviderModels key used for ListModels and clamping
	headers     map[string]string
	inlineTools bool // describe tools in the system prompt instead of the tools field
	marker      string
	client      *http.Client
}

// CompatOptions configures an OpenAICompatProvider.
type CompatOptions struct {
	Name        string
	Catalog     string
	Headers     map[string]string
	InlineTools bool
	Marker      string
	HTTPClient  *http.Client
}

func NewOpenAICompatProvider(baseURL, apiKey, model string, opts CompatOptions) *OpenAICompatProvider {
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient(0)
	}
	if opts.Marker == "" {
		opts.Marker = DefaultToolMarker
	}
	if opts.Name == "" {
		opts.Name = "OpenAI-compatible"
	}
	return &OpenAICompatProvider{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		name:        opts.Name,
		catalog:     opts.Catalog,
		headers:     opts.Headers,
		inlineTools: opts.InlineTools,
		marker:      opts.Marker,
		client:      opts.HTTPClient,
	}
}

func (p *OpenAICompatProvider) Name() string {
	return fmt.Sprintf("%s (%s)", p.name, p.model)
}

func (p *OpenAICompatProvider) ListModels() []ModelInfo {
	return ListModels(p.catalog)
}

// OpenAI-compatible request/response structures
type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Tools       []oaiTool    `json:"tools,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type oaiToolCall struct {
	Index    int             `json:"index"`
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Function oaiFunctionCall `json:"function"`
}

type oaiFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type oaiChatResponse struct {
	Choices []oaiChoice  `json:"choices"`
	Error   *oaiAPIError `json:"error,omitempty"`
}

type oaiChoice struct {
	Index        int         `json:"index"`
	Delta        *oaiMessage `json:"delta,omitempty"`
	FinishReason string      `json:"finish_reason"`
}

type oaiAPIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *OpenAICompatProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newChunkStream(ctx, p.Name(), func(ctx context.Context, out chan<- Chunk) error {
		system := req.System
		if p.inlineTools && len(req.Tools) > 0 {
			system = joinNonEmpty(system, InlineToolInstructions(p.marker, req.Tools))
		}
		messages := buildCompatMessages(system, req.Messages)
		if len(messages) == 0 {
			return &ProviderError{Kind: KindBadRequest, Provider: p.Name(), Message: "no messages provided"}
		}

		model := chooseModel(req.Model, p.model)
		maxTokens := ClampOutputTokens(p.catalog, model, req.MaxOutputTokens)
		chatReq := oaiChatRequest{
			Model:     model,
			Messages:  messages,
			MaxTokens: &maxTokens,
			Stream:    true,
		}
		if !p.inlineTools {
			tools, err := buildCompatTools(req.Tools)
			if err != nil {
				return &ProviderError{Kind: KindBadRequest, Provider: p.Name(), Message: err.Error(), Cause: err}
			}
			chatReq.Tools = tools
		}
		if req.Temperature > 0 {
			v := float64(req.Temperature)
			chatReq.Temperature = &v
		}

		if req.Debug {
			slog.Debug("compat stream request", "provider", p.name, "url", p.baseURL+"/chat/completions", "messages", len(messages), "tools", len(req.Tools))
		}

		apiKey := p.apiKey
		if req.Credential != "" {
			apiKey = req.Credential
		}
		headers := map[string]string{}
		for k, v := range p.headers {
			headers[k] = v
		}
		if apiKey != "" {
			headers["Authorization"] = "Bearer " + apiKey
		}

		resp, err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/chat/completions", headers, chatReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		toolState := newNativeToolState()
		reassembler := NewReassembler(DefaultMatchers(p.marker, req.Tools)...)
		emit := func(chunks []Chunk) error {
			for _, c := range chunks {
				if err := send(ctx, out, c); err != nil {
					return err
				}
			}
			return nil
		}

		err = readSSE(ctx, resp.Body, func(event, data string) error {
			var chatResp oaiChatResponse
			if err := json.Unmarshal([]byte(data), &chatResp); err != nil {
				slog.Debug("dropping malformed stream frame", "provider", p.name, "error", err)
				return nil
			}
			if event == "error" || chatResp.Error != nil {
				msg := "unknown error"
				if chatResp.Error != nil {
					msg = chatResp.Error.Message
					if chatResp.Error.Code == "context_length_exceeded" {
						return &ProviderError{Kind: KindContextExhausted, Provider: p.Name(), Message: msg}
					}
				}
				return AsProviderError(p.Name(), fmt.Errorf("%s API error: %s", p.name, msg))
			}
			for _, choice := range chatResp.Choices {
				if choice.Delta == nil {
					continue
				}
				if choice.Delta.Content != "" {
					if err := emit(reassembler.Feed(choice.Delta.Content)); err != nil {
						return err
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					toolState.Add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
				}
			}
			return nil
		})
		if err != nil {
			partial := toolState.Partial()
			if partial == nil {
				partial = reassembler.PartialCall()
			}
			return WithPartial(p.Name(), err, partial)
		}

		if err := emit(reassembler.Flush()); err != nil {
			return err
		}
		for _, call := range toolState.Calls() {
			if err := send(ctx, out, CallChunk(call)); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

func buildCompatMessages(system string, messages []Message) []oaiMessage {
	var result []oaiMessage
	if system != "" {
		result = append(result, oaiMessage{Role: "system", Content: system})
	}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
			text, toolCalls := splitParts(msg.Parts)
			if msg.Role == RoleAssistant && len(toolCalls) > 0 {
				result = append(result, oaiMessage{
					Role:      "assistant",
					Content:   text,
					ToolCalls: toolCalls,
				})
				continue
			}
			if text == "" {
				continue
			}
			result = append(result, oaiMessage{Role: string(msg.Role), Content: text})
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type != PartToolResult || part.ToolResult == nil {
					continue
				}
				result = append(result, oaiMessage{
					Role:       "tool",
					Content:    part.ToolResult.Content,
					ToolCallID: part.ToolResult.ID,
				})
			}
		}
	}
	return result
}

func splitParts(parts []Part) (string, []oaiToolCall) {
	var textParts []string
	var toolCalls []oaiToolCall
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				textParts = append(textParts, part.Text)
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			toolCalls = append(toolCalls, oaiToolCall{
				ID:   part.ToolCall.ID,
				Type: "function",
				Function: oaiFunctionCall{
					Name:      part.ToolCall.Name,
					Arguments: string(part.ToolCall.Arguments),
				},
			})
		}
	}
	return strings.Join(textParts, ""), toolCalls
}

func buildCompatTools(specs []ToolSpec) ([]oaiTool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make([]oaiTool, 0, len(specs))
	for _, spec := range specs {
		schema, err := json.Marshal(spec.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool schema %s: %w", spec.Name, err)
		}
		tools = append(tools, oaiTool{
			Type: "function",
			Function: oaiFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return tools, nil
}

// InlineToolInstructions describes the available tools and the inline call
// format for models without native tool support.
func InlineToolInstructions(marker string, specs []ToolSpec) string {
	var b strings.Builder
	b.WriteString("You can call tools. To call one, write the marker ")
	b.WriteString(marker)
	b.WriteString(" followed by a JSON object on its own, for example:\n")
	b.WriteString(marker)
	b.WriteString(` {"name": "read_file", "arguments": {"path": "main.go"}}`)
	b.WriteString("\nCall one tool at a time and wait for its result.\n\nAvailable tools:\n")
	for _, spec := range specs {
		schema, _ := json.Marshal(spec.Schema["properties"])
		fmt.Fprintf(&b, "- %s: %s\n  arguments: %s\n", spec.Name, spec.Description, schema)
	}
	return b.String()
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
