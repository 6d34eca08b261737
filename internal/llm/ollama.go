package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultOllamaURL is where a local Ollama server listens.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider implements Provider for Ollama's native /api/chat endpoint,
// which streams newline-delimited JSON objects. Tool calls come either as
// complete structured calls or as inline text.
type OllamaProvider struct {
	baseURL     string
	model       string
	marker      string
	inlineTools bool
	client      *http.Client
}

func NewOllamaProvider(baseURL, model, marker string, inlineTools bool, httpClient *http.Client) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if marker == "" {
		marker = DefaultToolMarker
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &OllamaProvider{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       model,
		marker:      marker,
		inlineTools: inlineTools,
		client:      httpClient,
	}
}

func (p *OllamaProvider) Name() string {
	return fmt.Sprintf("Ollama (%s)", p.model)
}

func (p *OllamaProvider) ListModels() []ModelInfo {
	return ListModels("ollama")
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []oaiTool       `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Message    *ollamaMessage `json:"message,omitempty"`
	Done       bool           `json:"done"`
	DoneReason string         `json:"done_reason,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func (p *OllamaProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newChunkStream(ctx, p.Name(), func(ctx context.Context, out chan<- Chunk) error {
		system := req.System
		if p.inlineTools && len(req.Tools) > 0 {
			system = joinNonEmpty(system, InlineToolInstructions(p.marker, req.Tools))
		}
		messages := buildOllamaMessages(system, req.Messages)
		if len(messages) == 0 {
			return &ProviderError{Kind: KindBadRequest, Provider: p.Name(), Message: "no messages provided"}
		}
		model := chooseModel(req.Model, p.model)

		chatReq := ollamaChatRequest{
			Model:    model,
			Messages: messages,
			Stream:   true,
			Options:  ollamaOptions{NumPredict: ClampOutputTokens("ollama", model, req.MaxOutputTokens)},
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
			chatReq.Options.Temperature = &v
		}

		resp, err := postJSON(ctx, p.client, p.Name(), p.baseURL+"/api/chat", nil, chatReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		reassembler := NewReassembler(DefaultMatchers(p.marker, req.Tools)...)
		emit := func(chunks []Chunk) error {
			for _, c := range chunks {
				if err := send(ctx, out, c); err != nil {
					return err
				}
			}
			return nil
		}

		err = readLines(ctx, resp.Body, func(line string) error {
			var chatResp ollamaChatResponse
			if err := json.Unmarshal([]byte(line), &chatResp); err != nil {
				slog.Debug("dropping malformed stream frame", "provider", "ollama", "error", err)
				return nil
			}
			if chatResp.Error != "" {
				return AsProviderError(p.Name(), fmt.Errorf("ollama error: %s", chatResp.Error))
			}
			if chatResp.Message == nil {
				return nil
			}
			if chatResp.Message.Content != "" {
				if err := emit(reassembler.Feed(chatResp.Message.Content)); err != nil {
					return err
				}
			}
			for _, tc := range chatResp.Message.ToolCalls {
				args, err := normalizeArguments(tc.Function.Arguments)
				if err != nil {
					args = json.RawMessage("{}")
				}
				call := ToolCall{ID: newCallID(), Name: tc.Function.Name, Arguments: args}
				if err := emit(reassembler.Flush()); err != nil {
					return err
				}
				if err := send(ctx, out, CallChunk(call)); err != nil {
					return err
				}
			}
			if chatResp.Done && chatResp.DoneReason == "length" {
				slog.Warn("ollama response hit num_predict", "model", model)
			}
			return nil
		})
		if err != nil {
			return WithPartial(p.Name(), err, reassembler.PartialCall())
		}
		return emit(reassembler.Flush())
	}), nil
}

func buildOllamaMessages(system string, messages []Message) []ollamaMessage {
	var result []ollamaMessage
	if system != "" {
		result = append(result, ollamaMessage{Role: "system", Content: system})
	}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem, RoleUser:
			if text := MessageText(msg); text != "" {
				result = append(result, ollamaMessage{Role: string(msg.Role), Content: text})
			}
		case RoleAssistant:
			m := ollamaMessage{Role: "assistant", Content: MessageText(msg)}
			for _, part := range msg.Parts {
				if part.Type != PartToolCall || part.ToolCall == nil {
					continue
				}
				var tc ollamaToolCall
				tc.Function.Name = part.ToolCall.Name
				tc.Function.Arguments = part.ToolCall.Arguments
				m.ToolCalls = append(m.ToolCalls, tc)
			}
			if m.Content != "" || len(m.ToolCalls) > 0 {
				result = append(result, m)
			}
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type == PartToolResult && part.ToolResult != nil {
					result = append(result, ollamaMessage{
						Role:     "tool",
						Content:  part.ToolResult.Content,
						ToolName: part.ToolResult.Name,
					})
				}
			}
		}
	}
	return result
}
