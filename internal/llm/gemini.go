package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com"

// GeminiProvider implements Provider against the Gemini REST
// streamGenerateContent endpoint. The response is one JSON array whose
// elements arrive incrementally; they are split out by brace matching.
// Request and response bodies use the genai SDK types.
type GeminiProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewGeminiProvider creates a Gemini provider. An empty apiKey falls back to
// GEMINI_API_KEY.
func NewGeminiProvider(apiKey, model, baseURL string, httpClient *http.Client) (*GeminiProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: no API key configured (set GEMINI_API_KEY or providers.gemini.api_key)")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if baseURL == "" {
		baseURL = defaultGeminiURL
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &GeminiProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  httpClient,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return fmt.Sprintf("Gemini (%s)", p.model)
}

func (p *GeminiProvider) ListModels() []ModelInfo {
	return ListModels("gemini")
}

type geminiRequest struct {
	Contents          []*genai.Content        `json:"contents"`
	SystemInstruction *genai.Content          `json:"systemInstruction,omitempty"`
	Tools             []*genai.Tool           `json:"tools,omitempty"`
	GenerationConfig  *genai.GenerationConfig `json:"generationConfig,omitempty"`
}

type geminiStreamError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *GeminiProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newChunkStream(ctx, p.Name(), func(ctx context.Context, out chan<- Chunk) error {
		system, contents := buildGeminiContents(req)
		if len(contents) == 0 {
			return &ProviderError{Kind: KindBadRequest, Provider: p.Name(), Message: "no user content provided"}
		}
		model := chooseModel(req.Model, p.model)

		body := geminiRequest{
			Contents: contents,
			Tools:    buildGeminiTools(req.Tools),
			GenerationConfig: &genai.GenerationConfig{
				MaxOutputTokens: int32(ClampOutputTokens("gemini", model, req.MaxOutputTokens)),
			},
		}
		if system != "" {
			body.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}
		if req.Temperature > 0 {
			body.GenerationConfig.Temperature = genai.Ptr(req.Temperature)
		}

		if req.Debug {
			slog.Debug("gemini stream request", "model", model, "contents", len(contents), "tools", len(req.Tools))
		}

		apiKey := p.apiKey
		if req.Credential != "" {
			apiKey = req.Credential
		}
		endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent", p.baseURL, url.PathEscape(model))
		resp, err := postJSON(ctx, p.client, p.Name(), endpoint, map[string]string{"x-goog-api-key": apiKey}, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		return readJSONArray(ctx, resp.Body, func(object string) error {
			var streamErr geminiStreamError
			if err := json.Unmarshal([]byte(object), &streamErr); err == nil && streamErr.Error != nil {
				pe := ClassifyStatus(p.Name(), streamErr.Error.Code, []byte(streamErr.Error.Message), http.Header{})
				if streamErr.Error.Status == "RESOURCE_EXHAUSTED" && pe.Kind != KindContextExhausted {
					pe.Kind = KindRateLimit
				}
				return pe
			}

			var chunk genai.GenerateContentResponse
			if err := json.Unmarshal([]byte(object), &chunk); err != nil {
				slog.Debug("dropping malformed stream frame", "provider", "gemini", "error", err)
				return nil
			}
			for _, cand := range chunk.Candidates {
				if cand == nil || cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if part == nil || part.Thought {
						continue
					}
					if part.Text != "" {
						if err := send(ctx, out, TextChunk(part.Text)); err != nil {
							return err
						}
					}
					if part.FunctionCall != nil {
						args, _ := json.Marshal(part.FunctionCall.Args)
						if part.FunctionCall.Args == nil {
							args = []byte("{}")
						}
						id := part.FunctionCall.ID
						if id == "" {
							id = newCallID()
						}
						call := ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args}
						if err := send(ctx, out, CallChunk(call)); err != nil {
							return err
						}
					}
				}
				if cand.FinishReason == genai.FinishReasonMaxTokens {
					slog.Warn("gemini response hit max output tokens", "model", model)
				}
			}
			return nil
		})
	}), nil
}

func buildGeminiTools(specs []ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 spec.Name,
			Description:          spec.Description,
			ParametersJsonSchema: spec.Schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func buildGeminiContents(req Request) (string, []*genai.Content) {
	var systemParts []string
	if req.System != "" {
		systemParts = append(systemParts, req.System)
	}
	contents := make([]*genai.Content, 0, len(req.Messages))

	for _, msg := range req.Messages {
		var content *genai.Content
		switch msg.Role {
		case RoleSystem:
			if text := MessageText(msg); text != "" {
				systemParts = append(systemParts, text)
			}
		case RoleUser:
			content = buildGeminiContent(genai.RoleUser, msg.Parts)
		case RoleAssistant:
			content = buildGeminiContent(genai.RoleModel, msg.Parts)
		case RoleTool:
			content = buildGeminiContent(genai.RoleUser, msg.Parts)
		}
		if content != nil {
			contents = append(contents, content)
		}
	}

	return strings.Join(systemParts, "\n\n"), contents
}

func buildGeminiContent(role string, parts []Part) *genai.Content {
	content := &genai.Content{Role: role}
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   part.ToolCall.ID,
					Name: part.ToolCall.Name,
					Args: toolArgsToMap(part.ToolCall.Arguments),
				},
			})
		case PartToolResult:
			if part.ToolResult == nil {
				continue
			}
			key := "output"
			if part.ToolResult.IsError {
				key = "error"
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       part.ToolResult.ID,
					Name:     part.ToolResult.Name,
					Response: map[string]any{key: part.ToolResult.Content},
				},
			})
		}
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}

func toolArgsToMap(args json.RawMessage) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
