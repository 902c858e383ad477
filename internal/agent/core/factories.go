package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tradesquad/tradesquad/config"
	"github.com/tradesquad/tradesquad/internal/tools"
)

// Role names used to route model selection.
const (
	RoleAnalysis   = "analysis"
	RoleSynthesis  = "synthesis"
	RoleValidation = "validation"
	RoleChat       = "chat"
)

// Router resolves a worker role to an LLM provider bound to the model
// configured for that role.
type Router struct {
	byRole   map[string]LLMProvider
	fallback LLMProvider
}

// NewRouter builds role-bound providers from configuration. Every role
// missing an explicit route falls back to llm.routing.fallback.
func NewRouter(cfg config.LLMConfig) (*Router, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	bind := func(modelKey string) (LLMProvider, error) {
		if modelKey == "" {
			return nil, nil
		}
		for _, p := range cfg.Providers {
			m, ok := p.Models[modelKey]
			if !ok {
				continue
			}
			switch p.Type {
			case "openai":
				return NewOpenAIProvider(p, m), nil
			case "anthropic":
				return NewAnthropicProvider(p, m), nil
			default:
				return nil, fmt.Errorf("unsupported LLM provider type: %s", p.Type)
			}
		}
		return nil, fmt.Errorf("model %q not found in any configured provider", modelKey)
	}

	fallback, err := bind(cfg.Routing.Fallback)
	if err != nil {
		return nil, err
	}
	if fallback == nil {
		return nil, fmt.Errorf("llm.routing.fallback is required")
	}

	r := &Router{byRole: make(map[string]LLMProvider), fallback: fallback}
	for role, key := range map[string]string{
		RoleAnalysis:   cfg.Routing.Analysis,
		RoleSynthesis:  cfg.Routing.Synthesis,
		RoleValidation: cfg.Routing.Validation,
		RoleChat:       cfg.Routing.Chat,
	} {
		p, err := bind(key)
		if err != nil {
			return nil, err
		}
		if p != nil {
			r.byRole[role] = p
		}
	}
	return r, nil
}

// For returns the provider for a role, falling back when unrouted.
func (r *Router) For(role string) LLMProvider {
	if p, ok := r.byRole[role]; ok {
		return p
	}
	return r.fallback
}

// OpenAIProvider implements LLMProvider over the OpenAI chat API.
type OpenAIProvider struct {
	config config.LLMProvider
	model  config.LLMModel
	client *http.Client
}

// NewOpenAIProvider creates an OpenAI provider bound to one model.
func NewOpenAIProvider(cfg config.LLMProvider, model config.LLMModel) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{config: cfg, model: model, client: &http.Client{Timeout: timeout}}
}

// Generate calls chat/completions, offering any tool schemas as
// functions and mapping tool_calls back to the provider-neutral form.
func (p *OpenAIProvider) Generate(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if p.config.APIKey == "" {
		return ChatResponse{}, fmt.Errorf("OpenAI API key not configured")
	}
	apiModel := p.model.APIName
	if apiModel == "" {
		apiModel = p.model.Name
	}

	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type toolDef struct {
		Type     string       `json:"type"`
		Function tools.Schema `json:"function"`
	}
	payload := map[string]interface{}{
		"model": apiModel,
		"messages": []chatMsg{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	if p.model.Temperature > 0 {
		payload["temperature"] = p.model.Temperature
	}
	if p.model.MaxTokens > 0 {
		payload["max_tokens"] = p.model.MaxTokens
	}
	if len(req.Tools) > 0 {
		defs := make([]toolDef, 0, len(req.Tools))
		for _, s := range req.Tools {
			defs = append(defs, toolDef{Type: "function", Function: s})
		}
		payload["tools"] = defs
	} else if req.JSONMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return ChatResponse{}, fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, string(msg))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChatResponse{}, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("no choices in OpenAI response")
	}

	msg := out.Choices[0].Message
	cr := ChatResponse{
		Text:   msg.Content,
		Model:  p.model.Name,
		Tokens: out.Usage.PromptTokens + out.Usage.CompletionTokens,
		Cost: float64(out.Usage.PromptTokens)/1000.0*p.model.CostPer1K +
			float64(out.Usage.CompletionTokens)/1000.0*p.model.CostPer1KOutput,
	}
	for _, tc := range msg.ToolCalls {
		args := make(map[string]interface{})
		if tc.Function.Arguments != "" {
			// Malformed arguments degrade to an empty map; the tool
			// itself reports the missing parameters.
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		cr.ToolCalls = append(cr.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return cr, nil
}

// AnthropicProvider implements LLMProvider over the Anthropic messages API.
type AnthropicProvider struct {
	config config.LLMProvider
	model  config.LLMModel
	client *http.Client
}

// NewAnthropicProvider creates an Anthropic provider bound to one model.
func NewAnthropicProvider(cfg config.LLMProvider, model config.LLMModel) *AnthropicProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicProvider{config: cfg, model: model, client: &http.Client{Timeout: timeout}}
}

// Generate calls v1/messages. Tool schemas map to Anthropic's tool
// format with the parameters object renamed to input_schema.
func (p *AnthropicProvider) Generate(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if p.config.APIKey == "" {
		return ChatResponse{}, fmt.Errorf("Anthropic API key not configured")
	}
	apiModel := p.model.APIName
	if apiModel == "" {
		apiModel = p.model.Name
	}

	maxTokens := p.model.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	payload := map[string]interface{}{
		"model":      apiModel,
		"max_tokens": maxTokens,
		"system":     req.System,
		"messages": []map[string]string{
			{"role": "user", "content": req.User},
		},
	}
	if p.model.Temperature > 0 {
		payload["temperature"] = p.model.Temperature
	}
	if len(req.Tools) > 0 {
		defs := make([]map[string]interface{}, 0, len(req.Tools))
		for _, s := range req.Tools {
			defs = append(defs, map[string]interface{}{
				"name":         s.Name,
				"description":  s.Description,
				"input_schema": s.Parameters,
			})
		}
		payload["tools"] = defs
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.config.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return ChatResponse{}, fmt.Errorf("Anthropic status %d: %s", resp.StatusCode, string(msg))
	}

	var out struct {
		Content []struct {
			Type  string                 `json:"type"`
			Text  string                 `json:"text"`
			ID    string                 `json:"id"`
			Name  string                 `json:"name"`
			Input map[string]interface{} `json:"input"`
		} `json:"content"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChatResponse{}, fmt.Errorf("decode: %w", err)
	}

	cr := ChatResponse{
		Model:  p.model.Name,
		Tokens: out.Usage.InputTokens + out.Usage.OutputTokens,
		Cost: float64(out.Usage.InputTokens)/1000.0*p.model.CostPer1K +
			float64(out.Usage.OutputTokens)/1000.0*p.model.CostPer1KOutput,
	}
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			cr.Text += block.Text
		case "tool_use":
			cr.ToolCalls = append(cr.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Args: block.Input})
		}
	}
	return cr, nil
}
