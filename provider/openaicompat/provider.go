// Package openaicompat implements aidra.LLMAdapter against any API that
// speaks the OpenAI chat completions wire format: OpenAI, OpenRouter, Groq,
// Together, Fireworks, DeepSeek, Mistral, Ollama, vLLM, LM Studio, Azure
// OpenAI.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	aidra "github.com/nevindra/aidra"
)

// Provider is an aidra.LLMAdapter backed by an OpenAI-compatible chat
// completions endpoint.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	opts    []Option
}

// NewProvider creates an OpenAI-compatible chat provider.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "https://api.groq.com/openai/v1", "http://localhost:11434/v1"). The
// /chat/completions path is appended automatically.
func NewProvider(apiKey, model, baseURL string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ aidra.LLMAdapter = (*Provider)(nil)

// Name returns the provider name (default "openai", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// UserAgentTurn sends the running transcript plus tool schemas to the
// configured endpoint and parses its next turn.
func (p *Provider) UserAgentTurn(ctx context.Context, systemContext string, history []aidra.Message, tools []aidra.ToolSchema) (aidra.FinalMessage, error) {
	body := BuildBody(systemContext, history, tools, p.model, p.opts...)
	return p.doGenerate(ctx, body)
}

// SummarizeChunk asks the model to fold a bounded slice of conversation
// history into a short prose summary.
func (p *Provider) SummarizeChunk(ctx context.Context, messages []aidra.Message) (string, error) {
	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	instruction := "Summarize the following conversation excerpt in a few dense sentences, preserving names, decisions, and facts that matter for later turns. Do not add commentary."
	body := BuildBody(instruction, []aidra.Message{{Role: aidra.RoleUser, Content: transcript.String()}}, nil, p.model, p.opts...)

	turn, err := p.doGenerate(ctx, body)
	if err != nil {
		return "", err
	}
	return turn.Text, nil
}

// MergeSummaries asks the model to fold a prior running summary and newly
// produced chunk summaries into one coherent summary.
func (p *Provider) MergeSummaries(ctx context.Context, priorSummary string, chunkSummaries []string) (string, error) {
	var sb strings.Builder
	if priorSummary != "" {
		sb.WriteString("Existing summary:\n")
		sb.WriteString(priorSummary)
		sb.WriteString("\n\n")
	}
	sb.WriteString("New material to fold in:\n")
	for _, c := range chunkSummaries {
		sb.WriteString(c)
		sb.WriteString("\n")
	}

	instruction := "Merge the existing summary with the new material into one coherent, non-redundant running summary."
	body := BuildBody(instruction, []aidra.Message{{Role: aidra.RoleUser, Content: sb.String()}}, nil, p.model, p.opts...)

	turn, err := p.doGenerate(ctx, body)
	if err != nil {
		return "", err
	}
	return turn.Text, nil
}

// doGenerate sends a non-streaming chat completion request and parses the response.
func (p *Provider) doGenerate(ctx context.Context, body ChatRequest) (aidra.FinalMessage, error) {
	resp, err := p.sendHTTP(ctx, body)
	if err != nil {
		return aidra.FinalMessage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return aidra.FinalMessage{}, p.httpErr(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return aidra.FinalMessage{}, p.wrapErr("decode response: " + err.Error())
	}

	return ParseResponse(chatResp), nil
}

// sendHTTP marshals the request body and sends it to the chat completions endpoint.
func (p *Provider) sendHTTP(ctx context.Context, body ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, p.wrapErr("marshal request: " + err.Error())
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, p.wrapErr("create request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.wrapErr("request failed: " + err.Error())
	}
	return resp, nil
}

func (p *Provider) wrapErr(msg string) error {
	return fmt.Errorf("%s: %s: %w", p.name, msg, aidra.ErrUpstream)
}

// httpErr reads the response body and wraps it as aidra.ErrUpstream.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s: http %d: %s: %w", p.name, resp.StatusCode, string(body), aidra.ErrUpstream)
}
