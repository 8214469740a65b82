// Package gemini implements aidra.LLMAdapter against the Google Gemini
// generateContent API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	aidra "github.com/nevindra/aidra"
)

var baseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements aidra.LLMAdapter for Google Gemini models.
type Gemini struct {
	apiKey     string
	model      string
	httpClient *http.Client

	temperature     float64
	topP            float64
	thinkingEnabled bool
}

// New creates a Gemini adapter with functional options.
func New(apiKey, model string, opts ...Option) *Gemini {
	g := &Gemini{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
		temperature: 0.1,
		topP:        0.9,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var _ aidra.LLMAdapter = (*Gemini)(nil)

// UserAgentTurn sends the running transcript plus tool schemas to Gemini
// and parses its next turn: either plain text, or one or more function
// calls the agent loop must dispatch.
func (g *Gemini) UserAgentTurn(ctx context.Context, systemContext string, history []aidra.Message, tools []aidra.ToolSchema) (aidra.FinalMessage, error) {
	body := g.buildBody(systemContext, history, tools)
	parsed, err := g.doGenerate(ctx, body)
	if err != nil {
		return aidra.FinalMessage{}, err
	}
	return parsed, nil
}

// SummarizeChunk asks Gemini to fold a bounded slice of conversation
// history into a short prose summary.
func (g *Gemini) SummarizeChunk(ctx context.Context, messages []aidra.Message) (string, error) {
	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	instruction := "Summarize the following conversation excerpt in a few dense sentences, preserving names, decisions, and facts that matter for later turns. Do not add commentary."
	body := g.buildBody(instruction, []aidra.Message{{Role: aidra.RoleUser, Content: transcript.String()}}, nil)

	turn, err := g.doGenerate(ctx, body)
	if err != nil {
		return "", err
	}
	return turn.Text, nil
}

// MergeSummaries asks Gemini to fold a prior running summary and newly
// produced chunk summaries into one coherent summary.
func (g *Gemini) MergeSummaries(ctx context.Context, priorSummary string, chunkSummaries []string) (string, error) {
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
	body := g.buildBody(instruction, []aidra.Message{{Role: aidra.RoleUser, Content: sb.String()}}, nil)

	turn, err := g.doGenerate(ctx, body)
	if err != nil {
		return "", err
	}
	return turn.Text, nil
}

func (g *Gemini) doGenerate(ctx context.Context, body map[string]any) (aidra.FinalMessage, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", baseURL, g.model, g.apiKey)

	payload, err := json.Marshal(body)
	if err != nil {
		return aidra.FinalMessage{}, g.wrapErr("marshal body: " + err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return aidra.FinalMessage{}, g.wrapErr("create request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return aidra.FinalMessage{}, g.wrapErr("request failed: " + err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return aidra.FinalMessage{}, g.wrapErr("read response body: " + err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return aidra.FinalMessage{}, g.httpErr(resp.StatusCode, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return aidra.FinalMessage{}, g.wrapErr("parse response JSON: " + err.Error())
	}

	var thinking strings.Builder
	var text strings.Builder
	var calls []aidra.ToolInvocation

	if len(parsed.Candidates) > 0 {
		for _, part := range parsed.Candidates[0].Content.Parts {
			if part.Thought {
				if part.Text != nil {
					thinking.WriteString(*part.Text)
				}
				continue
			}
			if part.Text != nil {
				text.WriteString(*part.Text)
			}
			if part.FunctionCall != nil {
				var args map[string]any
				if len(part.FunctionCall.Args) > 0 {
					_ = json.Unmarshal(part.FunctionCall.Args, &args)
				}
				calls = append(calls, aidra.ToolInvocation{ID: aidra.NewID(), Name: part.FunctionCall.Name, Arguments: args})
			}
		}
	}

	return aidra.FinalMessage{
		Thinking:  thinking.String(),
		IsFinal:   len(calls) == 0,
		Text:      text.String(),
		ToolCalls: calls,
	}, nil
}

func (g *Gemini) wrapErr(msg string) error {
	return fmt.Errorf("gemini: %s: %w", msg, aidra.ErrUpstream)
}

func (g *Gemini) httpErr(status int, body string) error {
	return fmt.Errorf("gemini: http %d: %s: %w", status, body, aidra.ErrUpstream)
}

// buildBody constructs the Gemini generateContent request body from a
// system instruction, history, and the fixed tool set.
func (g *Gemini) buildBody(systemInstruction string, history []aidra.Message, tools []aidra.ToolSchema) map[string]any {
	contents := make([]map[string]any, 0, len(history))
	for _, m := range history {
		contents = append(contents, map[string]any{
			"role":  mapRole(m.Role),
			"parts": []map[string]any{{"text": m.Content}},
		})
	}

	body := map[string]any{"contents": contents}

	if systemInstruction != "" {
		body["systemInstruction"] = map[string]any{"parts": []map[string]any{{"text": systemInstruction}}}
	}

	if len(tools) > 0 {
		declarations := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			var params any = t.Parameters
			if params == nil {
				params = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			declarations = append(declarations, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			})
		}
		body["tools"] = []map[string]any{{"functionDeclarations": declarations}}
	}

	genConfig := map[string]any{"temperature": g.temperature, "topP": g.topP}
	if g.thinkingEnabled {
		genConfig["thinkingConfig"] = map[string]any{"thinkingBudget": -1}
	}
	body["generationConfig"] = genConfig

	return body
}

func mapRole(role aidra.MessageRole) string {
	switch role {
	case aidra.RoleAssistant:
		return "model"
	case aidra.RoleTool:
		return "user"
	default:
		return "user"
	}
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role"`
}

type geminiPart struct {
	Text         *string         `json:"text,omitempty"`
	FunctionCall *geminiFuncCall `json:"functionCall,omitempty"`
	Thought      bool            `json:"thought,omitempty"`
}

type geminiFuncCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}
