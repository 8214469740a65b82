package resolve

import "testing"

func TestDefaultBaseURL(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"openai", "https://api.openai.com/v1"},
		{"groq", "https://api.groq.com/openai/v1"},
		{"deepseek", "https://api.deepseek.com/v1"},
		{"together", "https://api.together.xyz/v1"},
		{"mistral", "https://api.mistral.ai/v1"},
		{"ollama", "http://localhost:11434/v1"},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := defaultBaseURL(tt.provider); got != tt.want {
			t.Errorf("defaultBaseURL(%q) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestLLMAdapter_Gemini(t *testing.T) {
	a, err := LLMAdapter(Config{Provider: "gemini", APIKey: "test-key", Model: "gemini-2.5-flash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil {
		t.Fatal("adapter is nil")
	}
}

func TestLLMAdapter_GeminiWithOptions(t *testing.T) {
	temp := 0.7
	topP := 0.95
	thinking := true
	a, err := LLMAdapter(Config{
		Provider:    "gemini",
		APIKey:      "test-key",
		Model:       "gemini-2.5-flash",
		Temperature: &temp,
		TopP:        &topP,
		Thinking:    &thinking,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil {
		t.Fatal("adapter is nil")
	}
}

func TestLLMAdapter_OpenAICompat(t *testing.T) {
	providers := []string{"openai", "groq", "deepseek", "together", "mistral", "ollama"}
	for _, name := range providers {
		t.Run(name, func(t *testing.T) {
			a, err := LLMAdapter(Config{Provider: name, APIKey: "test-key", Model: "test-model"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a == nil {
				t.Fatal("adapter is nil")
			}
		})
	}
}

func TestLLMAdapter_OpenAICompatCustomBaseURL(t *testing.T) {
	a, err := LLMAdapter(Config{Provider: "openai", APIKey: "test-key", Model: "custom-model", BaseURL: "https://custom.api.com/v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil {
		t.Fatal("adapter is nil")
	}
}

func TestLLMAdapter_ThinkingSkippedForOpenAI(t *testing.T) {
	thinking := true
	a, err := LLMAdapter(Config{Provider: "openai", APIKey: "test-key", Model: "gpt-4o", Thinking: &thinking})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil {
		t.Fatal("adapter is nil")
	}
	// Thinking is silently ignored for openai-compat — no error, no panic.
}

func TestLLMAdapter_UnknownProvider(t *testing.T) {
	if _, err := LLMAdapter(Config{Provider: "unknown-llm", APIKey: "test-key", Model: "test-model"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLLMAdapter_EmptyProvider(t *testing.T) {
	if _, err := LLMAdapter(Config{APIKey: "test-key", Model: "test-model"}); err == nil {
		t.Fatal("expected error for empty provider")
	}
}
