package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jianli1806/Autotok/config"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// NewBackend builds the backend selected by cfg.LLM.Provider
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.LLM.Provider {
	case config.ProviderGroq, "":
		return NewOpenAIBackend(cfg.Credentials.GroqAPIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Temperature), nil
	case config.ProviderGemini:
		model := cfg.LLM.Model
		if model == "" || model == config.Default().LLM.Model {
			model = defaultGeminiModel
		}
		return NewGeminiBackend(ctx, cfg.Credentials.GeminiAPIKey, model, cfg.LLM.Temperature)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint.
// Groq is reached by pointing the base URL at its /openai/v1/ root.
type OpenAIBackend struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAIBackend creates a backend that never retries on its own
func NewOpenAIBackend(apiKey, baseURL, model string, temperature float64) *OpenAIBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIBackend{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
	}
}

func (b *OpenAIBackend) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(b.model),
		Temperature: openai.Float(b.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("chat completion returned empty content")
	}
	return content, nil
}

// GeminiBackend uses the Gemini API through google.golang.org/genai
type GeminiBackend struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiBackend(ctx context.Context, apiKey, model string, temperature float64) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model, temperature: float32(temperature)}, nil
}

func (b *GeminiBackend) Complete(ctx context.Context, prompt string) (string, error) {
	temp := b.temperature
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}
