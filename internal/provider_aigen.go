package internal

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// AIGenProvider is the sole BOOK_GENERATION provider: given a free-text
// prompt, it asks a chat model to propose a reading list and parses its
// JSON response into GeneratedBook candidates. Every returned ISBN is
// untrusted input (§4.2) — BookGenerationOrchestrator.Generate validates
// and drops anything that fails a checksum before it reaches callers.
type AIGenProvider struct {
	client  *openai.Client
	model   string
	metrics *ProviderMetrics
}

var _ BookGenerationProvider = (*AIGenProvider)(nil)

func NewAIGenProvider(apiKey, model string, metrics *ProviderMetrics) *AIGenProvider {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &AIGenProvider{client: openai.NewClient(apiKey), model: model, metrics: metrics}
}

func (p *AIGenProvider) Descriptor() ProviderDescriptor {
	return ProviderDescriptor{
		Name:         "aigen",
		Type:         ProviderPaid,
		Capabilities: []Capability{CapBookGeneration},
	}
}

func (p *AIGenProvider) IsAvailable(ctx context.Context) bool { return p.client != nil }

type aiGenBook struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	ISBN       string `json:"isbn,omitempty"`
	Confidence int    `json:"confidence"`
}

// GenerateBooks implements BookGenerationProvider.
func (p *AIGenProvider) GenerateBooks(ctx CallContext, prompt string, count int) ([]GeneratedBook, error) {
	if count <= 0 {
		count = 10
	}
	instructions := fmt.Sprintf(
		`Suggest %d books matching: %q. Respond with a JSON array only, no prose, `+
			`each element shaped like {"title":"","author":"","isbn":"","confidence":0-100}. `+
			`Omit "isbn" if you are not confident in it; never fabricate a plausible-looking one.`,
		count, prompt,
	)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: instructions},
		},
		Temperature: 0.7,
	})
	if err != nil {
		p.metrics.callInc("aigen", "failure")
		return nil, TransientError("generation request failed", err.Error())
	}
	p.metrics.callInc("aigen", "success")
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	var parsed []aiGenBook
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		// A non-JSON response is a parse failure, not a retryable
		// transport error; the orchestrator treats an empty result the
		// same as "this provider had nothing".
		Log(ctx).Warn("aigen response was not valid JSON", "err", err)
		return nil, nil
	}

	books := make([]GeneratedBook, 0, len(parsed))
	for _, b := range parsed {
		if b.Title == "" || b.Author == "" {
			continue
		}
		books = append(books, GeneratedBook{Title: b.Title, Author: b.Author, ISBN: b.ISBN, Confidence: b.Confidence})
	}
	return books, nil
}
