package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/allionai/allion/internal/models"
)

// Default system prompt for the repair assistant. The agent is scoped to
// automotive diagnostics; the context block carries retrieved chunks.
const defaultSystemTemplate = `You are an expert automotive diagnostic technician and repair specialist.
Use the following context from technical service bulletins, repair manuals, and diagnostic procedures to provide a clear and complete answer.

Instructions:
- Focus on automotive diagnostic and repair information
- Provide specific, actionable guidance when possible
- Include relevant diagnostic trouble codes (DTCs) if applicable
- Mention safety considerations when relevant
- If the context doesn't contain enough information, say so clearly
- Be concise but thorough`

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
	BaseURL        string // OpenAI-compatible endpoint (OpenRouter supported)
	APIKey         string
}

// ChatEngine is an engine that uses an LLM to generate chat responses.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = defaultSystemTemplate
	}

	opts := []openai.Option{openai.WithModel(config.Model)}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}
	if config.APIKey != "" {
		opts = append(opts, openai.WithToken(config.APIKey))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// BuildContext renders retrieved documents into a single prompt block.
func BuildContext(docs []models.Document) string {
	var b strings.Builder
	for _, doc := range docs {
		b.WriteString(fmt.Sprintf("Source: %s (page %d)\n%s\n\n", doc.Source, doc.Page, doc.Content))
	}
	return b.String()
}

// Chat generates a response based on the query and context documents.
func (ce *ChatEngine) Chat(ctx context.Context, query string, docs []models.Document) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Context:\n%s\nQuestion: %s", BuildContext(docs), query)),
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return response.Choices[0].Content, nil
}

// ChatStream generates a stream of response chunks for the query.
func (ce *ChatEngine) ChatStream(ctx context.Context, query string, docs []models.Document) (<-chan string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Context:\n%s\nQuestion: %s", BuildContext(docs), query)),
	}

	resultChan := make(chan string)

	go func() {
		defer close(resultChan)

		_, err := ce.llm.GenerateContent(ctx, content,
			llms.WithMaxTokens(ce.config.MaxTokens),
			llms.WithTemperature(ce.config.Temperature),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case resultChan <- string(chunk):
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			}),
		)
		if err != nil {
			resultChan <- fmt.Sprintf("Error: %v", err)
		}
	}()

	return resultChan, nil
}

// Describe answers a question about a shared image. The image is passed as a
// data URL or a fetchable URL.
func (ce *ChatEngine) Describe(ctx context.Context, query, imageURL string) (string, error) {
	if query == "" {
		query = "What do you see in this image? Focus on any visible automotive components or damage."
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(query),
				llms.ImageURLPart(imageURL),
			},
		},
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("vision error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return response.Choices[0].Content, nil
}

// Summarize condenses web search results into an answer for the query.
func (ce *ChatEngine) Summarize(ctx context.Context, query string, results []models.WebResult) (string, error) {
	if len(results) == 0 {
		return "No web results to summarize.", nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, r.Title, r.Snippet)
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(
			"Summarize the following online repair resources into a direct answer.\n\nResults:\n%s\nQuestion: %s", b.String(), query)),
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("summarize error: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return response.Choices[0].Content, nil
}

// FormatSources lists unique sources for citation.
func FormatSources(docs []models.Document) []string {
	var sources []string
	seen := make(map[string]bool)

	for _, doc := range docs {
		if !seen[doc.Source] {
			sources = append(sources, doc.Source)
			seen[doc.Source] = true
		}
	}

	return sources
}
