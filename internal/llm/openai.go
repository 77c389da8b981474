package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// Message is a minimal chat message used by the reasoning engine.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// Client defines the methods required by the reasoning engine and the
// summariser.  Chat accepts the full message history (system + prior turns +
// latest user).
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Summarize(ctx context.Context, instruction, text string) (string, error)
}

// Options configures an OpenAIClient.  BaseURL may point at any
// OpenAI-compatible endpoint (Groq, a local gateway, ...).
type Options struct {
	APIKey       string
	BaseURL      string
	ChatModel    string
	SummaryModel string
	// JSONMode asks the endpoint to constrain chat output to a JSON object.
	JSONMode bool
}

// OpenAIClient calls an OpenAI-compatible API for chat and summarisation.
type OpenAIClient struct {
	client       *openai.Client
	chatModel    string
	summaryModel string
	jsonMode     bool
}

// NewOpenAIClient constructs an OpenAI-backed LLM client.
func NewOpenAIClient(opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	chatModel := opts.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	summaryModel := opts.SummaryModel
	if summaryModel == "" {
		summaryModel = chatModel
	}
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(cfg),
		chatModel:    chatModel,
		summaryModel: summaryModel,
		jsonMode:     opts.JSONMode,
	}
}

// Chat sends the message history to the chat completion API and returns the
// assistant's response.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}

	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			// coerce anything unknown to user
			role = openai.ChatMessageRoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    oaMsgs,
		Temperature: 0.2,
		MaxTokens:   1200,
	}
	if c.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Summarize condenses text according to instruction using the summary model.
func (c *OpenAIClient) Summarize(ctx context.Context, instruction, text string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.summaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.2,
		MaxTokens:   250,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
