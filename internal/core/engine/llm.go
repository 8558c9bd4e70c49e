package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/internal/prompts"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// LLMConfig configures an OpenAI-compatible chat completion endpoint
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// LLM is an Engine backed by an OpenAI-compatible chat completion API
type LLM struct {
	client         *openai.Client
	model          string
	embeddingModel string
}

var (
	_ Engine   = (*LLM)(nil)
	_ Embedder = (*LLM)(nil)
)

// NewLLM creates an LLM engine
func NewLLM(cfg LLMConfig) (*LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("LLM model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &LLM{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// DecideActions asks the model which tools to call for the utterance
func (l *LLM) DecideActions(ctx context.Context, req DecisionRequest) ([]ActionCall, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    l.model,
		Messages: conversation(req.SystemPrompt, req.History, req.Utterance),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	resp, err := l.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to decide actions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("failed to decide actions: empty response")
	}

	message := resp.Choices[0].Message
	calls := make([]ActionCall, 0, len(message.ToolCalls))
	for _, tc := range message.ToolCalls {
		calls = append(calls, ActionCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return calls, nil
}

// GenerateReply asks the model for the spoken reply
func (l *LLM) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    conversation(req.SystemPrompt, req.History, req.Utterance),
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	resp, err := l.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("failed to generate reply: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// ClassifyOutcome asks the model for a JSON outcome of the finished call
func (l *LLM) ClassifyOutcome(ctx context.Context, req OutcomeRequest) (domain.CallOutcome, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompts.OutcomeTranscript(req.Transcript)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	resp, err := l.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return domain.CallOutcome{}, fmt.Errorf("failed to classify outcome: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.CallOutcome{}, fmt.Errorf("failed to classify outcome: empty response")
	}

	outcome, err := parseOutcome(resp.Choices[0].Message.Content)
	if err != nil {
		logger.Warn(ctx, "Outcome response was not valid JSON", zap.String("content", resp.Choices[0].Message.Content))
		return domain.CallOutcome{}, err
	}
	return outcome, nil
}

// Embed returns one embedding per text using the configured embedding model
func (l *LLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if l.embeddingModel == "" {
		return nil, fmt.Errorf("embedding model is not configured")
	}

	resp, err := l.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(l.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	results := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(results) {
			results[data.Index] = data.Embedding
		}
	}
	return results, nil
}

func conversation(system string, history []domain.Exchange, utterance string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2*len(history)+2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, ex := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: ex.Caller})
		if ex.Agent != "" {
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: ex.Agent})
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: utterance})
	return messages
}

func convertTools(tools []ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Parameters, &schemaMap); err != nil {
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

// parseOutcome reads the outcome object out of model output that may carry
// reasoning text or code fences around the JSON.
func parseOutcome(content string) (domain.CallOutcome, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return domain.CallOutcome{}, fmt.Errorf("failed to parse outcome: no JSON object in response")
	}

	var outcome domain.CallOutcome
	if err := json.Unmarshal([]byte(content[start:end+1]), &outcome); err != nil {
		return domain.CallOutcome{}, fmt.Errorf("failed to parse outcome: %w", err)
	}
	return outcome.Normalize(), nil
}
