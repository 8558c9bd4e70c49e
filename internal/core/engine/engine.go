// Package engine is the reasoning capability behind the receptionist: picking
// actions for an utterance, writing the spoken reply and classifying a
// finished call.
package engine

import (
	"context"
	"encoding/json"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
)

// ToolSpec describes one action the engine may request
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ActionCall is an action requested by the engine. Arguments is the raw JSON
// argument object as produced by the engine and is not trusted.
type ActionCall struct {
	Name      string
	Arguments string
}

type DecisionRequest struct {
	SystemPrompt string
	Utterance    string
	History      []domain.Exchange
	Context      domain.Context
	Tools        []ToolSpec
	MaxTokens    int
}

type ReplyRequest struct {
	SystemPrompt string
	Utterance    string
	History      []domain.Exchange
	Context      domain.Context
	MaxTokens    int
	Temperature  float32
}

type OutcomeRequest struct {
	SystemPrompt string
	Transcript   []string
	MaxTokens    int
}

// Engine is implemented by the LLM engine, the rule-based engine and the
// wrappers around them.
type Engine interface {
	DecideActions(ctx context.Context, req DecisionRequest) ([]ActionCall, error)
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
	ClassifyOutcome(ctx context.Context, req OutcomeRequest) (domain.CallOutcome, error)
}

// Embedder turns text into vectors for similarity search
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
