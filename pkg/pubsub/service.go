package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/ClareAI/astra-receptionist-service/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	PubID     string `mapstructure:"pub_id"`
}

type PubSubService struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	config *PubSubConfig
}

// CallOutcomeEvent is published once per finished call
type CallOutcomeEvent struct {
	ID              string    `json:"id"`
	CallSID         string    `json:"call_sid"`
	CallerNumber    string    `json:"caller_number"`
	CallerName      string    `json:"caller_name,omitempty"`
	Status          string    `json:"status"`
	Decision        string    `json:"decision"`
	DecisionLabel   string    `json:"decision_label"`
	Summary         string    `json:"summary"`
	DurationSeconds int       `json:"duration_seconds"`
	TurnCount       int       `json:"turn_count"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
}

func NewPubSubService(ctx context.Context, cfg *PubSubConfig) (*PubSubService, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PubSub project ID is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create PubSub client: %w", err)
	}

	topic := client.Topic(cfg.TopicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check if topic exists: %w", err)
	}

	if !exists {
		logger.Base().Info("topic does not exist, creating", zap.String("topic", cfg.TopicName))
		topic, err = client.CreateTopic(ctx, cfg.TopicName)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create topic %s: %w", cfg.TopicName, err)
		}
	}

	return &PubSubService{
		client: client,
		topic:  topic,
		config: cfg,
	}, nil
}

// PublishCallOutcome publishes the outcome of a finished call and waits for the ack
func (p *PubSubService) PublishCallOutcome(ctx context.Context, event CallOutcomeEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal call outcome event: %w", err)
	}

	message := &pubsub.Message{
		Attributes: map[string]string{
			"name":     fmt.Sprintf("%s:%s", p.config.PubID, event.ID),
			"type":     "call_outcome",
			"decision": event.Decision,
		},
		Data: data,
	}

	if _, err := p.topic.Publish(ctx, message).Get(ctx); err != nil {
		logger.Error(ctx, "failed to publish call outcome", zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	logger.Base().Info("published call outcome",
		zap.String("call_id", event.CallSID),
		zap.String("decision", event.Decision),
		zap.String("event_id", event.ID))
	return nil
}

func (p *PubSubService) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
