package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

// SQSAPI is the subset of the SQS client used for delivery.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSHandler forwards outbox entries to an SQS queue read by reporting and
// notification consumers.
type SQSHandler struct {
	client   SQSAPI
	queueURL string
}

func NewSQSHandler(client SQSAPI, queueURL string) *SQSHandler {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSHandler{client: client, queueURL: queueURL}
}

type envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	TenantID  string          `json:"tenant_id"`
	CreatedAt int64           `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

func (h *SQSHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	body, err := json.Marshal(envelope{
		EventID:   entry.ID.String(),
		EventType: entry.Type,
		TenantID:  entry.TenantID,
		CreatedAt: entry.CreatedAt.UnixMicro(),
		Payload:   entry.Payload,
	})
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	_, err = h.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(h.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
			"tenant_id":  {DataType: aws.String("String"), StringValue: aws.String(entry.TenantID)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: send SQS message: %w", err)
	}
	return nil
}

// LogHandler writes entries to the structured log. Used when no queue is configured.
type LogHandler struct {
	logger *logging.Logger
}

func NewLogHandler(logger *logging.Logger) *LogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(_ context.Context, entry OutboxEntry) error {
	h.logger.Info("booking event", "event_id", entry.ID, "type", entry.Type, "tenant_id", entry.TenantID, "payload", string(entry.Payload))
	return nil
}
