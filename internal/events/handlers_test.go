package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSHandlerSendsEnvelope(t *testing.T) {
	client := &fakeSQS{}
	h := NewSQSHandler(client, "https://sqs.local/bookings")
	entry := OutboxEntry{
		ID:        uuid.New(),
		TenantID:  "clinic-1",
		Type:      TypeBookingStatusChanged,
		Payload:   json.RawMessage(`{"to":"confirmed"}`),
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, h.Handle(context.Background(), entry))
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "https://sqs.local/bookings", aws.ToString(in.QueueUrl))
	assert.Equal(t, TypeBookingStatusChanged, aws.ToString(in.MessageAttributes["event_type"].StringValue))

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &env))
	assert.Equal(t, entry.ID.String(), env.EventID)
	assert.JSONEq(t, `{"to":"confirmed"}`, string(env.Payload))
}

func TestSQSHandlerWrapsErrors(t *testing.T) {
	h := NewSQSHandler(&fakeSQS{err: errors.New("throttled")}, "q")
	err := h.Handle(context.Background(), OutboxEntry{ID: uuid.New()})
	assert.ErrorContains(t, err, "throttled")
}

func TestNewSQSHandlerPanicsWithoutQueue(t *testing.T) {
	assert.Panics(t, func() { NewSQSHandler(&fakeSQS{}, "") })
}

func TestLogHandler(t *testing.T) {
	assert.NoError(t, NewLogHandler(nil).Handle(context.Background(), OutboxEntry{ID: uuid.New(), Type: "x"}))
}
