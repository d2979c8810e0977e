package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/entities"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/execution"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSPublisher_Publish(t *testing.T) {
	fake := &fakeSNS{}
	p := &SNSPublisher{client: fake, topicARN: "arn:aws:sns:us-east-1:123456789012:executions", logger: zap.NewNop()}

	event := execution.Event{
		TransactionID: uuid.New(),
		SignalID:      uuid.New(),
		Owner:         "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		SignalType:    entities.SignalTypeSOLToUSDC,
		Outcome:       execution.OutcomeConfirmed,
		AmountIn:      2_500_000_000,
		AmountOut:     370_000_000,
		Fee:           370_000,
		OccurredAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, p.topicARN, aws.ToString(in.TopicArn))
	assert.Equal(t, "confirmed", aws.ToString(in.MessageAttributes["event_type"].StringValue))

	var decoded execution.Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.Message)), &decoded))
	assert.Equal(t, event.TransactionID, decoded.TransactionID)
	assert.Equal(t, int64(370_000), decoded.Fee)
}

func TestSNSPublisher_Error(t *testing.T) {
	p := &SNSPublisher{client: &fakeSNS{err: errors.New("throttled")}, topicARN: "arn", logger: zap.NewNop()}

	err := p.Publish(context.Background(), execution.Event{Outcome: execution.OutcomeFailed})

	assert.ErrorContains(t, err, "throttled")
}
