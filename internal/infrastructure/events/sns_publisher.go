// Package events publishes execution outcomes to AWS SNS for downstream
// consumers such as wallet notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/domain/services/execution"
)

type publishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher sends each execution event as a JSON message to one topic
type SNSPublisher struct {
	client   publishAPI
	topicARN string
	logger   *zap.Logger
}

// NewSNSPublisher loads the default AWS credential chain for region
func NewSNSPublisher(ctx context.Context, region, topicARN string, logger *zap.Logger) (*SNSPublisher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SNSPublisher{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: topicARN,
		logger:   logger,
	}, nil
}

// Publish implements execution.EventPublisher
func (p *SNSPublisher) Publish(ctx context.Context, event execution.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal execution event: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(string(event.Outcome))},
			"owner":      {DataType: aws.String("String"), StringValue: aws.String(event.Owner)},
		},
	})
	if err != nil {
		return fmt.Errorf("SNS publish failed: %w", err)
	}

	p.logger.Debug("Execution event published",
		zap.String("transaction_id", event.TransactionID.String()),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
