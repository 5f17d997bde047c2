// Package aws publishes notifications to an SNS topic or an SQS queue.
// Exactly one target is configured; message headers travel as string
// message attributes.
package aws

import (
	"context"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"coinpayments-webhooks/internal/brokers"
	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/common/logging"
)

// SNSAPI is the subset of *sns.Client the publisher uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	GetTopicAttributes(ctx context.Context, params *sns.GetTopicAttributesInput, optFns ...func(*sns.Options)) (*sns.GetTopicAttributesOutput, error)
}

// SQSAPI is the subset of *sqs.Client the publisher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	TopicARN        string
	QueueURL        string
}

func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.ConfigError("AWS region is required")
	}
	if (c.TopicARN == "") == (c.QueueURL == "") {
		return errors.ConfigError("exactly one of topic ARN or queue URL must be set")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.ConfigError("access key id and secret access key must be set together")
	}
	return nil
}

// fifo reports whether the queue needs group and deduplication ids.
func (c *Config) fifo() bool {
	return strings.HasSuffix(c.QueueURL, ".fifo")
}

type Publisher struct {
	config Config
	sns    SNSAPI
	sqs    SQSAPI
	logger logging.Logger
}

// NewPublisher loads the default AWS config chain. Static credentials
// override the chain when both keys are set.
func NewPublisher(ctx context.Context, config Config, logger logging.Logger) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*awsConfig.LoadOptions) error{awsConfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.ConnectionError("failed to load AWS config", err)
	}

	var snsClient SNSAPI
	var sqsClient SQSAPI
	if config.TopicARN != "" {
		snsClient = sns.NewFromConfig(cfg)
	} else {
		sqsClient = sqs.NewFromConfig(cfg)
	}
	return NewPublisherWithClients(config, snsClient, sqsClient, logger)
}

// NewPublisherWithClients uses existing clients. Only the client for the
// configured target is required.
func NewPublisherWithClients(config Config, snsClient SNSAPI, sqsClient SQSAPI, logger logging.Logger) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.TopicARN != "" && snsClient == nil {
		return nil, errors.ConfigError("SNS client is required")
	}
	if config.QueueURL != "" && sqsClient == nil {
		return nil, errors.ConfigError("SQS client is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		config: config,
		sns:    snsClient,
		sqs:    sqsClient,
		logger: logger.WithFields(logging.String("component", "aws_publisher")),
	}, nil
}

func (p *Publisher) Name() string { return "aws" }

func (p *Publisher) Publish(ctx context.Context, message *brokers.Message) error {
	if p.config.TopicARN != "" {
		return p.publishToSNS(ctx, message)
	}
	return p.publishToSQS(ctx, message)
}

func (p *Publisher) publishToSNS(ctx context.Context, message *brokers.Message) error {
	attrs := make(map[string]snsTypes.MessageAttributeValue, len(message.Headers)+2)
	attrs["MessageID"] = snsTypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(message.MessageID)}
	if message.RoutingKey != "" {
		attrs["RoutingKey"] = snsTypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(message.RoutingKey)}
	}
	for key, value := range message.Headers {
		if value == "" {
			continue
		}
		attrs["Header_"+key] = snsTypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(value)}
	}

	result, err := p.sns.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.config.TopicARN),
		Message:           aws.String(string(message.Body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return errors.ConnectionError("failed to publish message to SNS", err)
	}

	p.logger.Debug("Message published to SNS", logging.String("sns_message_id", aws.ToString(result.MessageId)))
	return nil
}

func (p *Publisher) publishToSQS(ctx context.Context, message *brokers.Message) error {
	attrs := make(map[string]sqsTypes.MessageAttributeValue, len(message.Headers)+3)
	attrs["MessageID"] = sqsTypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(message.MessageID)}
	if message.RoutingKey != "" {
		attrs["RoutingKey"] = sqsTypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(message.RoutingKey)}
	}
	for key, value := range message.Headers {
		if value == "" {
			continue
		}
		attrs["Header_"+key] = sqsTypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(value)}
	}
	attrs["Timestamp"] = sqsTypes.MessageAttributeValue{
		DataType:    aws.String("Number"),
		StringValue: aws.String(strconv.FormatInt(message.Timestamp.UnixNano(), 10)),
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.config.QueueURL),
		MessageBody:       aws.String(string(message.Body)),
		MessageAttributes: attrs,
	}
	if p.config.fifo() {
		group := message.Headers[brokers.HeaderSubject]
		if group == "" {
			group = "coinpayments"
		}
		dedup := message.Headers[brokers.HeaderEventID]
		if dedup == "" {
			dedup = message.MessageID
		}
		input.MessageGroupId = aws.String(group)
		input.MessageDeduplicationId = aws.String(dedup)
	}

	result, err := p.sqs.SendMessage(ctx, input)
	if err != nil {
		return errors.ConnectionError("failed to send message to SQS", err)
	}

	p.logger.Debug("Message sent to SQS", logging.String("sqs_message_id", aws.ToString(result.MessageId)))
	return nil
}

func (p *Publisher) Health(ctx context.Context) error {
	if p.config.TopicARN != "" {
		if _, err := p.sns.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{TopicArn: aws.String(p.config.TopicARN)}); err != nil {
			return errors.ConnectionError("SNS topic unavailable", err)
		}
		return nil
	}

	_, err := p.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(p.config.QueueURL),
		AttributeNames: []sqsTypes.QueueAttributeName{sqsTypes.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return errors.ConnectionError("SQS queue unavailable", err)
	}
	return nil
}

// Close is a no-op; SDK v2 clients hold no connections that need closing.
func (p *Publisher) Close() error { return nil }

var _ brokers.Publisher = (*Publisher)(nil)
