package app

import (
	"context"
	"fmt"

	"coinpayments-webhooks/internal/brokers"
	"coinpayments-webhooks/internal/brokers/aws"
	"coinpayments-webhooks/internal/brokers/gcp"
	"coinpayments-webhooks/internal/brokers/kafka"
	"coinpayments-webhooks/internal/brokers/rabbitmq"
	redisbroker "coinpayments-webhooks/internal/brokers/redis"
	"coinpayments-webhooks/internal/circuitbreaker"
	"coinpayments-webhooks/internal/common/logging"
)

// initializePublisher creates the publisher named by BROKER_TYPE and, unless
// disabled, puts it behind a circuit breaker.
func (app *App) initializePublisher(ctx context.Context) error {
	publisher, err := app.newPublisher(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize %s broker: %w", app.Config.BrokerType, err)
	}

	if app.Config.BreakerEnabled && app.Config.BrokerType != "none" {
		breaker := circuitbreaker.New(publisher.Name(), circuitbreaker.Config{
			MaxFailures:           app.Config.BreakerMaxFailuresValue(),
			Timeout:               app.Config.BreakerTimeoutValue(),
			MaxConcurrentRequests: 1,
		}, app.Logger)
		app.Publisher = brokers.WithBreaker(publisher, breaker)
	} else {
		app.Publisher = publisher
	}

	app.Logger.Info("Broker: Ready", logging.String("type", publisher.Name()))
	return nil
}

func (app *App) newPublisher(ctx context.Context) (brokers.Publisher, error) {
	cfg := app.Config

	switch cfg.BrokerType {
	case "redis":
		return redisbroker.NewPublisher(app.RedisClient, redisbroker.Config{
			Stream:       cfg.EventStream,
			StreamMaxLen: cfg.StreamMaxLenValue(),
		})

	case "rabbitmq":
		return rabbitmq.NewPublisher(rabbitmq.Config{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.RabbitMQExchange,
		}, nil, app.Logger)

	case "kafka":
		return kafka.NewPublisher(kafka.Config{
			Brokers:          cfg.KafkaBrokerList(),
			Topic:            cfg.KafkaTopic,
			SecurityProtocol: cfg.KafkaSecurity,
			SASLMechanism:    cfg.KafkaSASLMechanism,
			SASLUsername:     cfg.KafkaSASLUsername,
			SASLPassword:     cfg.KafkaSASLPassword,
		})

	case "aws":
		return aws.NewPublisher(ctx, aws.Config{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			TopicARN:        cfg.AWSSNSTopicARN,
			QueueURL:        cfg.AWSSQSQueueURL,
		}, app.Logger)

	case "gcp":
		return gcp.NewPublisher(ctx, gcp.Config{
			ProjectID:       cfg.GCPProjectID,
			TopicID:         cfg.GCPTopicID,
			CredentialsFile: cfg.GCPCredentialsFile,
		}, app.Logger)

	case "none", "":
		return brokers.NewLogPublisher(app.Logger), nil

	default:
		return nil, fmt.Errorf("unsupported broker type %q", cfg.BrokerType)
	}
}
