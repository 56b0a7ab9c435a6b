package services

import (
	"context"
	"fmt"
	"log/slog"

	"partyflow/models"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const correlationIDKey = "correlation_id"

// TicketPublisher announces freshly issued tickets.
type TicketPublisher interface {
	PublishTicketIssued(ctx context.Context, evt models.TicketIssued) error
}

// TicketEventBus carries TicketIssued events from the confirmation handler
// to its subscribers. Events go through Redis streams when a Redis client
// is given and through an in-process channel otherwise.
type TicketEventBus struct {
	bus       *cqrs.EventBus
	processor *cqrs.EventProcessor
	router    *message.Router
	logger    watermill.LoggerAdapter
}

func NewTicketEventBus(redisClient *redis.Client, logger *slog.Logger) (*TicketEventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	var (
		publisher     message.Publisher
		newSubscriber func(handlerName string) (message.Subscriber, error)
	)

	if redisClient != nil {
		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("create redis stream publisher: %w", err)
		}
		publisher = pub
		newSubscriber = func(handlerName string) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        redisClient,
				ConsumerGroup: "partyflow." + handlerName,
			}, wmLogger)
		}
	} else {
		pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		publisher = pubSub
		newSubscriber = func(string) (message.Subscriber, error) {
			return pubSub, nil
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create message router: %w", err)
	}
	router.AddMiddleware(
		middleware.Recoverer,
		injectCorrelationID,
		logHandling(logger),
	)

	marshaler := cqrs.JSONMarshaler{GenerateName: cqrs.StructName}

	bus, err := cqrs.NewEventBusWithConfig(publisher, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			return params.EventName, nil
		},
		Marshaler: marshaler,
		Logger:    wmLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("create event bus: %w", err)
	}

	processor, err := cqrs.NewEventProcessorWithConfig(router, cqrs.EventProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return params.EventName, nil
		},
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return newSubscriber(params.HandlerName)
		},
		Marshaler: marshaler,
		Logger:    wmLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("create event processor: %w", err)
	}

	return &TicketEventBus{
		bus:       bus,
		processor: processor,
		router:    router,
		logger:    wmLogger,
	}, nil
}

func (b *TicketEventBus) PublishTicketIssued(ctx context.Context, evt models.TicketIssued) error {
	return b.bus.Publish(ctx, &evt)
}

// OnTicketIssued registers a handler. Handlers must be added before Run.
func (b *TicketEventBus) OnTicketIssued(name string, handle func(ctx context.Context, evt *models.TicketIssued) error) error {
	return b.processor.AddHandlers(cqrs.NewEventHandler(name, handle))
}

// Run blocks until ctx is done or the router is closed.
func (b *TicketEventBus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (b *TicketEventBus) Running() chan struct{} {
	return b.router.Running()
}

func (b *TicketEventBus) Close() error {
	return b.router.Close()
}

func injectCorrelationID(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get(correlationIDKey) == "" {
			msg.Metadata.Set(correlationIDKey, watermill.NewUUID())
		}
		return next(msg)
	}
}

func logHandling(logger *slog.Logger) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			msgs, err := next(msg)
			if err != nil {
				// acked anyway, side-channel deliveries are not retried
				logger.Error("Message handling error",
					"message_uuid", msg.UUID,
					"correlation_id", msg.Metadata.Get(correlationIDKey),
					"error", err,
				)
				return nil, nil
			}
			return msgs, nil
		}
	}
}
