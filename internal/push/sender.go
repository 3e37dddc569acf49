package push

import (
	"context"

	"github.com/rs/zerolog"

	"giberno-chat-service/internal/models"
	"giberno-chat-service/internal/observability"
	"giberno-chat-service/internal/rabbitmq"
)

// Sender hands push batches to the provider transport.
type Sender interface {
	EnqueueBatch(ctx context.Context, batch models.PushBatch) error
}

// AMQPSender publishes batches to the push exchange, routed per platform. The
// provider workers consume them with at-least-once semantics; publishing is
// fire-and-forget from the dispatcher's point of view.
type AMQPSender struct {
	publisher rabbitmq.Publisher
	log       zerolog.Logger
}

// NewAMQPSender constructs a sender on top of the shared publisher.
func NewAMQPSender(publisher rabbitmq.Publisher, logger zerolog.Logger) *AMQPSender {
	return &AMQPSender{
		publisher: publisher,
		log:       logger.With().Str("component", "push_sender").Logger(),
	}
}

// EnqueueBatch publishes one batch, keyed push.<platform>.
func (s *AMQPSender) EnqueueBatch(ctx context.Context, batch models.PushBatch) error {
	err := s.publisher.Publish(ctx, "push."+batch.Platform, batch)
	if err != nil {
		s.log.Error().Err(err).Str("platform", batch.Platform).Int("tokens", len(batch.Tokens)).Msg("push batch publish failed")
		observability.IncPushPublishError()
		return err
	}
	observability.IncPushBatch(batch.Platform, len(batch.Tokens))
	return nil
}
