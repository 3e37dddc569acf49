package push

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"giberno-chat-service/internal/mocks"
	"giberno-chat-service/internal/models"
)

func TestEnqueueBatchRoutesPerPlatform(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	sender := NewAMQPSender(publisher, zerolog.Nop())

	batch := models.PushBatch{
		Platform:   models.PlatformAndroid,
		Tokens:     []string{"a1", "a2"},
		Title:      "New message",
		CommonUUID: "common-1",
	}
	publisher.On("Publish", mock.Anything, "push.android", batch).Return(nil).Once()

	require.NoError(t, sender.EnqueueBatch(context.Background(), batch))
	publisher.AssertExpectations(t)
}

func TestEnqueueBatchPublishError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	sender := NewAMQPSender(publisher, zerolog.Nop())

	batch := models.PushBatch{Platform: models.PlatformIOS, Tokens: []string{"i1"}}
	publisher.On("Publish", mock.Anything, "push.ios", batch).Return(assert.AnError).Once()

	require.Error(t, sender.EnqueueBatch(context.Background(), batch))
	publisher.AssertExpectations(t)
}
