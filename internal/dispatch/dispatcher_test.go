package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"giberno-chat-service/internal/mocks"
	"giberno-chat-service/internal/models"
	"giberno-chat-service/internal/registry"
)

type fakeConn struct {
	mu       sync.Mutex
	payloads []any
}

func (c *fakeConn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, v)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) sent() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.payloads))
	copy(out, c.payloads)
	return out
}

// chanSender pushes enqueued batches onto a channel so tests can wait for the
// dispatcher's fire-and-forget push goroutines.
type chanSender struct {
	batches chan models.PushBatch
}

func newChanSender() *chanSender {
	return &chanSender{batches: make(chan models.PushBatch, 16)}
}

func (s *chanSender) EnqueueBatch(ctx context.Context, batch models.PushBatch) error {
	s.batches <- batch
	return nil
}

func (s *chanSender) wait(t *testing.T) models.PushBatch {
	t.Helper()
	select {
	case b := <-s.batches:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push batch")
		return models.PushBatch{}
	}
}

func (s *chanSender) expectNone(t *testing.T) {
	t.Helper()
	select {
	case b := <-s.batches:
		t.Fatalf("unexpected push batch: %+v", b)
	case <-time.After(100 * time.Millisecond):
	}
}

type dispatchFixture struct {
	chats    *mocks.ChatRepositoryMock
	messages *mocks.MessageRepositoryMock
	tokens   *mocks.PushTokenRepositoryMock
	sender   *chanSender
	registry *registry.Registry
	d        *Dispatcher
}

func newDispatchFixture(batchSize int) *dispatchFixture {
	f := &dispatchFixture{
		chats:    new(mocks.ChatRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		tokens:   new(mocks.PushTokenRepositoryMock),
		sender:   newChanSender(),
		registry: registry.New(nil, zerolog.Nop()),
	}
	f.d = New(f.registry, f.chats, f.messages, f.tokens, f.sender, batchSize, zerolog.Nop())
	return f
}

func allEnabled(userID int) models.NotificationSettings {
	allTypes := []string{models.NotificationTypeChat, models.NotificationTypeSystem}
	return models.NotificationSettings{
		UserID:       userID,
		EnabledTypes: allTypes,
		SoundTypes:   allTypes,
	}
}

func TestMessageCreatedSocketAndPushShareCommonUUID(t *testing.T) {
	f := newDispatchFixture(500)
	author := 10
	chat := models.Chat{ID: 1, SubjectUserID: 20, State: models.ChatStateBot}
	msg := models.Message{UUID: "m1", ChatID: 1, AuthorID: &author, Text: "hello"}

	conn := &fakeConn{}
	f.registry.Register(context.Background(), "c1", 20, conn)

	f.chats.On("Participants", mock.Anything, 1).Return([]models.ChatUser{
		{ChatID: 1, UserID: 10},
		{ChatID: 1, UserID: 20},
	}, nil).Once()
	f.messages.On("UnreadCount", mock.Anything, 1, 20).Return(3, nil).Once()
	f.messages.On("FirstUnread", mock.Anything, 1, 20).Return(nil, nil).Once()
	f.messages.On("TotalUnread", mock.Anything, 20).Return(3, nil).Once()
	f.tokens.On("SettingsForUser", mock.Anything, 20).Return(allEnabled(20), nil).Once()
	f.tokens.On("TokensForUser", mock.Anything, 20).Return([]models.PushToken{
		{UserID: 20, Token: "tok-1", Platform: models.PlatformIOS},
	}, nil).Once()

	f.d.MessageCreated(context.Background(), chat, msg)

	batch := f.sender.wait(t)
	require.Equal(t, models.PlatformIOS, batch.Platform)
	require.Equal(t, []string{"tok-1"}, batch.Tokens)
	require.Equal(t, "m1", batch.MessageUUID)
	require.Equal(t, "default", batch.Sound)
	require.NotEmpty(t, batch.CommonUUID)

	var msgEvent *models.ChatMessageEvent
	var gotCounters bool
	for _, p := range conn.sent() {
		switch ev := p.(type) {
		case models.ChatMessageEvent:
			msgEvent = &ev
		case models.CountersEvent:
			gotCounters = true
			require.Equal(t, 3, ev.ChatsUnreadMessages)
		}
	}
	require.NotNil(t, msgEvent, "recipient socket event missing")
	require.True(t, gotCounters, "counters event missing")
	require.Equal(t, 3, msgEvent.UnreadCount)
	require.Equal(t, batch.CommonUUID, msgEvent.CommonUUID)

	f.chats.AssertExpectations(t)
	f.messages.AssertExpectations(t)
	f.tokens.AssertExpectations(t)
}

func TestMessageCreatedSkipsAuthorAndDisengagedManagers(t *testing.T) {
	f := newDispatchFixture(500)
	author := 10
	chat := models.Chat{ID: 1, SubjectUserID: 10, State: models.ChatStateManagerConnected}
	msg := models.Message{UUID: "m1", ChatID: 1, AuthorID: &author}

	f.chats.On("Participants", mock.Anything, 1).Return([]models.ChatUser{
		{ChatID: 1, UserID: 10},
		{ChatID: 1, UserID: 7, IsManager: true, IsActiveManager: false},
	}, nil).Once()

	f.d.MessageCreated(context.Background(), chat, msg)

	f.sender.expectNone(t)
	f.messages.AssertNotCalled(t, "UnreadCount", mock.Anything, mock.Anything, mock.Anything)
	f.chats.AssertExpectations(t)
}

func TestMessageCreatedNotifiesManagersWhileWaiting(t *testing.T) {
	f := newDispatchFixture(500)
	author := 10
	chat := models.Chat{ID: 1, SubjectUserID: 10, State: models.ChatStateNeedManager}
	msg := models.Message{UUID: "m1", ChatID: 1, AuthorID: &author}

	f.chats.On("Participants", mock.Anything, 1).Return([]models.ChatUser{
		{ChatID: 1, UserID: 10},
		{ChatID: 1, UserID: 7, IsManager: true, IsActiveManager: false},
	}, nil).Once()
	f.messages.On("UnreadCount", mock.Anything, 1, 7).Return(1, nil).Once()
	f.messages.On("FirstUnread", mock.Anything, 1, 7).Return(&msg, nil).Once()
	f.messages.On("TotalUnread", mock.Anything, 7).Return(1, nil).Once()
	f.tokens.On("SettingsForUser", mock.Anything, 7).Return(allEnabled(7), nil).Once()
	f.tokens.On("TokensForUser", mock.Anything, 7).Return([]models.PushToken{
		{UserID: 7, Token: "tok-7", Platform: models.PlatformAndroid},
	}, nil).Once()

	f.d.MessageCreated(context.Background(), chat, msg)

	batch := f.sender.wait(t)
	require.Equal(t, models.PlatformAndroid, batch.Platform)
	f.messages.AssertExpectations(t)
}

func TestSendPushRespectsCategorySettings(t *testing.T) {
	f := newDispatchFixture(500)
	author := 10
	chat := models.Chat{ID: 1, SubjectUserID: 20, State: models.ChatStateBot}
	msg := models.Message{UUID: "m1", ChatID: 1, AuthorID: &author}

	f.chats.On("Participants", mock.Anything, 1).Return([]models.ChatUser{
		{ChatID: 1, UserID: 20},
	}, nil).Once()
	f.messages.On("UnreadCount", mock.Anything, 1, 20).Return(1, nil).Once()
	f.messages.On("FirstUnread", mock.Anything, 1, 20).Return(nil, nil).Once()
	f.messages.On("TotalUnread", mock.Anything, 20).Return(1, nil).Once()
	f.tokens.On("SettingsForUser", mock.Anything, 20).Return(models.NotificationSettings{
		UserID:       20,
		EnabledTypes: []string{models.NotificationTypeSystem},
	}, nil).Once()

	f.d.MessageCreated(context.Background(), chat, msg)

	f.sender.expectNone(t)
	f.tokens.AssertNotCalled(t, "TokensForUser", mock.Anything, mock.Anything)
}

func TestSendPushMutedCategoryDropsSound(t *testing.T) {
	f := newDispatchFixture(500)
	author := 10
	chat := models.Chat{ID: 1, SubjectUserID: 20, State: models.ChatStateBot}
	msg := models.Message{UUID: "m1", ChatID: 1, AuthorID: &author}

	f.chats.On("Participants", mock.Anything, 1).Return([]models.ChatUser{
		{ChatID: 1, UserID: 20},
	}, nil).Once()
	f.messages.On("UnreadCount", mock.Anything, 1, 20).Return(1, nil).Once()
	f.messages.On("FirstUnread", mock.Anything, 1, 20).Return(nil, nil).Once()
	f.messages.On("TotalUnread", mock.Anything, 20).Return(1, nil).Once()
	// Chat pushes delivered, but only system pushes carry a sound.
	f.tokens.On("SettingsForUser", mock.Anything, 20).Return(models.NotificationSettings{
		UserID:       20,
		EnabledTypes: []string{models.NotificationTypeChat, models.NotificationTypeSystem},
		SoundTypes:   []string{models.NotificationTypeSystem},
	}, nil).Once()
	f.tokens.On("TokensForUser", mock.Anything, 20).Return([]models.PushToken{
		{UserID: 20, Token: "tok-1", Platform: models.PlatformIOS},
	}, nil).Once()

	f.d.MessageCreated(context.Background(), chat, msg)

	batch := f.sender.wait(t)
	require.Empty(t, batch.Sound)
	f.tokens.AssertExpectations(t)
}

func TestSendPushSplitsPlatformsAndChunks(t *testing.T) {
	f := newDispatchFixture(2)
	author := 10
	chat := models.Chat{ID: 1, SubjectUserID: 20, State: models.ChatStateBot}
	msg := models.Message{UUID: "m1", ChatID: 1, AuthorID: &author}

	f.chats.On("Participants", mock.Anything, 1).Return([]models.ChatUser{
		{ChatID: 1, UserID: 20},
	}, nil).Once()
	f.messages.On("UnreadCount", mock.Anything, 1, 20).Return(1, nil).Once()
	f.messages.On("FirstUnread", mock.Anything, 1, 20).Return(nil, nil).Once()
	f.messages.On("TotalUnread", mock.Anything, 20).Return(1, nil).Once()
	f.tokens.On("SettingsForUser", mock.Anything, 20).Return(allEnabled(20), nil).Once()
	f.tokens.On("TokensForUser", mock.Anything, 20).Return([]models.PushToken{
		{UserID: 20, Token: "a1", Platform: models.PlatformAndroid},
		{UserID: 20, Token: "a2", Platform: models.PlatformAndroid},
		{UserID: 20, Token: "a3", Platform: models.PlatformAndroid},
		{UserID: 20, Token: "i1", Platform: models.PlatformIOS},
	}, nil).Once()

	f.d.MessageCreated(context.Background(), chat, msg)

	perPlatform := map[string]int{}
	totalTokens := 0
	for i := 0; i < 3; i++ {
		batch := f.sender.wait(t)
		require.LessOrEqual(t, len(batch.Tokens), 2)
		perPlatform[batch.Platform]++
		totalTokens += len(batch.Tokens)
	}
	require.Equal(t, 2, perPlatform[models.PlatformAndroid])
	require.Equal(t, 1, perPlatform[models.PlatformIOS])
	require.Equal(t, 4, totalTokens)
	f.sender.expectNone(t)
}

func TestMessageReadNotifiesAuthorOnly(t *testing.T) {
	f := newDispatchFixture(500)
	author := 10
	chat := models.Chat{ID: 1, SubjectUserID: 10, State: models.ChatStateManagerConnected}
	msg := models.Message{UUID: "m1", ChatID: 1, AuthorID: &author}

	conn := &fakeConn{}
	f.registry.Register(context.Background(), "c1", 10, conn)

	f.chats.On("GetChatUser", mock.Anything, 1, 10).Return(models.ChatUser{ChatID: 1, UserID: 10}, nil).Once()
	f.messages.On("UnreadCount", mock.Anything, 1, 10).Return(0, nil).Once()
	f.messages.On("FirstUnread", mock.Anything, 1, 10).Return(nil, nil).Once()
	f.messages.On("TotalUnread", mock.Anything, 10).Return(0, nil).Once()

	f.d.MessageRead(context.Background(), chat, msg, 7)

	var readEvent *models.MessageWasReadEvent
	for _, p := range conn.sent() {
		if ev, ok := p.(models.MessageWasReadEvent); ok {
			readEvent = &ev
		}
	}
	require.NotNil(t, readEvent)
	require.Equal(t, "m1", readEvent.MessageUUID)
	f.sender.expectNone(t)
	f.messages.AssertExpectations(t)
}

func TestMessageReadBotMessageIgnored(t *testing.T) {
	f := newDispatchFixture(500)
	chat := models.Chat{ID: 1, SubjectUserID: 10}
	msg := models.Message{UUID: "m1", ChatID: 1}

	f.d.MessageRead(context.Background(), chat, msg, 7)

	f.chats.AssertNotCalled(t, "GetChatUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestStateChangedNeedManagerPushesManagers(t *testing.T) {
	f := newDispatchFixture(500)
	chat := models.Chat{ID: 1, SubjectUserID: 20, State: models.ChatStateNeedManager}

	subjectConn := &fakeConn{}
	managerConn := &fakeConn{}
	f.registry.Register(context.Background(), "c-subject", 20, subjectConn)
	f.registry.Register(context.Background(), "c-manager", 7, managerConn)

	f.chats.On("Participants", mock.Anything, 1).Return([]models.ChatUser{
		{ChatID: 1, UserID: 20},
		{ChatID: 1, UserID: 7, IsManager: true},
		{ChatID: 1, UserID: 33}, // unrelated participant, no state broadcast
	}, nil).Once()
	f.tokens.On("SettingsForUser", mock.Anything, 7).Return(allEnabled(7), nil).Once()
	f.tokens.On("TokensForUser", mock.Anything, 7).Return([]models.PushToken{
		{UserID: 7, Token: "tok-7", Platform: models.PlatformIOS},
	}, nil).Once()

	f.d.StateChanged(context.Background(), chat, nil)

	batch := f.sender.wait(t)
	require.Equal(t, models.NotificationTypeChat, batch.Type)

	var managerEvent *models.StateUpdatedEvent
	for _, p := range managerConn.sent() {
		if ev, ok := p.(models.StateUpdatedEvent); ok {
			managerEvent = &ev
		}
	}
	require.NotNil(t, managerEvent)
	require.Equal(t, models.ChatStateNeedManager, managerEvent.State)
	require.Equal(t, batch.CommonUUID, managerEvent.CommonUUID)
	require.Empty(t, managerEvent.ActiveManagersIDs)

	var subjectEvent *models.StateUpdatedEvent
	for _, p := range subjectConn.sent() {
		if ev, ok := p.(models.StateUpdatedEvent); ok {
			subjectEvent = &ev
		}
	}
	require.NotNil(t, subjectEvent, "subject must hear the state change")
	f.sender.expectNone(t)
}

func TestStateChangedConnectedNoPush(t *testing.T) {
	f := newDispatchFixture(500)
	chat := models.Chat{ID: 1, SubjectUserID: 20, State: models.ChatStateManagerConnected}

	f.chats.On("Participants", mock.Anything, 1).Return([]models.ChatUser{
		{ChatID: 1, UserID: 20},
		{ChatID: 1, UserID: 7, IsManager: true, IsActiveManager: true},
	}, nil).Once()

	f.d.StateChanged(context.Background(), chat, []int{7})

	f.sender.expectNone(t)
	f.tokens.AssertNotCalled(t, "SettingsForUser", mock.Anything, mock.Anything)
}
