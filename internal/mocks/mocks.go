package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"giberno-chat-service/internal/intents"
	"giberno-chat-service/internal/models"
	"giberno-chat-service/internal/repositories"
)

// ChatRepositoryMock mocks repositories.ChatRepository.
type ChatRepositoryMock struct {
	mock.Mock
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)

func (m *ChatRepositoryMock) CreateOrGetChat(ctx context.Context, subjectUserID int, target models.ChatTarget) (models.Chat, error) {
	args := m.Called(ctx, subjectUserID, target)
	return args.Get(0).(models.Chat), args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(models.Chat), args.Error(1)
}

func (m *ChatRepositoryMock) GetChatUser(ctx context.Context, chatID, userID int) (models.ChatUser, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Get(0).(models.ChatUser), args.Error(1)
}

func (m *ChatRepositoryMock) Participants(ctx context.Context, chatID int) ([]models.ChatUser, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatUser), args.Error(1)
}

func (m *ChatRepositoryMock) AddParticipants(ctx context.Context, chatID int, userIDs []int, asManagers bool) error {
	args := m.Called(ctx, chatID, userIDs, asManagers)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ListChatsForUser(ctx context.Context, userID int) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *ChatRepositoryMock) SetState(ctx context.Context, chatID int, state models.ChatState) error {
	args := m.Called(ctx, chatID, state)
	return args.Error(0)
}

func (m *ChatRepositoryMock) SetActiveManager(ctx context.Context, chatID, userID int, active bool) error {
	args := m.Called(ctx, chatID, userID, active)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ClearActiveManagers(ctx context.Context, chatID int) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ActiveManagerIDs(ctx context.Context, chatID int) ([]int, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *ChatRepositoryMock) BlockChatForUser(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) UnblockChatForUser(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) IdleChats(ctx context.Context, cutoff time.Time) ([]models.Chat, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

// MessageRepositoryMock mocks repositories.MessageRepository.
type MessageRepositoryMock struct {
	mock.Mock
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, uuid string) (models.Message, error) {
	args := m.Called(ctx, uuid)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) ListChatMessages(ctx context.Context, chatID, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) MarkReadBefore(ctx context.Context, chatID, readerID int, upTo time.Time) error {
	args := m.Called(ctx, chatID, readerID, upTo)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetReadAt(ctx context.Context, uuid string, at time.Time) (bool, error) {
	args := m.Called(ctx, uuid, at)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) UnreadCount(ctx context.Context, chatID, userID int) (int, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) FirstUnread(ctx context.Context, chatID, userID int) (*models.Message, error) {
	args := m.Called(ctx, chatID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) TotalUnread(ctx context.Context, userID int) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// StaffRepositoryMock mocks repositories.StaffRepository.
type StaffRepositoryMock struct {
	mock.Mock
}

var _ repositories.StaffRepository = (*StaffRepositoryMock)(nil)

func (m *StaffRepositoryMock) RelevantManagers(ctx context.Context, target models.ChatTarget) ([]int, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *StaffRepositoryMock) IsRelevantManager(ctx context.Context, target models.ChatTarget, userID int) (bool, error) {
	args := m.Called(ctx, target, userID)
	return args.Bool(0), args.Error(1)
}

// PushTokenRepositoryMock mocks repositories.PushTokenRepository.
type PushTokenRepositoryMock struct {
	mock.Mock
}

var _ repositories.PushTokenRepository = (*PushTokenRepositoryMock)(nil)

func (m *PushTokenRepositoryMock) TokensForUser(ctx context.Context, userID int) ([]models.PushToken, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PushToken), args.Error(1)
}

func (m *PushTokenRepositoryMock) SettingsForUser(ctx context.Context, userID int) (models.NotificationSettings, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.NotificationSettings), args.Error(1)
}

// SenderMock mocks the dispatcher's push sender.
type SenderMock struct {
	mock.Mock
}

func (m *SenderMock) EnqueueBatch(ctx context.Context, batch models.PushBatch) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

// DispatcherMock mocks the chat service's Dispatcher.
type DispatcherMock struct {
	mock.Mock
}

func (m *DispatcherMock) MessageCreated(ctx context.Context, chat models.Chat, msg models.Message) {
	m.Called(ctx, chat, msg)
}

func (m *DispatcherMock) MessageRead(ctx context.Context, chat models.Chat, msg models.Message, readerID int) {
	m.Called(ctx, chat, msg, readerID)
}

func (m *DispatcherMock) StateChanged(ctx context.Context, chat models.Chat, activeManagerIDs []int) {
	m.Called(ctx, chat, activeManagerIDs)
}

// ResolverMock mocks intents.Resolver.
type ResolverMock struct {
	mock.Mock
}

var _ intents.Resolver = (*ResolverMock)(nil)

func (m *ResolverMock) Resolve(ctx context.Context, text string) (*intents.Resolution, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intents.Resolution), args.Error(1)
}
