package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"giberno-chat-service/internal/intents"
	"giberno-chat-service/internal/models"
	"giberno-chat-service/internal/repositories"
)

var (
	ErrForbidden  = errors.New("action is not allowed for this user")
	ErrValidation = errors.New("invalid payload")
)

// Informational messages the bot posts on state transitions.
const (
	botTextManagerRequested = "Manager requested. Please wait for a reply."
	botTextManagerConnected = "Manager joined the conversation."
	botTextBackToBot        = "The conversation was switched back to the bot."
)

// Dispatcher fans a committed chat event out to sockets and push. All methods
// are best-effort: implementations log failures and never return them.
type Dispatcher interface {
	MessageCreated(ctx context.Context, chat models.Chat, msg models.Message)
	MessageRead(ctx context.Context, chat models.Chat, msg models.Message, readerID int)
	StateChanged(ctx context.Context, chat models.Chat, activeManagerIDs []int)
}

// ClientMessageInput is the payload of a client_message event.
type ClientMessageInput struct {
	UUID        string
	Type        models.MessageType
	Text        string
	Attachments models.Attachments
}

// Service implements the chat state machine and message delivery rules.
type Service struct {
	chats      repositories.ChatRepository
	messages   repositories.MessageRepository
	staff      repositories.StaffRepository
	resolver   intents.Resolver
	dispatcher Dispatcher
	log        zerolog.Logger
	now        func() time.Time
}

// NewService wires the chat service. resolver may be nil when no chatbot
// backend is configured.
func NewService(
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	staff repositories.StaffRepository,
	resolver intents.Resolver,
	dispatcher Dispatcher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		chats:      chats,
		messages:   messages,
		staff:      staff,
		resolver:   resolver,
		dispatcher: dispatcher,
		log:        logger.With().Str("component", "chat_service").Logger(),
		now:        time.Now,
	}
}

// CreateChat returns the caller's chat about the target, creating it in the
// initial bot state when absent.
func (s *Service) CreateChat(ctx context.Context, subjectUserID int, target models.ChatTarget) (models.Chat, error) {
	switch target.Kind {
	case models.TargetNone, models.TargetVacancy, models.TargetShop:
	default:
		return models.Chat{}, ErrValidation
	}
	return s.chats.CreateOrGetChat(ctx, subjectUserID, target)
}

// SendClientMessage persists a user message and fans it out. Sending marks all
// earlier foreign messages in the chat as read by the sender. While the chat is
// bot-handled, the text is run through the intent resolver; a "disable" intent
// triggers the manager handoff.
func (s *Service) SendClientMessage(ctx context.Context, chatID, authorID int, in ClientMessageInput) (models.Message, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.ensureCanWrite(ctx, chat, authorID); err != nil {
		return models.Message{}, err
	}

	msgUUID := in.UUID
	if msgUUID == "" {
		msgUUID = uuid.NewString()
	} else if _, err := uuid.Parse(msgUUID); err != nil {
		return models.Message{}, ErrValidation
	}
	msgType := in.Type
	if msgType == "" {
		msgType = models.MessageTypeSimple
	}

	if err := s.messages.MarkReadBefore(ctx, chatID, authorID, s.now()); err != nil {
		return models.Message{}, err
	}

	stored, err := s.messages.CreateMessage(ctx, models.Message{
		UUID:        msgUUID,
		ChatID:      chatID,
		AuthorID:    &authorID,
		Type:        msgType,
		Text:        in.Text,
		Attachments: in.Attachments,
	})
	if err != nil {
		return models.Message{}, err
	}

	s.dispatcher.MessageCreated(ctx, chat, stored)

	if chat.State == models.ChatStateBot && s.resolver != nil && stored.Type == models.MessageTypeSimple {
		s.handleBotTurn(ctx, chat, stored.Text)
	}

	return stored, nil
}

// SendBotMessage posts a message authored by the bot (nil author) and fans it
// out. Used by the chatbot and by system events.
func (s *Service) SendBotMessage(ctx context.Context, chatID int, msgType models.MessageType, text string) (models.Message, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Message{}, err
	}
	return s.postBot(ctx, chat, msgType, text)
}

// ReadMessage marks the target message and all earlier unread foreign messages
// as read by the reader. The returned flag reports whether this was the
// message's first read by anyone besides its author.
func (s *Service) ReadMessage(ctx context.Context, chatID, readerID int, msgUUID string) (bool, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	cu, err := s.chats.GetChatUser(ctx, chatID, readerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotInChat) {
			return false, ErrForbidden
		}
		return false, err
	}
	if cu.BlockedAt != nil {
		return false, ErrForbidden
	}

	msg, err := s.messages.GetMessage(ctx, msgUUID)
	if err != nil {
		return false, err
	}
	if msg.ChatID != chatID {
		return false, repositories.ErrMessageNotFound
	}

	if err := s.messages.MarkReadBefore(ctx, chatID, readerID, msg.CreatedAt); err != nil {
		return false, err
	}
	if msg.AuthoredBy(readerID) {
		return false, nil
	}

	first, err := s.messages.SetReadAt(ctx, msgUUID, s.now())
	if err != nil {
		return false, err
	}
	if first {
		s.dispatcher.MessageRead(ctx, chat, msg, readerID)
	}
	return first, nil
}

// SelectIntent handles an explicit bot-menu selection. Only the "disable"
// intent (human requested) has dispatch-level meaning; everything else is the
// chatbot's business.
func (s *Service) SelectIntent(ctx context.Context, chatID, userID int, intent string) error {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if err := s.ensureCanWrite(ctx, chat, userID); err != nil {
		return err
	}
	if intent != intents.IntentDisable || chat.State != models.ChatStateBot {
		return nil
	}
	return s.requestManager(ctx, chat)
}

// ManagerJoin engages a manager with the chat. The first joiner moves the chat
// to MANAGER_CONNECTED and announces it; later joiners only extend the
// active-managers set.
func (s *Service) ManagerJoin(ctx context.Context, chatID, managerID int) (models.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if chat.State == models.ChatStateBot {
		return models.Chat{}, ErrForbidden
	}
	if err := s.ensureManager(ctx, chat, managerID); err != nil {
		return models.Chat{}, err
	}

	if err := s.chats.SetActiveManager(ctx, chatID, managerID, true); err != nil {
		return models.Chat{}, err
	}

	if chat.State != models.ChatStateManagerConnected {
		if err := s.chats.SetState(ctx, chatID, models.ChatStateManagerConnected); err != nil {
			return models.Chat{}, err
		}
		chat.State = models.ChatStateManagerConnected
		if _, err := s.postBot(ctx, chat, models.MessageTypeInfo, botTextManagerConnected); err != nil {
			s.log.Error().Err(err).Int("chat_id", chatID).Msg("manager-connected info message failed")
		}
	}

	active, err := s.chats.ActiveManagerIDs(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	s.dispatcher.StateChanged(ctx, chat, active)
	return chat, nil
}

// ManagerLeave disengages a manager. The last active manager leaving reverts
// the chat to the bot.
func (s *Service) ManagerLeave(ctx context.Context, chatID, managerID int) (models.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if err := s.chats.SetActiveManager(ctx, chatID, managerID, false); err != nil {
		if errors.Is(err, repositories.ErrNotInChat) {
			return models.Chat{}, ErrForbidden
		}
		return models.Chat{}, err
	}

	active, err := s.chats.ActiveManagerIDs(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if len(active) == 0 && chat.State == models.ChatStateManagerConnected {
		if err := s.chats.SetState(ctx, chatID, models.ChatStateBot); err != nil {
			return models.Chat{}, err
		}
		chat.State = models.ChatStateBot
		if _, err := s.postBot(ctx, chat, models.MessageTypeInfo, botTextBackToBot); err != nil {
			s.log.Error().Err(err).Int("chat_id", chatID).Msg("back-to-bot info message failed")
		}
	}

	s.dispatcher.StateChanged(ctx, chat, active)
	return chat, nil
}

// RevertToBot forces an idle manager-handled chat back to the bot. Used by the
// abandonment reaper; a chat that already settled is left alone.
func (s *Service) RevertToBot(ctx context.Context, chatID int) error {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.State != models.ChatStateNeedManager && chat.State != models.ChatStateManagerConnected {
		return nil
	}

	if err := s.chats.ClearActiveManagers(ctx, chatID); err != nil {
		return err
	}
	if err := s.chats.SetState(ctx, chatID, models.ChatStateBot); err != nil {
		return err
	}
	chat.State = models.ChatStateBot

	if _, err := s.postBot(ctx, chat, models.MessageTypeInfo, botTextBackToBot); err != nil {
		s.log.Error().Err(err).Int("chat_id", chatID).Msg("back-to-bot info message failed")
	}
	s.dispatcher.StateChanged(ctx, chat, nil)
	return nil
}

// Counters builds the indicator badge payload for a user.
func (s *Service) Counters(ctx context.Context, userID int) (models.CountersEvent, error) {
	unread, err := s.messages.TotalUnread(ctx, userID)
	if err != nil {
		return models.CountersEvent{}, err
	}
	return models.CountersEvent{
		Type:                models.ServerEventCounters,
		ChatsUnreadMessages: unread,
	}, nil
}

// Summaries returns the chat-list view for a user with per-chat unread state.
func (s *Service) Summaries(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	chats, err := s.chats.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, c := range chats {
		cu, err := s.chats.GetChatUser(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		unread, err := s.messages.UnreadCount(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		first, err := s.messages.FirstUnread(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		summary := models.ChatSummary{
			ChatID:      c.ID,
			Title:       c.Title,
			State:       c.State,
			UnreadCount: unread,
			BlockedAt:   cu.BlockedAt,
			CreatedAt:   c.CreatedAt,
		}
		if first != nil {
			summary.FirstUnreadUUID = &first.UUID
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// History returns permission-checked chat history.
func (s *Service) History(ctx context.Context, chatID, userID, limit, offset int) ([]models.Message, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCanWrite(ctx, chat, userID); err != nil {
		return nil, err
	}
	return s.messages.ListChatMessages(ctx, chatID, limit, offset)
}

// handleBotTurn runs the resolver over a user message while the bot handles
// the chat. Resolver failures are logged and treated as "no match".
func (s *Service) handleBotTurn(ctx context.Context, chat models.Chat, text string) {
	res, err := s.resolver.Resolve(ctx, text)
	if err != nil {
		s.log.Warn().Err(err).Int("chat_id", chat.ID).Msg("intent resolution failed")
		return
	}
	if res == nil {
		return
	}
	if res.Intent == intents.IntentDisable {
		if err := s.requestManager(ctx, chat); err != nil {
			s.log.Error().Err(err).Int("chat_id", chat.ID).Msg("manager handoff failed")
		}
		return
	}
	if res.Answer != "" {
		if _, err := s.postBot(ctx, chat, models.MessageTypeSimple, res.Answer); err != nil {
			s.log.Error().Err(err).Int("chat_id", chat.ID).Msg("bot answer failed")
		}
	}
}

// requestManager performs the BOT_IS_USED -> NEED_MANAGER transition: enrolls
// the target's managers, posts the info message and broadcasts the new state.
func (s *Service) requestManager(ctx context.Context, chat models.Chat) error {
	managers, err := s.staff.RelevantManagers(ctx, chat.Target())
	if err != nil {
		return err
	}
	if len(managers) > 0 {
		if err := s.chats.AddParticipants(ctx, chat.ID, managers, true); err != nil {
			return err
		}
	}

	if err := s.chats.SetState(ctx, chat.ID, models.ChatStateNeedManager); err != nil {
		return err
	}
	chat.State = models.ChatStateNeedManager

	if _, err := s.postBot(ctx, chat, models.MessageTypeInfo, botTextManagerRequested); err != nil {
		s.log.Error().Err(err).Int("chat_id", chat.ID).Msg("manager-requested info message failed")
	}
	s.dispatcher.StateChanged(ctx, chat, nil)
	return nil
}

func (s *Service) postBot(ctx context.Context, chat models.Chat, msgType models.MessageType, text string) (models.Message, error) {
	stored, err := s.messages.CreateMessage(ctx, models.Message{
		UUID:   uuid.NewString(),
		ChatID: chat.ID,
		Type:   msgType,
		Text:   text,
	})
	if err != nil {
		return models.Message{}, err
	}
	s.dispatcher.MessageCreated(ctx, chat, stored)
	return stored, nil
}

// ensureCanWrite verifies the user may act in the chat: an unblocked
// participant, or a relevant manager who is then auto-enrolled.
func (s *Service) ensureCanWrite(ctx context.Context, chat models.Chat, userID int) error {
	cu, err := s.chats.GetChatUser(ctx, chat.ID, userID)
	if err == nil {
		if cu.BlockedAt != nil {
			return ErrForbidden
		}
		return nil
	}
	if !errors.Is(err, repositories.ErrNotInChat) {
		return err
	}

	relevant, err := s.staff.IsRelevantManager(ctx, chat.Target(), userID)
	if err != nil {
		return err
	}
	if !relevant {
		return ErrForbidden
	}
	return s.chats.AddParticipants(ctx, chat.ID, []int{userID}, true)
}

// ensureManager verifies the user is (or can become) a manager participant.
func (s *Service) ensureManager(ctx context.Context, chat models.Chat, userID int) error {
	cu, err := s.chats.GetChatUser(ctx, chat.ID, userID)
	if err == nil {
		if !cu.IsManager || cu.BlockedAt != nil {
			return ErrForbidden
		}
		return nil
	}
	if !errors.Is(err, repositories.ErrNotInChat) {
		return err
	}

	relevant, err := s.staff.IsRelevantManager(ctx, chat.Target(), userID)
	if err != nil {
		return err
	}
	if !relevant {
		return ErrForbidden
	}
	return s.chats.AddParticipants(ctx, chat.ID, []int{userID}, true)
}
