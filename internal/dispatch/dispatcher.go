package dispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"giberno-chat-service/internal/models"
	"giberno-chat-service/internal/push"
	"giberno-chat-service/internal/registry"
	"giberno-chat-service/internal/repositories"
)

// Push notification titles.
const (
	pushTitleNewMessage  = "New message"
	pushTitleNeedManager = "A client is waiting for a manager"
	pushSoundDefault     = "default"
	chatListRoom         = "chats"
)

// Dispatcher computes the personalized view of a chat event for every affected
// user and delivers it over sockets and push. Everything here runs after the
// triggering write committed; failures are logged and swallowed so delivery
// never fails the originating operation.
type Dispatcher struct {
	registry  *registry.Registry
	chats     repositories.ChatRepository
	messages  repositories.MessageRepository
	tokens    repositories.PushTokenRepository
	sender    push.Sender
	batchSize int
	log       zerolog.Logger
}

// New wires a dispatcher.
func New(
	reg *registry.Registry,
	chats repositories.ChatRepository,
	messages repositories.MessageRepository,
	tokens repositories.PushTokenRepository,
	sender push.Sender,
	batchSize int,
	logger zerolog.Logger,
) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Dispatcher{
		registry:  reg,
		chats:     chats,
		messages:  messages,
		tokens:    tokens,
		sender:    sender,
		batchSize: batchSize,
		log:       logger.With().Str("component", "dispatcher").Logger(),
	}
}

// MessageCreated fans a new message out to every eligible participant with
// their own unread count and first-unread pointer. Each recipient gets one
// commonUuid shared between their socket event and their push.
func (d *Dispatcher) MessageCreated(ctx context.Context, chat models.Chat, msg models.Message) {
	participants, err := d.chats.Participants(ctx, chat.ID)
	if err != nil {
		d.log.Error().Err(err).Int("chat_id", chat.ID).Msg("participant lookup failed")
		return
	}

	for _, p := range participants {
		if msg.AuthoredBy(p.UserID) {
			continue
		}
		// Enrolled but disengaged managers only hear about chats waiting
		// for a human.
		if p.IsManager && !p.IsActiveManager && chat.State != models.ChatStateNeedManager {
			continue
		}

		unread, err := d.messages.UnreadCount(ctx, chat.ID, p.UserID)
		if err != nil {
			d.log.Error().Err(err).Int("chat_id", chat.ID).Int("user_id", p.UserID).Msg("unread count failed")
			continue
		}
		firstUnread, err := d.messages.FirstUnread(ctx, chat.ID, p.UserID)
		if err != nil {
			d.log.Error().Err(err).Int("chat_id", chat.ID).Int("user_id", p.UserID).Msg("first unread lookup failed")
		}

		common := uuid.NewString()
		d.registry.SendToUser(ctx, p.UserID, models.ChatMessageEvent{
			Type:               models.ServerEventChatMessage,
			ChatID:             chat.ID,
			Message:            &msg,
			UnreadCount:        unread,
			FirstUnreadMessage: firstUnread,
			BlockedAt:          p.BlockedAt,
			CommonUUID:         common,
		})
		d.registry.SendToRoom(ctx, chatListRoom, p.UserID, models.LastMsgUpdatedEvent{
			Type:    models.ServerEventLastMsgUpdated,
			ChatID:  chat.ID,
			Message: &msg,
		})
		d.sendCounters(ctx, p.UserID)

		title := pushTitleNewMessage
		if chat.Title != nil && *chat.Title != "" {
			title = *chat.Title
		}
		go d.sendPush(context.WithoutCancel(ctx), p.UserID, pushSpec{
			category:    models.NotificationTypeChat,
			title:       title,
			body:        msg.Text,
			chatID:      chat.ID,
			messageUUID: msg.UUID,
			commonUUID:  common,
		})
	}
}

// MessageRead tells the author their message got its first read, with the
// author's own unread state. Socket only; a read receipt carries no push.
func (d *Dispatcher) MessageRead(ctx context.Context, chat models.Chat, msg models.Message, readerID int) {
	if msg.AuthorID == nil {
		return
	}
	authorID := *msg.AuthorID

	cu, err := d.chats.GetChatUser(ctx, chat.ID, authorID)
	if err != nil {
		d.log.Warn().Err(err).Int("chat_id", chat.ID).Int("user_id", authorID).Msg("author membership lookup failed")
		return
	}
	unread, err := d.messages.UnreadCount(ctx, chat.ID, authorID)
	if err != nil {
		d.log.Error().Err(err).Int("chat_id", chat.ID).Int("user_id", authorID).Msg("unread count failed")
		return
	}
	firstUnread, err := d.messages.FirstUnread(ctx, chat.ID, authorID)
	if err != nil {
		d.log.Error().Err(err).Int("chat_id", chat.ID).Int("user_id", authorID).Msg("first unread lookup failed")
	}

	d.registry.SendToUser(ctx, authorID, models.MessageWasReadEvent{
		Type:               models.ServerEventMessageWasRead,
		ChatID:             chat.ID,
		MessageUUID:        msg.UUID,
		UnreadCount:        unread,
		FirstUnreadMessage: firstUnread,
		BlockedAt:          cu.BlockedAt,
	})
	d.sendCounters(ctx, authorID)
}

// StateChanged broadcasts the chat's new state to the subject user and all
// manager participants. When the chat is waiting for a human, managers also
// receive a push deduplicated against their socket event by commonUuid.
func (d *Dispatcher) StateChanged(ctx context.Context, chat models.Chat, activeManagerIDs []int) {
	if activeManagerIDs == nil {
		activeManagerIDs = []int{}
	}
	participants, err := d.chats.Participants(ctx, chat.ID)
	if err != nil {
		d.log.Error().Err(err).Int("chat_id", chat.ID).Msg("participant lookup failed")
		return
	}

	for _, p := range participants {
		if !p.IsManager && p.UserID != chat.SubjectUserID {
			continue
		}

		common := uuid.NewString()
		d.registry.SendToUser(ctx, p.UserID, models.StateUpdatedEvent{
			Type:              models.ServerEventStateUpdated,
			ChatID:            chat.ID,
			State:             chat.State,
			ActiveManagersIDs: activeManagerIDs,
			BlockedAt:         p.BlockedAt,
			CommonUUID:        common,
		})

		if chat.State == models.ChatStateNeedManager && p.IsManager {
			go d.sendPush(context.WithoutCancel(ctx), p.UserID, pushSpec{
				category:   models.NotificationTypeChat,
				title:      pushTitleNeedManager,
				body:       botTitle(chat),
				chatID:     chat.ID,
				commonUUID: common,
			})
		}
	}
}

type pushSpec struct {
	category    string
	title       string
	body        string
	chatID      int
	messageUUID string
	commonUUID  string
}

// sendPush resolves the user's tokens and preferences, splits by platform and
// publishes provider-size-limited batches. Fire-and-forget: errors are logged
// by the sender.
func (d *Dispatcher) sendPush(ctx context.Context, userID int, spec pushSpec) {
	settings, err := d.tokens.SettingsForUser(ctx, userID)
	if err != nil {
		d.log.Warn().Err(err).Int("user_id", userID).Msg("notification settings lookup failed")
		return
	}
	if !settings.Enabled(spec.category) {
		return
	}

	tokens, err := d.tokens.TokensForUser(ctx, userID)
	if err != nil {
		d.log.Warn().Err(err).Int("user_id", userID).Msg("push token lookup failed")
		return
	}
	if len(tokens) == 0 {
		return
	}

	sound := ""
	if settings.SoundFor(spec.category) {
		sound = pushSoundDefault
	}

	byPlatform := map[string][]string{}
	for _, t := range tokens {
		byPlatform[t.Platform] = append(byPlatform[t.Platform], t.Token)
	}

	for platform, toks := range byPlatform {
		for start := 0; start < len(toks); start += d.batchSize {
			end := start + d.batchSize
			if end > len(toks) {
				end = len(toks)
			}
			_ = d.sender.EnqueueBatch(ctx, models.PushBatch{
				Platform:    platform,
				Tokens:      toks[start:end],
				Title:       spec.title,
				Message:     spec.body,
				Sound:       sound,
				Type:        spec.category,
				ChatID:      spec.chatID,
				MessageUUID: spec.messageUUID,
				CommonUUID:  spec.commonUUID,
			})
		}
	}
}

func (d *Dispatcher) sendCounters(ctx context.Context, userID int) {
	unread, err := d.messages.TotalUnread(ctx, userID)
	if err != nil {
		d.log.Error().Err(err).Int("user_id", userID).Msg("total unread failed")
		return
	}
	d.registry.SendToUser(ctx, userID, models.CountersEvent{
		Type:                models.ServerEventCounters,
		ChatsUnreadMessages: unread,
	})
}

func botTitle(chat models.Chat) string {
	if chat.Title != nil {
		return *chat.Title
	}
	return ""
}
