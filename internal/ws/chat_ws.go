package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"giberno-chat-service/internal/chat"
	"giberno-chat-service/internal/models"
	"giberno-chat-service/internal/observability"
	"giberno-chat-service/internal/registry"
	"giberno-chat-service/internal/repositories"
)

// TokenValidator authenticates the socket principal.
type TokenValidator interface {
	Validate(token string) (int, error)
}

// Handler upgrades client connections and drives the consumer protocol.
type Handler struct {
	registry *registry.Registry
	service  *chat.Service
	auth     TokenValidator
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler constructs a websocket Handler.
func NewHandler(reg *registry.Registry, service *chat.Service, auth TokenValidator, logger zerolog.Logger) *Handler {
	return &Handler{
		registry: reg,
		service:  service,
		auth:     auth,
		validate: validator.New(),
		log:      logger.With().Str("component", "ws").Logger(),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client. Unauthenticated
// connections are accepted and then closed with a NOT_AUTHORIZED error so
// clients see a protocol-level error instead of a refused connection.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("giberno-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	sc := newSocketConn(conn)

	userID, err := h.auth.Validate(token)
	if err != nil {
		_ = sc.SendJSON(models.NewErrorEvent(models.ErrCodeNotAuthorized, "authentication required"))
		_ = sc.Close()
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	// The server cancels the request context as soon as Handle returns, even
	// for hijacked connections. The socket outlives it.
	connCtx := context.WithoutCancel(ctx)
	h.registry.Register(connCtx, info.ConnID, userID, sc)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycleEvent(connCtx, info, "ws_connect", "")

	go h.readLoop(connCtx, sc, info)
}

func (h *Handler) readLoop(ctx context.Context, sc *socketConn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.registry.Unregister(ctx, info.ConnID)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycleEvent(ctx, info, "ws_disconnect", closeReason)
		_ = sc.Close()
	}()

	for {
		_, raw, err := sc.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishLifecycleEvent(ctx, info, "ws_error", closeReason)
			}
			return
		}
		h.handleFrame(ctx, sc, info, raw)
	}
}

// handleFrame dispatches one inbound client event. Errors become error frames
// on the same connection; nothing here closes it.
func (h *Handler) handleFrame(ctx context.Context, sc *socketConn, info ConnInfo, raw []byte) {
	var ev models.ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		_ = sc.SendJSON(models.NewErrorEvent(models.ErrCodeValidation, "malformed event"))
		return
	}
	if err := h.validate.Struct(ev); err != nil {
		_ = sc.SendJSON(models.NewErrorEvent(models.ErrCodeValidation, err.Error()))
		return
	}
	observability.IncWSEvent(ev.Type)

	switch ev.Type {
	case models.ClientEventJoinTopic:
		name, id, ok := parseTopic(ev.Topic)
		if !ok {
			_ = sc.SendJSON(models.NewErrorEvent(models.ErrCodeValidation, "invalid topic"))
			return
		}
		h.registry.JoinRoom(ctx, info.ConnID, name, id)

	case models.ClientEventLeaveTopic:
		h.registry.LeaveRoom(ctx, info.ConnID)

	case models.ClientEventMessage:
		msg, err := h.service.SendClientMessage(ctx, ev.ChatID, info.UserID, chat.ClientMessageInput{
			UUID:        ev.UUID,
			Type:        ev.MessageType,
			Text:        ev.Text,
			Attachments: ev.Attachments,
		})
		if err != nil {
			h.sendError(sc, ev.Type, err)
			return
		}
		// Echo to the sender; other recipients hear from the dispatcher.
		_ = sc.SendJSON(models.ChatMessageEvent{
			Type:    models.ServerEventChatMessage,
			ChatID:  ev.ChatID,
			Message: &msg,
		})

	case models.ClientEventReadMessage:
		if _, err := h.service.ReadMessage(ctx, ev.ChatID, info.UserID, ev.UUID); err != nil {
			h.sendError(sc, ev.Type, err)
			return
		}
		if counters, err := h.service.Counters(ctx, info.UserID); err == nil {
			_ = sc.SendJSON(counters)
		}

	case models.ClientEventManagerJoin:
		if _, err := h.service.ManagerJoin(ctx, ev.ChatID, info.UserID); err != nil {
			h.sendError(sc, ev.Type, err)
		}

	case models.ClientEventManagerLeave:
		if _, err := h.service.ManagerLeave(ctx, ev.ChatID, info.UserID); err != nil {
			h.sendError(sc, ev.Type, err)
		}

	case models.ClientEventSelectIntent:
		if err := h.service.SelectIntent(ctx, ev.ChatID, info.UserID, ev.Intent); err != nil {
			h.sendError(sc, ev.Type, err)
		}

	default:
		_ = sc.SendJSON(models.NewErrorEvent(models.ErrCodeValidation, "unknown event type"))
	}
}

func (h *Handler) sendError(sc *socketConn, eventType string, err error) {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound), errors.Is(err, repositories.ErrMessageNotFound):
		_ = sc.SendJSON(models.NewErrorEvent(models.ErrCodeNotFound, err.Error()))
	case errors.Is(err, chat.ErrForbidden):
		_ = sc.SendJSON(models.NewErrorEvent(models.ErrCodeForbidden, "permission denied"))
	case errors.Is(err, chat.ErrValidation):
		_ = sc.SendJSON(models.NewErrorEvent(models.ErrCodeValidation, err.Error()))
	default:
		h.log.Error().Err(err).Str("event", eventType).Msg("client event failed")
		_ = sc.SendJSON(models.NewErrorEvent(models.ErrCodeInternal, "internal error"))
	}
}

func (h *Handler) publishLifecycleEvent(ctx context.Context, info ConnInfo, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, "ws_events.chats",
		observability.NewEventEnvelope("ws_events", event, payload),
		observability.BuildHeaders(info.RequestID, info.TraceID))
}
