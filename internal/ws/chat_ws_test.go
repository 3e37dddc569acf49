package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"giberno-chat-service/internal/chat"
	"giberno-chat-service/internal/mocks"
	"giberno-chat-service/internal/models"
	"giberno-chat-service/internal/registry"
)

type staticAuth struct {
	userID int
}

func (a staticAuth) Validate(token string) (int, error) {
	if token == "" {
		return 0, errors.New("missing token")
	}
	return a.userID, nil
}

type wsFixture struct {
	chats      *mocks.ChatRepositoryMock
	messages   *mocks.MessageRepositoryMock
	dispatcher *mocks.DispatcherMock
	server     *httptest.Server
}

func newWSFixture(t *testing.T, userID int) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &wsFixture{
		chats:      new(mocks.ChatRepositoryMock),
		messages:   new(mocks.MessageRepositoryMock),
		dispatcher: new(mocks.DispatcherMock),
	}
	service := chat.NewService(f.chats, f.messages, new(mocks.StaffRepositoryMock), nil, f.dispatcher, zerolog.Nop())
	handler := NewHandler(registry.New(nil, zerolog.Nop()), service, staticAuth{userID: userID}, zerolog.Nop())

	router := gin.New()
	router.GET("/ws", handler.Handle)
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// A client event sent after the handshake handler has long returned must still
// reach persistence on a live context: the request context is cancelled the
// moment the upgrade handler exits.
func TestClientEventAfterHandshakeUsesLiveContext(t *testing.T) {
	f := newWSFixture(t, 10)

	ctxErrs := make(chan error, 1)
	chatRow := models.Chat{ID: 1, SubjectUserID: 10, State: models.ChatStateNeedManager}
	f.chats.On("GetChat", mock.Anything, 1).Run(func(args mock.Arguments) {
		ctxErrs <- args.Get(0).(context.Context).Err()
	}).Return(chatRow, nil).Once()
	f.chats.On("GetChatUser", mock.Anything, 1, 10).
		Return(models.ChatUser{ChatID: 1, UserID: 10}, nil).Once()
	f.messages.On("MarkReadBefore", mock.Anything, 1, 10, mock.Anything).Return(nil).Once()
	f.messages.On("CreateMessage", mock.Anything, mock.Anything).
		Return(models.Message{UUID: "m1", ChatID: 1, Text: "hello"}, nil).Once()
	f.dispatcher.On("MessageCreated", mock.Anything, mock.Anything, mock.Anything).Once()

	conn := f.dial(t, "token")

	// Let the upgrade handler return before the first frame.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, conn.WriteJSON(models.ClientEvent{
		Type:   models.ClientEventMessage,
		ChatID: 1,
		Text:   "hello",
	}))

	select {
	case err := <-ctxErrs:
		require.NoError(t, err, "read loop handed persistence a cancelled context")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the message to reach the repository")
	}

	var echo models.ChatMessageEvent
	require.NoError(t, conn.ReadJSON(&echo))
	require.Equal(t, models.ServerEventChatMessage, echo.Type)
	require.Equal(t, 1, echo.ChatID)

	f.chats.AssertExpectations(t)
	f.messages.AssertExpectations(t)
}

func TestUnauthenticatedConnectionGetsErrorFrame(t *testing.T) {
	f := newWSFixture(t, 10)

	conn := f.dial(t, "")

	var errEvent models.ErrorEvent
	require.NoError(t, conn.ReadJSON(&errEvent))
	require.Equal(t, models.ServerEventError, errEvent.Type)
	require.Equal(t, models.ErrCodeNotAuthorized, errEvent.Code)

	// The server closes the connection right after the error frame.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestUnknownEventTypeRejected(t *testing.T) {
	f := newWSFixture(t, 10)

	conn := f.dial(t, "token")
	require.NoError(t, conn.WriteJSON(models.ClientEvent{Type: "time_travel"}))

	var errEvent models.ErrorEvent
	require.NoError(t, conn.ReadJSON(&errEvent))
	require.Equal(t, models.ErrCodeValidation, errEvent.Code)
}
