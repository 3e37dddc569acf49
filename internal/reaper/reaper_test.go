package reaper

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"giberno-chat-service/internal/mocks"
	"giberno-chat-service/internal/models"
)

type revertRecorder struct {
	mu       sync.Mutex
	reverted []int
	fail     map[int]error
}

func (r *revertRecorder) RevertToBot(ctx context.Context, chatID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[chatID]; ok {
		return err
	}
	r.reverted = append(r.reverted, chatID)
	return nil
}

func (r *revertRecorder) ids() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.reverted))
	copy(out, r.reverted)
	sort.Ints(out)
	return out
}

func TestSweepRevertsIdleChats(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	recorder := &revertRecorder{}
	r := New(chats, recorder, time.Minute, 15*time.Minute, zerolog.Nop())

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	chats.On("IdleChats", mock.Anything, now.Add(-15*time.Minute)).Return([]models.Chat{
		{ID: 1, State: models.ChatStateNeedManager},
		{ID: 2, State: models.ChatStateManagerConnected},
	}, nil).Once()

	r.Sweep(context.Background())

	require.Equal(t, []int{1, 2}, recorder.ids())
	chats.AssertExpectations(t)
}

func TestSweepNothingIdle(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	recorder := &revertRecorder{}
	r := New(chats, recorder, time.Minute, 15*time.Minute, zerolog.Nop())

	chats.On("IdleChats", mock.Anything, mock.Anything).Return([]models.Chat{}, nil).Once()

	r.Sweep(context.Background())

	require.Empty(t, recorder.ids())
	chats.AssertExpectations(t)
}

func TestSweepFailedRevertDoesNotBlockOthers(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	recorder := &revertRecorder{fail: map[int]error{2: errors.New("revert failed")}}
	r := New(chats, recorder, time.Minute, 15*time.Minute, zerolog.Nop())

	chats.On("IdleChats", mock.Anything, mock.Anything).Return([]models.Chat{
		{ID: 1}, {ID: 2}, {ID: 3},
	}, nil).Once()

	r.Sweep(context.Background())

	require.Equal(t, []int{1, 3}, recorder.ids())
	chats.AssertExpectations(t)
}

func TestSweepQueryErrorLoggedOnly(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	recorder := &revertRecorder{}
	r := New(chats, recorder, time.Minute, 15*time.Minute, zerolog.Nop())

	chats.On("IdleChats", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()

	r.Sweep(context.Background())

	require.Empty(t, recorder.ids())
	chats.AssertExpectations(t)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	recorder := &revertRecorder{}
	r := New(chats, recorder, 10*time.Millisecond, 15*time.Minute, zerolog.Nop())

	chats.On("IdleChats", mock.Anything, mock.Anything).Return([]models.Chat{}, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
