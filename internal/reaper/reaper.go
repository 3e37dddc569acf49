package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"giberno-chat-service/internal/observability"
	"giberno-chat-service/internal/repositories"
)

// ChatReverter performs the forced transition back to the bot.
type ChatReverter interface {
	RevertToBot(ctx context.Context, chatID int) error
}

// Reaper periodically reverts manager-handled chats with no recent message
// activity back to the bot. Each idle chat is an independent unit of work: a
// failed revert is logged and retried naturally on the next sweep, never
// blocking the others.
type Reaper struct {
	chats    repositories.ChatRepository
	reverter ChatReverter
	interval time.Duration
	idle     time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// New constructs a reaper.
func New(chats repositories.ChatRepository, reverter ChatReverter, interval, idle time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{
		chats:    chats,
		reverter: reverter,
		interval: interval,
		idle:     idle,
		log:      logger.With().Str("component", "reaper").Logger(),
		now:      time.Now,
	}
}

// Run sweeps on every tick until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Dur("idle_threshold", r.idle).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep reverts every chat idle past the threshold.
func (r *Reaper) Sweep(ctx context.Context) {
	observability.IncReaperSweep()

	cutoff := r.now().Add(-r.idle)
	chats, err := r.chats.IdleChats(ctx, cutoff)
	if err != nil {
		r.log.Error().Err(err).Msg("idle chat query failed")
		return
	}
	if len(chats) == 0 {
		return
	}

	var wg sync.WaitGroup
	reverted := 0
	var mu sync.Mutex
	for _, c := range chats {
		wg.Add(1)
		go func(chatID int) {
			defer wg.Done()
			if err := r.reverter.RevertToBot(ctx, chatID); err != nil {
				r.log.Error().Err(err).Int("chat_id", chatID).Msg("idle chat revert failed")
				return
			}
			mu.Lock()
			reverted++
			mu.Unlock()
		}(c.ID)
	}
	wg.Wait()

	observability.AddReaperReverted(reverted)
	r.log.Info().Int("idle", len(chats)).Int("reverted", reverted).Msg("reaper sweep finished")
}
