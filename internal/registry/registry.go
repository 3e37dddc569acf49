package registry

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Connection is the send side of one live socket.
type Connection interface {
	SendJSON(v any) error
	Close() error
}

type roomKey struct {
	Name string
	ID   int
}

type entry struct {
	id     string
	userID int
	room   *roomKey
	conn   Connection
}

// Registry tracks live connections per user and per room. The in-memory maps
// carry the sockets; a Redis directory mirror records who is connected where
// for operational visibility. Directory writes are best-effort and never block
// a client.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*entry
	byUser map[int]map[string]*entry
	byRoom map[roomKey]map[string]*entry

	rdb    *redis.Client
	prefix string
	log    zerolog.Logger
}

// New creates a registry. rdb may be nil, disabling the directory mirror.
func New(rdb *redis.Client, logger zerolog.Logger) *Registry {
	return &Registry{
		byID:   make(map[string]*entry),
		byUser: make(map[int]map[string]*entry),
		byRoom: make(map[roomKey]map[string]*entry),
		rdb:    rdb,
		prefix: "giberno:sockets:",
		log:    logger.With().Str("component", "registry").Logger(),
	}
}

// Init purges stale directory entries left by a prior process instance. Called
// exactly once at startup. Known limitation: with several server processes
// sharing one Redis, each purge also wipes the others' directory entries.
func (r *Registry) Init(ctx context.Context) error {
	if r.rdb == nil {
		return nil
	}
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan socket directory: %w", err)
	}
	if len(keys) > 0 {
		if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("purge socket directory: %w", err)
		}
	}
	r.log.Info().Int("purged", len(keys)).Msg("socket directory purged")
	return nil
}

// Register upserts a connection for a user.
func (r *Registry) Register(ctx context.Context, connID string, userID int, conn Connection) {
	r.mu.Lock()
	if old, ok := r.byID[connID]; ok {
		r.dropLocked(old)
	}
	e := &entry{id: connID, userID: userID, conn: conn}
	r.byID[connID] = e
	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[string]*entry)
	}
	r.byUser[userID][connID] = e
	r.mu.Unlock()

	r.mirror(ctx, connID, map[string]any{"user_id": userID})
}

// JoinRoom subscribes a connection to a room, replacing any previous room.
func (r *Registry) JoinRoom(ctx context.Context, connID, roomName string, roomID int) {
	key := roomKey{Name: roomName, ID: roomID}

	r.mu.Lock()
	e, ok := r.byID[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.leaveRoomLocked(e)
	e.room = &key
	if _, ok := r.byRoom[key]; !ok {
		r.byRoom[key] = make(map[string]*entry)
	}
	r.byRoom[key][connID] = e
	userID := e.userID
	r.mu.Unlock()

	r.mirror(ctx, connID, map[string]any{"user_id": userID, "room_name": roomName, "room_id": roomID})
}

// LeaveRoom unsubscribes a connection from its current room, if any.
func (r *Registry) LeaveRoom(ctx context.Context, connID string) {
	r.mu.Lock()
	e, ok := r.byID[connID]
	var userID int
	if ok {
		r.leaveRoomLocked(e)
		userID = e.userID
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.mirror(ctx, connID, map[string]any{"user_id": userID, "room_name": "", "room_id": 0})
}

// Unregister removes a connection. Calling it for an unknown id is a no-op.
func (r *Registry) Unregister(ctx context.Context, connID string) {
	r.mu.Lock()
	e, ok := r.byID[connID]
	if ok {
		r.dropLocked(e)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if r.rdb != nil {
		if err := r.rdb.Del(ctx, r.prefix+connID).Err(); err != nil {
			r.log.Warn().Err(err).Str("conn_id", connID).Msg("socket directory delete failed")
		}
	}
}

// ConnsForUser returns every live connection of the user (multi-device).
func (r *Registry) ConnsForUser(userID int) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.byUser[userID]
	conns := make([]Connection, 0, len(entries))
	for _, e := range entries {
		conns = append(conns, e.conn)
	}
	return conns
}

// ConnsForRoom returns every connection subscribed to a room.
func (r *Registry) ConnsForRoom(roomName string, roomID int) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.byRoom[roomKey{Name: roomName, ID: roomID}]
	conns := make([]Connection, 0, len(entries))
	for _, e := range entries {
		conns = append(conns, e.conn)
	}
	return conns
}

// SendToUser writes the payload to every connection of the user, pruning
// connections whose write fails.
func (r *Registry) SendToUser(ctx context.Context, userID int, payload any) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.byUser[userID]))
	for _, e := range r.byUser[userID] {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		if err := e.conn.SendJSON(payload); err != nil {
			r.log.Warn().Err(err).Str("conn_id", e.id).Int("user_id", userID).Msg("socket write failed")
			_ = e.conn.Close()
			r.Unregister(ctx, e.id)
		}
	}
}

// SendToRoom writes the payload to every subscriber of a room.
func (r *Registry) SendToRoom(ctx context.Context, roomName string, roomID int, payload any) {
	r.mu.RLock()
	entries := make([]*entry, 0)
	for _, e := range r.byRoom[roomKey{Name: roomName, ID: roomID}] {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		if err := e.conn.SendJSON(payload); err != nil {
			r.log.Warn().Err(err).Str("conn_id", e.id).Str("room", roomName+"_"+strconv.Itoa(roomID)).Msg("socket write failed")
			_ = e.conn.Close()
			r.Unregister(ctx, e.id)
		}
	}
}

// Shutdown closes every tracked connection and clears the registry.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.byID = make(map[string]*entry)
	r.byUser = make(map[int]map[string]*entry)
	r.byRoom = make(map[roomKey]map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		_ = e.conn.Close()
		if r.rdb != nil {
			if err := r.rdb.Del(ctx, r.prefix+e.id).Err(); err != nil {
				r.log.Warn().Err(err).Str("conn_id", e.id).Msg("socket directory delete failed")
			}
		}
	}
}

func (r *Registry) dropLocked(e *entry) {
	r.leaveRoomLocked(e)
	delete(r.byID, e.id)
	if conns, ok := r.byUser[e.userID]; ok {
		delete(conns, e.id)
		if len(conns) == 0 {
			delete(r.byUser, e.userID)
		}
	}
}

func (r *Registry) leaveRoomLocked(e *entry) {
	if e.room == nil {
		return
	}
	if conns, ok := r.byRoom[*e.room]; ok {
		delete(conns, e.id)
		if len(conns) == 0 {
			delete(r.byRoom, *e.room)
		}
	}
	e.room = nil
}

func (r *Registry) mirror(ctx context.Context, connID string, fields map[string]any) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.HSet(ctx, r.prefix+connID, fields).Err(); err != nil {
		r.log.Warn().Err(err).Str("conn_id", connID).Msg("socket directory write failed")
	}
}
