// Package voicehub manages one voiceconn.Session per guild and leaves
// voice channels that have gone idle. It generalizes
// internal/queue.Queue's idle-timer idiom (stop/enqueue channels, a
// single monitor goroutine per resource) from one queue into one
// goroutine per guild session.
package voicehub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hikariwave/hikariwave-go/internal/audiosource"
)

// ErrAlreadyConnected is returned by Connect when a session for the
// guild already exists.
var ErrAlreadyConnected = errors.New("voicehub: guild already has an active session")

// Session is the subset of *voiceconn.Session the hub needs to
// supervise — narrowed to an interface so guild lifecycles can be
// tested without a live gateway/UDP socket.
type Session interface {
	Play(source *audiosource.Source) error
	PlayNow(source *audiosource.Source) error
	Skip()
	Pause()
	Resume()
	History() []*audiosource.Source
	Idle() bool
	Close() error
}

// LeaveFunc is called by the idle monitor after it has closed and
// deregistered a session that stayed idle for the idle timeout. An
// explicit Leave does not call it.
type LeaveFunc func(guildID string)

// Hub owns the set of active per-guild voice sessions.
type Hub struct {
	mu          sync.Mutex
	sessions    map[string]*managedSession
	idleTimeout time.Duration
	onIdle      LeaveFunc
	logger      *slog.Logger
}

type managedSession struct {
	session Session
	guildID string
	stopCh  chan struct{}
}

// New creates a Hub. idleTimeout of zero disables auto-leave.
func New(idleTimeout time.Duration, onIdle LeaveFunc, logger *slog.Logger) *Hub {
	return &Hub{
		sessions:    make(map[string]*managedSession),
		idleTimeout: idleTimeout,
		onIdle:      onIdle,
		logger:      logger,
	}
}

// Connect registers session under guildID and starts its idle monitor.
// It fails if a session is already registered for that guild; callers
// must Leave the existing one first.
func (h *Hub) Connect(guildID string, session Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.sessions[guildID]; exists {
		return ErrAlreadyConnected
	}

	ms := &managedSession{session: session, guildID: guildID, stopCh: make(chan struct{})}
	h.sessions[guildID] = ms

	if h.idleTimeout > 0 {
		go h.monitor(ms)
	}

	return nil
}

// Session returns the active session for guildID, if any.
func (h *Hub) Session(guildID string) (Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, ok := h.sessions[guildID]
	if !ok {
		return nil, false
	}
	return ms.session, true
}

// Leave closes and deregisters guildID's session, if present.
func (h *Hub) Leave(guildID string) error {
	h.mu.Lock()
	ms, ok := h.sessions[guildID]
	if ok {
		delete(h.sessions, guildID)
	}
	h.mu.Unlock()

	if !ok {
		return nil
	}
	close(ms.stopCh)
	return ms.session.Close()
}

// GuildIDs returns the guilds with an active session.
func (h *Hub) GuildIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		out = append(out, id)
	}
	return out
}

// monitor polls ms.session for idleness and tears it down once idle for
// a full idleTimeout window, mirroring queue.Queue's idle-timer loop.
func (h *Hub) monitor(ms *managedSession) {
	const pollInterval = time.Second

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var idleSince time.Time

	for {
		select {
		case <-ms.stopCh:
			return
		case <-ticker.C:
			if !ms.session.Idle() {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
				continue
			}
			if time.Since(idleSince) >= h.idleTimeout {
				h.logger.Info("voicehub: auto-leaving idle guild", "guild_id", ms.guildID)
				_ = h.Leave(ms.guildID)
				if h.onIdle != nil {
					h.onIdle(ms.guildID)
				}
				return
			}
		}
	}
}

// Shutdown closes every active session.
func (h *Hub) Shutdown(ctx context.Context) {
	for _, guildID := range h.GuildIDs() {
		if err := h.Leave(guildID); err != nil {
			h.logger.Warn("voicehub: error leaving guild during shutdown", "guild_id", guildID, "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
