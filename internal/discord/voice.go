// Package discord bridges a discordgo gateway session to the voice core:
// it sends the voice-state-update the guild's voice server needs, waits
// for the VOICE_SERVER_UPDATE/VOICE_STATE_UPDATE pair, and hands the
// session ID/token/endpoint to voiceconn.Connect. discordgo's own voice
// websocket/UDP implementation is bypassed entirely — ChannelVoiceJoinManual
// only performs the state-update handshake, leaving the gateway/transport/
// player split in internal/voiceconn to do the rest.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/hikariwave/hikariwave-go/internal/encoderpool"
	"github.com/hikariwave/hikariwave-go/internal/voiceconn"
	"github.com/hikariwave/hikariwave-go/internal/voiceplayer"
)

// ErrJoinTimeout is returned when the voice server credentials don't
// arrive before ctx is done.
var ErrJoinTimeout = errors.New("discord: timed out waiting for voice server credentials")

// VoiceDirector joins guild voice channels and constructs voiceconn
// Sessions from the resulting server credentials. One Director serves
// every guild the bot is in; callers keep the returned *voiceconn.Session
// in a voicehub.Hub.
type VoiceDirector struct {
	session *discordgo.Session
	pool    *encoderpool.Pool
	cfg     voiceplayer.Config
	events  voiceplayer.Events
	logger  *slog.Logger

	mu       sync.Mutex
	pending  map[string]*joinWait // guildID -> waiter
	removeFn []func()
}

type joinWait struct {
	sessionID string
	token     string
	endpoint  string
	haveState bool
	haveServ  bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewVoiceDirector wraps an already-constructed discordgo.Session. The
// session must be opened by the caller; Director only registers handlers.
func NewVoiceDirector(session *discordgo.Session, pool *encoderpool.Pool, cfg voiceplayer.Config, events voiceplayer.Events, logger *slog.Logger) *VoiceDirector {
	d := &VoiceDirector{
		session: session,
		pool:    pool,
		cfg:     cfg,
		events:  events,
		logger:  logger,
		pending: make(map[string]*joinWait),
	}

	d.removeFn = append(d.removeFn,
		session.AddHandler(d.onVoiceStateUpdate),
		session.AddHandler(d.onVoiceServerUpdate),
	)

	return d
}

// Close deregisters the director's gateway handlers.
func (d *VoiceDirector) Close() {
	for _, remove := range d.removeFn {
		remove()
	}
}

// Join sends a voice-state update for channelID, waits for Discord to
// hand back session credentials, and performs the full voiceconn
// handshake, returning a ready-to-use Session.
func (d *VoiceDirector) Join(ctx context.Context, guildID, channelID string) (*voiceconn.Session, error) {
	wait := &joinWait{done: make(chan struct{})}

	d.mu.Lock()
	d.pending[guildID] = wait
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, guildID)
		d.mu.Unlock()
	}()

	if err := d.session.ChannelVoiceJoinManual(guildID, channelID, false, true); err != nil {
		return nil, fmt.Errorf("discord: channel voice join: %w", err)
	}

	select {
	case <-wait.done:
	case <-ctx.Done():
		return nil, ErrJoinTimeout
	}

	return voiceconn.Connect(ctx, voiceconn.Params{
		GuildID:   guildID,
		UserID:    d.session.State.User.ID,
		SessionID: wait.sessionID,
		Token:     wait.token,
		Endpoint:  wait.endpoint,
		Pool:      d.pool,
		PlayerCfg: d.cfg,
		Events:    d.events,
		Logger:    d.logger,
	})
}

// Leave clears the voice-state update that drops the bot from a channel.
// The caller is responsible for closing the associated voiceconn.Session
// first (normally via voicehub.Hub.Leave).
func (d *VoiceDirector) Leave(guildID string) error {
	return d.session.ChannelVoiceJoinManual(guildID, "", false, true)
}

func (d *VoiceDirector) onVoiceStateUpdate(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.UserID != d.session.State.User.ID {
		return
	}

	d.mu.Lock()
	wait, ok := d.pending[vs.GuildID]
	d.mu.Unlock()
	if !ok {
		return
	}

	wait.sessionID = vs.SessionID
	wait.haveState = true
	d.maybeSignal(wait)
}

func (d *VoiceDirector) onVoiceServerUpdate(_ *discordgo.Session, vsu *discordgo.VoiceServerUpdate) {
	d.mu.Lock()
	wait, ok := d.pending[vsu.GuildID]
	d.mu.Unlock()
	if !ok {
		return
	}

	wait.token = vsu.Token
	wait.endpoint = vsu.Endpoint
	wait.haveServ = true
	d.maybeSignal(wait)
}

func (d *VoiceDirector) maybeSignal(wait *joinWait) {
	if wait.haveState && wait.haveServ {
		wait.closeOnce.Do(func() { close(wait.done) })
	}
}
