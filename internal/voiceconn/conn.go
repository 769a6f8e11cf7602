// Package voiceconn supervises one guild's full voice session: it wires
// the gateway handshake into UDP IP discovery and SelectProtocol, then
// hands the negotiated cipher and SSRC to a Player. It is grounded on
// discord.VoiceManager's Connect/Disconnect lifecycle, generalized from
// discordgo's bundled voice implementation into the gateway/transport/
// player split this core requires.
package voiceconn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hikariwave/hikariwave-go/internal/audiosource"
	"github.com/hikariwave/hikariwave-go/internal/encoderpool"
	"github.com/hikariwave/hikariwave-go/internal/voicecrypto"
	"github.com/hikariwave/hikariwave-go/internal/voiceerr"
	"github.com/hikariwave/hikariwave-go/internal/voicegateway"
	"github.com/hikariwave/hikariwave-go/internal/voiceplayer"
	"github.com/hikariwave/hikariwave-go/internal/voicetransport"
)

// connectTimeout bounds the full handshake: Identify through
// SessionDescription, including IP discovery.
const connectTimeout = 15 * time.Second

// Session supervises gateway + transport + player for one guild's voice
// connection.
type Session struct {
	guildID string
	logger  *slog.Logger

	gateway   *voicegateway.Gateway
	transport *voicetransport.Transport
	player    *voiceplayer.Player

	mu     sync.Mutex
	closed bool
}

// Params bundles everything a Session needs to establish one voice
// connection.
type Params struct {
	GuildID   string
	UserID    string
	SessionID string
	Token     string
	Endpoint  string
	Pool      *encoderpool.Pool
	PlayerCfg voiceplayer.Config
	Events    voiceplayer.Events
	Logger    *slog.Logger
}

// Connect performs the full handshake: gateway Identify/Ready, UDP IP
// discovery, SelectProtocol, and waits for SessionDescription, then
// constructs a ready-to-use Player.
func Connect(ctx context.Context, p Params) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	s := &Session{guildID: p.GuildID, logger: p.Logger}

	var (
		discoveryOnce sync.Once
		discoveryErr  error
		sessionOnce   sync.Once
		cipher        *voicecrypto.Cipher
		ssrc          uint32
		ready         = make(chan struct{})
	)

	handlers := voicegateway.Handlers{
		OnReady: func(info voicegateway.ReadyInfo) {
			discoveryOnce.Do(func() {
				mode, ok := voicecrypto.Negotiate(info.Modes)
				if !ok {
					discoveryErr = voiceerr.ErrEncryptionModeNotSupported
					close(ready)
					return
				}

				transport, err := voicetransport.Dial(fmt.Sprintf("%s:%d", info.IP, info.Port))
				if err != nil {
					discoveryErr = err
					close(ready)
					return
				}

				localIP, localPort, err := transport.Discover(ctx, info.SSRC)
				if err != nil {
					discoveryErr = err
					_ = transport.Close()
					close(ready)
					return
				}

				s.mu.Lock()
				s.transport = transport
				s.mu.Unlock()
				ssrc = info.SSRC

				if err := s.gateway.SelectProtocol(localIP, localPort, mode); err != nil {
					discoveryErr = err
					close(ready)
				}
			})
		},
		OnSessionReady: func(info voicegateway.SessionInfo) {
			sessionOnce.Do(func() {
				c, err := voicecrypto.NewCipher(info.Mode, info.SecretKey)
				if err != nil {
					discoveryErr = err
				}
				cipher = c
				close(ready)
			})
		},
	}

	s.gateway = voicegateway.New(p.GuildID, p.UserID, handlers, p.Logger)

	if err := s.gateway.Connect(ctx, p.Endpoint, p.SessionID, p.Token); err != nil {
		return nil, fmt.Errorf("voiceconn: handshake: %w", err)
	}

	select {
	case <-ready:
	case <-ctx.Done():
		_ = s.gateway.Close()
		return nil, ctx.Err()
	}
	if discoveryErr != nil {
		_ = s.gateway.Close()
		if s.transport != nil {
			_ = s.transport.Close()
		}
		return nil, discoveryErr
	}

	s.player = voiceplayer.New(ssrc, s.transport, cipher, s.gateway, p.Pool, p.PlayerCfg, p.Events, p.Logger)

	return s, nil
}

// Play enqueues source for playback.
func (s *Session) Play(source *audiosource.Source) error {
	return s.player.Enqueue(source)
}

// PlayNow interrupts the current track and plays source immediately.
func (s *Session) PlayNow(source *audiosource.Source) error {
	return s.player.PlayNow(source)
}

// Skip cancels the current track.
func (s *Session) Skip() { s.player.Skip() }

// Pause holds playback, emitting silence until Resume.
func (s *Session) Pause() { s.player.Pause() }

// Resume clears a paused state.
func (s *Session) Resume() { s.player.Resume() }

// History returns recently played sources.
func (s *Session) History() []*audiosource.Source { return s.player.History() }

// Idle reports whether nothing is queued or playing right now.
func (s *Session) Idle() bool {
	return s.player.QueueLen() == 0 && !s.player.IsPlaying()
}

// Latency returns the gateway's most recent heartbeat round-trip time.
func (s *Session) Latency() time.Duration { return s.gateway.Latency() }

// Close tears down the player, transport, and gateway in that order.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.player.Stop()

	var err error
	if s.transport != nil {
		err = s.transport.Close()
	}
	if gwErr := s.gateway.Close(); gwErr != nil && err == nil {
		err = gwErr
	}
	return err
}
