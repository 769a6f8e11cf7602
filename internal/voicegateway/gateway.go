package voicegateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hikariwave/hikariwave-go/internal/voicecrypto"
	"github.com/hikariwave/hikariwave-go/internal/voiceerr"
)

// State is the voice gateway's connection state machine.
type State int

const (
	StateConnecting State = iota
	StateIdentified
	StateReady
	StateIPDiscovering
	StateProtocolSelected
	StateSessionReady
	StateClosed
)

// ReadyInfo is delivered once a Ready payload arrives, so the connection
// supervisor can run IP discovery and then call SelectProtocol.
type ReadyInfo struct {
	SSRC  uint32
	IP    string
	Port  uint16
	Modes []string
}

// SessionInfo is delivered once SessionDescription arrives.
type SessionInfo struct {
	Mode      voicecrypto.Mode
	SecretKey []byte
}

// Handlers are the connection supervisor's callbacks into gateway
// events. OnReady and OnResumed may be invoked from the read-loop
// goroutine; implementations that block (IP discovery) should not run
// on that goroutine directly — Gateway already dispatches OnReady on its
// own goroutine for that reason.
type Handlers struct {
	OnReady        func(ReadyInfo)
	OnSessionReady func(SessionInfo)
	OnResumed      func()
	OnUnhealthy    func() // two consecutive missed heartbeat acks
}

// Gateway drives the control-plane WebSocket for one voice session.
type Gateway struct {
	logger   *slog.Logger
	handlers Handlers

	serverID  string
	userID    string
	sessionID string
	token     string

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	state    State
	running  bool

	ssrc uint32

	heartbeatInterval time.Duration
	heartbeatSeqAck   uint64
	heartbeatSentAt   time.Time
	missedAcks        int
	latency           time.Duration

	readyCh chan error // signaled once SessionReady is reached, or on fatal error
	readyOnce sync.Once

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a Gateway. serverID/userID identify the bot to Discord;
// they are fixed for the lifetime of one Gateway instance.
func New(serverID, userID string, handlers Handlers, logger *slog.Logger) *Gateway {
	return &Gateway{
		logger:   logger,
		handlers: handlers,
		serverID: serverID,
		userID:   userID,
		readyCh:  make(chan error, 1),
		closeCh:  make(chan struct{}),
	}
}

// Connect dials the voice WebSocket, sends Identify, and blocks until
// SessionDescription arrives (session fully ready to send) or ctx is
// done. The heartbeat and read loops continue running in the background
// after Connect returns.
func (g *Gateway) Connect(ctx context.Context, endpoint, sessionID, token string) error {
	g.sessionID = sessionID
	g.token = token

	url := fmt.Sprintf("wss://%s/?v=%d", endpoint, WebSocketVersion)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial: %v", voiceerr.ErrGateway, err)
	}

	g.mu.Lock()
	g.conn = conn
	g.state = StateConnecting
	g.running = true
	g.mu.Unlock()

	if err := g.sendIdentify(); err != nil {
		_ = conn.Close()
		return err
	}
	g.setState(StateIdentified)

	g.wg.Add(1)
	go g.readLoop()

	select {
	case err := <-g.readyCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume re-identifies an existing session id/token pair after a
// reconnect, without re-running IP discovery: a resumed session keeps
// its existing ssrc/secret_key.
func (g *Gateway) Resume(ctx context.Context, endpoint string) error {
	return g.Connect(ctx, endpoint, g.sessionID, g.token)
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// State returns the current state machine value.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gateway) send(op Op, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal op %d: %v", voiceerr.ErrGateway, op, err)
	}

	env := envelope{Op: op, D: data}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: marshal envelope: %v", voiceerr.ErrGateway, err)
	}

	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", voiceerr.ErrGateway)
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (g *Gateway) sendIdentify() error {
	return g.send(OpIdentify, identifyPayload{
		ServerID:  g.serverID,
		UserID:    g.userID,
		SessionID: g.sessionID,
		Token:     g.token,
	})
}

// SelectProtocol sends Op 1 with the externally discovered address.
func (g *Gateway) SelectProtocol(address string, port uint16, mode voicecrypto.Mode) error {
	g.setState(StateProtocolSelected)
	return g.send(OpSelectProtocol, selectProtocolPayload{
		Protocol: "udp",
		Data: selectProtocolDetail{
			Address: address,
			Port:    port,
			Mode:    string(mode),
		},
	})
}

// SetSpeaking announces the speaking bitmask for this session's SSRC.
func (g *Gateway) SetSpeaking(speaking bool) error {
	g.mu.Lock()
	ssrc := g.ssrc
	g.mu.Unlock()

	flag := speakingNone
	if speaking {
		flag = speakingMicrophone
	}
	return g.send(OpSpeaking, speakingPayload{Speaking: flag, Delay: 0, SSRC: ssrc})
}

// Close tears down the WebSocket and stops the heartbeat/read loops.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	conn := g.conn
	g.state = StateClosed
	g.mu.Unlock()

	close(g.closeCh)

	var err error
	if conn != nil {
		err = conn.Close()
	}
	g.wg.Wait()
	return err
}

func (g *Gateway) readLoop() {
	defer g.wg.Done()
	defer g.signalReady(fmt.Errorf("%w: read loop ended", voiceerr.ErrGateway))

	for {
		g.mu.Lock()
		conn := g.conn
		g.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			g.mu.Lock()
			closing := !g.running
			g.mu.Unlock()
			if closing {
				return
			}
			g.logger.Error("voicegateway: read failed", "error", err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.logger.Warn("voicegateway: malformed payload", "error", err)
			continue
		}

		g.dispatch(env)
	}
}

func (g *Gateway) dispatch(env envelope) {
	switch env.Op {
	case OpHello:
		var hello helloPayload
		if err := json.Unmarshal(env.D, &hello); err != nil {
			g.logger.Warn("voicegateway: bad hello", "error", err)
			return
		}
		g.heartbeatInterval = time.Duration(hello.HeartbeatIntervalMS * float64(time.Millisecond))
		g.wg.Add(1)
		go g.heartbeatLoop()

	case OpReady:
		var ready readyPayload
		if err := json.Unmarshal(env.D, &ready); err != nil {
			g.logger.Warn("voicegateway: bad ready", "error", err)
			return
		}
		g.mu.Lock()
		g.ssrc = ready.SSRC
		g.state = StateReady
		g.mu.Unlock()

		g.logger.Debug("voicegateway: received ready, discovering ip", "ssrc", ready.SSRC)
		g.setState(StateIPDiscovering)

		if g.handlers.OnReady != nil {
			info := ReadyInfo{SSRC: ready.SSRC, IP: ready.IP, Port: ready.Port, Modes: ready.Modes}
			go g.handlers.OnReady(info)
		}

	case OpSessionDescription:
		var desc sessionDescriptionPayload
		if err := json.Unmarshal(env.D, &desc); err != nil {
			g.logger.Warn("voicegateway: bad session description", "error", err)
			return
		}
		g.setState(StateSessionReady)
		g.logger.Debug("voicegateway: session secret received")

		if g.handlers.OnSessionReady != nil {
			g.handlers.OnSessionReady(SessionInfo{Mode: voicecrypto.Mode(desc.Mode), SecretKey: desc.SecretKey})
		}
		g.signalReady(nil)

	case OpHeartbeatAck:
		g.mu.Lock()
		g.latency = time.Since(g.heartbeatSentAt)
		g.missedAcks = 0
		latency := g.latency
		g.mu.Unlock()
		g.logger.Debug("voicegateway: heartbeat ack", "latency_ms", latency.Milliseconds())

	case OpResumed:
		g.setState(StateSessionReady)
		if g.handlers.OnResumed != nil {
			g.handlers.OnResumed()
		}

	case OpClientDisconnect:
		// no per-user tracking here; nothing to update.

	default:
		g.logger.Debug("voicegateway: unhandled op", "op", env.Op)
	}
}

func (g *Gateway) signalReady(err error) {
	g.readyOnce.Do(func() {
		g.readyCh <- err
	})
}

func (g *Gateway) heartbeatLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.closeCh:
			return
		case <-ticker.C:
			g.mu.Lock()
			seqAck := g.heartbeatSeqAck
			g.heartbeatSentAt = time.Now()
			missed := g.missedAcks // earlier heartbeats still unacked
			g.missedAcks++
			g.mu.Unlock()

			if err := g.send(OpHeartbeat, heartbeatPayload{
				T:      time.Now().UnixMilli(),
				SeqAck: seqAck,
			}); err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				g.logger.Error("voicegateway: heartbeat send failed", "error", err)
				continue
			}

			if missed >= 2 && g.handlers.OnUnhealthy != nil {
				g.handlers.OnUnhealthy()
			}
		}
	}
}

// Latency returns the most recently measured heartbeat round-trip time.
func (g *Gateway) Latency() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latency
}

// SSRC returns the session's synchronization source identifier, valid
// once Ready has been received.
func (g *Gateway) SSRC() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ssrc
}
