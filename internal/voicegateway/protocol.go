// Package voicegateway implements the Discord voice gateway control
// plane: the WebSocket handshake, heartbeat loop, encryption-mode
// negotiation, and resume handling. It is grounded on
// hikariwave/connection.py's _websocket_handler / _websocket_message
// dispatch, reshaped into Go's typical read-loop-plus-callback shape.
// Unlike relay.Client's subscribe loop, it does not reconnect: a read
// error ends the read loop.
package voicegateway

import (
	"encoding/json"
	"fmt"
)

// Op identifies a voice gateway opcode.
type Op uint8

const (
	OpIdentify           Op = 0
	OpSelectProtocol     Op = 1
	OpReady              Op = 2
	OpHeartbeat          Op = 3
	OpSessionDescription Op = 4
	OpSpeaking           Op = 5
	OpHeartbeatAck       Op = 6
	OpHello              Op = 8
	OpResumed            Op = 9
	OpClientDisconnect   Op = 13
)

// WebSocketVersion is the voice gateway protocol version this core speaks.
const WebSocketVersion = 8

// envelope is the wire frame every voice gateway payload travels in.
type envelope struct {
	Op Op              `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *uint64         `json:"s,omitempty"`
}

// identifyPayload is sent for Op 0.
type identifyPayload struct {
	ServerID  string `json:"server_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// selectProtocolPayload is sent for Op 1.
type selectProtocolPayload struct {
	Protocol string               `json:"protocol"`
	Data     selectProtocolDetail `json:"data"`
}

type selectProtocolDetail struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Mode    string `json:"mode"`
}

// readyPayload is received for Op 2.
type readyPayload struct {
	SSRC  uint32   `json:"ssrc"`
	IP    string   `json:"ip"`
	Port  uint16   `json:"port"`
	Modes []string `json:"modes"`
}

// heartbeatPayload is sent for Op 3.
type heartbeatPayload struct {
	T      int64  `json:"t"`
	SeqAck uint64 `json:"seq_ack"`
}

// sessionDescriptionPayload is received for Op 4.
type sessionDescriptionPayload struct {
	Mode      string       `json:"mode"`
	SecretKey secretKeyU8s `json:"secret_key"`
}

// secretKeyU8s unmarshals Discord's secret_key, which is a JSON array of
// unsigned byte values (e.g. [12,34,...]), not a base64 string — the
// stdlib's default []byte unmarshaling assumes the latter, so this type
// decodes the wire array form explicitly.
type secretKeyU8s []byte

func (k *secretKeyU8s) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("secret_key: %w", err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		out[i] = byte(v)
	}
	*k = out
	return nil
}

// speakingPayload is sent for Op 5.
type speakingPayload struct {
	Speaking int    `json:"speaking"`
	Delay    int    `json:"delay"`
	SSRC     uint32 `json:"ssrc"`
}

// helloPayload is received for Op 8.
type helloPayload struct {
	HeartbeatIntervalMS float64 `json:"heartbeat_interval"`
}

const (
	speakingMicrophone = 1 << 0
	speakingNone       = 0
)
