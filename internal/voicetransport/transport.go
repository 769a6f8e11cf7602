// Package voicetransport implements the UDP data plane for a Discord
// voice session: the connected socket used to send RTP packets, and the
// IP discovery exchange that learns the client's externally visible
// address/port once the gateway's Ready payload supplies an ssrc and
// server address. It is grounded on discord.VoiceManager's context-aware
// connect/retry idiom, reshaped around net.UDPConn instead of
// discordgo's abstraction.
package voicetransport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/hikariwave/hikariwave-go/internal/voiceerr"
)

const (
	// discoveryPacketSize is the fixed length of both the IP discovery
	// request and response datagrams.
	discoveryPacketSize = 74

	// discoveryRequestType and discoveryResponseType are the leading
	// 2-byte big-endian type markers in the discovery packet.
	discoveryRequestType  uint16 = 0x1
	discoveryResponseType uint16 = 0x2

	discoveryAddressLength = 64

	// discoveryTimeout bounds how long the transport waits for the
	// discovery response before giving up.
	discoveryTimeout = 5 * time.Second
)

// Transport owns a connected UDP socket to a single voice server.
type Transport struct {
	conn *net.UDPConn
	ssrc uint32
}

// Dial opens a connected UDP socket to addr ("host:port" from the
// gateway's Ready payload).
func Dial(addr string) (*Transport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", voiceerr.ErrServer, addr, err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", voiceerr.ErrServer, addr, err)
	}

	return &Transport{conn: conn}, nil
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// LocalAddr returns the local UDP address the transport is bound to.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Discover performs the 74-byte IP discovery exchange for ssrc and
// returns the externally visible address/port the voice server observed.
// It blocks until a response arrives, ctx is cancelled, or
// discoveryTimeout elapses.
func (t *Transport) Discover(ctx context.Context, ssrc uint32) (string, uint16, error) {
	t.ssrc = ssrc

	request := make([]byte, discoveryPacketSize)
	binary.BigEndian.PutUint16(request[0:2], discoveryRequestType)
	binary.BigEndian.PutUint16(request[2:4], discoveryPacketSize-4)
	binary.BigEndian.PutUint32(request[4:8], ssrc)

	if _, err := t.conn.Write(request); err != nil {
		return "", 0, fmt.Errorf("%w: write discovery request: %v", voiceerr.ErrServer, err)
	}

	deadline, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	if dl, ok := deadline.Deadline(); ok {
		_ = t.conn.SetReadDeadline(dl)
	}
	defer t.conn.SetReadDeadline(time.Time{})

	response := make([]byte, discoveryPacketSize)
	readDone := make(chan error, 1)
	go func() {
		_, _, err := t.conn.ReadFromUDP(response)
		readDone <- err
	}()

	select {
	case err := <-readDone:
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return "", 0, voiceerr.ErrIPDiscoveryTimeout
			}
			return "", 0, fmt.Errorf("%w: read discovery response: %v", voiceerr.ErrServer, err)
		}
	case <-deadline.Done():
		return "", 0, voiceerr.ErrIPDiscoveryTimeout
	}

	return parseDiscoveryResponse(response)
}

func parseDiscoveryResponse(response []byte) (string, uint16, error) {
	if len(response) != discoveryPacketSize {
		return "", 0, fmt.Errorf("%w: malformed discovery response length %d", voiceerr.ErrServer, len(response))
	}
	if binary.BigEndian.Uint16(response[0:2]) != discoveryResponseType {
		return "", 0, fmt.Errorf("%w: unexpected discovery response type", voiceerr.ErrServer)
	}

	addrField := response[8 : 8+discoveryAddressLength]
	nulAt := discoveryAddressLength
	for i, b := range addrField {
		if b == 0 {
			nulAt = i
			break
		}
	}
	ip := string(addrField[:nulAt])
	port := binary.BigEndian.Uint16(response[len(response)-2:])

	return ip, port, nil
}

// Send writes a single already-framed (and already-encrypted) RTP
// packet to the voice server.
func (t *Transport) Send(packet []byte) error {
	_, err := t.conn.Write(packet)
	if err != nil {
		return fmt.Errorf("%w: send rtp packet: %v", voiceerr.ErrServer, err)
	}
	return nil
}
