package voicetransport

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// fakeVoiceServer answers exactly one discovery request with a scripted
// response, mimicking the real Discord voice server's behavior.
func fakeVoiceServer(t *testing.T, ip string, port uint16) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, discoveryPacketSize)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil || n != discoveryPacketSize {
			return
		}

		response := make([]byte, discoveryPacketSize)
		binary.BigEndian.PutUint16(response[0:2], discoveryResponseType)
		binary.BigEndian.PutUint16(response[2:4], discoveryPacketSize-4)
		copy(response[8:8+len(ip)], ip)
		binary.BigEndian.PutUint16(response[len(response)-2:], port)

		_, _ = conn.WriteToUDP(response, addr)
	}()

	return conn
}

func TestDiscoverParsesResponse(t *testing.T) {
	server := fakeVoiceServer(t, "203.0.113.42", 6060)

	transport, err := Dial(server.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ip, port, err := transport.Discover(ctx, 1234)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if ip != "203.0.113.42" {
		t.Errorf("expected ip 203.0.113.42, got %q", ip)
	}
	if port != 6060 {
		t.Errorf("expected port 6060, got %d", port)
	}
}

func TestDiscoverTimesOutWithoutResponse(t *testing.T) {
	// A listener that never replies.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	go func() {
		buf := make([]byte, discoveryPacketSize)
		_, _, _ = conn.ReadFromUDP(buf)
		// Never respond.
	}()

	transport, err := Dial(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err = transport.Discover(ctx, 1234)
	if err == nil {
		t.Fatal("expected discovery timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("discover took too long to time out: %v", elapsed)
	}
}

func TestSendWritesToConnectedSocket(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 1500)
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		received <- buf[:n]
	}()

	transport, err := Dial(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer transport.Close()

	packet := []byte{0x80, 0x78, 0x00, 0x01, 0xDE, 0xAD, 0xBE, 0xEF}
	if err := transport.Send(packet); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-received:
		if len(got) != len(packet) {
			t.Errorf("expected %d bytes, got %d", len(packet), len(got))
		}
	case <-time.After(time.Second):
		t.Fatal("server never received packet")
	}
}
