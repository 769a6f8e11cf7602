// Package voiceerr defines the error taxonomy shared across the voice
// core packages, grouped the way sentinel errors are grouped per package
// elsewhere in this module, but collected here since the same kinds
// surface from several packages.
package voiceerr

import "errors"

var (
	// ErrGateway covers unexpected ops, malformed payloads, and abnormal
	// WebSocket closes on the voice gateway.
	ErrGateway = errors.New("voice gateway error")

	// ErrServer covers UDP I/O failures and transport bind failures.
	ErrServer = errors.New("voice server error")

	// ErrEncryptionModeNotSupported is returned when none of the modes
	// advertised in Ready are implemented by this core.
	ErrEncryptionModeNotSupported = errors.New("no supported encryption mode offered")

	// ErrIPDiscoveryTimeout is returned when the UDP discovery response
	// does not arrive within the discovery deadline.
	ErrIPDiscoveryTimeout = errors.New("ip discovery timed out")

	// ErrTranscoderSpawnFailed is returned when the external transcoder
	// process cannot be started.
	ErrTranscoderSpawnFailed = errors.New("failed to spawn transcoder process")

	// ErrTranscoderUnexpectedOutput is returned when the transcoder's
	// stdout does not begin with a valid Ogg page.
	ErrTranscoderUnexpectedOutput = errors.New("transcoder produced unexpected output")

	// ErrSourceTypeUnsupported is returned when an AudioSource variant
	// outside {Buffer, File, URL} is submitted to the encoder pool.
	ErrSourceTypeUnsupported = errors.New("unsupported audio source type")
)
