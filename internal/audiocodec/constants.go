// Package audiocodec holds the fixed audio parameters the Discord voice
// protocol requires and the modular counter widths used by the RTP layer.
package audiocodec

import "time"

const (
	// SampleRateHz is the required PCM/Opus sample rate for Discord voice.
	SampleRateHz = 48000

	// Channels is the required channel count for Discord voice.
	Channels = 2

	// FrameLengthMS is the duration of one Opus frame in milliseconds.
	FrameLengthMS = 20

	// FrameDuration is FrameLengthMS expressed as a time.Duration.
	FrameDuration = FrameLengthMS * time.Millisecond

	// SamplesPerFrame is the number of samples per channel in one frame
	// (20ms at 48kHz).
	SamplesPerFrame = 960

	// FramesPerSecond is 1000 / FrameLengthMS.
	FramesPerSecond = 1000 / FrameLengthMS

	// Bit16Mod is the modulus for the RTP sequence counter (2^16).
	Bit16Mod = 1 << 16

	// Bit32Mod is the modulus for the RTP timestamp and nonce counters
	// (2^32). It is an untyped constant, since 2^32 does not fit in a
	// uint32; call sites reduce modulo it in uint64 and convert back.
	Bit32Mod = 1 << 32
)

// SilenceFrame is the fixed 3-byte Opus "silence" packet Discord expects
// to see during pause/stop drains.
var SilenceFrame = []byte{0xF8, 0xFF, 0xFE}

// SilenceFrameCount is the number of SilenceFrame packets sent on every
// pause and at track/session end.
const SilenceFrameCount = 5
