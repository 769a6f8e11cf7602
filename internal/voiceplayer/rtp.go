package voiceplayer

import (
	"encoding/binary"

	"github.com/hikariwave/hikariwave-go/internal/audiocodec"
)

const (
	rtpHeaderSize           = 12
	rtpVersionFlags    byte = 0x80
	rtpPayloadType     byte = 0x78
)

// sequencer produces RTP headers with monotonically increasing,
// wraparound-safe sequence numbers and timestamps.
type sequencer struct {
	ssrc      uint32
	sequence  uint32 // kept as uint32, wrapped mod audiocodec.Bit16Mod
	timestamp uint32 // wrapped mod audiocodec.Bit32Mod
}

func newSequencer(ssrc uint32) *sequencer {
	return &sequencer{ssrc: ssrc}
}

// next returns the 12-byte RTP header for the next frame and advances
// the internal counters by one frame's worth of samples.
func (s *sequencer) next() []byte {
	header := make([]byte, rtpHeaderSize)
	header[0] = rtpVersionFlags
	header[1] = rtpPayloadType
	binary.BigEndian.PutUint16(header[2:4], uint16(s.sequence))
	binary.BigEndian.PutUint32(header[4:8], s.timestamp)
	binary.BigEndian.PutUint32(header[8:12], s.ssrc)

	s.sequence = (s.sequence + 1) % audiocodec.Bit16Mod
	s.timestamp = uint32((uint64(s.timestamp) + audiocodec.SamplesPerFrame) % audiocodec.Bit32Mod)

	return header
}
