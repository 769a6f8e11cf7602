// Package audiosource implements the tagged audio source variant used by
// the voice core: an in-memory Buffer, a local File, or a remote URL,
// each carrying an optional per-source volume override.
//
// This replaces hikari-wave's three ABC subclasses (BufferAudioSource,
// FileAudioSource, URLAudioSource) with a single concrete type tagged by
// Kind, favoring a plain struct over interface-per-variant polymorphism.
package audiosource

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies which of the three AudioSource shapes a Source holds.
type Kind int

const (
	// KindBuffer is an in-memory encoded audio payload.
	KindBuffer Kind = iota
	// KindFile is a local filesystem path.
	KindFile
	// KindURL is a remote URI.
	KindURL
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindFile:
		return "file"
	case KindURL:
		return "url"
	default:
		return "unknown"
	}
}

// Source is an immutable tagged audio source. Zero value is not valid;
// construct with NewBuffer, NewFile, or NewURL.
type Source struct {
	kind Kind

	buffer []byte
	path   string
	url    string

	// name is an optional display name, never used for equality/hashing.
	name string

	// volume overrides the player/pool default. Exactly one of
	// volumeScale/volumeDB is meaningful when hasVolume is true.
	hasVolume   bool
	volumeScale float64
	volumeDB    string

	// id is a stable per-instance identifier used only for log
	// correlation, not for equality.
	id string
}

// Option customizes a Source at construction time.
type Option func(*Source)

// WithName attaches a display name to a Source, used only for logging
// and event payloads.
func WithName(name string) Option {
	return func(s *Source) { s.name = name }
}

// WithVolumeScale attaches a linear volume multiplier (e.g. 0.5, 1.0, 2.0)
// that overrides the player/pool default for this source only.
func WithVolumeScale(scale float64) Option {
	return func(s *Source) {
		s.hasVolume = true
		s.volumeScale = scale
		s.volumeDB = ""
	}
}

// WithVolumeDB attaches a dB-suffixed volume string (e.g. "-3dB") that
// overrides the player/pool default for this source only. The string is
// passed through to the transcoder's volume filter verbatim.
func WithVolumeDB(db string) Option {
	return func(s *Source) {
		s.hasVolume = true
		s.volumeDB = db
		s.volumeScale = 0
	}
}

func newSource(kind Kind, opts []Option) *Source {
	s := &Source{kind: kind, id: uuid.NewString()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewBuffer creates an in-memory audio source. The buffer is fed to the
// transcoder via stdin.
func NewBuffer(buf []byte, opts ...Option) *Source {
	s := newSource(KindBuffer, opts)
	s.buffer = buf
	return s
}

// NewFile creates a local-path audio source. The path is passed to the
// transcoder as its input URI.
func NewFile(path string, opts ...Option) *Source {
	s := newSource(KindFile, opts)
	s.path = path
	return s
}

// NewURL creates a remote-URI audio source. The URL is passed to the
// transcoder as its input URI.
func NewURL(url string, opts ...Option) *Source {
	s := newSource(KindURL, opts)
	s.url = url
	return s
}

// Kind reports which variant this source is.
func (s *Source) Kind() Kind { return s.kind }

// Buffer returns the in-memory payload. Only valid when Kind() == KindBuffer.
func (s *Source) Buffer() []byte { return s.buffer }

// Path returns the local filesystem path. Only valid when Kind() == KindFile.
func (s *Source) Path() string { return s.path }

// URL returns the remote URI. Only valid when Kind() == KindURL.
func (s *Source) URL() string { return s.url }

// Name returns the optional display name, or "" if none was set.
func (s *Source) Name() string { return s.name }

// ID returns a stable per-instance identifier for log correlation. It is
// not part of equality/hashing.
func (s *Source) ID() string { return s.id }

// Volume returns the transcoder volume argument for this source: either a
// scale factor (as a string, e.g. "1.5"), a dB string (e.g. "-3dB"), or
// "1.0" if no override was set.
func (s *Source) Volume() string {
	if !s.hasVolume {
		return "1.0"
	}
	if s.volumeDB != "" {
		return s.volumeDB
	}
	return fmt.Sprintf("%g", s.volumeScale)
}

// Equal reports whether two sources carry the same payload (buffer bytes,
// path, or URL), matching hikari-wave's __eq__/__hash__-by-payload
// semantics. Name and volume are not part of equality.
func (s *Source) Equal(other *Source) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.kind != other.kind {
		return false
	}
	switch s.kind {
	case KindBuffer:
		return string(s.buffer) == string(other.buffer)
	case KindFile:
		return s.path == other.path
	case KindURL:
		return s.url == other.url
	default:
		return false
	}
}

// HashKey returns a stable string key suitable for map-based deduping,
// derived from the payload only (same inputs as Equal).
func (s *Source) HashKey() string {
	h := sha256.New()
	switch s.kind {
	case KindBuffer:
		h.Write([]byte{'b'})
		h.Write(s.buffer)
	case KindFile:
		h.Write([]byte{'f'})
		h.Write([]byte(s.path))
	case KindURL:
		h.Write([]byte{'u'})
		h.Write([]byte(s.url))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// String implements fmt.Stringer for log-friendly display.
func (s *Source) String() string {
	display := s.name
	if display == "" {
		switch s.kind {
		case KindFile:
			display = s.path
		case KindURL:
			display = s.url
		default:
			display = fmt.Sprintf("%d bytes", len(s.buffer))
		}
	}
	return fmt.Sprintf("Source(kind=%s, %s)", s.kind, display)
}
