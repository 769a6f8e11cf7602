// Package voiceplayer paces transcoded Opus frames onto the wire as
// encrypted RTP packets, and manages the play queue, history, and
// pause/resume/skip/stop semantics on top of it. It generalizes
// internal/queue.Queue's worker-loop idiom (single playback goroutine,
// idle timer, stop/enqueue channels) from a one-shot TTS job queue into
// a resumable audio player.
package voiceplayer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hikariwave/hikariwave-go/internal/audiocodec"
	"github.com/hikariwave/hikariwave-go/internal/audiosource"
	"github.com/hikariwave/hikariwave-go/internal/framestore"
)

// ErrPlayerClosed is returned by Enqueue/PlayNow after Stop has been called.
var ErrPlayerClosed = errors.New("voiceplayer: player is closed")

// Sender transmits one already-framed RTP packet. *voicetransport.Transport
// satisfies this.
type Sender interface {
	Send(packet []byte) error
}

// Encrypter seals one RTP payload under the negotiated AEAD suite.
// *voicecrypto.Cipher satisfies this.
type Encrypter interface {
	Encrypt(header, audio []byte) []byte
}

// SpeakingSetter announces the speaking bitmask over the control plane.
// *voicegateway.Gateway satisfies this.
type SpeakingSetter interface {
	SetSpeaking(speaking bool) error
}

// Transcoder submits an audio source for decoding into store.
// *encoderpool.Pool satisfies this.
type Transcoder interface {
	Submit(ctx context.Context, source *audiosource.Source, store *framestore.Store)
}

// Config controls frame store sizing and history depth.
type Config struct {
	// MaxHistory bounds how many completed sources are retained for
	// Player.History. Zero disables history retention.
	MaxHistory int
	// FrameStoreDisk/FrameStoreDurationSeconds are forwarded to
	// framestore.New for every source this player transcodes.
	FrameStoreDisk            bool
	FrameStoreDurationSeconds int
	FrameStoreDir             string
}

// Events are fired around track boundaries, matching hikari-wave's
// AUDIO_BEGIN/AUDIO_END notifications.
type Events struct {
	OnAudioBegin func(*audiosource.Source)
	OnAudioEnd   func(*audiosource.Source)
}

// Player drives one guild's RTP send loop: one track plays at a time,
// additional sources queue, and pause holds the loop without losing the
// in-flight track's frame store.
type Player struct {
	cfg       Config
	sender    Sender
	cipher    Encrypter
	speaking  SpeakingSetter
	transcode Transcoder
	events    Events
	logger    *slog.Logger
	seq       *sequencer

	mu          sync.Mutex
	closed      bool
	paused      bool
	resumeCh    chan struct{}
	queue       []*audiosource.Source
	history     []*audiosource.Source
	cancelTrack context.CancelFunc

	stopCh    chan struct{}
	enqueueCh chan struct{}
	wg        sync.WaitGroup
}

// New creates a Player bound to ssrc, ready to accept sources via Enqueue.
func New(ssrc uint32, sender Sender, cipher Encrypter, speaking SpeakingSetter, transcode Transcoder, cfg Config, events Events, logger *slog.Logger) *Player {
	p := &Player{
		cfg:       cfg,
		sender:    sender,
		cipher:    cipher,
		speaking:  speaking,
		transcode: transcode,
		events:    events,
		logger:    logger,
		seq:       newSequencer(ssrc),
		stopCh:    make(chan struct{}),
		enqueueCh: make(chan struct{}, 1),
	}
	p.wg.Add(1)
	go p.worker()
	return p
}

// Enqueue appends source to the play queue.
func (p *Player) Enqueue(source *audiosource.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	p.queue = append(p.queue, source)
	p.signalEnqueue()
	return nil
}

// PlayNow interrupts the current track (if any) and plays source
// immediately; sources already queued play after it.
func (p *Player) PlayNow(source *audiosource.Source) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	p.queue = append([]*audiosource.Source{source}, p.queue...)
	if p.cancelTrack != nil {
		p.cancelTrack()
	}
	p.mu.Unlock()
	p.signalEnqueue()
	return nil
}

// Skip cancels the current track, moving on to the next queued source.
func (p *Player) Skip() {
	p.mu.Lock()
	if p.cancelTrack != nil {
		p.cancelTrack()
	}
	p.mu.Unlock()
}

// Pause holds the RTP send loop after a one-shot silence burst, freezing
// the sequence/timestamp clock until Resume is called.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.paused {
		p.paused = true
		p.resumeCh = make(chan struct{})
	}
	p.mu.Unlock()
}

// Resume wakes a paused send loop. The pacing clock is re-anchored rather
// than catching up the time spent paused.
func (p *Player) Resume() {
	p.mu.Lock()
	if p.paused {
		p.paused = false
		close(p.resumeCh)
	}
	p.mu.Unlock()
}

// IsPaused reports whether playback is currently paused.
func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// IsPlaying reports whether a track is currently active (playing or paused).
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelTrack != nil
}

// QueueLen returns the number of sources waiting to play.
func (p *Player) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// History returns the sources played so far, oldest first, bounded by
// Config.MaxHistory.
func (p *Player) History() []*audiosource.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*audiosource.Source, len(p.history))
	copy(out, p.history)
	return out
}

// Stop clears the queue, cancels the current track, and halts the
// player. The Player cannot be reused afterward.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.queue = nil
	if p.cancelTrack != nil {
		p.cancelTrack()
	}
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

func (p *Player) signalEnqueue() {
	select {
	case p.enqueueCh <- struct{}{}:
	default:
	}
}

func (p *Player) dequeue() *audiosource.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	source := p.queue[0]
	p.queue = p.queue[1:]
	return source
}

func (p *Player) recordHistory(source *audiosource.Source) {
	if p.cfg.MaxHistory <= 0 {
		return
	}
	p.mu.Lock()
	p.history = append(p.history, source)
	if len(p.history) > p.cfg.MaxHistory {
		p.history = p.history[len(p.history)-p.cfg.MaxHistory:]
	}
	p.mu.Unlock()
}

// playResult reports how a track's send loop ended, so playTrack knows
// whether the track qualifies for history.
type playResult int

const (
	playEOS playResult = iota
	playCancelled
)

// maybeRecordHistory records source iff playback reached EOS on its own,
// or was cancelled (Skip/PlayNow) with a successor already queued. A
// Stop/Close or a skip with nothing queued behind it leaves history
// untouched.
func (p *Player) maybeRecordHistory(source *audiosource.Source, result playResult) {
	if result == playEOS {
		p.recordHistory(source)
		return
	}
	p.mu.Lock()
	hasSuccessor := !p.closed && len(p.queue) > 0
	p.mu.Unlock()
	if hasSuccessor {
		p.recordHistory(source)
	}
}

// worker is the single playback goroutine, modeled on queue.Queue's
// worker: dequeue, play to completion or cancellation, wait for more
// work.
func (p *Player) worker() {
	defer p.wg.Done()

	for {
		source := p.dequeue()
		if source == nil {
			select {
			case <-p.stopCh:
				return
			case <-p.enqueueCh:
				continue
			}
		}

		p.playTrack(source)
	}
}

func (p *Player) playTrack(source *audiosource.Source) {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancelTrack = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		p.cancelTrack = nil
		p.mu.Unlock()
	}()

	store := framestore.New(p.cfg.FrameStoreDisk, p.cfg.FrameStoreDurationSeconds, framestore.WithDir(p.cfg.FrameStoreDir), framestore.WithLogger(p.logger))
	p.transcode.Submit(ctx, source, store)

	if p.events.OnAudioBegin != nil {
		p.events.OnAudioBegin(source)
	}
	if err := p.speaking.SetSpeaking(true); err != nil {
		p.logger.Warn("voiceplayer: failed to set speaking", "error", err)
	}

	result := p.sendLoop(ctx, store)

	if err := p.speaking.SetSpeaking(false); err != nil {
		p.logger.Warn("voiceplayer: failed to clear speaking", "error", err)
	}
	p.sendSilence()

	if p.events.OnAudioEnd != nil {
		p.events.OnAudioEnd(source)
	}
	p.maybeRecordHistory(source, result)
}

// sendLoop paces frames from store onto the wire at audiocodec.FrameDuration
// intervals until EOS, cancellation, or Stop.
func (p *Player) sendLoop(ctx context.Context, store *framestore.Store) playResult {
	ticker := time.NewTicker(audiocodec.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return playCancelled
		case <-p.stopCh:
			return playCancelled
		case <-ticker.C:
			if p.IsPaused() {
				if !p.holdForResume(ctx) {
					return playCancelled
				}
				ticker.Reset(audiocodec.FrameDuration)
				continue
			}

			frame, ok, err := store.FetchFrame(ctx)
			if err != nil {
				p.logger.Warn("voiceplayer: frame fetch failed", "error", err)
				return playCancelled
			}
			if !ok {
				return playEOS // EOS
			}
			p.sendFrame(frame)
		}
	}
}

// holdForResume emits the one-shot silence burst for a pause transition,
// then blocks with the RTP clock frozen (no further sends, sequence and
// timestamp unchanged) until Resume, Stop, or ctx cancellation. It
// returns false when the wait was aborted rather than resumed.
func (p *Player) holdForResume(ctx context.Context) bool {
	p.sendSilence()

	p.mu.Lock()
	resumeCh := p.resumeCh
	p.mu.Unlock()
	if resumeCh == nil {
		return true
	}

	select {
	case <-resumeCh:
		return true
	case <-ctx.Done():
		return false
	case <-p.stopCh:
		return false
	}
}

func (p *Player) sendFrame(frame []byte) {
	header := p.seq.next()
	packet := p.cipher.Encrypt(header, frame)
	if err := p.sender.Send(packet); err != nil {
		p.logger.Warn("voiceplayer: send failed", "error", err)
	}
}

// sendSilence emits SilenceFrameCount frames, matching Discord's
// expectation of a short silence burst before a client goes quiet.
func (p *Player) sendSilence() {
	for i := 0; i < audiocodec.SilenceFrameCount; i++ {
		p.sendFrame(audiocodec.SilenceFrame)
		time.Sleep(audiocodec.FrameDuration)
	}
}

