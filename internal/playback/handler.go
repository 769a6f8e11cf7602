package playback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hikariwave/hikariwave-go/internal/audiosource"
	"github.com/hikariwave/hikariwave-go/internal/discord"
	"github.com/hikariwave/hikariwave-go/internal/queue"
	"github.com/hikariwave/hikariwave-go/internal/tts"
	"github.com/hikariwave/hikariwave-go/internal/voicehub"
)

var (
	// ErrNoTTSEngine is returned when no TTS engine is available.
	ErrNoTTSEngine = errors.New("no TTS engine available")
	// ErrPlaybackSynthesisFailed is returned when TTS synthesis fails during playback.
	ErrPlaybackSynthesisFailed = errors.New("playback synthesis failed")
	// ErrJoinFailed is returned when the director cannot join the configured channel.
	ErrJoinFailed = errors.New("failed to join voice channel")
)

// Handler turns a SpeakJob into synthesized audio and hands it to the
// guild's voice session, joining the configured channel on demand.
type Handler struct {
	ttsRegistry *tts.Registry
	hub         *voicehub.Hub
	director    *discord.VoiceDirector
	guildID     string
	channelID   string
	logger      *slog.Logger
}

// NewHandler creates a new playback handler for one guild/channel pair.
func NewHandler(
	ttsRegistry *tts.Registry,
	hub *voicehub.Hub,
	director *discord.VoiceDirector,
	guildID, channelID string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		ttsRegistry: ttsRegistry,
		hub:         hub,
		director:    director,
		guildID:     guildID,
		channelID:   channelID,
		logger:      logger,
	}
}

// Handle processes a single speech job.
// This is the function passed to queue.SetPlaybackHandler.
func (h *Handler) Handle(ctx context.Context, job *queue.SpeakJob) error {
	h.logger.Info("processing speech job",
		"job_id", job.ID,
		"text_length", len(job.Text),
		"voice", job.Voice,
	)

	engine, err := h.ttsRegistry.Default()
	if err != nil {
		return ErrNoTTSEngine
	}

	h.logger.Debug("synthesizing speech", "job_id", job.ID, "engine", engine.Name())

	audioResult, err := engine.Synthesize(ctx, tts.SynthesizeRequest{
		Text:  job.Text,
		Voice: job.Voice,
	})
	if err != nil {
		h.logger.Error("TTS synthesis failed", "job_id", job.ID, "error", err)
		return errors.Join(ErrPlaybackSynthesisFailed, err)
	}

	h.logger.Debug("synthesis complete",
		"job_id", job.ID,
		"format", audioResult.Format,
		"sample_rate", audioResult.SampleRate,
		"channels", audioResult.Channels,
		"bytes", len(audioResult.Data),
	)

	session, err := h.ensureSession(ctx)
	if err != nil {
		h.logger.Error("voice join failed", "job_id", job.ID, "error", err)
		return errors.Join(ErrJoinFailed, err)
	}

	source := audiosource.NewBuffer(audioResult.Data, audiosource.WithName(job.ID))

	if job.Interrupt {
		err = session.PlayNow(source)
	} else {
		err = session.Play(source)
	}
	if err != nil {
		h.logger.Error("failed to submit audio to player", "job_id", job.ID, "error", err)
		return err
	}

	h.logger.Info("speech submitted for playback", "job_id", job.ID)
	return nil
}

// ensureSession returns the guild's existing voice session, joining the
// configured channel if none is active yet.
func (h *Handler) ensureSession(ctx context.Context) (voicehub.Session, error) {
	if session, ok := h.hub.Session(h.guildID); ok {
		return session, nil
	}

	session, err := h.director.Join(ctx, h.guildID, h.channelID)
	if err != nil {
		return nil, err
	}

	if err := h.hub.Connect(h.guildID, session); err != nil {
		if errors.Is(err, voicehub.ErrAlreadyConnected) {
			existing, _ := h.hub.Session(h.guildID)
			_ = session.Close()
			return existing, nil
		}
		_ = session.Close()
		return nil, err
	}

	return session, nil
}
