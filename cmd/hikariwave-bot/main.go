package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hikariwave/hikariwave-go/internal/api"
	"github.com/hikariwave/hikariwave-go/internal/audiosource"
	"github.com/hikariwave/hikariwave-go/internal/config"
	"github.com/hikariwave/hikariwave-go/internal/discord"
	"github.com/hikariwave/hikariwave-go/internal/encoderpool"
	"github.com/hikariwave/hikariwave-go/internal/logging"
	"github.com/hikariwave/hikariwave-go/internal/playback"
	"github.com/hikariwave/hikariwave-go/internal/queue"
	"github.com/hikariwave/hikariwave-go/internal/tts"
	"github.com/hikariwave/hikariwave-go/internal/voicehub"
	"github.com/hikariwave/hikariwave-go/internal/voiceplayer"
)

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		// Use stderr before logger is initialized
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Initialize structured logger
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting hikariwave", "version", "0.1.0")

	// Warn if bearer token auth is disabled
	if cfg.AuthDisabled() {
		logger.Warn("HTTP bearer authentication is disabled (BEARER_TOKEN is empty)")
	}

	// Log loaded configuration (without sensitive values)
	logger.Info("configuration loaded",
		"log_level", cfg.LogLevel,
		"log_format", cfg.LogFormat,
		"http_port", cfg.HTTPPort,
		"auto_leave_idle", cfg.AutoLeaveIdle,
		"max_text_length", cfg.MaxTextLength,
		"queue_capacity", cfg.QueueCapacity,
		"encoder_max_global", cfg.EncoderMaxGlobal,
		"encoder_max_per_core", cfg.EncoderMaxPerCore,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	// Initialize TTS engine registry with Piper
	ttsRegistry := tts.NewRegistry()
	if cfg.PiperModel != "" {
		piperCfg := tts.PiperConfig{
			BinaryPath:   cfg.PiperPath,
			ModelPath:    cfg.PiperModel,
			DefaultVoice: cfg.DefaultVoice,
		}
		piperEngine, err := tts.NewPiperEngine(piperCfg, logger)
		if err != nil {
			logger.Warn("failed to initialize Piper TTS", "error", err)
		} else {
			if err := ttsRegistry.Register(piperEngine); err != nil {
				logger.Warn("failed to register Piper TTS", "error", err)
			} else {
				logger.Info("Piper TTS engine registered", "model", cfg.PiperModel)
			}
		}
	} else {
		logger.Warn("no Piper model configured, TTS will not work")
	}

	// Bounded transcoder pool: every track played, by any guild, is
	// decoded through this shared pool of ffmpeg workers.
	pool := encoderpool.New(encoderpool.Config{
		AudioChannels: cfg.AudioChannels,
		AudioBitrate:  cfg.AudioBitrate,
		FFmpegPath:    cfg.FFmpegPath,
		MaxPerCore:    cfg.EncoderMaxPerCore,
		MaxGlobal:     cfg.EncoderMaxGlobal,
		MinWarm:       cfg.EncoderMinWarm,
	}, nil, logger)

	playerCfg := voiceplayer.Config{
		MaxHistory:                cfg.PlayerMaxHistory,
		FrameStoreDisk:            cfg.FrameStoreDisk,
		FrameStoreDurationSeconds: cfg.FrameStoreDurationSecs,
	}
	playerEvents := voiceplayer.Events{
		OnAudioBegin: func(source *audiosource.Source) {
			logger.Debug("audio begin", "source", source.String())
		},
		OnAudioEnd: func(source *audiosource.Source) {
			logger.Debug("audio end", "source", source.String())
		},
	}

	var director *discord.VoiceDirector
	var hub *voicehub.Hub

	if cfg.DiscordToken != "" && cfg.GuildID != "" && cfg.DefaultVoiceChannelID != "" {
		session, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			logger.Error("failed to create discord session", "error", err)
			os.Exit(1)
		}
		session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

		if err := session.Open(); err != nil {
			logger.Error("failed to open discord session", "error", err)
			os.Exit(1)
		}
		defer session.Close()
		logger.Info("discord session opened")

		hub = voicehub.New(cfg.AutoLeaveIdle, func(guildID string) {
			logger.Info("left idle voice channel", "guild_id", guildID)
		}, logger)

		director = discord.NewVoiceDirector(session, pool, playerCfg, playerEvents, logger)
		defer director.Close()
	} else {
		logger.Warn("Discord credentials not configured, voice will not work")
	}

	// Create and start the speech queue
	speechQueue := queue.NewQueue(cfg.QueueCapacity, cfg.AutoLeaveIdle, logger)

	// Set playback handler
	defaultEngine, _ := ttsRegistry.Default()
	if hub != nil && director != nil && defaultEngine != nil {
		handler := playback.NewHandler(ttsRegistry, hub, director, cfg.GuildID, cfg.DefaultVoiceChannelID, logger)
		speechQueue.SetPlaybackHandler(handler.Handle)
		logger.Info("audio pipeline ready")
	} else {
		// Fallback handler for when not all components are available
		speechQueue.SetPlaybackHandler(func(ctx context.Context, job *queue.SpeakJob) error {
			logger.Info("would play speech (audio pipeline not configured)",
				"job_id", job.ID,
				"text", job.Text,
				"voice", job.Voice,
			)
			return nil
		})
	}

	speechQueue.Start()
	defer speechQueue.Stop()

	// Create and start HTTP server
	server := api.New(cfg, logger, speechQueue, hub)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	if hub != nil {
		hub.Shutdown(shutdownCtx)
	}

	logger.Info("shutdown complete")
}
