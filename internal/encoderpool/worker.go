package encoderpool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hikariwave/hikariwave-go/internal/audiocodec"
	"github.com/hikariwave/hikariwave-go/internal/audiosource"
	"github.com/hikariwave/hikariwave-go/internal/framestore"
	"github.com/hikariwave/hikariwave-go/internal/voiceerr"
)

const (
	oggPageHeaderSize = 27
	oggMagic          = "OggS"
)

// worker wraps a single transcoder subprocess invocation. A worker is
// reused across jobs only as a pool slot — the underlying subprocess is
// always a fresh instance per hikari-wave's FFmpegWorker.encode.
type worker struct {
	spawner Spawner
	cfg     Config
	logger  *slog.Logger
}

func newWorker(spawner Spawner, cfg Config, logger *slog.Logger) *worker {
	return &worker{spawner: spawner, cfg: cfg, logger: logger}
}

// encode runs the full transcoder invocation for one source and streams
// decoded Opus packets into store, finishing with an EOS StoreFrame(nil).
func (w *worker) encode(ctx context.Context, source *audiosource.Source, store *framestore.Store) error {
	pipeStdin := source.Kind() == audiosource.KindBuffer

	var input string
	switch source.Kind() {
	case audiosource.KindBuffer:
		input = "pipe:0"
	case audiosource.KindFile:
		input = source.Path()
	case audiosource.KindURL:
		input = source.URL()
	default:
		return voiceerr.ErrSourceTypeUnsupported
	}

	args := []string{
		"-i", input,
		"-map", "0:a",
		"-af", fmt.Sprintf("volume=%s", source.Volume()),
		"-acodec", "libopus",
		"-f", "opus",
		"-ar", fmt.Sprintf("%d", audiocodec.SampleRateHz),
		"-ac", fmt.Sprintf("%d", w.cfg.AudioChannels),
		"-b:a", w.cfg.AudioBitrate,
		"-application", "audio",
		"-frame_duration", fmt.Sprintf("%d", audiocodec.FrameLengthMS),
		"-loglevel", "warning",
		"pipe:1",
	}

	proc, err := w.spawner.Spawn(ctx, w.cfg.FFmpegPath, args, pipeStdin)
	if err != nil {
		return fmt.Errorf("%w: %v", voiceerr.ErrTranscoderSpawnFailed, err)
	}
	defer func() { _ = proc.Kill() }()

	// Mirrors exec.CommandContext: cancelling ctx kills the subprocess
	// even while we are blocked reading its stdout.
	go func() {
		<-ctx.Done()
		_ = proc.Kill()
	}()

	if pipeStdin {
		go func() {
			_, werr := proc.Stdin().Write(source.Buffer())
			if werr != nil {
				w.logger.Warn("encoderpool: stdin write failed", "error", werr)
			}
			_ = proc.Stdin().Close()
		}()
	}

	start := time.Now()
	demuxErr := w.demuxOgg(ctx, proc.Stdout(), store)
	_ = proc.Wait()

	w.logger.Debug("encoderpool: transcode finished", "elapsed_ms", time.Since(start).Milliseconds())

	if err := store.StoreFrame(nil); err != nil && err != framestore.ErrClosed {
		w.logger.Error("encoderpool: failed to write eos", "error", err)
	}

	return demuxErr
}

// demuxOgg parses an Ogg-Opus stream from r, delivering every non-header
// audio packet to store. It returns nil on a clean EOF, treating an
// incomplete read as the normal termination signal rather than an
// error, unless the very first page never arrives with the Ogg magic.
func (w *worker) demuxOgg(ctx context.Context, r io.Reader, store *framestore.Store) error {
	header := make([]byte, oggPageHeaderSize)
	firstPage := true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := io.ReadFull(r, header); err != nil {
			if firstPage && err != io.EOF {
				return fmt.Errorf("%w: %v", voiceerr.ErrTranscoderUnexpectedOutput, err)
			}
			return nil
		}

		if !bytes.HasPrefix(header, []byte(oggMagic)) {
			if firstPage {
				return fmt.Errorf("%w: missing Ogg magic", voiceerr.ErrTranscoderUnexpectedOutput)
			}
			return nil
		}
		firstPage = false

		segmentsCount := int(header[26])
		segmentTable := make([]byte, segmentsCount)
		if _, err := io.ReadFull(r, segmentTable); err != nil {
			return nil
		}

		var packet bytes.Buffer
		for _, lacing := range segmentTable {
			buf := make([]byte, lacing)
			if lacing > 0 {
				if _, err := io.ReadFull(r, buf); err != nil {
					return nil
				}
				packet.Write(buf)
			}

			if lacing < 255 {
				data := packet.Bytes()
				if !bytes.HasPrefix(data, []byte("OpusHead")) && !bytes.HasPrefix(data, []byte("OpusTags")) {
					frame := make([]byte, len(data))
					copy(frame, data)
					if err := store.StoreFrame(frame); err != nil && err != framestore.ErrClosed {
						return fmt.Errorf("framestore: %w", err)
					}
				}
				packet.Reset()
			}
		}
	}
}
