package encoderpool

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// fakeProc is a Proc backed by in-memory pipes, standing in for a real
// ffmpeg subprocess in tests.
type fakeProc struct {
	stdin     io.WriteCloser
	stdoutR   io.Reader
	stdoutW   io.WriteCloser
	killed    bool
	mu        sync.Mutex
	waitDoneC chan struct{}
	killedC   chan struct{}
}

func (p *fakeProc) Stdin() io.WriteCloser { return p.stdin }
func (p *fakeProc) Stdout() io.Reader     { return p.stdoutR }

// Wait returns once the producer goroutine finishes naturally, or
// immediately once Kill has been called — mirroring a real subprocess
// whose Wait() unblocks as soon as a SIGKILL lands.
func (p *fakeProc) Wait() error {
	select {
	case <-p.waitDoneC:
	case <-p.killedC:
	}
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.killed {
		p.killed = true
		close(p.killedC)
		_ = p.stdoutW.Close()
	}
	return nil
}

// fakeSpawner builds a fakeProc whose stdout is fed by producer, a
// function run in its own goroutine writing raw Ogg bytes (or anything
// else a test wants to simulate as transcoder output).
type fakeSpawner struct {
	produce func(stdinData []byte) []byte
}

func (s fakeSpawner) Spawn(ctx context.Context, name string, args []string, pipeStdin bool) (Proc, error) {
	pr, pw := io.Pipe()

	var stdinBuf bytes.Buffer
	var stdinW io.WriteCloser
	if pipeStdin {
		sr, sw := io.Pipe()
		stdinW = sw
		go func() {
			_, _ = io.Copy(&stdinBuf, sr)
		}()
	}

	proc := &fakeProc{
		stdin:     stdinW,
		stdoutR:   pr,
		stdoutW:   pw,
		waitDoneC: make(chan struct{}),
		killedC:   make(chan struct{}),
	}

	go func() {
		defer close(proc.waitDoneC)
		if pipeStdin {
			// best effort: caller closes stdin when done writing.
		}
		out := s.produce(nil)
		_, _ = pw.Write(out)
		_ = pw.Close()
	}()

	return proc, nil
}

// buildOggPage constructs one Ogg page carrying packets, each terminated
// within the segment table (no packet spans multiple pages in these
// fixtures, keeping the test fixtures simple).
func buildOggPage(packets [][]byte) []byte {
	var segments []byte
	var payload bytes.Buffer

	for _, p := range packets {
		remaining := len(p)
		if remaining == 0 {
			segments = append(segments, 0)
			continue
		}
		for remaining >= 255 {
			segments = append(segments, 255)
			remaining -= 255
		}
		segments = append(segments, byte(remaining))
		payload.Write(p)
	}

	header := make([]byte, oggPageHeaderSize)
	copy(header, oggMagic)
	header[26] = byte(len(segments))

	var page bytes.Buffer
	page.Write(header)
	page.Write(segments)
	page.Write(payload.Bytes())
	return page.Bytes()
}
