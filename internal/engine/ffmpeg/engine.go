package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"audioconv/internal/engine"
	"audioconv/internal/logging"
	"audioconv/internal/services"
	"audioconv/internal/transcode"
)

var commandContext = exec.CommandContext

// ErrStopped is delivered as the terminal error of a pipeline aborted by Stop.
var ErrStopped = errors.New("pipeline stopped")

const stderrTailBytes = 4096

// Option configures the engine.
type Option func(*Engine)

// WithBinaries overrides the ffmpeg and ffprobe executables.
func WithBinaries(ffmpeg, ffprobe string) Option {
	return func(e *Engine) {
		if ffmpeg = strings.TrimSpace(ffmpeg); ffmpeg != "" {
			e.ffmpeg = ffmpeg
		}
		if ffprobe = strings.TrimSpace(ffprobe); ffprobe != "" {
			e.ffprobe = ffprobe
		}
	}
}

// WithLogger attaches a logger for command tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.NewComponentLogger(logger, "ffmpeg")
	}
}

// Engine drives ffprobe and ffmpeg child processes.
type Engine struct {
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

// New constructs an engine using defaults.
func New(opts ...Option) *Engine {
	e := &Engine{ffmpeg: "ffmpeg", ffprobe: "ffprobe", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build probes input and prepares an ffmpeg run writing output.
func (e *Engine) Build(ctx context.Context, input, output string, spec transcode.Spec) (engine.Pipeline, error) {
	if input == "" || output == "" {
		return nil, errors.New("ffmpeg: input and output paths are required")
	}
	probe, err := e.Probe(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", input, err)
	}
	st, err := stageFor(spec, input)
	if err != nil {
		return nil, err
	}
	args := buildArgs(input, output, st)
	logging.WithContext(ctx, e.logger).Debug("ffmpeg pipeline built",
		logging.String("command", e.ffmpeg+" "+strings.Join(args, " ")),
		logging.Duration("duration", probe.Duration),
		logging.String("source_codec", probe.Audio[0].Codec),
	)

	runCtx, cancel := context.WithCancel(ctx)
	cmd := commandContext(runCtx, e.ffmpeg, args...)
	p := &pipeline{
		cmd:      cmd,
		cancel:   cancel,
		events:   make(chan engine.Event, 16),
		abandon:  make(chan struct{}),
		done:     make(chan struct{}),
		stderr:   newTailBuffer(stderrTailBytes),
		duration: probe.Duration,
	}
	cmd.Stderr = p.stderr
	return p, nil
}

type pipeline struct {
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	events   chan engine.Event
	abandon  chan struct{}
	done     chan struct{}
	stderr   *tailBuffer
	duration time.Duration
	position atomic.Int64

	mu      sync.Mutex
	started bool
	stopped bool
}

func (p *pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("ffmpeg: pipeline already started")
	}
	if p.stopped {
		return ErrStopped
	}
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		p.cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := p.cmd.Start(); err != nil {
		p.cancel()
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "start", "", err)
	}
	p.started = true
	go p.run(stdout)
	return nil
}

func (p *pipeline) run(stdout io.Reader) {
	defer close(p.done)
	defer close(p.events)
	defer p.cancel()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		pos, ok := parseProgressLine(scanner.Text())
		if !ok {
			continue
		}
		p.position.Store(int64(pos))
		select {
		case p.events <- engine.Progress{Position: pos, Duration: p.duration}:
		default:
		}
	}
	// Drain so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, stdout)

	var terminal engine.Event = engine.Completed{}
	if err := p.cmd.Wait(); err != nil {
		p.mu.Lock()
		stopped := p.stopped
		p.mu.Unlock()
		if stopped {
			terminal = engine.Error{Err: ErrStopped}
		} else {
			terminal = engine.Error{Err: services.Wrap(services.ErrExternalTool, "ffmpeg", "encode", p.stderr.String(), err)}
		}
	}
	select {
	case p.events <- terminal:
	case <-p.abandon:
	}
}

func (p *pipeline) Events() <-chan engine.Event {
	return p.events
}

func (p *pipeline) Position() (time.Duration, time.Duration, bool) {
	if p.duration <= 0 {
		return 0, 0, false
	}
	return time.Duration(p.position.Load()), p.duration, true
}

func (p *pipeline) Stop() error {
	p.mu.Lock()
	if p.stopped {
		started := p.started
		p.mu.Unlock()
		if started {
			<-p.done
		}
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.abandon)
	p.mu.Unlock()

	p.cancel()
	if started {
		<-p.done
	} else {
		close(p.events)
	}
	return nil
}

// parseProgressLine extracts the output position from one -progress line.
func parseProgressLine(line string) (time.Duration, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// ffmpeg reports microseconds under both keys.
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		return time.Duration(us) * time.Microsecond, true
	default:
		return 0, false
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

var _ engine.Engine = (*Engine)(nil)
