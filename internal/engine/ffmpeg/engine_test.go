package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"audioconv/internal/engine"
	"audioconv/internal/services"
	"audioconv/internal/transcode"
)

const probeJSON = `{
  "streams": [
    {"index": 0, "codec_name": "mjpeg", "codec_type": "video"},
    {"index": 1, "codec_name": "flac", "codec_type": "audio", "channels": 2, "sample_rate": "44100", "duration": "4.000000"}
  ],
  "format": {"format_name": "flac", "duration": "4.000000", "tags": {"ARTIST": "Someone"}}
}`

// setHelperCommand routes ffprobe and ffmpeg invocations to TestHelperProcess
// and records the ffmpeg argument list.
func setHelperCommand(t *testing.T, probeMode, encodeMode string) *[]string {
	t.Helper()
	captured := new([]string)
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		mode := probeMode
		if name == "ffmpeg" {
			mode = encodeMode
			*captured = append([]string(nil), args...)
		}
		helperArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return captured
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	output := args[len(args)-1]

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "probe":
		fmt.Print(probeJSON)
		os.Exit(0)
	case "probe-noaudio":
		fmt.Print(`{"streams":[{"index":0,"codec_type":"video"}],"format":{"duration":"1.0"}}`)
		os.Exit(0)
	case "probe-fail":
		fmt.Fprintln(os.Stderr, "Invalid data found when processing input")
		os.Exit(1)
	case "encode":
		for _, us := range []int{0, 1000000, 2500000, 4000000} {
			fmt.Printf("out_time_us=%d\nprogress=continue\n", us)
		}
		fmt.Println("progress=end")
		_ = os.WriteFile(output, []byte("encoded"), 0o644)
		os.Exit(0)
	case "encode-fail":
		fmt.Println("out_time_us=1000000")
		fmt.Fprintln(os.Stderr, "Error while decoding stream #0:0")
		os.Exit(1)
	case "encode-hang":
		fmt.Println("out_time_us=500000")
		time.Sleep(time.Minute)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}

func collect(t *testing.T, p engine.Pipeline) []engine.Event {
	t.Helper()
	var out []engine.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for pipeline events")
		}
	}
}

func TestPipelineSuccess(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	captured := setHelperCommand(t, "probe", "encode")

	dir := t.TempDir()
	input := filepath.Join(dir, "in.flac")
	output := filepath.Join(dir, "out.opus.audioconv-tmp")

	p, err := New().Build(context.Background(), input, output, transcode.Opus{Bitrate: 128, BitrateType: transcode.CBR})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	events := collect(t, p)
	if len(events) == 0 {
		t.Fatal("expected events")
	}
	if _, ok := events[len(events)-1].(engine.Completed); !ok {
		t.Fatalf("expected Completed last, got %#v", events[len(events)-1])
	}
	for _, ev := range events[:len(events)-1] {
		if _, ok := ev.(engine.Progress); !ok {
			t.Fatalf("expected only progress before completion, got %#v", ev)
		}
	}
	pos, dur, ok := p.Position()
	if !ok || pos != 4*time.Second || dur != 4*time.Second {
		t.Fatalf("Position = %v %v %v", pos, dur, ok)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop after completion returned error: %v", err)
	}

	joined := strings.Join(*captured, " ")
	for _, fragment := range []string{"-i " + input, "-map 0:a:0", "-c:a libopus", "-b:a 128k", "-vbr off", "-progress pipe:1", "-f opus " + output} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("expected %q in args %q", fragment, joined)
		}
	}
	if data, err := os.ReadFile(output); err != nil || string(data) != "encoded" {
		t.Fatalf("expected helper output, got %q %v", data, err)
	}
}

func TestPipelineFailureCarriesStderr(t *testing.T) {
	setHelperCommand(t, "probe", "encode-fail")
	dir := t.TempDir()
	p, err := New().Build(context.Background(), filepath.Join(dir, "in.flac"), filepath.Join(dir, "out.tmp"), transcode.Flac{Compression: 8})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	events := collect(t, p)
	last, ok := events[len(events)-1].(engine.Error)
	if !ok {
		t.Fatalf("expected Error last, got %#v", events[len(events)-1])
	}
	if !errors.Is(last.Err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", last.Err)
	}
	if !strings.Contains(last.Err.Error(), "Error while decoding") {
		t.Fatalf("expected stderr tail in error, got %v", last.Err)
	}
}

func TestPipelineStopAbortsRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	setHelperCommand(t, "probe", "encode-hang")
	dir := t.TempDir()
	p, err := New().Build(context.Background(), filepath.Join(dir, "in.flac"), filepath.Join(dir, "out.tmp"), transcode.Mp3{Bitrate: 256, BitrateType: transcode.VBR})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return")
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	for range p.Events() {
	}
}

func TestStopBeforeStart(t *testing.T) {
	setHelperCommand(t, "probe", "encode")
	dir := t.TempDir()
	p, err := New().Build(context.Background(), filepath.Join(dir, "in.flac"), filepath.Join(dir, "out.tmp"), transcode.Default())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := p.Start(); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if _, ok := <-p.Events(); ok {
		t.Fatal("expected closed events channel")
	}
}

func TestBuildFailsWithoutAudio(t *testing.T) {
	setHelperCommand(t, "probe-noaudio", "encode")
	_, err := New().Build(context.Background(), "/in/video.mkv", "/out/x.tmp", transcode.Default())
	if !errors.Is(err, engine.ErrNoAudioStream) {
		t.Fatalf("expected ErrNoAudioStream, got %v", err)
	}
}

func TestBuildReportsProbeFailure(t *testing.T) {
	setHelperCommand(t, "probe-fail", "encode")
	_, err := New().Build(context.Background(), "/in/broken.flac", "/out/x.tmp", transcode.Default())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected ffprobe stderr in error, got %v", err)
	}
}

func TestWithBinariesOverridesDefaults(t *testing.T) {
	e := New(WithBinaries("/opt/ffmpeg", " "))
	if e.ffmpeg != "/opt/ffmpeg" || e.ffprobe != "ffprobe" {
		t.Fatalf("unexpected binaries %q %q", e.ffmpeg, e.ffprobe)
	}
}
