package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"audioconv/internal/engine"
	"audioconv/internal/services"
)

// ProbeResult is the subset of ffprobe output the encoder needs.
type ProbeResult struct {
	FormatName string
	Duration   time.Duration
	Audio      []AudioStream
	Tags       map[string]string
}

// AudioStream describes one audio stream of the input.
type AudioStream struct {
	Index      int
	Codec      string
	Channels   int
	SampleRate int
	Duration   time.Duration
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags"`
}

type ffprobeStream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Channels   int    `json:"channels"`
	SampleRate string `json:"sample_rate"`
	Duration   string `json:"duration"`
}

// Probe runs ffprobe against path.
func (e *Engine) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := commandContext(ctx, e.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ffprobe", "probe", stderr.String(), err)
	}
	return ParseJSON(out)
}

// ParseJSON converts raw ffprobe JSON output into a ProbeResult.
func ParseJSON(data []byte) (*ProbeResult, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	res := &ProbeResult{
		FormatName: raw.Format.FormatName,
		Duration:   parseSeconds(raw.Format.Duration),
		Tags:       raw.Format.Tags,
	}
	for _, s := range raw.Streams {
		if s.CodecType != "audio" {
			continue
		}
		sampleRate, _ := strconv.Atoi(s.SampleRate)
		res.Audio = append(res.Audio, AudioStream{
			Index:      s.Index,
			Codec:      s.CodecName,
			Channels:   s.Channels,
			SampleRate: sampleRate,
			Duration:   parseSeconds(s.Duration),
		})
	}
	if len(res.Audio) == 0 {
		return nil, engine.ErrNoAudioStream
	}
	if res.Duration <= 0 {
		res.Duration = res.Audio[0].Duration
	}
	return res, nil
}

func parseSeconds(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" || value == "N/A" {
		return 0
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
