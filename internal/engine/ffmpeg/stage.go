package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"audioconv/internal/transcode"
)

// stage is the typed encode step for one target.
type stage interface {
	codecArgs() []string
	muxer() string
}

type opusStage struct{ spec transcode.Opus }

func (s opusStage) codecArgs() []string {
	vbr := "on"
	if s.spec.BitrateType == transcode.CBR {
		vbr = "off"
	}
	return []string{"-c:a", "libopus", "-b:a", kbps(s.spec.Bitrate), "-vbr", vbr, "-ar", "48000"}
}

func (opusStage) muxer() string { return "opus" }

type flacStage struct{ spec transcode.Flac }

func (s flacStage) codecArgs() []string {
	return []string{"-c:a", "flac", "-compression_level", strconv.Itoa(s.spec.Compression)}
}

func (flacStage) muxer() string { return "flac" }

type mp3Stage struct{ spec transcode.Mp3 }

func (s mp3Stage) codecArgs() []string {
	args := []string{"-c:a", "libmp3lame"}
	if s.spec.BitrateType == transcode.CBR {
		args = append(args, "-b:a", kbps(s.spec.Bitrate))
	} else {
		args = append(args, "-q:a", strconv.Itoa(lameQuality(s.spec.Bitrate)))
	}
	return append(args, "-id3v2_version", "3")
}

func (mp3Stage) muxer() string { return "mp3" }

type copyAudioStage struct{ format string }

func (copyAudioStage) codecArgs() []string { return []string{"-c:a", "copy"} }

func (s copyAudioStage) muxer() string { return s.format }

// copyMuxers maps source extensions to the muxer that rewrites them unchanged.
var copyMuxers = map[string]string{
	".flac": "flac",
	".mp3":  "mp3",
	".opus": "opus",
	".ogg":  "ogg",
	".oga":  "ogg",
	".m4a":  "ipod",
	".m4b":  "ipod",
	".aac":  "adts",
	".wav":  "wav",
	".aif":  "aiff",
	".aiff": "aiff",
	".wv":   "wv",
	".mka":  "matroska",
	".wma":  "asf",
}

func stageFor(spec transcode.Spec, input string) (stage, error) {
	switch s := spec.(type) {
	case transcode.Opus:
		return opusStage{spec: s}, nil
	case transcode.Flac:
		return flacStage{spec: s}, nil
	case transcode.Mp3:
		return mp3Stage{spec: s}, nil
	case transcode.CopyAudio:
		ext := strings.ToLower(filepath.Ext(input))
		format, ok := copyMuxers[ext]
		if !ok {
			return nil, fmt.Errorf("copy_audio: no muxer for extension %q", ext)
		}
		return copyAudioStage{format: format}, nil
	case transcode.Copy:
		return nil, fmt.Errorf("copy does not run through the engine")
	default:
		return nil, fmt.Errorf("unsupported target %v", spec)
	}
}

// lameQuality maps a nominal VBR bitrate onto LAME's -V scale.
func lameQuality(bitrate int) int {
	steps := []struct {
		min     int
		quality int
	}{
		{245, 0}, {225, 1}, {190, 2}, {175, 3}, {165, 4},
		{130, 5}, {115, 6}, {100, 7}, {85, 8},
	}
	for _, step := range steps {
		if bitrate >= step.min {
			return step.quality
		}
	}
	return 9
}

func kbps(bitrate int) string {
	return strconv.Itoa(bitrate) + "k"
}

func buildArgs(input, output string, st stage) []string {
	args := []string{
		"-hide_banner", "-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", input,
		"-map", "0:a:0",
		"-map_metadata", "0",
	}
	args = append(args, st.codecArgs()...)
	return append(args,
		"-progress", "pipe:1",
		"-nostats",
		"-f", st.muxer(),
		output,
	)
}
