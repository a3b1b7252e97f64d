package ffmpeg

import (
	"strings"
	"testing"
	"time"

	"audioconv/internal/engine"
	"audioconv/internal/transcode"
)

func TestStageArgs(t *testing.T) {
	tests := []struct {
		name  string
		spec  transcode.Spec
		input string
		want  string
		muxer string
	}{
		{"opus vbr", transcode.Opus{Bitrate: 160, BitrateType: transcode.VBR}, "a.flac", "-c:a libopus -b:a 160k -vbr on -ar 48000", "opus"},
		{"flac", transcode.Flac{Compression: 8}, "a.wav", "-c:a flac -compression_level 8", "flac"},
		{"mp3 cbr", transcode.Mp3{Bitrate: 320, BitrateType: transcode.CBR}, "a.flac", "-c:a libmp3lame -b:a 320k -id3v2_version 3", "mp3"},
		{"mp3 vbr", transcode.Mp3{Bitrate: 256, BitrateType: transcode.VBR}, "a.flac", "-c:a libmp3lame -q:a 0 -id3v2_version 3", "mp3"},
		{"copy audio", transcode.CopyAudio{}, "a.M4A", "-c:a copy", "ipod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := stageFor(tt.spec, tt.input)
			if err != nil {
				t.Fatalf("stageFor returned error: %v", err)
			}
			if got := strings.Join(st.codecArgs(), " "); got != tt.want {
				t.Fatalf("codec args = %q, want %q", got, tt.want)
			}
			if st.muxer() != tt.muxer {
				t.Fatalf("muxer = %q, want %q", st.muxer(), tt.muxer)
			}
		})
	}
}

func TestStageRejectsUnsupported(t *testing.T) {
	if _, err := stageFor(transcode.Copy{}, "a.flac"); err == nil {
		t.Fatal("expected copy to be rejected")
	}
	if _, err := stageFor(transcode.CopyAudio{}, "a.xyz"); err == nil {
		t.Fatal("expected unknown extension to be rejected")
	}
}

func TestLameQuality(t *testing.T) {
	tests := map[int]int{320: 0, 245: 0, 230: 1, 192: 2, 180: 3, 170: 4, 128: 6, 130: 5, 100: 7, 96: 8, 64: 9}
	for bitrate, want := range tests {
		if got := lameQuality(bitrate); got != want {
			t.Fatalf("lameQuality(%d) = %d, want %d", bitrate, got, want)
		}
	}
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		line string
		want time.Duration
		ok   bool
	}{
		{"out_time_us=1500000", 1500 * time.Millisecond, true},
		{"out_time_ms=2000000", 2 * time.Second, true},
		{"out_time_us=N/A", 0, false},
		{"out_time_us=-5", 0, false},
		{"progress=continue", 0, false},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseProgressLine(tt.line)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("parseProgressLine(%q) = %v %v, want %v %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseJSON(t *testing.T) {
	res, err := ParseJSON([]byte(probeJSON))
	if err != nil {
		t.Fatalf("ParseJSON returned error: %v", err)
	}
	if res.Duration != 4*time.Second {
		t.Fatalf("duration = %v", res.Duration)
	}
	if len(res.Audio) != 1 || res.Audio[0].Index != 1 || res.Audio[0].SampleRate != 44100 {
		t.Fatalf("unexpected audio streams %+v", res.Audio)
	}
	if res.Tags["ARTIST"] != "Someone" {
		t.Fatalf("unexpected tags %v", res.Tags)
	}
}

func TestParseJSONFallsBackToStreamDuration(t *testing.T) {
	res, err := ParseJSON([]byte(`{"streams":[{"index":0,"codec_type":"audio","duration":"2.5"}],"format":{"duration":"N/A"}}`))
	if err != nil {
		t.Fatalf("ParseJSON returned error: %v", err)
	}
	if res.Duration != 2500*time.Millisecond {
		t.Fatalf("duration = %v", res.Duration)
	}
}

func TestParseJSONErrors(t *testing.T) {
	if _, err := ParseJSON([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := ParseJSON([]byte(`{"streams":[]}`)); err != engine.ErrNoAudioStream {
		t.Fatalf("expected ErrNoAudioStream, got %v", err)
	}
}

func TestTailBufferKeepsSuffix(t *testing.T) {
	buf := newTailBuffer(5)
	_, _ = buf.Write([]byte("abc"))
	_, _ = buf.Write([]byte("defg"))
	if got := buf.String(); got != "cdefg" {
		t.Fatalf("tail = %q", got)
	}
}
