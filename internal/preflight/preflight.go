package preflight

import (
	"context"
	"fmt"
	"os"

	"audioconv/internal/config"
	"audioconv/internal/deps"
	"audioconv/internal/transcode"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all filesystem checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckReadableDirectory("Input directory", cfg.From),
		CheckWritableTarget("Output directory", cfg.To),
	}
	if cwd, err := os.Getwd(); err == nil {
		results = append(results, CheckDirectoryAccess("Failure log directory", cwd))
	} else {
		results = append(results, Result{Name: "Failure log directory", Detail: fmt.Sprintf("working directory unavailable: %v", err)})
	}
	if cfg.History.Enabled {
		results = append(results, CheckWritableTarget("History database", cfg.History.Path))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RequiredEncoders lists the ffmpeg encoders the configured rules need.
func RequiredEncoders(cfg *config.Config) []deps.Encoder {
	seen := make(map[string]bool)
	var out []deps.Encoder
	add := func(name string, kind transcode.Kind) {
		if !seen[name] {
			seen[name] = true
			out = append(out, deps.Encoder{Name: name, Target: string(kind)})
		}
	}
	for _, rule := range cfg.Matcher().Rules() {
		switch rule.Spec.(type) {
		case transcode.Opus:
			add("libopus", transcode.KindOpus)
		case transcode.Mp3:
			add("libmp3lame", transcode.KindMp3)
		case transcode.Flac:
			add("flac", transcode.KindFlac)
		}
	}
	return out
}

// NeedsEngine reports whether any rule converts through ffmpeg.
func NeedsEngine(cfg *config.Config) bool {
	for _, rule := range cfg.Matcher().Rules() {
		if transcode.NeedsEngine(rule.Spec) {
			return true
		}
	}
	return false
}
