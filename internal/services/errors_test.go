package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"audioconv/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "ffmpeg", "encode", "exit status 1", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"ffmpeg", "encode", "exit status 1", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrJob) {
		t.Fatalf("expected job marker by default, got %v", err)
	}
	if !strings.Contains(err.Error(), "conversion failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrConfiguration, "config", "", "bad", nil), "configuration"},
		{services.Wrap(services.ErrScan, "plan", "walk", "", errors.New("io")), "scan"},
		{services.Wrap(services.ErrExternalTool, "ffmpeg", "", "", nil), "external_tool"},
		{services.Wrap(services.ErrLog, "failurelog", "", "", nil), "log"},
		{fmt.Errorf("stop: %w", context.Canceled), "interrupted"},
		{errors.New("plain"), "job"},
	}
	for _, tt := range tests {
		if got := services.FailureKind(tt.err); got != tt.want {
			t.Fatalf("FailureKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestChainListsCausesAndJoinedBranches(t *testing.T) {
	root := errors.New("disk full")
	primary := services.Wrap(services.ErrJob, "job", "rename", "", root)
	cleanup := fmt.Errorf("remove temp: %w", errors.New("permission denied"))
	err := errors.Join(primary, cleanup)

	lines := services.Chain(err)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "job error: job: rename") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if lines[1] != "  disk full" {
		t.Fatalf("unexpected cause line %q", lines[1])
	}
	if lines[2] != "remove temp: permission denied" {
		t.Fatalf("unexpected joined branch %q", lines[2])
	}
	if lines[3] != "  permission denied" {
		t.Fatalf("unexpected nested cause %q", lines[3])
	}
}
