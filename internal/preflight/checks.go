package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"audioconv/internal/config"
	"audioconv/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

// CheckWritableTarget verifies that path, or the nearest existing ancestor
// that would hold it, is writable.
func CheckWritableTarget(name, path string) Result {
	probe := path
	for {
		info, err := os.Stat(probe)
		if err == nil {
			if probe != path && !info.IsDir() {
				return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s is not a directory)", path, probe)}
			}
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing parent)", path)}
		}
		probe = parent
	}
	if err := unix.Access(probe, unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	if probe != path {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (writable)", path)}
}

func checkDirectory(name, path string, mode uint32, ok string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, ok)}
}

// CheckSystemDeps evaluates the external binaries and, when ffmpeg is
// present, the encoders the configured rules need. The tools are optional
// when every rule is a plain copy.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	optional := !NeedsEngine(cfg)
	statuses := deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Engine.FFmpeg,
			Description: "Required for encoding",
			Optional:    optional,
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Engine.FFprobe,
			Description: "Required for stream discovery",
			Optional:    optional,
		},
	})
	if !statuses[0].Available {
		return statuses
	}
	encoders := RequiredEncoders(cfg)
	if len(encoders) == 0 {
		return statuses
	}
	encoderStatuses, err := deps.CheckEncoders(ctx, statuses[0].Command, encoders)
	if err != nil {
		return append(statuses, deps.Status{
			Name:        "Encoders",
			Command:     statuses[0].Command,
			Description: "Required encoders",
			Detail:      err.Error(),
		})
	}
	return append(statuses, encoderStatuses...)
}
