package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// Encoder names an ffmpeg encoder a conversion target needs.
type Encoder struct {
	Name   string
	Target string
}

// CheckEncoders asks ffmpeg for its encoder list and reports which of the
// requested encoders are compiled in.
func CheckEncoders(ctx context.Context, ffmpeg string, encoders []Encoder) ([]Status, error) {
	out, err := commandContext(ctx, ffmpeg, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	available := parseEncoders(out)
	results := make([]Status, 0, len(encoders))
	for _, enc := range encoders {
		status := Status{
			Name:        enc.Name,
			Command:     ffmpeg,
			Description: fmt.Sprintf("Required for %s targets", enc.Target),
			Available:   available[enc.Name],
		}
		if !status.Available {
			status.Detail = fmt.Sprintf("encoder %q not compiled into ffmpeg", enc.Name)
		}
		results = append(results, status)
	}
	return results, nil
}

// parseEncoders reads `ffmpeg -encoders` output: a legend, a dashed
// separator, then one "<flags> <name> <description>" line per encoder.
func parseEncoders(output []byte) map[string]bool {
	names := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	listing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !listing {
			listing = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		names[fields[1]] = true
	}
	return names
}
