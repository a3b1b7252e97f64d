package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDirectories(); err != nil {
		return err
	}
	if c.Jobs < 1 {
		return configError("validate", "jobs", fmt.Errorf("must be at least 1, got %d", c.Jobs))
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Engine.ProgressIntervalMS < 1 {
		return configError("validate", "engine.progress_interval_ms", errors.New("must be positive"))
	}
	if c.Report.IntervalMS < 1 {
		return configError("validate", "report.interval_ms", errors.New("must be positive"))
	}
	return nil
}

func (c *Config) validateDirectories() error {
	if c.From == "" {
		return configError("validate", "from", errors.New("not configured; set it in the config file or pass --from"))
	}
	if c.To == "" {
		return configError("validate", "to", errors.New("not configured; set it in the config file or pass --to"))
	}
	info, err := os.Stat(c.From)
	if err != nil {
		return configError("validate", "from", err)
	}
	if !info.IsDir() {
		return configError("validate", "from", fmt.Errorf("%s is not a directory", c.From))
	}
	if info, err := os.Stat(c.To); err == nil && !info.IsDir() {
		return configError("validate", "to", fmt.Errorf("%s is not a directory", c.To))
	}
	if within(c.From, c.To) {
		return configError("validate", "to", fmt.Errorf("%s must not be inside the input directory %s", c.To, c.From))
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return configError("validate", "logging.format", fmt.Errorf("unsupported value %q", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return configError("validate", "logging.level", fmt.Errorf("unsupported value %q", c.Logging.Level))
	}
	return nil
}

// within reports whether path equals root or lies below it, following
// symlinks where the paths exist.
func within(root, path string) bool {
	root = canonical(root)
	path = canonical(path)
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// canonical resolves symlinks in the longest existing prefix of path.
func canonical(path string) string {
	path = filepath.Clean(path)
	var rest []string
	for dir := path; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
	}
}
