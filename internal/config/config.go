package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"audioconv/internal/matcher"
	"audioconv/internal/services"
	"audioconv/internal/transcode"
)

//go:embed sample_config.toml
var sampleConfig string

// Match is one [[matches]] entry. At most one of Glob, Regex and Extensions
// may be set; none means the default .flac/.wav predicate.
type Match struct {
	Glob       string           `toml:"glob" yaml:"glob"`
	Regex      string           `toml:"regex" yaml:"regex"`
	Extensions []string         `toml:"extensions" yaml:"extensions"`
	To         transcode.Fields `toml:"to" yaml:"to"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" yaml:"format"`
	Level  string `toml:"level" yaml:"level"`
	File   string `toml:"file" yaml:"file"`
}

// Engine configures the ffmpeg binding.
type Engine struct {
	FFmpeg             string `toml:"ffmpeg" yaml:"ffmpeg"`
	FFprobe            string `toml:"ffprobe" yaml:"ffprobe"`
	ProgressIntervalMS int    `toml:"progress_interval_ms" yaml:"progress_interval_ms"`
}

// Report configures the event consumer.
type Report struct {
	IntervalMS int `toml:"interval_ms" yaml:"interval_ms"`
}

// History configures the run history database.
type History struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// Config encapsulates all configuration values. It is immutable after Load
// and safe to share between goroutines.
type Config struct {
	From    string  `toml:"from" yaml:"from"`
	To      string  `toml:"to" yaml:"to"`
	Jobs    int     `toml:"jobs" yaml:"jobs"`
	Matches []Match `toml:"matches" yaml:"matches"`
	Logging Logging `toml:"logging" yaml:"logging"`
	Engine  Engine  `toml:"engine" yaml:"engine"`
	Report  Report  `toml:"report" yaml:"report"`
	History History `toml:"history" yaml:"history"`

	rules []matcher.Rule
}

// Overrides carries command line values. Paths are relative to the working
// directory; zero values leave the file's settings alone.
type Overrides struct {
	From string
	To   string
	Jobs int
}

// Load locates, parses, normalizes, and validates the configuration. An empty
// path searches the working directory for FileNames; a missing default file
// is not an error. It returns the resolved config path and whether it existed.
func Load(path string, overrides Overrides) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, configError("locate", "", err)
	}
	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, configError("parse", resolvedPath, err)
		}
	}

	if err := cfg.normalize(filepath.Dir(resolvedPath), overrides); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config file %q not found", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("get working directory: %w", err)
	}
	for _, name := range FileNames {
		candidate := filepath.Join(cwd, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return filepath.Join(cwd, FileNames[0]), false, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		err := decoder.Decode(cfg)
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			keys := make([]string, 0, len(strict.Errors))
			for _, e := range strict.Errors {
				keys = append(keys, strings.Join(e.Key(), "."))
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return err
	}
}

// Rules returns the compiled match rules in declaration order.
func (c *Config) Rules() []matcher.Rule {
	return append([]matcher.Rule(nil), c.rules...)
}

// Matcher returns a matcher over the compiled rules.
func (c *Config) Matcher() *matcher.Matcher {
	return matcher.New(c.rules)
}

// ProgressInterval is the engine position polling period.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Engine.ProgressIntervalMS) * time.Millisecond
}

// ReportInterval is the event consumer's drain period.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Report.IntervalMS) * time.Millisecond
}

// EnsureDirectories creates the output directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.To, 0o755); err != nil {
		return configError("create output directory", c.To, err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// resolveAgainst expands pathValue, anchoring relative paths at base.
func resolveAgainst(base, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" || strings.HasPrefix(pathValue, "~") || filepath.IsAbs(pathValue) {
		return expandPath(pathValue)
	}
	return expandPath(filepath.Join(base, pathValue))
}

// SampleConfig returns the annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func configError(operation, message string, err error) error {
	return services.Wrap(services.ErrConfiguration, "config", operation, message, err)
}
