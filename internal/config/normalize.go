package config

import (
	"fmt"
	"runtime"
	"strings"

	"audioconv/internal/matcher"
	"audioconv/internal/transcode"
)

// normalize resolves paths, applies overrides and compiles the match rules.
// configDir anchors relative paths found in the file.
func (c *Config) normalize(configDir string, overrides Overrides) error {
	if err := c.normalizePaths(configDir, overrides); err != nil {
		return err
	}
	if overrides.Jobs != 0 {
		c.Jobs = overrides.Jobs
	}
	if c.Jobs == 0 {
		c.Jobs = runtime.NumCPU()
	}
	c.normalizeLogging()
	c.normalizeEngine()
	if c.Report.IntervalMS == 0 {
		c.Report.IntervalMS = defaultReportIntervalMS
	}
	return c.compileMatches()
}

func (c *Config) normalizePaths(configDir string, overrides Overrides) error {
	var err error
	if c.From, err = resolveAgainst(configDir, c.From); err != nil {
		return configError("resolve", "from", err)
	}
	if c.To, err = resolveAgainst(configDir, c.To); err != nil {
		return configError("resolve", "to", err)
	}
	// Flag paths are relative to the working directory.
	if overrides.From != "" {
		if c.From, err = expandPath(overrides.From); err != nil {
			return configError("resolve", "--from", err)
		}
	}
	if overrides.To != "" {
		if c.To, err = expandPath(overrides.To); err != nil {
			return configError("resolve", "--to", err)
		}
	}
	if strings.TrimSpace(c.Logging.File) != "" {
		if c.Logging.File, err = resolveAgainst(configDir, c.Logging.File); err != nil {
			return configError("resolve", "logging.file", err)
		}
	}
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	if c.History.Path, err = resolveAgainst(configDir, c.History.Path); err != nil {
		return configError("resolve", "history.path", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeEngine() {
	c.Engine.FFmpeg = strings.TrimSpace(c.Engine.FFmpeg)
	if c.Engine.FFmpeg == "" {
		c.Engine.FFmpeg = defaultFFmpegBinary
	}
	c.Engine.FFprobe = strings.TrimSpace(c.Engine.FFprobe)
	if c.Engine.FFprobe == "" {
		c.Engine.FFprobe = defaultFFprobeBinary
	}
	if c.Engine.ProgressIntervalMS == 0 {
		c.Engine.ProgressIntervalMS = defaultProgressIntervalMS
	}
}

func (c *Config) compileMatches() error {
	c.rules = make([]matcher.Rule, 0, len(c.Matches))
	for i, m := range c.Matches {
		label := fmt.Sprintf("matches[%d]", i)
		spec, err := transcode.Parse(m.To)
		if err != nil {
			return configError("compile", label+".to", err)
		}
		rule, err := matcher.Compile(matcher.Patterns{
			Glob:       strings.TrimSpace(m.Glob),
			Regex:      m.Regex,
			Extensions: m.Extensions,
		}, spec)
		if err != nil {
			return configError("compile", label, err)
		}
		c.rules = append(c.rules, rule)
	}
	return nil
}
