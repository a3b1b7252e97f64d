package config

const (
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultProgressIntervalMS = 250
	defaultReportIntervalMS   = 100
	defaultHistoryEnabled     = true
	defaultHistoryPath        = "~/.local/share/audio-conv/history.db"
)

// FileNames lists the default config names, in lookup order.
var FileNames = []string{"audio-conv.toml", "audio-conv.yaml", "audio-conv.yml"}

// Default returns a Config populated with repository defaults. From and To
// have no default.
func Default() Config {
	return Config{
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Engine: Engine{
			FFmpeg:             defaultFFmpegBinary,
			FFprobe:            defaultFFprobeBinary,
			ProgressIntervalMS: defaultProgressIntervalMS,
		},
		Report: Report{
			IntervalMS: defaultReportIntervalMS,
		},
		History: History{
			Enabled: defaultHistoryEnabled,
			Path:    defaultHistoryPath,
		},
	}
}

// DefaultHistoryPath returns the expanded default history database path.
func DefaultHistoryPath() (string, error) {
	return expandPath(defaultHistoryPath)
}
