// Package ffmpeg implements the engine contract with the ffprobe and ffmpeg
// command-line tools.
//
// Building a pipeline runs in two phases. The probe phase asks ffprobe for the
// input's streams and duration and fails when no audio stream exists. The
// encode phase selects a typed stage for the requested target (libopus, flac,
// libmp3lame, or stream copy) and assembles the ffmpeg argument list. Running
// pipelines report progress through ffmpeg's -progress key/value stream.
package ffmpeg
