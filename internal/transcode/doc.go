// Package transcode describes conversion targets.
//
// A Spec is one of Copy, CopyAudio, Opus, Flac, or Mp3. Specs are parsed from
// the codec table of a match rule, carry their own validation ranges, and
// decide the extension of the destination file.
package transcode
