// Package config loads, normalizes, and validates audio-conv configuration.
//
// A config file is optional: it is looked up in the working directory as
// audio-conv.toml, audio-conv.yaml, or audio-conv.yml, and may be named
// explicitly with --config, in which case it must exist. Paths inside the
// file resolve against the file's directory; command line overrides resolve
// against the working directory. Match rules are compiled once here, so a
// malformed rule is reported before any file is converted.
//
// Every error returned by Load is marked services.ErrConfiguration.
package config
