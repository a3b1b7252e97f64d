package transcode

import (
	"fmt"
	"sort"
	"strings"
)

// Fields is the raw codec table of a match rule. Pointers distinguish absent
// keys from zero values so defaults and extraneous-field checks work.
type Fields struct {
	Codec       string  `toml:"codec" yaml:"codec"`
	Bitrate     *int    `toml:"bitrate" yaml:"bitrate"`
	BitrateType *string `toml:"bitrate_type" yaml:"bitrate_type"`
	Compression *int    `toml:"compression" yaml:"compression"`
}

// Parse validates f and builds the corresponding Spec, filling defaults.
func Parse(f Fields) (Spec, error) {
	codec := Kind(strings.ToLower(strings.TrimSpace(f.Codec)))
	switch codec {
	case KindCopy, KindCopyAudio:
		if err := rejectFields(codec, f, nil); err != nil {
			return nil, err
		}
		if codec == KindCopy {
			return Copy{}, nil
		}
		return CopyAudio{}, nil
	case KindOpus:
		if err := rejectFields(codec, f, []string{"bitrate", "bitrate_type"}); err != nil {
			return nil, err
		}
		bitrate, mode, err := parseBitrate(codec, f, DefaultOpusBitrate, minOpusBitrate, maxOpusBitrate)
		if err != nil {
			return nil, err
		}
		return Opus{Bitrate: bitrate, BitrateType: mode}, nil
	case KindMp3:
		if err := rejectFields(codec, f, []string{"bitrate", "bitrate_type"}); err != nil {
			return nil, err
		}
		bitrate, mode, err := parseBitrate(codec, f, DefaultMp3Bitrate, minMp3Bitrate, maxMp3Bitrate)
		if err != nil {
			return nil, err
		}
		return Mp3{Bitrate: bitrate, BitrateType: mode}, nil
	case KindFlac:
		if err := rejectFields(codec, f, []string{"compression"}); err != nil {
			return nil, err
		}
		level := DefaultFlacCompression
		if f.Compression != nil {
			level = *f.Compression
		}
		if level < 0 || level > maxFlacCompression {
			return nil, fmt.Errorf("flac compression must be between 0 and %d, got %d", maxFlacCompression, level)
		}
		return Flac{Compression: level}, nil
	case "":
		return nil, fmt.Errorf("codec is required")
	default:
		return nil, fmt.Errorf("unknown codec %q (expected copy, copy_audio, opus, flac, or mp3)", f.Codec)
	}
}

func parseBitrate(codec Kind, f Fields, def, lo, hi int) (int, BitrateType, error) {
	bitrate := def
	if f.Bitrate != nil {
		bitrate = *f.Bitrate
	}
	if bitrate < lo || bitrate > hi {
		return 0, "", fmt.Errorf("%s bitrate must be between %d and %d kbit/s, got %d", codec, lo, hi, bitrate)
	}
	mode := VBR
	if f.BitrateType != nil {
		switch BitrateType(strings.ToLower(strings.TrimSpace(*f.BitrateType))) {
		case VBR:
			mode = VBR
		case CBR:
			mode = CBR
		default:
			return 0, "", fmt.Errorf("%s bitrate_type must be vbr or cbr, got %q", codec, *f.BitrateType)
		}
	}
	return bitrate, mode, nil
}

func rejectFields(codec Kind, f Fields, allowed []string) error {
	present := map[string]bool{
		"bitrate":      f.Bitrate != nil,
		"bitrate_type": f.BitrateType != nil,
		"compression":  f.Compression != nil,
	}
	for _, key := range allowed {
		delete(present, key)
	}
	var extra []string
	for key, set := range present {
		if set {
			extra = append(extra, key)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return fmt.Errorf("codec %s does not accept %s", codec, strings.Join(extra, ", "))
}
