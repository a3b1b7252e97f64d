package transcode

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind names a conversion target as it appears in configuration.
type Kind string

const (
	KindCopy      Kind = "copy"
	KindCopyAudio Kind = "copy_audio"
	KindOpus      Kind = "opus"
	KindFlac      Kind = "flac"
	KindMp3       Kind = "mp3"
)

// BitrateType selects constant or variable bitrate encoding.
type BitrateType string

const (
	VBR BitrateType = "vbr"
	CBR BitrateType = "cbr"
)

const (
	DefaultOpusBitrate     = 160
	DefaultMp3Bitrate      = 256
	DefaultFlacCompression = 5

	minOpusBitrate     = 6
	maxOpusBitrate     = 510
	minMp3Bitrate      = 8
	maxMp3Bitrate      = 320
	maxFlacCompression = 12
)

// Spec is the closed set of conversion targets.
type Spec interface {
	Kind() Kind
	// Extension returns the destination extension, including the leading dot,
	// for a source with extension srcExt.
	Extension(srcExt string) string
	String() string
	isSpec()
}

// Copy duplicates the source bytes unchanged.
type Copy struct{}

// CopyAudio remuxes the first audio stream without re-encoding it.
type CopyAudio struct{}

// Opus encodes with libopus into an Ogg Opus container.
type Opus struct {
	Bitrate     int
	BitrateType BitrateType
}

// Flac encodes losslessly.
type Flac struct {
	Compression int
}

// Mp3 encodes with LAME.
type Mp3 struct {
	Bitrate     int
	BitrateType BitrateType
}

func (Copy) Kind() Kind      { return KindCopy }
func (CopyAudio) Kind() Kind { return KindCopyAudio }
func (Opus) Kind() Kind      { return KindOpus }
func (Flac) Kind() Kind      { return KindFlac }
func (Mp3) Kind() Kind       { return KindMp3 }

func (Copy) Extension(srcExt string) string      { return srcExt }
func (CopyAudio) Extension(srcExt string) string { return srcExt }
func (Opus) Extension(string) string             { return ".opus" }
func (Flac) Extension(string) string             { return ".flac" }
func (Mp3) Extension(string) string              { return ".mp3" }

func (Copy) String() string      { return string(KindCopy) }
func (CopyAudio) String() string { return string(KindCopyAudio) }

func (s Opus) String() string {
	return fmt.Sprintf("opus %dk %s", s.Bitrate, s.BitrateType)
}

func (s Flac) String() string {
	return fmt.Sprintf("flac level %d", s.Compression)
}

func (s Mp3) String() string {
	return fmt.Sprintf("mp3 %dk %s", s.Bitrate, s.BitrateType)
}

func (Copy) isSpec()      {}
func (CopyAudio) isSpec() {}
func (Opus) isSpec()      {}
func (Flac) isSpec()      {}
func (Mp3) isSpec()       {}

// Default is the target used when no match rule is configured.
func Default() Spec {
	return Opus{Bitrate: DefaultOpusBitrate, BitrateType: VBR}
}

// NeedsEngine reports whether the spec is executed by the external engine
// rather than a plain file copy.
func NeedsEngine(spec Spec) bool {
	_, isCopy := spec.(Copy)
	return !isCopy
}

// OutputPath maps a source path relative to the input root onto the output
// root, swapping the extension according to spec.
func OutputPath(root, rel string, spec Spec) string {
	ext := filepath.Ext(rel)
	target := spec.Extension(ext)
	if target != ext {
		rel = strings.TrimSuffix(rel, ext) + target
	}
	return filepath.Join(root, rel)
}
