// Package staleness decides whether a destination file must be regenerated
// from its source.
package staleness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// IsStale reports whether dst needs to be (re)generated from a source with
// metadata src. A missing destination is stale; an existing one is stale when
// it was modified strictly before the source. Any other failure to read the
// destination metadata is returned so the caller can record it against this
// file alone.
func IsStale(src fs.FileInfo, dst string) (bool, error) {
	info, err := os.Stat(dst)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("stat destination: %w", err)
	}
	return info.ModTime().Before(src.ModTime()), nil
}
