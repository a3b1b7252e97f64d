package plan

import (
	"context"
	"io/fs"
	"iter"
	"path/filepath"
)

// Entry is a non-directory node found under the input root.
type Entry struct {
	// Rel is the path relative to the walk root in OS form.
	Rel string
	// Path is the absolute (root-joined) path.
	Path string
	Info fs.FileInfo
}

// Regular reports whether the entry is a regular file.
func (e Entry) Regular() bool {
	return e.Info != nil && e.Info.Mode().IsRegular()
}

// Walk recursively walks root in lexical order and yields every
// non-directory entry, or an error when directory listing or metadata
// retrieval fails. Symlinks are reported, not followed.
func Walk(ctx context.Context, root string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		fn := func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			entry := Entry{Rel: rel, Path: path}
			if err != nil {
				if !yield(entry, err) {
					return fs.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if !yield(entry, err) {
					return fs.SkipAll
				}
				return nil
			}
			entry.Info = info
			if !yield(entry, nil) {
				return fs.SkipAll
			}
			return nil
		}
		_ = filepath.WalkDir(root, fn)
	}
}
