package plan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"audioconv/internal/matcher"
	"audioconv/internal/services"
	"audioconv/internal/transcode"
)

func writeFile(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func newMatcher(t *testing.T) *matcher.Matcher {
	t.Helper()
	flac, err := matcher.Compile(matcher.Patterns{Extensions: []string{".flac"}}, transcode.Default())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	wav, err := matcher.Compile(matcher.Patterns{Extensions: []string{".wav"}}, transcode.Copy{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return matcher.New([]matcher.Rule{flac, wav})
}

func TestBuildOrdersJobsAndMirrorsTree(t *testing.T) {
	root := t.TempDir()
	from := filepath.Join(root, "from")
	to := filepath.Join(root, "to")
	now := time.Now()
	writeFile(t, filepath.Join(from, "b", "2.flac"), now)
	writeFile(t, filepath.Join(from, "a", "1.flac"), now)
	writeFile(t, filepath.Join(from, "c.wav"), now)
	writeFile(t, filepath.Join(from, "notes.txt"), now)

	res, err := Build(context.Background(), Options{From: from, To: to, Matcher: newMatcher(t)})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(res.Jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(res.Jobs))
	}
	wantRel := []string{filepath.Join("a", "1.flac"), filepath.Join("b", "2.flac"), "c.wav"}
	wantDest := []string{
		filepath.Join(to, "a", "1.opus"),
		filepath.Join(to, "b", "2.opus"),
		filepath.Join(to, "c.wav"),
	}
	for i, job := range res.Jobs {
		if job.RelPath != wantRel[i] {
			t.Fatalf("job %d rel = %q, want %q", i, job.RelPath, wantRel[i])
		}
		if job.Destination != wantDest[i] {
			t.Fatalf("job %d dest = %q, want %q", i, job.Destination, wantDest[i])
		}
		if job.Source != filepath.Join(from, wantRel[i]) {
			t.Fatalf("job %d source = %q", i, job.Source)
		}
	}
	if _, ok := res.Jobs[2].Spec.(transcode.Copy); !ok {
		t.Fatalf("expected copy spec for wav, got %v", res.Jobs[2].Spec)
	}
	if res.Unmatched != 1 || res.Scanned != 4 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if res.TotalBytes() != 12 {
		t.Fatalf("expected 12 bytes, got %d", res.TotalBytes())
	}
}

func TestBuildSkipsUpToDateDestinations(t *testing.T) {
	root := t.TempDir()
	from := filepath.Join(root, "from")
	to := filepath.Join(root, "to")
	old := time.Now().Add(-time.Hour)
	writeFile(t, filepath.Join(from, "a.flac"), old)
	writeFile(t, filepath.Join(to, "a.opus"), time.Now())

	res, err := Build(context.Background(), Options{From: from, To: to, Matcher: newMatcher(t)})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(res.Jobs) != 0 {
		t.Fatalf("expected zero jobs, got %d", len(res.Jobs))
	}
	if res.UpToDate != 1 {
		t.Fatalf("expected one up-to-date file, got %d", res.UpToDate)
	}
}

func TestBuildRejectsMatchingSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	root := t.TempDir()
	from := filepath.Join(root, "from")
	writeFile(t, filepath.Join(root, "elsewhere.flac"), time.Now())
	if err := os.MkdirAll(from, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "elsewhere.flac"), filepath.Join(from, "link.flac")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "elsewhere.flac"), filepath.Join(from, "link.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	_, err := Build(context.Background(), Options{From: from, To: filepath.Join(root, "to"), Matcher: newMatcher(t)})
	if !errors.Is(err, services.ErrScan) {
		t.Fatalf("expected scan error, got %v", err)
	}
}

func TestBuildIgnoresNonMatchingSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	root := t.TempDir()
	from := filepath.Join(root, "from")
	writeFile(t, filepath.Join(from, "a.flac"), time.Now())
	if err := os.Symlink(filepath.Join(from, "a.flac"), filepath.Join(from, "alias.txt")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	res, err := Build(context.Background(), Options{From: from, To: filepath.Join(root, "to"), Matcher: newMatcher(t)})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(res.Jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(res.Jobs))
	}
}

func TestBuildCollectsDestinationErrors(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission checks not enforced")
	}
	root := t.TempDir()
	from := filepath.Join(root, "from")
	to := filepath.Join(root, "to")
	writeFile(t, filepath.Join(from, "locked", "a.flac"), time.Now())
	writeFile(t, filepath.Join(from, "open", "b.flac"), time.Now())
	if err := os.MkdirAll(filepath.Join(to, "locked"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Chmod(filepath.Join(to, "locked"), 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(to, "locked"), 0o755) })

	res, err := Build(context.Background(), Options{From: from, To: to, Matcher: newMatcher(t)})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(res.Errors) != 1 || res.Errors[0].RelPath != filepath.Join("locked", "a.flac") {
		t.Fatalf("expected one file error for locked/a.flac, got %+v", res.Errors)
	}
	if len(res.Jobs) != 1 || res.Jobs[0].RelPath != filepath.Join("open", "b.flac") {
		t.Fatalf("expected job for open/b.flac, got %+v", res.Jobs)
	}
}

func TestBuildFailsOnMissingRoot(t *testing.T) {
	_, err := Build(context.Background(), Options{From: filepath.Join(t.TempDir(), "missing"), To: t.TempDir(), Matcher: newMatcher(t)})
	if !errors.Is(err, services.ErrScan) {
		t.Fatalf("expected scan error, got %v", err)
	}
}

func TestBuildRejectsSharedDestination(t *testing.T) {
	root := t.TempDir()
	from := filepath.Join(root, "from")
	to := filepath.Join(root, "to")
	now := time.Now()
	writeFile(t, filepath.Join(from, "x.flac"), now)
	writeFile(t, filepath.Join(from, "x.wav"), now)

	res, err := Build(context.Background(), Options{From: from, To: to, Matcher: matcher.New(nil)})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(res.Jobs) != 1 || res.Jobs[0].RelPath != "x.flac" {
		t.Fatalf("expected only x.flac to be scheduled, got %+v", res.Jobs)
	}
	if want := filepath.Join(to, "x.opus"); res.Jobs[0].Destination != want {
		t.Fatalf("destination = %s, want %s", res.Jobs[0].Destination, want)
	}
	if len(res.Errors) != 1 || res.Errors[0].RelPath != "x.wav" {
		t.Fatalf("expected a file error for x.wav, got %+v", res.Errors)
	}
	if !errors.Is(res.Errors[0].Err, ErrDestinationConflict) {
		t.Fatalf("error = %v, want ErrDestinationConflict", res.Errors[0].Err)
	}
}

func TestBuildSharedDestinationClaimedWhenUpToDate(t *testing.T) {
	root := t.TempDir()
	from := filepath.Join(root, "from")
	to := filepath.Join(root, "to")
	old := time.Now().Add(-time.Hour)
	writeFile(t, filepath.Join(from, "x.flac"), old)
	writeFile(t, filepath.Join(from, "x.wav"), time.Now())
	writeFile(t, filepath.Join(to, "x.opus"), old.Add(time.Minute))

	res, err := Build(context.Background(), Options{From: from, To: to, Matcher: matcher.New(nil)})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(res.Jobs) != 0 || res.UpToDate != 1 {
		t.Fatalf("expected no jobs and one up-to-date file, got jobs=%d up_to_date=%d", len(res.Jobs), res.UpToDate)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0].Err, ErrDestinationConflict) {
		t.Fatalf("expected a conflict for x.wav, got %+v", res.Errors)
	}
}
