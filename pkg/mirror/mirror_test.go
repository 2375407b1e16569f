package mirror

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-mcservice/pkg/logging"
)

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newTestEngine() *Engine {
	return NewEngine(4, logging.NopLogger{})
}

func TestEngine_MirrorCopiesTree(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	mtime := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)

	writeFile(t, filepath.Join(src, "level.dat"), "level", mtime)
	writeFile(t, filepath.Join(src, "region", "r.0.0.mca"), "chunks", mtime)
	writeFile(t, filepath.Join(src, "DIM-1", "region", "r.0.-1.mca"), "nether", mtime)
	require.NoError(t, os.Chmod(filepath.Join(src, "level.dat"), 0600))

	stats, err := newTestEngine().Mirror(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Copied)
	assert.Equal(t, int64(0), stats.Removed)

	assert.Equal(t, "chunks", readFile(t, filepath.Join(dst, "region", "r.0.0.mca")))
	assert.Equal(t, "nether", readFile(t, filepath.Join(dst, "DIM-1", "region", "r.0.-1.mca")))

	info, err := os.Stat(filepath.Join(dst, "level.dat"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestEngine_MirrorDeletesExtraneous(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	mtime := time.Now().Add(-time.Hour)

	writeFile(t, filepath.Join(src, "level.dat"), "level", mtime)
	writeFile(t, filepath.Join(dst, "level.dat"), "old level", mtime)
	writeFile(t, filepath.Join(dst, "session.lock"), "stale", mtime)
	writeFile(t, filepath.Join(dst, "playerdata", "steve.dat"), "steve", mtime)

	stats, err := newTestEngine().Mirror(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Removed)

	assert.Equal(t, "level", readFile(t, filepath.Join(dst, "level.dat")))
	assert.NoFileExists(t, filepath.Join(dst, "session.lock"))
	assert.NoDirExists(t, filepath.Join(dst, "playerdata"))
}

func TestEngine_MirrorSkipsUnchanged(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	mtime := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
	writeFile(t, filepath.Join(src, "region", "r.0.0.mca"), "chunks", mtime)

	engine := newTestEngine()
	_, err := engine.Mirror(context.Background(), src, dst)
	require.NoError(t, err)

	stats, err := engine.Mirror(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Copied)
	assert.Equal(t, int64(1), stats.Skipped)

	later := mtime.Add(time.Minute)
	writeFile(t, filepath.Join(src, "region", "r.0.0.mca"), "CHUNKS", later)
	stats, err = engine.Mirror(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Copied)
	assert.Equal(t, "CHUNKS", readFile(t, filepath.Join(dst, "region", "r.0.0.mca")))
}

func TestEngine_MirrorReplacesTypeConflicts(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	mtime := time.Now()

	writeFile(t, filepath.Join(src, "data"), "now a file", mtime)
	writeFile(t, filepath.Join(src, "stats", "steve.json"), "{}", mtime)
	writeFile(t, filepath.Join(dst, "data", "nested.dat"), "was a directory", mtime)
	writeFile(t, filepath.Join(dst, "stats"), "was a file", mtime)

	_, err := newTestEngine().Mirror(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, "now a file", readFile(t, filepath.Join(dst, "data")))
	assert.Equal(t, "{}", readFile(t, filepath.Join(dst, "stats", "steve.json")))
}

func TestEngine_MirrorSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "level.dat"), "level", time.Now())
	require.NoError(t, os.Symlink("level.dat", filepath.Join(src, "level.link")))

	engine := newTestEngine()
	stats, err := engine.Mirror(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Links)

	link, err := os.Readlink(filepath.Join(dst, "level.link"))
	require.NoError(t, err)
	assert.Equal(t, "level.dat", link)

	stats, err = engine.Mirror(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Links)
}

func TestEngine_MirrorMissingSource(t *testing.T) {
	_, err := newTestEngine().Mirror(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir())
	assert.Error(t, err)
}

func TestEngine_MirrorCancelled(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "level.dat"), "level", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine().Mirror(ctx, src, dst)
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a"), "a", time.Now())
	writeFile(t, filepath.Join(dir, "sub", "b"), "b", time.Now())

	require.NoError(t, Clear(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.DirExists(t, dir)

	assert.NoError(t, Clear(filepath.Join(dir, "missing")))
}
