package cache

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vaultbridge/importengine/internal/ioport"
)

// memFS is an in-memory ioport.FileIO fake, sufficient for the
// cache's atomic-write and eviction tests. Its own logical clock
// (rather than wall time) keeps LastAccessTime ordering deterministic.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
	mtime map[string]time.Time
	clock time.Time
}

func newMemFS() *memFS {
	return &memFS{files: make(map[string][]byte), mtime: make(map[string]time.Time), clock: time.Unix(0, 0)}
}

func (m *memFS) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memFS) FileExists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}
func (m *memFS) DirectoryExists(ctx context.Context, path string) (bool, error) { return true, nil }
func (m *memFS) CreateDirectory(ctx context.Context, path string) error         { return nil }
func (m *memFS) DirectoryDelete(ctx context.Context, path string, recursive bool) error {
	return nil
}
func (m *memFS) FileMove(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[src]
	if !ok {
		return nil
	}
	delete(m.files, src)
	delete(m.mtime, src)
	m.files[dst] = data
	m.mtime[dst] = m.tick()
	return nil
}
func (m *memFS) DeleteFile(ctx context.Context, path string, removeEmptyParents bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	delete(m.mtime, path)
	return nil
}
func (m *memFS) FileReadAllBytes(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[path], nil
}
func (m *memFS) FileWriteAllBytes(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
	m.mtime[path] = m.tick()
	return nil
}
func (m *memFS) GetFileLastWriteTimeUTC(ctx context.Context, path string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mtime[path], nil
}
func (m *memFS) GetFileLength(ctx context.Context, path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.files[path])), nil
}
func (m *memFS) GetOldestFiles(ctx context.Context, dir string) ([]ioport.FileStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats []ioport.FileStat
	for path, data := range m.files {
		if filepath.Dir(path) != dir || strings.HasSuffix(path, ".tmp") {
			continue
		}
		stats = append(stats, ioport.FileStat{Path: path, Size: int64(len(data)), LastAccessTime: m.mtime[path]})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].LastAccessTime.After(stats[j].LastAccessTime) })
	return stats, nil
}
func (m *memFS) GetUniqueTempPathInProject(ctx context.Context) (string, error) { return "", nil }
func (m *memFS) Touch(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		m.mtime[path] = m.tick()
	}
	return nil
}

func TestPutThenGetRoundTrips(t *testing.T) {
	fs := newMemFS()
	c := New(fs, "/cache", 1024, 0, nil)

	if err := c.Put(context.Background(), "k1", []byte("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, found, err := c.Get(context.Background(), "k1")
	if err != nil || !found {
		t.Fatalf("expected hit, err=%v found=%v", err, found)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}
}

func TestTempFileNeverVisibleToGet(t *testing.T) {
	fs := newMemFS()
	c := New(fs, "/cache", 1024, 0, nil)
	// Simulate a crash mid-download: only the .tmp exists.
	fs.FileWriteAllBytes(context.Background(), c.tempPath("k1"), []byte("partial"))

	_, found, err := c.Get(context.Background(), "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected .tmp file to be invisible to Get")
	}
}

func TestEvictionKeepsNewestFile(t *testing.T) {
	fs := newMemFS()
	// Ceiling small enough that the second put forces eviction.
	c := New(fs, "/cache", 0, 0, nil)
	c.maxSizeBytes = 15
	c.shrinkBytes = 5

	ctx := context.Background()
	if err := c.Put(ctx, "old", []byte("0123456789")); err != nil { // 10 bytes
		t.Fatalf("put old: %v", err)
	}
	if err := c.Put(ctx, "new", []byte("0123456789")); err != nil { // total 20 > 15
		t.Fatalf("put new: %v", err)
	}

	if _, found, _ := c.Get(ctx, "new"); !found {
		t.Fatalf("expected newest file to survive eviction")
	}
	if _, found, _ := c.Get(ctx, "old"); found {
		t.Fatalf("expected oldest file to be evicted")
	}
}

func TestHash128IsStableAndDeterministic(t *testing.T) {
	a := Hash128("https://example.com/a.png")
	b := Hash128("https://example.com/a.png")
	c := Hash128("https://example.com/b.png")
	if a != b {
		t.Fatalf("expected deterministic hash, got %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("expected different keys to hash differently (in practice)")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars (128 bits), got %d", len(a))
	}
}
