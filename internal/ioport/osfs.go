package ioport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// OSFileIO implements FileIO against the real filesystem.
type OSFileIO struct {
	TempRoot string
}

// NewOSFileIO creates an OSFileIO rooted at tempRoot for staging
// directories.
func NewOSFileIO(tempRoot string) *OSFileIO {
	return &OSFileIO{TempRoot: tempRoot}
}

func (o *OSFileIO) FileExists(_ context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

func (o *OSFileIO) DirectoryExists(_ context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.IsDir(), nil
}

func (o *OSFileIO) CreateDirectory(_ context.Context, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}

func (o *OSFileIO) DirectoryDelete(_ context.Context, path string, recursive bool) error {
	var err error
	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting directory %s: %w", path, err)
	}
	return nil
}

func (o *OSFileIO) FileMove(_ context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating parent for %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to %s: %w", src, dst, err)
	}
	return nil
}

func (o *OSFileIO) DeleteFile(_ context.Context, path string, removeEmptyParents bool) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file %s: %w", path, err)
	}
	if !removeEmptyParents {
		return nil
	}
	dir := filepath.Dir(path)
	for dir != "." && dir != string(filepath.Separator) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

func (o *OSFileIO) FileReadAllBytes(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}

func (o *OSFileIO) FileWriteAllBytes(_ context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing file %s: %w", path, err)
	}
	return nil
}

func (o *OSFileIO) GetFileLastWriteTimeUTC(_ context.Context, path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.ModTime().UTC(), nil
}

func (o *OSFileIO) GetFileLength(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

func (o *OSFileIO) GetOldestFiles(_ context.Context, dir string) ([]FileStat, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	eligibleCutoff := time.Now().Add(time.Minute)
	stats := make([]FileStat, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		accessTime := info.ModTime()
		if accessTime.After(eligibleCutoff) {
			continue
		}
		stats = append(stats, FileStat{
			Path:           filepath.Join(dir, e.Name()),
			Size:           info.Size(),
			LastAccessTime: accessTime,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].LastAccessTime.After(stats[j].LastAccessTime)
	})
	return stats, nil
}

func (o *OSFileIO) Touch(_ context.Context, path string) error {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return fmt.Errorf("touching %s: %w", path, err)
	}
	return nil
}

func (o *OSFileIO) GetUniqueTempPathInProject(_ context.Context) (string, error) {
	root := o.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	path := filepath.Join(root, uuid.New().String())
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("creating staging directory %s: %w", path, err)
	}
	return path, nil
}
