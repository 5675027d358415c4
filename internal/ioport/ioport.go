// Package ioport declares the filesystem operations the import
// pipeline and cache need, as an interface the OS-backed
// implementation (and tests) satisfy. Kept as a port per spec §6
// rather than calling os.* directly so staging/eviction logic can be
// tested against an in-memory fake.
package ioport

import (
	"context"
	"time"
)

// FileIO is the OS I/O port: everything the pipeline and cache need
// from the filesystem.
type FileIO interface {
	FileExists(ctx context.Context, path string) (bool, error)
	DirectoryExists(ctx context.Context, path string) (bool, error)
	CreateDirectory(ctx context.Context, path string) error
	DirectoryDelete(ctx context.Context, path string, recursive bool) error
	FileMove(ctx context.Context, src, dst string) error
	// DeleteFile removes path; if removeEmptyParents is true, any
	// parent directory left empty by the deletion is removed too,
	// walking upward until a non-empty directory is hit.
	DeleteFile(ctx context.Context, path string, removeEmptyParents bool) error
	FileReadAllBytes(ctx context.Context, path string) ([]byte, error)
	FileWriteAllBytes(ctx context.Context, path string, data []byte) error
	GetFileLastWriteTimeUTC(ctx context.Context, path string) (time.Time, error)
	GetFileLength(ctx context.Context, path string) (int64, error)
	// GetOldestFiles lists files in dir ordered most-recently-accessed
	// first, filtered to those whose access time is <= now+1min (spec
	// §4.I's eligibility guard against clock skew on freshly-written
	// files).
	GetOldestFiles(ctx context.Context, dir string) ([]FileStat, error)
	GetUniqueTempPathInProject(ctx context.Context) (string, error)
	// Touch updates path's last-access time to now, used by the cache
	// to keep a read from being evicted as if it were untouched.
	Touch(ctx context.Context, path string) error
}

// FileStat is one entry returned by GetOldestFiles.
type FileStat struct {
	Path           string
	Size           int64
	LastAccessTime time.Time
}
