// Package localworkspace is a filesystem-backed workspace.AssetDatabase
// adapter: a JSON sidecar file maps workspace paths to stable file
// guids. The source system reaches its real asset database through
// reflection into editor internals (spec §9); this adapter is the
// engine's own minimal stand-in, suitable for a headless deployment
// that has no richer asset database to bind to. Grounded on
// internal/persist's atomic temp-then-rename write idiom.
package localworkspace

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/vaultbridge/importengine/internal/engineerr"
	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/workspace"
	"go.uber.org/zap"
)

// Store implements workspace.AssetDatabase with no editor, no
// dependency graph of its own, and no dirty-state tracking: every
// file is considered clean, and GetDependencies always reports none,
// since those facts live in the catalog snapshot (model.AssetData)
// for assets this engine imports rather than in the local workspace.
type Store struct {
	mu        sync.Mutex
	indexPath string
	logger    *zap.Logger

	pathToGUID map[string]model.FileGUID
	guidToPath map[model.FileGUID]string

	observers []func(workspace.PostprocessEvent)
}

type sidecarFile struct {
	Entries map[string]uuid.UUID `json:"entries"` // path -> guid
}

// New loads (or creates) the guid sidecar at indexPath.
func New(indexPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		indexPath:  indexPath,
		logger:     logger,
		pathToGUID: make(map[string]model.FileGUID),
		guidToPath: make(map[model.FileGUID]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return engineerr.IOf(err, "reading workspace guid index %s", s.indexPath)
	}
	var sc sidecarFile
	if err := json.Unmarshal(data, &sc); err != nil {
		return engineerr.IOf(err, "decoding workspace guid index %s", s.indexPath)
	}
	for path, guid := range sc.Entries {
		s.pathToGUID[path] = guid
		s.guidToPath[guid] = path
	}
	return nil
}

func (s *Store) saveLocked() error {
	sc := sidecarFile{Entries: make(map[string]uuid.UUID, len(s.pathToGUID))}
	for path, guid := range s.pathToGUID {
		sc.Entries[path] = guid
	}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return engineerr.IOf(err, "marshaling workspace guid index")
	}
	if err := os.MkdirAll(filepath.Dir(s.indexPath), 0o755); err != nil {
		return engineerr.IOf(err, "creating workspace guid index directory")
	}
	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return engineerr.IOf(err, "writing workspace guid index")
	}
	if err := os.Rename(tmp, s.indexPath); err != nil {
		return engineerr.IOf(err, "renaming workspace guid index into place")
	}
	return nil
}

// PathToGUID returns path's guid, assigning and persisting a new one
// if path is not yet tracked.
func (s *Store) PathToGUID(_ context.Context, path string) (model.FileGUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if guid, ok := s.pathToGUID[path]; ok {
		return guid, nil
	}
	guid := uuid.New()
	s.pathToGUID[path] = guid
	s.guidToPath[guid] = path
	if err := s.saveLocked(); err != nil {
		return uuid.Nil, err
	}
	return guid, nil
}

// GUIDToPath resolves guid back to its tracked path.
func (s *Store) GUIDToPath(_ context.Context, guid model.FileGUID) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.guidToPath[guid]
	return path, ok, nil
}

// GetDependencies always returns none: local file-level dependency
// tracking is not meaningful without an editor behind this adapter.
func (s *Store) GetDependencies(_ context.Context, _ string, _ bool) ([]string, error) {
	return nil, nil
}

// IsDirty always reports clean: this adapter has no editor session
// to ask.
func (s *Store) IsDirty(_ context.Context, _ string) (bool, error) {
	return false, nil
}

// DeleteAssets removes each path and its guid-index entry.
func (s *Store) DeleteAssets(ctx context.Context, paths []string, outFailed *[]string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removedAny := false
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			*outFailed = append(*outFailed, path)
			continue
		}
		removedAny = true
		if guid, ok := s.pathToGUID[path]; ok {
			delete(s.pathToGUID, path)
			delete(s.guidToPath, guid)
		}
	}
	if err := s.saveLocked(); err != nil {
		return removedAny, err
	}
	s.notify(workspace.PostprocessEvent{Deleted: paths})
	return removedAny, nil
}

// ImportAsset leaves the file as it is: this adapter has no editor-side
// import hook to trigger, the pipeline already placed the file. It only
// raises an Imported postprocess event for path.
func (s *Store) ImportAsset(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify(workspace.PostprocessEvent{Imported: []string{path}})
	return nil
}

// StartAssetEditing/StopAssetEditing are no-ops: this adapter has no
// file-watcher to suspend.
func (s *Store) StartAssetEditing(_ context.Context) error { return nil }
func (s *Store) StopAssetEditing(_ context.Context) error  { return nil }

// Refresh is a no-op for the same reason.
func (s *Store) Refresh(_ context.Context) error { return nil }

// Subscribe registers fn for postprocess notifications.
func (s *Store) Subscribe(fn func(workspace.PostprocessEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
	i := len(s.observers) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.observers[i] = nil
	}
}

func (s *Store) notify(ev workspace.PostprocessEvent) {
	for _, fn := range s.observers {
		if fn != nil {
			fn(ev)
		}
	}
}
