package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/sha3"

	"videonotes/core"
)

// UploadStore persists uploaded videos under content-addressed paths and
// keeps the per-video pipeline result next to them. Identical bytes always
// map to the same path, which is what makes the result cache safe across
// concurrent uploads.
type UploadStore struct {
	Root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewUploadStore(root string) *UploadStore {
	return &UploadStore{Root: root, locks: map[string]*sync.Mutex{}}
}

// Save streams the upload to disk and returns its content-addressed path:
// {sha3-256 hex}.{media type with / replaced by .}. Saving the same bytes
// twice rewrites the identical file, which is harmless.
func (s *UploadStore) Save(r io.Reader, mediaType string) (string, error) {
	if err := os.MkdirAll(s.Root, 0755); err != nil {
		return "", fmt.Errorf("%w: create upload dir: %v", core.ErrIO, err)
	}

	tmp, err := os.CreateTemp(s.Root, "upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", core.ErrIO, err)
	}
	defer os.Remove(tmp.Name())

	h := sha3.New256()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write upload: %v", core.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close upload: %v", core.ErrIO, err)
	}

	ext := strings.ReplaceAll(mediaType, "/", ".")
	path := filepath.Join(s.Root, hex.EncodeToString(h.Sum(nil))+"."+ext)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("%w: place upload: %v", core.ErrIO, err)
	}
	return path, nil
}

// ResultPath returns where the cache artifact for a stored video lives.
func (s *UploadStore) ResultPath(videoPath string) string {
	return videoPath + ".txt"
}

// HasResult reports whether a pipeline result artifact exists for the video.
func (s *UploadStore) HasResult(videoPath string) bool {
	info, err := os.Stat(s.ResultPath(videoPath))
	return err == nil && !info.IsDir()
}

// SaveResult persists fused segments as the cache artifact. The write goes
// through a temp file and rename, serialized per cache key, so two runs on
// the same video never interleave partial artifacts.
func (s *UploadStore) SaveResult(videoPath string, segments []*core.Segment) error {
	lock := s.keyLock(videoPath)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode result: %v", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(videoPath), "result-*")
	if err != nil {
		return fmt.Errorf("%w: create result temp: %v", core.ErrIO, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write result: %v", core.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close result: %v", core.ErrIO, err)
	}
	if err := os.Rename(tmp.Name(), s.ResultPath(videoPath)); err != nil {
		return fmt.Errorf("%w: place result: %v", core.ErrIO, err)
	}
	return nil
}

// LoadResult reads the cache artifact back.
func (s *UploadStore) LoadResult(videoPath string) ([]*core.Segment, error) {
	data, err := os.ReadFile(s.ResultPath(videoPath))
	if err != nil {
		return nil, fmt.Errorf("%w: read result: %v", core.ErrIO, err)
	}
	var segments []*core.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("decode result: %v", err)
	}
	return segments, nil
}

func (s *UploadStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = map[string]*sync.Mutex{}
	}
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
