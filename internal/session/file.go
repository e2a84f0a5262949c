package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileVersion is the persisted format version this build writes. Files with
// any other version are treated as empty rather than rejected, so an upgrade
// or downgrade never blocks startup.
const fileVersion = 1

type persistedFile struct {
	Version  int                `json:"version"`
	Sessions map[string]*Record `json:"sessions"`
}

// sessionFile is the narrow persistence seam under the store: load the whole
// map, save the whole map. Swapping it for an embedded database later would
// not touch the store's logic.
type sessionFile struct {
	path string
}

func newSessionFile(path string) *sessionFile {
	return &sessionFile{path: path}
}

// Load reads the persisted session map. A missing file yields an empty map
// and no error; malformed content or an unknown version yields an empty map
// with the decode error for logging.
func (f *sessionFile) Load() (map[string]*Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*Record), nil
		}
		return make(map[string]*Record), fmt.Errorf("read %s: %w", f.path, err)
	}

	var decoded persistedFile
	if err := json.Unmarshal(data, &decoded); err != nil {
		return make(map[string]*Record), fmt.Errorf("decode %s: %w", f.path, err)
	}
	if decoded.Version != fileVersion || decoded.Sessions == nil {
		return make(map[string]*Record), nil
	}
	return decoded.Sessions, nil
}

// Save writes the session map atomically: temp file in the same directory,
// then rename over the target.
func (f *sessionFile) Save(sessions map[string]*Record) error {
	data, err := json.MarshalIndent(persistedFile{
		Version:  fileVersion,
		Sessions: sessions,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}
	return nil
}
