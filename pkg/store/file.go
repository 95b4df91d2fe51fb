package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zpam/spamlearn/pkg/model"
)

const fileExt = ".json"

// FileStore keeps one indented JSON file per model in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file that holds the named model
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

// Save writes to a temporary file and renames it into place, so readers
// never observe a partial model
func (s *FileStore) Save(_ context.Context, name string, snap *model.Snapshot) error {
	if err := validName(name); err != nil {
		return err
	}
	data, err := model.Marshal(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("failed to save model %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, name string) (*model.Snapshot, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	snap, err := model.LoadFile(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return snap, err
}

// List decodes every model file in the directory
func (s *FileStore) List(_ context.Context) ([]ModelInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory: %w", err)
	}

	var infos []ModelInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fileExt)
		snap, err := model.LoadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		infos = append(infos, infoOf(name, snap))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (s *FileStore) Close() error { return nil }
