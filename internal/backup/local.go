package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalSink keeps backups in a directory.
type LocalSink struct {
	Dir string
}

// NewLocalSink uses dir, or the OS temp directory when dir is empty.
func NewLocalSink(dir string) *LocalSink {
	if dir == "" {
		dir = os.TempDir()
	}
	return &LocalSink{Dir: dir}
}

func (s *LocalSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(name))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func (s *LocalSink) Get(ctx context.Context, name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(s.Dir, filepath.Base(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return b, err
}
