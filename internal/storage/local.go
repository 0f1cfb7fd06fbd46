package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore writes files into Dir and publishes them under Prefix, which the
// router serves as static content.
type LocalStore struct {
	Dir    string
	Prefix string
}

func NewLocalStore(dir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{Dir: dir, Prefix: "/" + strings.Trim(prefix, "/")}, nil
}

// Save writes to a temp file first and renames it, so a reader never sees a
// half-written image.
func (s *LocalStore) Save(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("storage: invalid object name %q", name)
	}
	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.Dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path.Join(s.Prefix, name), nil
}

func (s *LocalStore) Remove(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, ok := strings.CutPrefix(url, s.Prefix+"/")
	if !ok || name == "" || name != filepath.Base(name) {
		return fmt.Errorf("storage: %q is not a local upload", url)
	}
	err := os.Remove(filepath.Join(s.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotExist
	}
	return err
}
