package documents

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BlobStore writes and reads uploaded file content.
type BlobStore interface {
	Save(r io.Reader) (storedName string, size int64, err error)
	Open(storedName string) (io.ReadCloser, error)
	Remove(storedName string) error
}

// DiskStore keeps uploads in a flat directory under random names so a
// crafted filename can never escape the directory or collide.
type DiskStore struct {
	dir string
}

// NewDiskStore ensures dir exists and returns a store over it.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) Save(r io.Reader) (string, int64, error) {
	name := uuid.NewString()
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filepath.Join(s.dir, name))
		return "", 0, err
	}
	return name, size, nil
}

func (s *DiskStore) Open(storedName string) (io.ReadCloser, error) {
	// storedName is always a UUID we generated, but keep the base check so a
	// corrupted row cannot read outside the directory.
	return os.Open(filepath.Join(s.dir, filepath.Base(storedName)))
}

func (s *DiskStore) Remove(storedName string) error {
	return os.Remove(filepath.Join(s.dir, filepath.Base(storedName)))
}
