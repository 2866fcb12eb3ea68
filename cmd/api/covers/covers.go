package covers

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store keeps cover images on local disk. Only the relative path is recorded
// on the book record, never the bytes.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating covers directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

/* Writes the uploaded file under a fresh uuid-prefixed name and returns the
path to store on the book record. */
func (s *Store) Save(file multipart.File, filename string) (string, error) {
	name := uuid.New().String() + "-" + filepath.Base(filename)
	path := filepath.Join(s.dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("saving cover %s: %w", filename, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("saving cover %s: %w", filename, err)
	}

	return path, nil
}

/* Deletes an accepted cover. Called when persisting the owning book failed,
so the accepted asset does not orphan. */
func (s *Store) Remove(path string) error {
	// Only paths inside the store directory are removable.
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.dir)+string(filepath.Separator)) {
		return fmt.Errorf("removing cover %s: outside covers directory", path)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing cover %s: %w", path, err)
	}

	return nil
}
