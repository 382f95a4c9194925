package solver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/colibri-telescope/astrocorr/internal/wcs"
)

// CacheExt is the file extension of cached solutions
const CacheExt = ".wcs"

// Cache keeps one solution file per frame. Entries are written once and never replaced.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Path returns the location of the solution for frameID
func (c *Cache) Path(frameID string) string {
	return filepath.Join(c.dir, frameID+CacheExt)
}

// Load returns the cached solution for frameID. A missing entry matches fs.ErrNotExist.
func (c *Cache) Load(frameID string) (*wcs.Descriptor, error) {
	data, err := os.ReadFile(c.Path(frameID))
	if err != nil {
		return nil, err
	}

	return wcs.ParseDescriptor(data)
}

// Store writes raw as the solution for frameID unless an entry already exists,
// in which case it reports stored=false and leaves the entry untouched.
func (c *Cache) Store(frameID string, raw []byte) (stored bool, err error) {
	path := c.Path(frameID)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("creating cache entry: %w", err)
	}

	_, err = f.Write(raw)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		// a partial entry would shadow every later solve of this frame
		_ = os.Remove(path)
		return false, fmt.Errorf("writing cache entry: %w", err)
	}

	return true, nil
}
