package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CaptureStore saves raw fetched pages for later offline runs. Saves are
// serialized so two workers can never pick the same file name; a name that
// already exists gets a unix timestamp suffix.
type CaptureStore struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// NewCaptureStore creates a store writing into dir
func NewCaptureStore(dir string) *CaptureStore {
	return &CaptureStore{dir: dir, now: time.Now}
}

// Dir returns the capture directory
func (c *CaptureStore) Dir() string {
	return c.dir
}

// Save writes content as page_source_page_{page}.{ext} and returns the path
// actually used.
func (c *CaptureStore) Save(page int, ext, content string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}

	path := filepath.Join(c.dir, fmt.Sprintf("page_source_page_%d.%s", page, ext))
	if _, err := os.Stat(path); err == nil {
		path = c.uniquePath(page, ext)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write capture %s: %w", path, err)
	}
	return path, nil
}

// uniquePath finds a timestamped name that is not taken yet
func (c *CaptureStore) uniquePath(page int, ext string) string {
	ts := c.now().Unix()
	for {
		path := filepath.Join(c.dir, fmt.Sprintf("page_source_page_%d_%d.%s", page, ts, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		ts++
	}
}
