package helpers

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "errors.log")

	logger := NewLogger(tmpFile)
	logger.LogError("page 4", errors.New("navigation timeout"))

	data, err := os.ReadFile(tmpFile)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "[page 4]")
	assert.Contains(t, string(data), "navigation timeout")

	// Info messages go to the structured log, not the file
	logger.LogInfo("Exported %d records", 3)
}

func TestLoggerConcurrentWrites(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "errors.log")
	logger := NewLogger(tmpFile)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.LogError("fetcher", errors.New("blocked"))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(tmpFile)
	assert.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 20)
}

func TestLoggerWithoutFile(t *testing.T) {
	logger := NewLogger("")
	assert.NotPanics(t, func() {
		logger.LogError("extractor", errors.New("bad item"))
	})
}
