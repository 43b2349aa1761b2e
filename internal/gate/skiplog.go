package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"sjsage522/storefrontscraper/internal/product"
)

// WriteSkipLog writes one JSON object per line to path, replacing any earlier
// file. An empty entry list still produces an empty file so the run summary
// always points at something.
func WriteSkipLog(path string, entries []product.SkipLogEntry) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create skip log dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create skip log: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for _, entry := range entries {
		if entry.Missing == nil {
			entry.Missing = []string{}
		}
		if entry.Sources == nil {
			entry.Sources = []string{}
		}
		if err := enc.Encode(entry); err != nil {
			f.Close()
			return fmt.Errorf("write skip entry %s: %w", entry.SKU, err)
		}
	}
	return f.Close()
}
