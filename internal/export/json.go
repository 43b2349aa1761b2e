package export

import (
	"bytes"
	"context"
	"encoding/json"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"
)

// JSONWriter writes an indented JSON array of records
type JSONWriter struct{}

func NewJSONWriter() *JSONWriter {
	return &JSONWriter{}
}

func (w *JSONWriter) Format() string {
	return FormatJSON
}

func (w *JSONWriter) Destination(outputDir, baseName string) string {
	return fileDestination(outputDir, baseName, FormatJSON)
}

func (w *JSONWriter) Write(ctx context.Context, records []product.ExportRecord, dest string) error {
	if records == nil {
		records = []product.ExportRecord{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return errors.NewExport(dest, "encode json", err)
	}

	if err := writeFile(dest, buf.Bytes()); err != nil {
		return errors.NewExport(dest, "write json", err)
	}
	return nil
}
