package export

import (
	"context"
	"encoding/csv"
	"os"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"
)

// CSVWriter writes the tabular schema as comma separated values
type CSVWriter struct{}

func NewCSVWriter() *CSVWriter {
	return &CSVWriter{}
}

func (w *CSVWriter) Format() string {
	return FormatCSV
}

func (w *CSVWriter) Destination(outputDir, baseName string) string {
	return fileDestination(outputDir, baseName, FormatCSV)
}

func (w *CSVWriter) Write(ctx context.Context, records []product.ExportRecord, dest string) error {
	if err := ensureDir(dest); err != nil {
		return errors.NewExport(dest, "create output dir", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return errors.NewExport(dest, "create csv", err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(Header()); err != nil {
		f.Close()
		return errors.NewExport(dest, "write csv header", err)
	}
	for _, r := range records {
		if err := cw.Write(row(r)); err != nil {
			f.Close()
			return errors.NewExport(dest, "write csv row "+r.SKU, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return errors.NewExport(dest, "flush csv", err)
	}
	if err := f.Close(); err != nil {
		return errors.NewExport(dest, "close csv", err)
	}
	return nil
}
