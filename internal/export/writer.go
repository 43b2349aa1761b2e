// Package export serializes the gated record set. Every writer receives the
// records already in identifier order and must keep that order.
package export

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/logger"
)

// Supported formats
const (
	FormatXML      = "xml"
	FormatJSON     = "json"
	FormatXLSX     = "xlsx"
	FormatCSV      = "csv"
	FormatSQLite   = "sqlite"
	FormatPostgres = "postgres"
)

// Formats lists every format name accepted in configuration
var Formats = []string{FormatXML, FormatJSON, FormatXLSX, FormatCSV, FormatSQLite, FormatPostgres}

// Writer serializes an ordered record list to one destination
type Writer interface {
	Format() string
	// Destination names where a run with the given base name is written
	Destination(outputDir, baseName string) string
	Write(ctx context.Context, records []product.ExportRecord, dest string) error
}

// column is one field of the tabular schema. The order of columns is the
// order of spreadsheet, CSV and table columns.
type column struct {
	key    string
	header string
	value  func(product.ExportRecord) string
}

var columns = []column{
	{"sku", "SKU", func(r product.ExportRecord) string { return r.SKU }},
	{"name", "Название", func(r product.ExportRecord) string { return r.Name }},
	{"price1", "Цена 1", func(r product.ExportRecord) string { return r.Price1 }},
	{"price2", "Цена 2", func(r product.ExportRecord) string { return r.Price2 }},
	{"rating", "Рейтинг", func(r product.ExportRecord) string { return r.Rating }},
	{"reviews", "Отзывов", func(r product.ExportRecord) string { return r.Reviews }},
	{"seller_name", "Продавец", func(r product.ExportRecord) string { return r.SellerName }},
	{"seller_inn", "ИНН", func(r product.ExportRecord) string { return r.SellerINN }},
	{"brand", "Бренд", func(r product.ExportRecord) string { return r.Brand }},
	{"category", "Категория", func(r product.ExportRecord) string { return r.Category }},
	{"link", "Ссылка", func(r product.ExportRecord) string { return r.Link }},
	{"image", "Изображение", func(r product.ExportRecord) string { return r.Image }},
}

// Header returns the tabular header row
func Header() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.header
	}
	return out
}

func row(r product.ExportRecord) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.value(r)
	}
	return out
}

func columnKeys() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.key
	}
	return out
}

// fileDestination is the Destination of every file based writer
func fileDestination(outputDir, baseName, ext string) string {
	return filepath.Join(outputDir, baseName+"."+ext)
}

// Options carries the settings of the database sinks
type Options struct {
	SQLitePath  string
	PostgresDSN string
}

// NewWriters builds one writer per requested format, in request order.
// Unknown or repeated formats are an error.
func NewWriters(ctx context.Context, formats []string, opts Options) ([]Writer, error) {
	seen := make(map[string]bool)
	var writers []Writer
	for _, raw := range formats {
		format := strings.ToLower(strings.TrimSpace(raw))
		if format == "" {
			continue
		}
		if seen[format] {
			CloseAll(writers)
			return nil, fmt.Errorf("export format %q listed twice", format)
		}
		seen[format] = true

		var w Writer
		switch format {
		case FormatXML:
			w = NewXMLWriter()
		case FormatJSON:
			w = NewJSONWriter()
		case FormatXLSX:
			w = NewXLSXWriter()
		case FormatCSV:
			w = NewCSVWriter()
		case FormatSQLite:
			w = NewSQLiteWriter(opts.SQLitePath)
		case FormatPostgres:
			pg, err := NewPostgresWriter(ctx, opts.PostgresDSN)
			if err != nil {
				CloseAll(writers)
				return nil, err
			}
			w = pg
		default:
			CloseAll(writers)
			return nil, fmt.Errorf("unknown export format %q", format)
		}
		writers = append(writers, w)
	}
	return writers, nil
}

// CloseAll releases writers that hold connections
func CloseAll(writers []Writer) {
	for _, w := range writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.ForExporter(w.Format()).Warn().Err(err).Msg("Failed to close writer")
			}
		}
	}
}

// Duplicate is a sku that occurs more than once in an export set
type Duplicate struct {
	SKU   string
	Count int
}

// CountDuplicates reports every sku seen more than once, ordered by sku
func CountDuplicates(records []product.ExportRecord) []Duplicate {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.SKU]++
	}

	var out []Duplicate
	for sku, n := range counts {
		if n > 1 {
			out = append(out, Duplicate{SKU: sku, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return product.CompareIdentifiers(out[i].SKU, out[j].SKU) < 0
	})
	return out
}
