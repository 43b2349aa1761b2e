package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQLiteWriter upserts records into a products table keyed by sku, so
// repeated runs against the same file refresh rows instead of duplicating
// them.
type SQLiteWriter struct {
	path string
}

// NewSQLiteWriter creates the writer. An empty path writes next to the
// other outputs.
func NewSQLiteWriter(path string) *SQLiteWriter {
	return &SQLiteWriter{path: path}
}

func (w *SQLiteWriter) Format() string {
	return FormatSQLite
}

func (w *SQLiteWriter) Destination(outputDir, baseName string) string {
	if w.path != "" {
		return w.path
	}
	return fileDestination(outputDir, baseName, FormatSQLite)
}

func (w *SQLiteWriter) Write(ctx context.Context, records []product.ExportRecord, dest string) error {
	if err := ensureDir(dest); err != nil {
		return errors.NewExport(dest, "create output dir", err)
	}
	db, err := sql.Open("sqlite", dest)
	if err != nil {
		return errors.NewExport(dest, "open sqlite", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, createTableSQL("TEXT")); err != nil {
		return errors.NewExport(dest, "create table", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewExport(dest, "begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL(func(i int) string { return "?" }))
	if err != nil {
		return errors.NewExport(dest, "prepare upsert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, rowArgs(r)...); err != nil {
			return errors.NewExport(dest, "upsert "+r.SKU, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewExport(dest, "commit", err)
	}
	return nil
}

// createTableSQL is shared by both database sinks
func createTableSQL(textType string) string {
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		def := c.key + " " + textType
		if c.key == "sku" {
			def += " PRIMARY KEY"
		} else {
			def += " NOT NULL DEFAULT ''"
		}
		defs = append(defs, def)
	}
	return "CREATE TABLE IF NOT EXISTS products (" + strings.Join(defs, ", ") + ")"
}

// upsertSQL builds the insert-or-update statement with the driver's
// placeholder style.
func upsertSQL(placeholder func(i int) string) string {
	keys := columnKeys()
	marks := make([]string, len(keys))
	var updates []string
	for i, k := range keys {
		marks[i] = placeholder(i + 1)
		if k != "sku" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", k, k))
		}
	}
	return fmt.Sprintf("INSERT INTO products (%s) VALUES (%s) ON CONFLICT (sku) DO UPDATE SET %s",
		strings.Join(keys, ", "), strings.Join(marks, ", "), strings.Join(updates, ", "))
}

func rowArgs(r product.ExportRecord) []interface{} {
	values := row(r)
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
