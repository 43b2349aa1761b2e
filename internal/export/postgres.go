package export

import (
	"context"
	"fmt"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresWriter upserts records into a products table
type PostgresWriter struct {
	pool *pgxpool.Pool
	host string
}

// NewPostgresWriter connects to dsn and checks the connection
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	if dsn == "" {
		return nil, errors.NewExport(FormatPostgres, "POSTGRES_DSN is not set", nil)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.NewExport(FormatPostgres, "parse dsn", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.NewExport(FormatPostgres, "connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewExport(FormatPostgres, "ping", err)
	}
	return &PostgresWriter{pool: pool, host: cfg.ConnConfig.Host}, nil
}

func (w *PostgresWriter) Format() string {
	return FormatPostgres
}

// Destination names the table; the base name does not apply to a database
func (w *PostgresWriter) Destination(outputDir, baseName string) string {
	return fmt.Sprintf("postgres://%s/products", w.host)
}

func (w *PostgresWriter) Write(ctx context.Context, records []product.ExportRecord, dest string) error {
	if _, err := w.pool.Exec(ctx, createTableSQL("TEXT")); err != nil {
		return errors.NewExport(dest, "create table", err)
	}
	if len(records) == 0 {
		return nil
	}

	query := upsertSQL(func(i int) string { return fmt.Sprintf("$%d", i) })
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query, rowArgs(r)...)
	}

	br := w.pool.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return errors.NewExport(dest, "upsert "+r.SKU, err)
		}
	}
	if err := br.Close(); err != nil {
		return errors.NewExport(dest, "close batch", err)
	}
	return nil
}

// Close releases the connection pool
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}
