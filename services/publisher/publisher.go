package publisher

import (
	"context"
	"encoding/json"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"
)

// RecordField is the stream entry field carrying an encoded product record
const RecordField = "b64_product"

// Publisher represents a service for publishing messages
type Publisher interface {
	// Publish publishes a message under field on the stream chosen by partition
	Publish(ctx context.Context, partition, field string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}

// PublishRecords publishes every record as JSON, partitioned by sku so all
// updates of one product land on the same stream. It keeps going after a
// failed record and returns the number published with the first error.
func PublishRecords(ctx context.Context, pub Publisher, records []product.ExportRecord) (int, error) {
	var firstErr error
	published := 0
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return published, errors.NewPublisher("records", "cancelled", err)
		}

		data, err := json.Marshal(r)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.NewPublisher(r.SKU, "encode record", err)
			}
			continue
		}
		if err := pub.Publish(ctx, r.SKU, RecordField, data); err != nil {
			if firstErr == nil {
				firstErr = errors.NewPublisher(r.SKU, "publish record", err)
			}
			continue
		}
		published++
	}
	return published, firstErr
}
