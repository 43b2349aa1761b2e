package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"sjsage522/storefrontscraper/internal/product"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This test requires a running Redis instance
// If Redis is not available, the test will be skipped
func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	publisher := NewRedisPublisher("localhost:6379", 0, "test_products", 1, 100)
	defer publisher.Close()

	if err := publisher.Ping(ctx); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 0})
	defer client.Close()

	stream := publisher.StreamFor("123")
	assert.Equal(t, "test_products:0", stream)

	err := client.XGroupCreateMkStream(ctx, stream, "test_group", "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		require.NoError(t, err)
	}

	messages := make(chan string, 1)
	go func() {
		result, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Streams:  []string{stream, ">"},
			Group:    "test_group",
			Consumer: "test_consumer",
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			messages <- ""
			return
		}
		messages <- result[0].Messages[0].Values[RecordField].(string)
	}()

	time.Sleep(100 * time.Millisecond)

	record := product.ExportRecord{SKU: "123", Name: "Widget", Price1: "100 ₽", Price2: "120 ₽"}
	n, err := PublishRecords(ctx, publisher, []product.ExportRecord{record})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case msg := <-messages:
		raw, err := base64.StdEncoding.DecodeString(msg)
		require.NoError(t, err)
		var got product.ExportRecord
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, record, got)
	case <-time.After(3 * time.Second):
		t.Error("Timed out waiting for message")
	}

	assert.NoError(t, publisher.TrimStreams(ctx))
}

func TestStreamForIsStable(t *testing.T) {
	p := NewRedisPublisher("localhost:0", 0, "products", 10, 0)
	defer p.Close()

	first := p.StreamFor("98765")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, p.StreamFor("98765"))
	}
	assert.True(t, strings.HasPrefix(first, "products:"))
}
