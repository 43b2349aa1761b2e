package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sjsage522/storefrontscraper/config"
	"sjsage522/storefrontscraper/helpers"
	"sjsage522/storefrontscraper/internal/export"
	"sjsage522/storefrontscraper/internal/extractor"
	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/services/cache"
	"sjsage522/storefrontscraper/services/publisher"
	"sjsage522/storefrontscraper/services/worker"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storefrontTile is one listing tile, deep enough that neighbouring tiles
// never share a price ancestor.
func storefrontTile(id, name string, prices ...string) string {
	var b strings.Builder
	b.WriteString(`<div class="tile"><div><div><div><div><div>`)
	fmt.Fprintf(&b, `<a href="/product/item-%s/">%s</a>`, id, name)
	for _, p := range prices {
		fmt.Fprintf(&b, `<span>%s</span>`, p)
	}
	b.WriteString(`</div></div></div></div></div></div>`)
	return b.String()
}

var storefrontPages = map[string]string{
	"1": `<html><body>` +
		storefrontTile("123", "", "100 ₽") +
		storefrontTile("555", "Lamp", "1 299 ₽", "1 599 ₽") +
		`</body></html>`,
	"2": `<html><body>` +
		storefrontTile("123", "Widget", "100 ₽", "120 ₽") +
		storefrontTile("456", "Gadget") +
		`</body></html>`,
}

const storefrontEmpty = `<html><body><h1>По вашему запросу ничего не нашлось</h1></body></html>`

// newStorefront serves seller listing pages by their page query parameter
func newStorefront(t *testing.T) (*httptest.Server, *requestLog) {
	t.Helper()
	requests := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "" {
			page = "1"
		}
		requests.add(page)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		body, ok := storefrontPages[page]
		if !ok {
			body = storefrontEmpty
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, requests
}

type requestLog struct {
	mu    sync.Mutex
	pages []string
}

func (r *requestLog) add(page string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, page)
}

func (r *requestLog) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

func integrationConfig(t *testing.T, server *httptest.Server) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		SellerURL:     server.URL + "/seller/shop-42/",
		BaseURL:       server.URL,
		APIBases:      []string{server.URL + "/api/composer-api.bx/page/json/v2"},
		Mode:          config.ModeLive,
		Method:        config.MethodHTML,
		Strategy:      "auto",
		InputDir:      filepath.Join(dir, "captures"),
		OutputDir:     filepath.Join(dir, "output"),
		CaptureDir:    filepath.Join(dir, "captures"),
		SkipLog:       filepath.Join(dir, "output", "skipped.jsonl"),
		ExportFormats: []string{"xml", "json", "csv", "xlsx", "sqlite"},
		MaxPages:      10,
		MaxEmptyPages: 2,
		GroupSize:     2,
		Workers:       2,
		WindowRadius:  extractor.DefaultWindowRadius,
		PriceCap:      2,
		Engines:       []string{"http"},
		FetchTimeout:  5 * time.Second,
		MaxRetries:    0,
		BlockTime:     time.Minute,
		Environment:   "test",
		SellerID:      "42",
	}
}

func runWorker(t *testing.T, cfg *config.Config, pub publisher.Publisher) worker.Summary {
	t.Helper()
	ctx := context.Background()

	writers, err := export.NewWriters(ctx, cfg.Formats(), export.Options{SQLitePath: cfg.SQLitePath})
	require.NoError(t, err)
	defer export.CloseAll(writers)

	opts := worker.Options{
		Mode:          cfg.Mode,
		InputDir:      cfg.InputDir,
		OutputDir:     cfg.OutputDir,
		BaseName:      cfg.OutputBaseName(),
		SkipLogPath:   cfg.SkipLog,
		MaxPages:      cfg.MaxPages,
		MaxEmptyPages: cfg.MaxEmptyPages,
		GroupSize:     cfg.GroupSize,
		Workers:       cfg.Workers,
		PriceCap:      cfg.PriceCap,
		Environment:   cfg.Environment,
		Target:        cfg.Target,
	}
	ext := extractor.New(extractor.Options{
		Strategy:     extractor.StrategyAuto,
		WindowRadius: cfg.WindowRadius,
		PriceCap:     cfg.PriceCap,
		BaseURL:      cfg.BaseURL,
	})

	var w *worker.Worker
	if cfg.Mode == config.ModeLive {
		f, err := newFetcher(cfg, cache.NewMemoryCache())
		require.NoError(t, err)
		w = worker.NewWorker(opts, f, ext, writers, pub, helpers.NewLogger(""))
	} else {
		w = worker.NewWorker(opts, nil, ext, writers, pub, helpers.NewLogger(""))
	}

	summary, err := w.Run(ctx)
	require.NoError(t, err)
	return summary
}

// TestIntegrationLiveRun scrapes a local storefront over HTTP and checks
// every file sink, the skip log and the page captures.
func TestIntegrationLiveRun(t *testing.T) {
	server, requests := newStorefront(t)
	cfg := integrationConfig(t, server)

	summary := runWorker(t, cfg, nil)

	assert.Equal(t, 4, requests.count(), "pages 3 and 4 are empty and end the run")
	assert.Equal(t, 3, summary.Products)
	assert.Equal(t, 2, summary.Exported)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, summary.Destinations, 5)

	for _, dest := range summary.Destinations {
		info, err := os.Stat(dest)
		require.NoError(t, err, dest)
		assert.Positive(t, info.Size(), dest)
	}

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "seller_42.json"))
	require.NoError(t, err)
	var exported []product.ExportRecord
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported, 2)

	assert.Equal(t, "123", exported[0].SKU)
	assert.Equal(t, "Widget", exported[0].Name)
	assert.Equal(t, "100 ₽", exported[0].Price1)
	assert.Equal(t, "120 ₽", exported[0].Price2)
	assert.Equal(t, server.URL+"/product/item-123/", exported[0].Link)

	assert.Equal(t, "555", exported[1].SKU)
	assert.Equal(t, "1 299 ₽", exported[1].Price1)
	assert.Equal(t, "1 599 ₽", exported[1].Price2)

	skipped, err := os.ReadFile(cfg.SkipLog)
	require.NoError(t, err)
	var entry product.SkipLogEntry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(skipped))), &entry))
	assert.Equal(t, "456", entry.SKU)
	assert.Equal(t, []string{"price1", "price2"}, entry.Missing)
	assert.Equal(t, "Gadget", entry.Found.Name)

	captures, err := filepath.Glob(filepath.Join(cfg.CaptureDir, "page_source_page_*.html"))
	require.NoError(t, err)
	assert.Len(t, captures, 4)
}

// TestIntegrationReplayCaptures runs files mode over the captures a live run
// saved and expects the same export set.
func TestIntegrationReplayCaptures(t *testing.T) {
	server, _ := newStorefront(t)
	cfg := integrationConfig(t, server)
	cfg.ExportFormats = []string{"json"}

	live := runWorker(t, cfg, nil)

	replay := *cfg
	replay.Mode = config.ModeFiles
	replay.OutputName = "replay"
	summary := runWorker(t, &replay, nil)

	assert.Equal(t, 4, summary.Pages)
	assert.Equal(t, live.Exported, summary.Exported)
	assert.Equal(t, live.Skipped, summary.Skipped)

	liveData, err := os.ReadFile(filepath.Join(cfg.OutputDir, "seller_42.json"))
	require.NoError(t, err)
	replayData, err := os.ReadFile(filepath.Join(cfg.OutputDir, "replay.json"))
	require.NoError(t, err)
	assert.JSONEq(t, string(liveData), string(replayData))
}

// TestIntegrationAPIMethod fetches pages through the composer API endpoint
func TestIntegrationAPIMethod(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		mu.Lock()
		seen = append(seen, target)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		u, err := url.Parse(target)
		if err != nil || u.Query().Get("page") != "" {
			io.WriteString(w, `{"widgetStates": {}}`)
			return
		}
		state := `{"items":[{"sku":789,"name":"Kettle","price":{"price":[{"text":"2 499 ₽"},{"text":"2 999 ₽"}]}}]}`
		doc, _ := json.Marshal(map[string]interface{}{
			"widgetStates": map[string]string{"searchResultsV2-1": state},
		})
		w.Write(doc)
	}))
	defer server.Close()

	cfg := integrationConfig(t, server)
	cfg.Method = config.MethodAPI
	cfg.ExportFormats = []string{"json"}
	cfg.GroupSize = 1
	cfg.MaxEmptyPages = 1

	summary := runWorker(t, cfg, nil)
	assert.Equal(t, 1, summary.Exported)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, "/seller/shop-42/", seen[0])

	captures, err := filepath.Glob(filepath.Join(cfg.CaptureDir, "*.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, captures)
}

func TestInitializeServicesWithoutBackends(t *testing.T) {
	cfg := &config.Config{ExportFormats: []string{"json", "csv"}}

	services, err := initializeServices(context.Background(), cfg)
	require.NoError(t, err)
	defer services.Cleanup()

	assert.IsType(t, &cache.MemoryCache{}, services.Cache)
	assert.Nil(t, services.Publisher)
	assert.Len(t, services.Writers, 2)
}

func TestNewFetcherRejectsUnknownEngine(t *testing.T) {
	cfg := &config.Config{Engines: []string{"http", "lynx"}}
	_, err := newFetcher(cfg, cache.NewMemoryCache())
	assert.Error(t, err)
}

// TestIntegrationRedis publishes a live run to Redis streams
func TestIntegrationRedis(t *testing.T) {
	// Skip this test if running in CI or without Redis
	if os.Getenv("CI") != "" {
		t.Skip("Skipping integration test in CI environment")
	}

	ctx := context.Background()
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()

	// Check if Redis is available by attempting a ping, skip test if not
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skip("Redis is not available, skipping integration test")
	}

	prefix := fmt.Sprintf("test_products_%d", time.Now().UnixNano())
	pub := publisher.NewRedisPublisher(redisAddr, 0, prefix, 1, 100)
	defer pub.Close()
	defer redisClient.Del(ctx, prefix+":0")

	server, _ := newStorefront(t)
	cfg := integrationConfig(t, server)
	cfg.ExportFormats = []string{"json"}

	summary := runWorker(t, cfg, pub)
	require.Equal(t, 2, summary.Exported)

	entries, err := redisClient.XRange(ctx, prefix+":0", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var skus []string
	for _, entry := range entries {
		encoded, ok := entry.Values[publisher.RecordField].(string)
		require.True(t, ok)
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)

		var rec product.ExportRecord
		require.NoError(t, json.Unmarshal(decoded, &rec))
		skus = append(skus, rec.SKU)
	}
	assert.ElementsMatch(t, []string{"123", "555"}, skus)
}
