package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sjsage522/storefrontscraper/internal/export"
	"sjsage522/storefrontscraper/internal/extractor"
	"sjsage522/storefrontscraper/internal/fetch"
	"sjsage522/storefrontscraper/pkg/errors"

	"github.com/kelseyhightower/envconfig"
)

// Run modes
const (
	ModeLive  = "live"
	ModeFiles = "files"
)

// Fetch methods
const (
	MethodHTML = "html"
	MethodAPI  = "api"
)

// Config represents the application configuration
type Config struct {
	// Target
	SellerURL string   `envconfig:"SELLER_URL"`
	BaseURL   string   `envconfig:"BASE_URL" default:"https://www.ozon.ru"`
	APIBases  []string `envconfig:"API_BASES" default:"https://www.ozon.ru/api/composer-api.bx/page/json/v2,https://www.ozon.ru/api/entrypoint-api.bx/page/json/v2"`

	// Mode and method
	Mode     string `envconfig:"MODE" default:"live"`
	Method   string `envconfig:"METHOD" default:"html"`
	Strategy string `envconfig:"STRATEGY" default:"auto"`

	// Directories
	InputDir   string `envconfig:"INPUT_DIR" default:"captures"`
	OutputDir  string `envconfig:"OUTPUT_DIR" default:"output"`
	CaptureDir string `envconfig:"CAPTURE_DIR" default:"captures"`
	SkipLog    string `envconfig:"SKIP_LOG" default:"output/skipped.jsonl"`

	// Export
	ExportFormats []string `envconfig:"EXPORT_FORMATS" default:"xml,json,xlsx"`
	OutputName    string   `envconfig:"OUTPUT_NAME"`

	// Paging
	MaxPages      int `envconfig:"MAX_PAGES" default:"100"`
	MaxEmptyPages int `envconfig:"MAX_EMPTY_PAGES" default:"3"`
	GroupSize     int `envconfig:"GROUP_SIZE" default:"6"`
	Workers       int `envconfig:"WORKERS" default:"3"`

	// Extraction
	WindowRadius   int      `envconfig:"WINDOW_RADIUS" default:"4000"`
	PriceCap       int      `envconfig:"PRICE_CAP" default:"2"`
	ExcludeMarkers []string `envconfig:"EXCLUDE_MARKERS"`

	// Fetch engines
	Engines      []string      `envconfig:"ENGINES" default:"http,chrome"`
	Headless     bool          `envconfig:"HEADLESS" default:"true"`
	ChromePath   string        `envconfig:"CHROME_PATH"`
	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"90s"`
	MaxRetries   int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `envconfig:"RETRY_BACKOFF" default:"5s"`

	// Pacing
	RequestDelayMin   time.Duration `envconfig:"REQUEST_DELAY_MIN" default:"2s"`
	RequestDelayMax   time.Duration `envconfig:"REQUEST_DELAY_MAX" default:"5s"`
	RequestsPerSecond float64       `envconfig:"REQUESTS_PER_SECOND" default:"0.5"`

	// Scrolling
	ScrollMaxAttempts int `envconfig:"SCROLL_MAX_ATTEMPTS" default:"50"`
	ScrollNoChange    int `envconfig:"SCROLL_NO_CHANGE" default:"5"`

	// Block handling
	BlockTime     time.Duration `envconfig:"BLOCK_TIME" default:"5m"`
	MinPageBytes  int           `envconfig:"MIN_PAGE_BYTES" default:"1000"`
	RespectRobots bool          `envconfig:"RESPECT_ROBOTS" default:"false"`

	// Memcache configuration
	MemcacheAddr string `envconfig:"MEMCACHE_ADDR"`

	// Redis configuration
	RedisAddr            string `envconfig:"REDIS_ADDR"`
	RedisDB              int    `envconfig:"REDIS_DB" default:"0"`
	RedisStream          string `envconfig:"REDIS_STREAM" default:"products"`
	RedisStreamCount     int    `envconfig:"REDIS_STREAM_COUNT" default:"1"`
	RedisStreamMaxLength int    `envconfig:"REDIS_STREAM_MAX_LENGTH" default:"10000"`

	// Database sinks
	PostgresDSN string `envconfig:"POSTGRES_DSN"`
	SQLitePath  string `envconfig:"SQLITE_PATH"`

	// Logging
	ErrorLogPath string `envconfig:"ERROR_LOG_PATH"`

	// Environment
	Environment string `envconfig:"SCRAPER_ENVIRONMENT" default:"development"`

	// SellerID is resolved from SellerURL by Validate
	SellerID string `ignored:"true"`
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.NewConfiguration("read environment", err)
	}
	return &cfg, nil
}

// sellerPatterns are tried in order; the first capture wins
var sellerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/seller/[^/?#]+-(\d+)`),
	regexp.MustCompile(`seller_(\d+)`),
	regexp.MustCompile(`/seller/(\d+)`),
}

// ResolveSellerID extracts the numeric seller identifier from a storefront URL
func ResolveSellerID(sellerURL string) (string, error) {
	for _, re := range sellerPatterns {
		if m := re.FindStringSubmatch(sellerURL); m != nil {
			return m[1], nil
		}
	}
	return "", errors.NewConfiguration(fmt.Sprintf("cannot resolve seller id from %q", sellerURL), nil)
}

// Validate checks the configuration and resolves the seller identifier.
// Every error it returns is a configuration error that must stop the run
// before anything is fetched.
func (c *Config) Validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Method = strings.ToLower(strings.TrimSpace(c.Method))

	switch c.Mode {
	case ModeLive, ModeFiles:
	default:
		return errors.NewConfiguration(fmt.Sprintf("MODE must be %q or %q, got %q", ModeLive, ModeFiles, c.Mode), nil)
	}
	switch c.Method {
	case MethodHTML, MethodAPI:
	default:
		return errors.NewConfiguration(fmt.Sprintf("METHOD must be %q or %q, got %q", MethodHTML, MethodAPI, c.Method), nil)
	}
	if _, err := extractor.ParseStrategy(c.Strategy); err != nil {
		return errors.NewConfiguration("STRATEGY", err)
	}

	if c.SellerURL != "" {
		id, err := ResolveSellerID(c.SellerURL)
		if err != nil {
			return err
		}
		c.SellerID = id
	}
	if c.Mode == ModeLive {
		if c.SellerURL == "" {
			return errors.NewConfiguration("SELLER_URL is required in live mode", nil)
		}
		if _, err := url.ParseRequestURI(c.SellerURL); err != nil {
			return errors.NewConfiguration("SELLER_URL is not a valid URL", err)
		}
		if c.Method == MethodAPI && len(trimmed(c.APIBases)) == 0 {
			return errors.NewConfiguration("API_BASES must list at least one endpoint in api method", nil)
		}
		if len(nonEmpty(c.Engines)) == 0 {
			return errors.NewConfiguration("ENGINES must list at least one engine", nil)
		}
		for _, engine := range nonEmpty(c.Engines) {
			if engine != fetch.EngineHTTP && engine != fetch.EngineChrome {
				return errors.NewConfiguration(fmt.Sprintf("unknown engine %q", engine), nil)
			}
		}
	}
	if c.Mode == ModeFiles && c.InputDir == "" {
		return errors.NewConfiguration("INPUT_DIR is required in files mode", nil)
	}

	for _, format := range nonEmpty(c.ExportFormats) {
		if !contains(export.Formats, format) {
			return errors.NewConfiguration(fmt.Sprintf("unknown export format %q", format), nil)
		}
		if format == export.FormatPostgres && c.PostgresDSN == "" {
			return errors.NewConfiguration("POSTGRES_DSN is required for the postgres format", nil)
		}
	}

	if c.MaxPages < 1 || c.MaxEmptyPages < 1 || c.GroupSize < 1 || c.Workers < 1 {
		return errors.NewConfiguration("MAX_PAGES, MAX_EMPTY_PAGES, GROUP_SIZE and WORKERS must be positive", nil)
	}
	if c.WindowRadius < 1 || c.PriceCap < 1 {
		return errors.NewConfiguration("WINDOW_RADIUS and PRICE_CAP must be positive", nil)
	}
	if c.MaxRetries < 0 || c.MinPageBytes < 0 {
		return errors.NewConfiguration("MAX_RETRIES and MIN_PAGE_BYTES must not be negative", nil)
	}
	if c.RequestDelayMax < c.RequestDelayMin {
		return errors.NewConfiguration("REQUEST_DELAY_MAX is below REQUEST_DELAY_MIN", nil)
	}
	return nil
}

// EngineNames returns the configured engines, lower-cased and without blanks
func (c *Config) EngineNames() []string {
	return nonEmpty(c.Engines)
}

// Formats returns the configured export formats
func (c *Config) Formats() []string {
	return nonEmpty(c.ExportFormats)
}

// OutputBaseName is the file name stem shared by every export
func (c *Config) OutputBaseName() string {
	if c.OutputName != "" {
		return c.OutputName
	}
	if c.SellerID != "" {
		return "seller_" + c.SellerID
	}
	return "products"
}

// PageURL returns the storefront URL of page n. Page 1 is the seller URL
// itself.
func (c *Config) PageURL(n int) string {
	return withPage(c.SellerURL, n)
}

// APIURLs returns page n through every configured API base
func (c *Config) APIURLs(n int) []string {
	path := withPage(strings.TrimPrefix(c.SellerURL, strings.TrimRight(c.BaseURL, "/")), n)
	var out []string
	for _, base := range trimmed(c.APIBases) {
		out = append(out, base+"?url="+url.QueryEscape(path)+"&__rr=1")
	}
	return out
}

// Target returns the fetch target of page n for the configured method
func (c *Config) Target(n int) fetch.Target {
	if c.Method == MethodAPI {
		return fetch.Target{Page: n, Endpoints: c.APIURLs(n), Kind: fetch.KindJSON}
	}
	return fetch.Target{Page: n, Endpoints: []string{c.PageURL(n)}, Kind: fetch.KindHTML}
}

func withPage(u string, n int) string {
	if n <= 1 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "page=" + strconv.Itoa(n)
}

// nonEmpty trims and lower-cases a list of names and drops blanks
func nonEmpty(values []string) []string {
	out := trimmed(values)
	for i, v := range out {
		out[i] = strings.ToLower(v)
	}
	return out
}

func trimmed(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
