// Package extractor turns one raw page into product observations.
//
// Three strategies produce the same shape, a map from product identifier to
// partial record: Tree walks the parsed markup with goquery, Window scans the
// raw text with patterns and a bounded character window around every product
// link, and JSON walks a composer API response of unknown shape.
package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/logger"
	"sjsage522/storefrontscraper/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

// Strategy selects how markup pages are read
type Strategy string

const (
	// StrategyAuto uses the tree strategy for markup and falls back to the
	// window strategy when the markup cannot be parsed.
	StrategyAuto   Strategy = "auto"
	StrategyTree   Strategy = "tree"
	StrategyWindow Strategy = "window"
	StrategyJSON   Strategy = "json"
)

// ParseStrategy validates a configured strategy name
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyTree, StrategyWindow, StrategyJSON:
		return st, nil
	default:
		return "", fmt.Errorf("unknown extraction strategy %q", s)
	}
}

// DefaultWindowRadius is the number of characters scanned on each side of an
// identifier match by the window strategy.
const DefaultWindowRadius = 4000

// Options configures an Extractor
type Options struct {
	Strategy       Strategy
	WindowRadius   int
	PriceCap       int
	BaseURL        string
	ExcludeMarkers []string
}

func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = StrategyAuto
	}
	if o.WindowRadius <= 0 {
		o.WindowRadius = DefaultWindowRadius
	}
	if o.PriceCap <= 0 {
		o.PriceCap = product.DefaultPriceCap
	}
	if o.ExcludeMarkers == nil {
		o.ExcludeMarkers = DefaultExcludeMarkers
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	return o
}

// Result maps product identifiers to one page's observation of them
type Result map[string]product.PartialRecord

// Extractor is stateless across pages and safe for concurrent use
type Extractor struct {
	opts Options
	log  *logger.Logger
}

// New creates an extractor
func New(opts Options) *Extractor {
	opts = opts.withDefaults()
	return &Extractor{
		opts: opts,
		log:  logger.ForExtractor(string(opts.Strategy)),
	}
}

// Strategy returns the configured markup strategy
func (e *Extractor) Strategy() Strategy {
	return e.opts.Strategy
}

// Extract reads one page. JSON pages always go through the JSON strategy.
// An error means the page as a whole could not be read; the caller treats
// it as zero records.
func (e *Extractor) Extract(page product.RawPage) (Result, error) {
	var (
		items map[string]*product.PartialRecord
		err   error
	)

	switch {
	case page.IsJSON():
		items = e.extractJSON(page.JSON, page.Origin)
	case e.opts.Strategy == StrategyJSON:
		var v interface{}
		if v, err = DecodeJSONPage(page.Markup); err != nil {
			return nil, errors.NewExtraction(page.Origin, "page has no JSON payload", err)
		}
		items = e.extractJSON(v, page.Origin)
	case e.opts.Strategy == StrategyWindow:
		items = e.extractWindow(page.Markup, page.Origin)
	case e.opts.Strategy == StrategyTree:
		if items, err = e.extractTree(page.Markup, page.Origin); err != nil {
			return nil, err
		}
	default:
		if items, err = e.extractTree(page.Markup, page.Origin); err != nil {
			e.log.Warn().Err(err).Str("origin", page.Origin).Msg("Tree parse failed, using window strategy")
			items = e.extractWindow(page.Markup, page.Origin)
		}
	}

	return e.finalize(items, page.Origin), nil
}

// finalize caps price lists and stamps the origin
func (e *Extractor) finalize(items map[string]*product.PartialRecord, origin string) Result {
	result := make(Result, len(items))
	for id, rec := range items {
		rec.Origin = origin
		rec.Prices = product.CapPrices(rec.Prices, e.opts.PriceCap)
		result[id] = *rec
	}
	e.log.Debug().Str("origin", origin).Int("records", len(result)).Msg("Page extracted")
	return result
}

// collect folds rec into items, keeping the first value of every field
func collect(items map[string]*product.PartialRecord, rec product.PartialRecord) {
	if existing, ok := items[rec.Identifier]; ok {
		existing.Absorb(rec)
		return
	}
	items[rec.Identifier] = &rec
}

// absoluteURL qualifies a site-relative link with the base URL
func (e *Extractor) absoluteURL(link string) string {
	link = strings.TrimSpace(link)
	switch {
	case link == "":
		return ""
	case strings.HasPrefix(link, "http://"), strings.HasPrefix(link, "https://"):
		return link
	case strings.HasPrefix(link, "//"):
		return "https:" + link
	case strings.HasPrefix(link, "/"):
		return e.opts.BaseURL + link
	default:
		return e.opts.BaseURL + "/" + link
	}
}

// DecodeJSONPage decodes an API response that may arrive bare, wrapped in a
// browser's <pre> viewer, or embedded in other text.
func DecodeJSONPage(content string) (interface{}, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fmt.Errorf("empty content")
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		if v, err := decodeJSON(trimmed); err == nil {
			return v, nil
		}
	}

	if strings.Contains(trimmed, "<pre") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
		if err == nil {
			if pre := strings.TrimSpace(doc.Find("pre").First().Text()); pre != "" {
				if v, err := decodeJSON(pre); err == nil {
					return v, nil
				}
			}
		}
	}

	if obj := balancedObject(trimmed); obj != "" {
		return decodeJSON(obj)
	}
	return nil, fmt.Errorf("no JSON object found")
}

// decodeJSON keeps numbers as json.Number so large identifiers stay exact
func decodeJSON(s string) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// balancedObject returns the first brace-balanced object in s, honouring
// string literals and escapes.
func balancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
