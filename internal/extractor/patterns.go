package extractor

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"sjsage522/storefrontscraper/helpers"
	"sjsage522/storefrontscraper/internal/product"
)

var (
	// productIDPattern captures the numeric tail of a product link. The first
	// non-empty group wins.
	productIDPattern = regexp.MustCompile(`(?i)/product/[^"'>]*-(\d+)|ozon\.ru/product/[^"'>]*-(\d+)`)

	// pricePattern matches an amount whose thousands may be grouped by a plain,
	// thin or no-break space, followed by the rouble sign.
	pricePattern = regexp.MustCompile(`\d+(?:[ \x{00A0}\x{2009}\x{202F}]\d{3})*(?:[.,]\d+)?[ \x{00A0}\x{2009}\x{202F}]?₽`)

	skuPattern = regexp.MustCompile(`"sku"\s*:\s*(\d+)`)

	cardClassPattern = regexp.MustCompile(`(?i)card|tile|product`)

	// windowNamePatterns are tried in order inside an identifier's window
	windowNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`alt="([^"]{5,300}?)(?:"|>)`),
		regexp.MustCompile(`title="([^"]{5,300}?)(?:"|>)`),
		regexp.MustCompile(`aria-label="([^"]{5,300}?)(?:"|>)`),
		regexp.MustCompile(`>([^<]{10,400}?)<`),
	}
)

// DefaultExcludeMarkers label the "recommended items" shelves that reuse the
// listing markup.
var DefaultExcludeMarkers = []string{
	"Рекомендуем также",
	"Похожие товары",
	"Вам может понравиться",
}

// EmptyListingMarker is shown by the storefront when a page has no products
const EmptyListingMarker = "ничего не нашлось"

// IsEmptyListing reports whether markup is the storefront's "nothing found" page
func IsEmptyListing(markup string) bool {
	return strings.Contains(strings.ToLower(markup), EmptyListingMarker)
}

// ProductID extracts the product identifier from a link, or "" when the link
// is not a product link.
func ProductID(href string) string {
	m := productIDPattern.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// matchedID returns the first non-empty capture group of a submatch index
func matchedID(text string, loc []int) string {
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] >= 0 && loc[i+1] > loc[i] {
			return text[loc[i]:loc[i+1]]
		}
	}
	return ""
}

// findPrices returns the normalized, de-duplicated prices found in text
func findPrices(text string) []string {
	var prices []string
	for _, raw := range pricePattern.FindAllString(text, -1) {
		prices, _ = product.AppendUnique(prices, helpers.Normalize(raw))
	}
	return prices
}

func findSKU(text string) string {
	if m := skuPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// span is a half-open byte range
type span struct{ start, end int }

// markerSpans returns the byte ranges covered by every marker occurrence and
// the reach runes that follow it, merged and sorted.
func markerSpans(text string, markers []string, reach int) []span {
	var spans []span
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		offset := 0
		for {
			i := strings.Index(text[offset:], marker)
			if i < 0 {
				break
			}
			start := offset + i
			end := runesForward(text, start+len(marker), reach)
			spans = append(spans, span{start, end})
			offset = start + len(marker)
		}
	}
	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// excise removes the given spans from text
func excise(text string, spans []span) string {
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, s := range spans {
		b.WriteString(text[prev:s.start])
		prev = s.end
	}
	b.WriteString(text[prev:])
	return b.String()
}

// runesBack returns the byte offset n runes before i
func runesBack(text string, i, n int) int {
	for ; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(text[:i])
		i -= size
	}
	return i
}

// runesForward returns the byte offset n runes after i
func runesForward(text string, i, n int) int {
	for ; n > 0 && i < len(text); n-- {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return i
}
