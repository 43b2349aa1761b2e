package extractor

import (
	"strings"

	"sjsage522/storefrontscraper/helpers"
	"sjsage522/storefrontscraper/internal/product"
)

// extractWindow scans raw text without parsing it. Recommended shelves are
// cut out first: each marker and the window radius of text after it.
func (e *Extractor) extractWindow(text, origin string) map[string]*product.PartialRecord {
	if spans := markerSpans(text, e.opts.ExcludeMarkers, e.opts.WindowRadius); len(spans) > 0 {
		e.log.Debug().Str("origin", origin).Int("regions", len(spans)).Msg("Excising recommended regions")
		text = excise(text, spans)
	}

	items := make(map[string]*product.PartialRecord)
	for _, loc := range productIDPattern.FindAllStringSubmatchIndex(text, -1) {
		id := matchedID(text, loc)
		if id == "" {
			continue
		}

		from := runesBack(text, loc[0], e.opts.WindowRadius)
		to := runesForward(text, loc[1], e.opts.WindowRadius)
		window := text[from:to]

		collect(items, product.PartialRecord{
			Identifier: id,
			Name:       windowName(window),
			SKU:        findSKU(window),
			Prices:     product.CapPrices(findPrices(window), e.opts.PriceCap),
			Details:    product.Details{Link: e.matchedLink(text, loc)},
		})
	}
	return items
}

// windowName tries each name pattern in priority order and returns the first
// match that is not blank after normalization.
func windowName(window string) string {
	for _, pattern := range windowNamePatterns {
		for _, m := range pattern.FindAllStringSubmatch(window, -1) {
			if name := helpers.Normalize(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

// matchedLink rebuilds an absolute product link from an identifier match
func (e *Extractor) matchedLink(text string, loc []int) string {
	matched := text[loc[0]:loc[1]]
	if strings.HasPrefix(matched, "/") {
		return e.absoluteURL(matched)
	}
	if loc[0] >= 4 && strings.EqualFold(text[loc[0]-4:loc[0]], "www.") {
		return "https://www." + matched
	}
	return "https://" + matched
}
