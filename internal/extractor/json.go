package extractor

import (
	"fmt"
	"sort"
	"strings"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"
)

// widgetTokens select the widget states that carry product tiles
var widgetTokens = []string{"searchresult", "seller", "product", "tile"}

// maxWidgetDepth bounds the search for widgets inside a response
const maxWidgetDepth = 8

var (
	identifierChain = chain{at("sku", scalar), at("id", scalar)}
	skuChain        = chain{at("sku", scalar)}
	nameChain       = chain{at("name", scalar), at("title", scalar)}
	linkChain       = chain{at("link", scalar), at("url", scalar)}
	imageChain      = chain{at("image", srcOrScalar), at("coverImage", srcOrScalar), at("img", srcOrScalar)}
	ratingChain     = chain{at("rating", scalar)}
	reviewsChain    = chain{at("reviewsCount", scalar), at("reviews", scalar)}
	brandChain      = chain{at("brand", nameOrScalar)}
	categoryChain   = chain{at("category", nameOrScalar)}
	sellerNameChain = chain{at("seller.name", scalar), at("sellerName", scalar)}
	sellerINNChain  = chain{at("seller.inn", scalar)}

	// fallbackPriceChain is used when no price shape matched
	fallbackPriceChain = chain{at("finalPrice", price), at("displayPrice", price)}
)

// priceShape reads current and original price from an item; ok is false when
// the shape does not apply.
type priceShape struct {
	name string
	read func(item map[string]interface{}) (current, original string, ok bool)
}

var priceShapes = []priceShape{
	{
		name: "nested-array",
		read: func(item map[string]interface{}) (string, string, bool) {
			if _, ok := dig(item, "price", "price", "0"); !ok {
				return "", "", false
			}
			current := chain{at("price.price.0.text", scalar)}.resolve(item)
			original := chain{at("price.price.1.text", scalar)}.resolve(item)
			return current, original, current != ""
		},
	},
	{
		name: "flat-object",
		read: func(item map[string]interface{}) (string, string, bool) {
			obj, ok := item["price"].(map[string]interface{})
			if !ok {
				return "", "", false
			}
			current := chain{
				at("text", price), at("current", price), at("finalPrice", price), at("displayPrice", price),
			}.resolve(obj)
			original := chain{
				at("originalPrice", price), at("original", price), at("ozonCardPrice", price),
			}.resolve(obj)
			return current, original, current != ""
		},
	},
	{
		name: "scalar",
		read: func(item map[string]interface{}) (string, string, bool) {
			current, ok := price(item["price"])
			return current, "", ok && current != ""
		},
	},
}

// itemPrices applies the price shapes in order, then the top-level fallback
func itemPrices(item map[string]interface{}) (current, original string) {
	for _, shape := range priceShapes {
		if c, o, ok := shape.read(item); ok {
			return c, o
		}
	}
	return fallbackPriceChain.resolve(item), ""
}

func (e *Extractor) extractJSON(root interface{}, origin string) map[string]*product.PartialRecord {
	items := make(map[string]*product.PartialRecord)

	found := false
	for _, widget := range findWidgets(root, 0, nil) {
		if e.extractItems(widget, origin, items) {
			found = true
		}
	}
	if !found {
		// A bare {"items": [...]} document is its own widget, even when its
		// items nest seller or product objects.
		e.extractItems(root, origin, items)
	}
	return items
}

// extractItems collects the widget's item array into items and reports
// whether the widget had one.
func (e *Extractor) extractItems(widget interface{}, origin string, items map[string]*product.PartialRecord) bool {
	list := firstArray(widget, "items", "products", "state.items")
	for i, raw := range list {
		rec, err := e.extractItem(raw, origin)
		if err != nil {
			e.log.Warn().Err(err).Str("origin", origin).Int("item", i).Msg("Skipping item")
			continue
		}
		collect(items, rec)
	}
	return len(list) > 0
}

// extractItem reads one item. A malformed item is reported, never fatal.
func (e *Extractor) extractItem(raw interface{}, origin string) (rec product.PartialRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewExtraction(origin, fmt.Sprintf("item panicked: %v", r), nil)
		}
	}()

	item, ok := raw.(map[string]interface{})
	if !ok {
		return rec, errors.NewExtraction(origin, fmt.Sprintf("item is %T, not an object", raw), nil)
	}

	rec.Identifier = identifierChain.resolve(item)
	if rec.Identifier == "" {
		return rec, errors.NewExtraction(origin, "item has no sku or id", nil)
	}

	rec.Name = nameChain.resolve(item)
	rec.SKU = skuChain.resolve(item)

	current, original := itemPrices(item)
	rec.AddPrice(current)
	rec.AddPrice(original)

	rec.Details = product.Details{
		Link:       e.absoluteURL(linkChain.resolve(item)),
		Image:      imageChain.resolve(item),
		Rating:     ratingChain.resolve(item),
		Reviews:    reviewsChain.resolve(item),
		Brand:      brandChain.resolve(item),
		Category:   categoryChain.resolve(item),
		SellerName: sellerNameChain.resolve(item),
		SellerINN:  sellerINNChain.resolve(item),
	}
	return rec, nil
}

// findWidgets collects objects stored under keys that name a product widget.
// Widget states are often JSON encoded strings and are decoded on the way.
// Keys are visited in sorted order so results are deterministic.
func findWidgets(v interface{}, depth int, out []interface{}) []interface{} {
	if depth > maxWidgetDepth {
		return out
	}

	switch node := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			child := node[k]
			if s, ok := child.(string); ok {
				trimmed := strings.TrimSpace(s)
				if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
					continue
				}
				decoded, err := decodeJSON(trimmed)
				if err != nil {
					continue
				}
				child = decoded
			}
			if obj, ok := child.(map[string]interface{}); ok && isWidgetKey(k) {
				out = append(out, obj)
				continue
			}
			out = findWidgets(child, depth+1, out)
		}
	case []interface{}:
		for _, child := range node {
			out = findWidgets(child, depth+1, out)
		}
	}
	return out
}

func isWidgetKey(key string) bool {
	lower := strings.ToLower(key)
	for _, token := range widgetTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
