package extractor

import (
	"strings"

	"sjsage522/storefrontscraper/helpers"
	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	// ancestorDepth is how many containers above an anchor are searched for prices
	ancestorDepth = 4
	// regionDepth bounds the climb from a marker to the shelf it labels
	regionDepth = 6
)

// elementHandler extracts one value from an element
type elementHandler func(*goquery.Selection) string

// applyHandlers returns the first non-empty handler result
func applyHandlers(s *goquery.Selection, handlers []elementHandler) string {
	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		if result := handler(s); result != "" {
			return result
		}
	}
	return ""
}

var anchorNameHandlers = []elementHandler{
	func(a *goquery.Selection) string { return helpers.Normalize(a.Text()) },
	func(a *goquery.Selection) string {
		alt, _ := a.Find("img[alt]").First().Attr("alt")
		return helpers.Normalize(alt)
	},
}

func (e *Extractor) extractTree(markup, origin string) (map[string]*product.PartialRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, errors.NewExtraction(origin, "markup parse failed", err)
	}

	e.removeExcludedRegions(doc)
	scripts := scriptTexts(doc)
	items := make(map[string]*product.PartialRecord)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		id := ProductID(href)
		if id == "" {
			return
		}

		rec := product.PartialRecord{
			Identifier: id,
			Name:       applyHandlers(a, anchorNameHandlers),
			SKU:        skuFromScripts(scripts, id),
			Details:    product.Details{Link: e.absoluteURL(href)},
		}
		container := a.Parent()
		for level := 0; level < ancestorDepth && container.Length() > 0; level++ {
			for _, price := range findPrices(spacedText(container)) {
				rec.AddPrice(price)
			}
			container = container.Parent()
		}
		collect(items, rec)
	})

	// Tiles that navigate through data attributes instead of anchors.
	// Walking backwards visits nested cards before the grids holding them.
	cards := doc.Find("div[class]")
	for i := cards.Length() - 1; i >= 0; i-- {
		card := cards.Eq(i)
		class, _ := card.Attr("class")
		if !cardClassPattern.MatchString(class) {
			continue
		}
		href := applyHandlers(card, cardLinkHandlers)
		id := ProductID(href)
		if id == "" {
			continue
		}
		if _, seen := items[id]; seen {
			continue
		}

		text := spacedText(card)
		items[id] = &product.PartialRecord{
			Identifier: id,
			Name:       helpers.Normalize(text),
			SKU:        skuFromScripts(scripts, id),
			Prices:     findPrices(text),
			Details:    product.Details{Link: e.absoluteURL(href)},
		}
	}

	return items, nil
}

var linkHandlers = []elementHandler{
	attrHandler("href"), attrHandler("data-href"), attrHandler("data-link"),
}

// cardLinkHandlers find a card's navigation target on the card itself or on
// its first navigating descendant.
var cardLinkHandlers = []elementHandler{
	attrHandler("data-href"),
	attrHandler("data-link"),
	func(card *goquery.Selection) string {
		return applyHandlers(card.Find("a[href], [data-href], [data-link]").First(), linkHandlers)
	},
}

func attrHandler(name string) elementHandler {
	return func(s *goquery.Selection) string {
		v, _ := s.Attr(name)
		return strings.TrimSpace(v)
	}
}

// removeExcludedRegions drops every recommended-items shelf. Starting at the
// marker text, it climbs toward the body and removes the product-holding
// siblings that follow the first level having any. Content before a marker
// is never touched.
func (e *Extractor) removeExcludedRegions(doc *goquery.Document) {
	if len(e.opts.ExcludeMarkers) == 0 {
		return
	}

	var shelves []*html.Node
	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "script", "style", "noscript":
			return
		}
		cur := markerText(s, e.opts.ExcludeMarkers)
		if cur == nil {
			return
		}

		for level := 0; level <= regionDepth; level++ {
			found := false
			for sib := cur.NextSibling; sib != nil; sib = sib.NextSibling {
				if sib.Type == html.ElementNode && hasProductLink(doc.FindNodes(sib)) {
					shelves = append(shelves, sib)
					found = true
				}
			}
			if found {
				return
			}
			parent := cur.Parent
			if parent == nil || parent.Data == "body" || parent.Data == "html" {
				return
			}
			cur = parent
		}
	})

	for _, shelf := range shelves {
		if shelf.Parent == nil {
			continue
		}
		e.log.Debug().Int("links", doc.FindNodes(shelf).Find("a[href]").Length()).Msg("Excluding recommended region")
		shelf.Parent.RemoveChild(shelf)
	}
}

// hasProductLink reports whether s is, or contains, an anchor to a product
func hasProductLink(s *goquery.Selection) bool {
	found := false
	s.Filter("a[href]").AddSelection(s.Find("a[href]")).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		found = ProductID(href) != ""
		return !found
	})
	return found
}

func containsAny(text string, markers []string) bool {
	if text == "" {
		return false
	}
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// markerText returns the first direct text child of s holding a marker
func markerText(s *goquery.Selection, markers []string) *html.Node {
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode && containsAny(helpers.Normalize(c.Data), markers) {
				return c
			}
		}
	}
	return nil
}

// spacedText joins every text node under s with single spaces, skipping
// script and style content.
func spacedText(s *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func scriptTexts(doc *goquery.Document) []string {
	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if text := s.Text(); strings.Contains(text, `"sku"`) {
			scripts = append(scripts, text)
		}
	})
	return scripts
}

// skuFromScripts returns the first embedded sku of a script mentioning id
func skuFromScripts(scripts []string, id string) string {
	for _, script := range scripts {
		if !strings.Contains(script, id) {
			continue
		}
		if sku := findSKU(script); sku != "" {
			return sku
		}
	}
	return ""
}
