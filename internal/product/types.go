// Package product holds the records that flow through a run: raw pages,
// per-page partial records, merged records and their export or skip outcome.
package product

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// DefaultPriceCap is the number of prices kept per product (current, original).
const DefaultPriceCap = 2

// RawPage is one fetched or loaded content unit. Exactly one of Markup and
// JSON is set.
type RawPage struct {
	Origin string
	Markup string
	JSON   interface{}
}

// IsJSON reports whether the page carries a decoded JSON value
func (p RawPage) IsJSON() bool {
	return p.JSON != nil
}

// Details are the optional enrichment fields. Only the JSON strategy fills
// most of them; markup strategies fill Link.
type Details struct {
	Link       string `json:"link,omitempty" xml:"link,omitempty"`
	Image      string `json:"image,omitempty" xml:"image,omitempty"`
	Rating     string `json:"rating,omitempty" xml:"rating,omitempty"`
	Reviews    string `json:"reviews,omitempty" xml:"reviews,omitempty"`
	Brand      string `json:"brand,omitempty" xml:"brand,omitempty"`
	Category   string `json:"category,omitempty" xml:"category,omitempty"`
	SellerName string `json:"seller_name,omitempty" xml:"seller_name,omitempty"`
	SellerINN  string `json:"seller_inn,omitempty" xml:"seller_inn,omitempty"`
}

// Fill copies every field of other into d where d is still empty.
func (d *Details) Fill(other Details) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&d.Link, other.Link)
	fill(&d.Image, other.Image)
	fill(&d.Rating, other.Rating)
	fill(&d.Reviews, other.Reviews)
	fill(&d.Brand, other.Brand)
	fill(&d.Category, other.Category)
	fill(&d.SellerName, other.SellerName)
	fill(&d.SellerINN, other.SellerINN)
}

// PartialRecord is one page's observation of a product
type PartialRecord struct {
	Identifier string
	Name       string
	SKU        string
	Prices     []string
	Origin     string
	Details    Details
}

// AddPrice appends price unless it is empty or already present. It reports
// whether the list changed.
func (p *PartialRecord) AddPrice(price string) bool {
	var added bool
	p.Prices, added = AppendUnique(p.Prices, price)
	return added
}

// Absorb folds another observation from the same page into p using the
// first-fill rules.
func (p *PartialRecord) Absorb(other PartialRecord) {
	if p.Name == "" {
		p.Name = other.Name
	}
	if p.SKU == "" {
		p.SKU = other.SKU
	}
	for _, price := range other.Prices {
		p.AddPrice(price)
	}
	p.Details.Fill(other.Details)
}

// MergedRecord is the accumulated view of a product across every page seen
// so far in a run.
type MergedRecord struct {
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	SKU        string   `json:"sku"`
	Prices     []string `json:"prices"`
	Sources    []string `json:"sources"`
	Details    Details  `json:"details"`
}

// Price returns the i-th price or an empty string
func (m MergedRecord) Price(i int) string {
	if i < len(m.Prices) {
		return m.Prices[i]
	}
	return ""
}

// ExportRecord is a merged record that passed the completeness gate. The
// JSON field order is the export schema order.
type ExportRecord struct {
	SKU    string `json:"sku"`
	Name   string `json:"name"`
	Price1 string `json:"price1"`
	Price2 string `json:"price2"`
	Details
}

// FoundFields is the snapshot of fields carried in a skip log entry
type FoundFields struct {
	Price1 string `json:"price1"`
	Price2 string `json:"price2"`
	Name   string `json:"name"`
	SKU    string `json:"sku"`
}

// SkipLogEntry records why a merged record was not exported
type SkipLogEntry struct {
	SKU     string      `json:"sku"`
	Missing []string    `json:"missing"`
	Found   FoundFields `json:"found"`
	Sources []string    `json:"sources"`
	Note    string      `json:"note"`
}

// AppendUnique appends v to list unless v is empty or already present.
func AppendUnique(list []string, v string) ([]string, bool) {
	if v == "" {
		return list, false
	}
	for _, existing := range list {
		if existing == v {
			return list, false
		}
	}
	return append(list, v), true
}

// CapPrices truncates prices to at most limit entries
func CapPrices(prices []string, limit int) []string {
	if limit >= 0 && len(prices) > limit {
		return prices[:limit]
	}
	return prices
}

// CompareIdentifiers orders identifiers numerically when both are decimal
// integers of any length; numeric identifiers sort before anything else,
// which falls back to plain string order.
func CompareIdentifiers(a, b string) int {
	na, aok := new(big.Int).SetString(a, 10)
	nb, bok := new(big.Int).SetString(b, 10)
	switch {
	case aok && bok:
		return na.Cmp(nb)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// SortIdentifiers sorts ids in place by CompareIdentifiers
func SortIdentifiers(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		return CompareIdentifiers(ids[i], ids[j]) < 0
	})
}

// String is used by log lines
func (p PartialRecord) String() string {
	return fmt.Sprintf("%s(%q, %d prices, %s)", p.Identifier, p.Name, len(p.Prices), p.Origin)
}
