// Package gate decides which merged records are complete enough to export.
package gate

import (
	"sort"

	"sjsage522/storefrontscraper/internal/product"
)

// SkipNote is the fixed reason carried by every skip log entry
const SkipNote = "skipped — missing fields"

// Required field names, in the order they are reported as missing
const (
	FieldPrice1 = "price1"
	FieldPrice2 = "price2"
	FieldName   = "name"
)

// Result is the outcome of one gate pass. Every input record lands in exactly
// one of the two lists.
type Result struct {
	Exported []product.ExportRecord
	Skipped  []product.SkipLogEntry
}

// Total returns the number of records the gate decided on
func (r Result) Total() int {
	return len(r.Exported) + len(r.Skipped)
}

// Evaluate routes each merged record to the export set or the skip list.
// Records are processed in ascending identifier order regardless of the input
// order, so the output is deterministic.
func Evaluate(records []product.MergedRecord) Result {
	ordered := append([]product.MergedRecord(nil), records...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return product.CompareIdentifiers(ordered[i].Identifier, ordered[j].Identifier) < 0
	})

	var result Result
	for _, rec := range ordered {
		exported, skipped, ok := Check(rec)
		if ok {
			result.Exported = append(result.Exported, exported)
		} else {
			result.Skipped = append(result.Skipped, skipped)
		}
	}
	return result
}

// Check applies the gate to one record. ok reports whether the record is
// exported; otherwise the skip entry explains what is missing.
func Check(rec product.MergedRecord) (product.ExportRecord, product.SkipLogEntry, bool) {
	sku := rec.SKU
	if sku == "" {
		sku = rec.Identifier
	}
	price1, price2 := rec.Price(0), rec.Price(1)

	var missing []string
	if price1 == "" {
		missing = append(missing, FieldPrice1)
	}
	if price2 == "" {
		missing = append(missing, FieldPrice2)
	}
	if rec.Name == "" {
		missing = append(missing, FieldName)
	}

	if len(missing) > 0 {
		return product.ExportRecord{}, product.SkipLogEntry{
			SKU:     sku,
			Missing: missing,
			Found: product.FoundFields{
				Price1: price1,
				Price2: price2,
				Name:   rec.Name,
				SKU:    sku,
			},
			Sources: append([]string(nil), rec.Sources...),
			Note:    SkipNote,
		}, false
	}

	return product.ExportRecord{
		SKU:     sku,
		Name:    rec.Name,
		Price1:  price1,
		Price2:  price2,
		Details: rec.Details,
	}, product.SkipLogEntry{}, true
}
