// Package merge accumulates partial records into one record per product.
package merge

import (
	"fmt"
	"sync"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"
)

// Merge folds incoming into existing, which may be nil for a product seen for
// the first time. Name, sku and every detail field keep their first non-empty
// value; prices append unseen values in arrival order and are then capped;
// sources grow as a set. existing is never modified.
func Merge(existing *product.MergedRecord, incoming product.PartialRecord, priceCap int) (product.MergedRecord, error) {
	if incoming.Identifier == "" {
		return product.MergedRecord{}, errors.NewMergeInput(incoming.Origin, "partial record has no identifier")
	}
	if priceCap <= 0 {
		priceCap = product.DefaultPriceCap
	}

	var out product.MergedRecord
	if existing == nil {
		out = product.MergedRecord{Identifier: incoming.Identifier}
	} else {
		if existing.Identifier != incoming.Identifier {
			return product.MergedRecord{}, errors.NewMergeInput(incoming.Origin,
				fmt.Sprintf("identifier %s merged into record %s", incoming.Identifier, existing.Identifier))
		}
		out = *existing
		out.Prices = append([]string(nil), existing.Prices...)
		out.Sources = append([]string(nil), existing.Sources...)
	}

	if out.Name == "" {
		out.Name = incoming.Name
	}
	if out.SKU == "" {
		out.SKU = incoming.SKU
	}
	for _, price := range incoming.Prices {
		out.Prices, _ = product.AppendUnique(out.Prices, price)
	}
	out.Prices = product.CapPrices(out.Prices, priceCap)
	out.Sources, _ = product.AppendUnique(out.Sources, incoming.Origin)
	out.Details.Fill(incoming.Details)

	return out, nil
}

// Store owns the identifier to record mapping of one run. Every update holds
// the store's lock, so pages may be merged from any goroutine.
type Store struct {
	mu       sync.Mutex
	records  map[string]product.MergedRecord
	priceCap int
}

// NewStore creates an empty store
func NewStore(priceCap int) *Store {
	if priceCap <= 0 {
		priceCap = product.DefaultPriceCap
	}
	return &Store{
		records:  make(map[string]product.MergedRecord),
		priceCap: priceCap,
	}
}

// Apply merges one partial record
func (s *Store) Apply(incoming product.PartialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(incoming)
}

// ApplyPage merges every record of one page under a single lock hold. A
// malformed record is reported and the rest of the page is still merged.
func (s *Store) ApplyPage(records map[string]product.PartialRecord) []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, rec := range records {
		if err := s.applyLocked(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (s *Store) applyLocked(incoming product.PartialRecord) error {
	var existing *product.MergedRecord
	if rec, ok := s.records[incoming.Identifier]; ok {
		existing = &rec
	}
	merged, err := Merge(existing, incoming, s.priceCap)
	if err != nil {
		return err
	}
	s.records[incoming.Identifier] = merged
	return nil
}

// Len returns the number of distinct products seen
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns a copy of one record
func (s *Store) Get(id string) (product.MergedRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Records returns a snapshot of every record in ascending identifier order
func (s *Store) Records() []product.MergedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	product.SortIdentifiers(ids)

	out := make([]product.MergedRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[id])
	}
	return out
}
