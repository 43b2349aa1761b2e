package merge

import (
	"fmt"
	"sync"
	"testing"

	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeTwoPagesSameProduct(t *testing.T) {
	pageA := product.PartialRecord{Identifier: "123", Prices: []string{"100 ₽"}, Origin: "A"}
	pageB := product.PartialRecord{Identifier: "123", Name: "Widget", Prices: []string{"100 ₽", "120 ₽"}, Origin: "B"}

	first, err := Merge(nil, pageA, 2)
	require.NoError(t, err)
	merged, err := Merge(&first, pageB, 2)
	require.NoError(t, err)

	assert.Equal(t, "123", merged.Identifier)
	assert.Equal(t, "Widget", merged.Name)
	assert.Equal(t, "", merged.SKU)
	assert.Equal(t, []string{"100 ₽", "120 ₽"}, merged.Prices)
	assert.ElementsMatch(t, []string{"A", "B"}, merged.Sources)
}

func TestMergeIsIdempotent(t *testing.T) {
	in := product.PartialRecord{
		Identifier: "1",
		Name:       "Widget",
		SKU:        "77",
		Prices:     []string{"100 ₽", "120 ₽"},
		Origin:     "page 1",
		Details:    product.Details{Brand: "Acme"},
	}

	once, err := Merge(nil, in, 2)
	require.NoError(t, err)
	twice, err := Merge(&once, in, 2)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestMergeFirstFillWins(t *testing.T) {
	rec, err := Merge(nil, product.PartialRecord{Identifier: "1", Name: "First", SKU: "10", Origin: "a"}, 2)
	require.NoError(t, err)
	rec, err = Merge(&rec, product.PartialRecord{Identifier: "1", Name: "Second", SKU: "20", Origin: "b"}, 2)
	require.NoError(t, err)

	assert.Equal(t, "First", rec.Name)
	assert.Equal(t, "10", rec.SKU)
}

func TestMergeDoesNotModifyExisting(t *testing.T) {
	existing, err := Merge(nil, product.PartialRecord{Identifier: "1", Prices: []string{"1 ₽"}, Origin: "a"}, 2)
	require.NoError(t, err)

	_, err = Merge(&existing, product.PartialRecord{Identifier: "1", Prices: []string{"2 ₽"}, Origin: "b"}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"1 ₽"}, existing.Prices)
	assert.Equal(t, []string{"a"}, existing.Sources)
}

func TestMergeOrderIndependence(t *testing.T) {
	inputs := []product.PartialRecord{
		{Identifier: "9", Prices: []string{"100 ₽"}, Origin: "p1"},
		{Identifier: "9", Name: "Widget", Prices: []string{"120 ₽"}, Origin: "p2"},
		{Identifier: "9", SKU: "555", Origin: "p3"},
		{Identifier: "9", Name: "Widget", SKU: "555", Origin: "p2"},
	}

	var results []product.MergedRecord
	for _, perm := range permutations(len(inputs)) {
		var acc *product.MergedRecord
		for _, i := range perm {
			rec, err := Merge(acc, inputs[i], 2)
			require.NoError(t, err)
			acc = &rec
		}
		results = append(results, *acc)
	}

	want := results[0]
	for _, got := range results[1:] {
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.SKU, got.SKU)
		assert.ElementsMatch(t, want.Sources, got.Sources)
		assert.ElementsMatch(t, want.Prices, got.Prices)
	}
}

func TestMergeCapInvariant(t *testing.T) {
	var acc *product.MergedRecord
	for i := 0; i < 10; i++ {
		rec, err := Merge(acc, product.PartialRecord{
			Identifier: "5",
			Prices:     []string{fmt.Sprintf("%d ₽", i), fmt.Sprintf("%d ₽", i+100), fmt.Sprintf("%d ₽", i+200)},
			Origin:     fmt.Sprintf("page %d", i),
		}, 2)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(rec.Prices), 2)
		acc = &rec
	}
	assert.Equal(t, []string{"0 ₽", "100 ₽"}, acc.Prices)
	assert.Len(t, acc.Sources, 10)
}

func TestMergeRejectsMalformedInput(t *testing.T) {
	_, err := Merge(nil, product.PartialRecord{Origin: "page 1"}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeMergeInput))

	existing := product.MergedRecord{Identifier: "1"}
	_, err = Merge(&existing, product.PartialRecord{Identifier: "2", Origin: "page 1"}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeMergeInput))
}

func TestStoreConcurrentPages(t *testing.T) {
	store := NewStore(2)

	var wg sync.WaitGroup
	for page := 0; page < 20; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			errs := store.ApplyPage(map[string]product.PartialRecord{
				"1": {Identifier: "1", Name: "Shared", Prices: []string{"100 ₽"}, Origin: fmt.Sprintf("page %d", page)},
				fmt.Sprint(page + 10): {Identifier: fmt.Sprint(page + 10), Origin: fmt.Sprintf("page %d", page)},
			})
			assert.Empty(t, errs)
		}(page)
	}
	wg.Wait()

	assert.Equal(t, 21, store.Len())
	shared, ok := store.Get("1")
	require.True(t, ok)
	assert.Equal(t, "Shared", shared.Name)
	assert.Equal(t, []string{"100 ₽"}, shared.Prices)
	assert.Len(t, shared.Sources, 20)
}

func TestStoreRecordsSortedNumerically(t *testing.T) {
	store := NewStore(0)
	for _, id := range []string{"1000", "20", "3"} {
		require.NoError(t, store.Apply(product.PartialRecord{Identifier: id, Origin: "p"}))
	}

	var ids []string
	for _, rec := range store.Records() {
		ids = append(ids, rec.Identifier)
	}
	assert.Equal(t, []string{"3", "20", "1000"}, ids)
}

func TestStoreApplyPageReportsBadRecords(t *testing.T) {
	store := NewStore(2)
	errs := store.ApplyPage(map[string]product.PartialRecord{
		"1": {Identifier: "1", Origin: "p"},
		"x": {Identifier: "", Origin: "p"},
	})
	assert.Len(t, errs, 1)
	assert.Equal(t, 1, store.Len())
}

// permutations returns every ordering of 0..n-1
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			perm := append(append(append([]int{}, p[:i]...), n-1), p[i:]...)
			out = append(out, perm)
		}
	}
	return out
}
