package extractor

import (
	"strings"
	"testing"

	"sjsage522/storefrontscraper/internal/product"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWindowExtractor(radius int) *Extractor {
	return New(Options{Strategy: StrategyWindow, WindowRadius: radius, BaseURL: "https://www.ozon.ru"})
}

func TestWindowStrategyFindsFieldsNearMatch(t *testing.T) {
	markup := `<div><img alt="Чайник электрический" src="a.jpg"><a href="/product/chaynik-123/">x</a> <span>1299 ₽</span> "sku": 555</div>`

	result, err := newWindowExtractor(80).Extract(product.RawPage{Origin: "page_1.html", Markup: markup})
	require.NoError(t, err)
	require.Contains(t, result, "123")

	rec := result["123"]
	assert.Equal(t, "Чайник электрический", rec.Name)
	assert.Equal(t, "555", rec.SKU)
	assert.Equal(t, []string{"1299 ₽"}, rec.Prices)
	assert.Equal(t, "page_1.html", rec.Origin)
	assert.Equal(t, "https://www.ozon.ru/product/chaynik-123", rec.Details.Link)
}

func TestWindowStrategyNamePriority(t *testing.T) {
	// title beats the generic text node even though the text comes first
	window := `<span>Generic text node name</span><a title="Title attribute name" aria-label="Aria name">`
	assert.Equal(t, "Title attribute name", windowName(window))

	window = `<span>Generic text node name</span>`
	assert.Equal(t, "Generic text node name", windowName(window))

	// whitespace-only text nodes are skipped
	window = `<div>            </div><p>Second text node name</p>`
	assert.Equal(t, "Second text node name", windowName(window))

	assert.Equal(t, "", windowName(`<b>short</b>`))
}

func TestWindowStrategyCapsPrices(t *testing.T) {
	markup := `<a href="/product/widget-7/">Widget</a> 100 ₽ 120 ₽ 140 ₽ 100 ₽`

	result, err := newWindowExtractor(200).Extract(product.RawPage{Origin: "p", Markup: markup})
	require.NoError(t, err)
	assert.Equal(t, []string{"100 ₽", "120 ₽"}, result["7"].Prices)
}

func TestWindowStrategyExcludesRecommendedRegion(t *testing.T) {
	markup := `<a href="/product/widget-123/">Widget</a> 100 ₽` +
		strings.Repeat(" ", 100) +
		`<h2>Рекомендуем также</h2><a href="/product/other-999/">Other</a> 50 ₽`

	result, err := newWindowExtractor(60).Extract(product.RawPage{Origin: "p", Markup: markup})
	require.NoError(t, err)

	assert.Contains(t, result, "123")
	assert.NotContains(t, result, "999")
	assert.Equal(t, []string{"100 ₽"}, result["123"].Prices)
}

func TestWindowStrategyToleratesBrokenMarkup(t *testing.T) {
	markup := `<div <a href="/product/half-42/ <span>300 ₽</sp`

	result, err := newWindowExtractor(100).Extract(product.RawPage{Origin: "p", Markup: markup})
	require.NoError(t, err)
	require.Contains(t, result, "42")
	assert.Equal(t, []string{"300 ₽"}, result["42"].Prices)
}

func TestWindowStrategyAbsoluteHostLink(t *testing.T) {
	markup := `<a href="https://www.ozon.ru/product/lamp-456/">Lamp</a>`

	result, err := newWindowExtractor(100).Extract(product.RawPage{Origin: "p", Markup: markup})
	require.NoError(t, err)
	assert.Equal(t, "https://www.ozon.ru/product/lamp-456", result["456"].Details.Link)
}

func TestRuneWindowBoundaries(t *testing.T) {
	text := "ааааXбббб"
	x := strings.Index(text, "X")

	assert.Equal(t, "ааX", text[runesBack(text, x, 2):x+1])
	assert.Equal(t, "Xбб", text[x:runesForward(text, x+1, 2)])
	assert.Equal(t, 0, runesBack(text, x, 100))
	assert.Equal(t, len(text), runesForward(text, x, 100))
}

func TestMarkerSpansMerge(t *testing.T) {
	text := "abcMARKdefMARKghi"
	spans := markerSpans(text, []string{"MARK"}, 2)
	require.Len(t, spans, 2)
	assert.Equal(t, "abcfi", excise(text, spans))

	spans = markerSpans(text, []string{"MARK"}, 4)
	require.Len(t, spans, 1, "overlapping regions merge")
	assert.Equal(t, "abc", excise(text, spans))
}

func TestMarkerSpansReachCountsRunes(t *testing.T) {
	marker := "Рекомендуем также"
	text := "до" + marker + "абвгд" + "X"

	spans := markerSpans(text, []string{marker}, 5)
	require.Len(t, spans, 1)
	assert.Equal(t, "доX", excise(text, spans), "reach covers five Cyrillic runes")

	spans = markerSpans(text, []string{marker}, 2)
	assert.Equal(t, "довгдX", excise(text, spans))
}

func TestFindPricesSeparators(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"plain space thousands", "1 299 ₽ 1 599 ₽", []string{"1 299 ₽", "1 599 ₽"}},
		{"thin space", "1\u2009299\u2009₽", []string{"1 299 ₽"}},
		{"narrow no-break space", "2\u202f000 ₽", []string{"2 000 ₽"}},
		{"no-break space", "1\u00a0499\u00a0₽", []string{"1 499 ₽"}},
		{"ungrouped", "1299 ₽", []string{"1299 ₽"}},
		{"short amounts", "100 ₽ 120 ₽", []string{"100 ₽", "120 ₽"}},
		{"no sign gap", "350₽", []string{"350₽"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findPrices(tt.text))
		})
	}
}
