package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sjsage522/storefrontscraper/helpers"
	"sjsage522/storefrontscraper/internal/export"
	"sjsage522/storefrontscraper/internal/extractor"
	"sjsage522/storefrontscraper/internal/fetch"
	"sjsage522/storefrontscraper/internal/gate"
	"sjsage522/storefrontscraper/internal/merge"
	"sjsage522/storefrontscraper/internal/product"
	"sjsage522/storefrontscraper/logger"
	"sjsage522/storefrontscraper/pkg/errors"
	"sjsage522/storefrontscraper/services/publisher"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Run modes
const (
	ModeLive  = "live"
	ModeFiles = "files"
)

// Options configures one run
type Options struct {
	Mode          string
	InputDir      string
	OutputDir     string
	BaseName      string
	SkipLogPath   string
	MaxPages      int
	MaxEmptyPages int
	GroupSize     int
	Workers       int
	PriceCap      int
	Environment   string
	// Target builds the fetch target of a page number
	Target func(page int) fetch.Target
}

// Summary is what a run reports when it finishes
type Summary struct {
	RunID        string
	Pages        int
	Products     int
	Exported     int
	Skipped      int
	SkipLog      string
	Destinations []string
	Duplicates   []export.Duplicate
	Elapsed      time.Duration
}

// Worker drives one scrape: collect pages, merge, gate, export, publish
type Worker struct {
	opts      Options
	fetcher   fetch.PageFetcher
	extractor *extractor.Extractor
	writers   []export.Writer
	publisher publisher.Publisher
	logger    helpers.LoggerInterface
}

// NewWorker creates a new worker. fetcher may be nil in files mode and pub
// may be nil when nothing is published.
func NewWorker(
	opts Options,
	fetcher fetch.PageFetcher,
	ext *extractor.Extractor,
	writers []export.Writer,
	pub publisher.Publisher,
	logger helpers.LoggerInterface,
) *Worker {
	if opts.GroupSize < 1 {
		opts.GroupSize = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxEmptyPages < 1 {
		opts.MaxEmptyPages = 1
	}
	return &Worker{
		opts:      opts,
		fetcher:   fetcher,
		extractor: ext,
		writers:   writers,
		publisher: pub,
		logger:    logger,
	}
}

// pageResult is one page's extraction output on its way to the merge funnel
type pageResult struct {
	origin  string
	records extractor.Result
}

// Run executes the whole pipeline. Collection stops early on ctx
// cancellation, but whatever was merged by then is still gated and exported.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: uuid.NewString(), SkipLog: w.opts.SkipLogPath}
	log := logger.ForWorker().WithRun(summary.RunID)

	log.Info().
		Str("mode", w.opts.Mode).
		Str("strategy", string(w.extractor.Strategy())).
		Int("max_pages", w.opts.MaxPages).
		Msg("Starting run")

	store := merge.NewStore(w.opts.PriceCap)
	results := make(chan pageResult)
	funnelDone := make(chan struct{})
	go func() {
		defer close(funnelDone)
		for res := range results {
			w.mergePage(store, res)
		}
	}()

	var err error
	switch w.opts.Mode {
	case ModeFiles:
		summary.Pages, err = w.collectFiles(ctx, results)
	default:
		summary.Pages, err = w.collectLive(ctx, results)
	}
	close(results)
	<-funnelDone
	if err != nil {
		return summary, err
	}

	// Export runs even after an interrupt so collected pages are not lost.
	exportCtx := context.WithoutCancel(ctx)

	records := store.Records()
	summary.Products = len(records)
	outcome := gate.Evaluate(records)
	summary.Exported = len(outcome.Exported)
	summary.Skipped = len(outcome.Skipped)

	if err := gate.WriteSkipLog(w.opts.SkipLogPath, outcome.Skipped); err != nil {
		w.logger.LogError("SkipLog", err)
	}

	summary.Duplicates = export.CountDuplicates(outcome.Exported)
	for _, dup := range summary.Duplicates {
		log.Warn().Str("sku", dup.SKU).Int("count", dup.Count).Msg("Duplicate sku in export set")
	}

	for _, writer := range w.writers {
		dest := writer.Destination(w.opts.OutputDir, w.opts.BaseName)
		if err := writer.Write(exportCtx, outcome.Exported, dest); err != nil {
			w.logger.LogError("Export:"+writer.Format(), err)
			continue
		}
		summary.Destinations = append(summary.Destinations, dest)
		logger.ForExporter(writer.Format()).Info().Str("dest", dest).Int("records", len(outcome.Exported)).Msg("Export written")
	}

	w.publish(exportCtx, outcome.Exported)
	w.logSample(outcome.Exported)

	summary.Elapsed = time.Since(start)
	log.Info().
		Int("pages", summary.Pages).
		Int("products", summary.Products).
		Int("exported", summary.Exported).
		Int("skipped", summary.Skipped).
		Str("skip_log", summary.SkipLog).
		Strs("destinations", summary.Destinations).
		Dur("elapsed", summary.Elapsed).
		Msg("Run finished")

	return summary, nil
}

// collectLive fetches pages in groups. Pages inside a group run
// concurrently; the stop rules are evaluated in page order once the group is
// done. It returns the number of pages attempted.
func (w *Worker) collectLive(ctx context.Context, results chan<- pageResult) (int, error) {
	if w.fetcher == nil || w.opts.Target == nil {
		return 0, errors.NewConfiguration("live mode needs a fetcher and a target builder", nil)
	}
	log := logger.ForWorker()

	// Fetches already started are allowed to finish after an interrupt.
	fetchCtx := context.WithoutCancel(ctx)

	attempted := 0
	emptyStreak := 0
	for first := 1; first <= w.opts.MaxPages; first += w.opts.GroupSize {
		if ctx.Err() != nil {
			log.Info().Int("next_page", first).Msg("Interrupted, not launching more pages")
			break
		}
		last := min(first+w.opts.GroupSize-1, w.opts.MaxPages)

		counts := make([]int, last-first+1)
		launched := make([]bool, len(counts))
		var g errgroup.Group
		g.SetLimit(w.opts.Workers)
		for page := first; page <= last; page++ {
			if ctx.Err() != nil {
				break
			}
			page := page
			i := page - first
			launched[i] = true
			g.Go(func() error {
				counts[i] = w.processPage(fetchCtx, page, results)
				return nil
			})
		}
		g.Wait()

		stop := false
		groupEmpty := true
		for i, n := range counts {
			if !launched[i] {
				continue
			}
			attempted++
			if stop {
				continue
			}
			if n > 0 {
				emptyStreak = 0
				groupEmpty = false
				continue
			}
			emptyStreak++
			if emptyStreak >= w.opts.MaxEmptyPages {
				log.Info().Int("page", first+i).Int("empty_streak", emptyStreak).Msg("Too many empty pages in a row")
				stop = true
			}
		}
		if stop {
			break
		}
		if groupEmpty {
			log.Info().Int("first", first).Int("last", last).Msg("Whole page group empty")
			break
		}
	}
	return attempted, nil
}

// processPage fetches and extracts one page and hands the records to the
// merge funnel. Every failure is logged and becomes zero records.
func (w *Worker) processPage(ctx context.Context, page int, results chan<- pageResult) int {
	target := w.opts.Target(page)
	origin := fmt.Sprintf("page_%d", page)

	content, ok := w.fetcher.Fetch(ctx, target)
	if !ok {
		w.logger.LogError("Fetch", errors.NewFetch(origin, "no content", nil))
		return 0
	}
	if extractor.IsEmptyListing(content) {
		w.logger.LogInfo("%s: listing is empty", origin)
		return 0
	}

	return w.extractAndSend(origin, content, target.Kind == fetch.KindJSON, results)
}

// collectFiles extracts every capture in InputDir in name order
func (w *Worker) collectFiles(ctx context.Context, results chan<- pageResult) (int, error) {
	files, err := inputFiles(w.opts.InputDir)
	if err != nil {
		return 0, errors.NewConfiguration("read INPUT_DIR", err)
	}
	if len(files) == 0 {
		logger.ForWorker().Warn().Str("dir", w.opts.InputDir).Msg("No input files found")
	}

	processed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		data, err := os.ReadFile(path)
		if err != nil {
			w.logger.LogError("Files", err)
			continue
		}
		processed++
		origin := filepath.Base(path)
		w.extractAndSend(origin, string(data), strings.EqualFold(filepath.Ext(path), ".json"), results)
	}
	return processed, nil
}

func (w *Worker) extractAndSend(origin, content string, isJSON bool, results chan<- pageResult) int {
	page, err := rawPage(origin, content, isJSON)
	if err != nil {
		w.logger.LogError("Extract", err)
		return 0
	}

	records, err := w.extractor.Extract(page)
	if err != nil {
		w.logger.LogError("Extract", errors.NewExtraction(origin, "page extraction failed", err))
		return 0
	}
	if len(records) == 0 {
		return 0
	}

	results <- pageResult{origin: origin, records: records}
	return len(records)
}

func (w *Worker) mergePage(store *merge.Store, res pageResult) {
	for _, err := range store.ApplyPage(res.records) {
		w.logger.LogError("Merge", err)
	}
	logger.ForWorker().Debug().Str("origin", res.origin).Int("records", len(res.records)).Int("products", store.Len()).Msg("Page merged")
}

func (w *Worker) publish(ctx context.Context, records []product.ExportRecord) {
	if w.publisher == nil || len(records) == 0 {
		return
	}
	n, err := publisher.PublishRecords(ctx, w.publisher, records)
	if err != nil {
		w.logger.LogError("Publisher", err)
	}
	logger.ForPublisher().Info().Int("published", n).Int("records", len(records)).Msg("Records published")

	// Trim all streams after publishing
	if err := w.publisher.TrimStreams(ctx); err != nil {
		w.logger.LogError("StreamTrimming", err)
	}
}

// logSample logs the first exported record outside production
func (w *Worker) logSample(records []product.ExportRecord) {
	if w.opts.Environment == "production" || len(records) == 0 {
		return
	}
	data, err := json.Marshal(records[0])
	if err != nil {
		w.logger.LogError("Sample", err)
		return
	}
	w.logger.LogInfo("First exported record: %s", string(data))
}

func rawPage(origin, content string, isJSON bool) (product.RawPage, error) {
	if !isJSON {
		return product.RawPage{Origin: origin, Markup: content}, nil
	}
	v, err := extractor.DecodeJSONPage(content)
	if err != nil {
		return product.RawPage{}, errors.NewExtraction(origin, "decode json page", err)
	}
	return product.RawPage{Origin: origin, JSON: v}, nil
}

// inputFiles lists the html, htm and json files of dir in name order
func inputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".html", ".htm", ".json":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
