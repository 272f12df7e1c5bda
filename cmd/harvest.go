package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rightslens/bhrrc-harvester/internal/attach"
	"github.com/rightslens/bhrrc-harvester/internal/config"
	"github.com/rightslens/bhrrc-harvester/internal/corpus"
	"github.com/rightslens/bhrrc-harvester/internal/fetch"
	"github.com/rightslens/bhrrc-harvester/internal/headless"
	"github.com/rightslens/bhrrc-harvester/internal/logging"
	"github.com/rightslens/bhrrc-harvester/internal/metrics"
	"github.com/rightslens/bhrrc-harvester/internal/ocr"
	"github.com/rightslens/bhrrc-harvester/internal/paginate"
	"github.com/rightslens/bhrrc-harvester/internal/pipeline"
	"github.com/rightslens/bhrrc-harvester/internal/story"
)

// newHarvestCmd creates the 'harvest' subcommand, which runs one full
// pass over the listing and flushes the corpus as it goes.
func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest",
		Short: "Runs one harvest pass over the allegation listing",
		Long: `Walks the listing from the stored cursor, parses every new story,
extracts the text of each linked company response (falling back to OCR
for scanned documents), and flushes the corpus snapshot after every
completed listing page.`,
		RunE: runHarvestCommand,
	}
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, store, cleanup, err := buildRunner(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := runner.Run(ctx)
	if flushErr := store.Flush(); flushErr != nil {
		logger.Error("final corpus flush failed", zap.Error(flushErr))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("harvest run: %w", err)
	}

	logger.Info("harvest complete",
		zap.String("run_id", summary.RunID),
		zap.Int("records_fetched", summary.RecordsFetched),
		zap.Int("records_merged", summary.RecordsMerged),
		zap.Int("records_failed", summary.RecordsFailed),
		zap.Int("ocr_fallbacks", summary.OCRFallbacks),
		zap.Int("failed_extractions", summary.FailedExtractions),
		zap.Int("corpus_size", store.Len()))
	return nil
}

// buildRunner assembles the full pipeline from configuration. The
// returned cleanup releases the headless browser when one was started.
func buildRunner(cfg config.Config, logger *zap.Logger) (*pipeline.Runner, *corpus.Store, func(), error) {
	cleanup := func() {}

	policy := fetch.NewRetryPolicy(cfg.HTTP.MaxRetries,
		time.Duration(cfg.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond)
	limiter := fetch.NewLimiter(fetch.LimiterConfig{
		RequestsPerSecond: cfg.Politeness.RequestsPerSecond,
		Burst:             cfg.Politeness.Burst,
	})

	var opts []fetch.Option
	if cfg.Cache.TTLHours > 0 {
		cache, err := fetch.NewPageCache(cfg.Cache.Dir, time.Duration(cfg.Cache.TTLHours)*time.Hour)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init page cache: %w", err)
		}
		opts = append(opts, fetch.WithCache(cache))
	}
	if cfg.Politeness.RespectRobots {
		opts = append(opts, fetch.WithRobots(fetch.NewRobotsGate(cfg.Source.UserAgent, cfg.Timeout())))
	}
	if cfg.Headless.Enabled {
		renderer, err := headless.New(headless.Config{
			MaxParallel: cfg.Headless.MaxParallel,
			NavTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			UserAgent:   cfg.Source.UserAgent,
		}, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init headless renderer: %w", err)
		}
		cleanup = renderer.Close
		detector := headless.NewDetector(cfg.Headless.MinHTMLBytes, cfg.Headless.MarkerKeywords)
		opts = append(opts, fetch.WithHeadless(renderer, detector))
	}

	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Timeout(),
		Cooldown:  cfg.Cooldown(),
	}, policy, limiter, logger, opts...)

	store, err := corpus.Open(cfg.Output.Path, logger)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("open corpus: %w", err)
	}

	// Resume from the page after the last one fully processed.
	startPage := cfg.Source.StartPage
	if next := store.Cursor() + 1; next > startPage {
		startPage = next
	}
	pager := paginate.New(fetcher, cfg.Source.BaseURL, startPage, logger)

	extractor := ocr.NewExtractor(
		ocr.NewPdftoppmRasterizer(cfg.OCR.PdftoppmBin, cfg.OCR.DPI),
		ocr.NewTesseractEngine(cfg.OCR.TesseractBin, cfg.OCR.Language),
		logger)
	resolver := attach.New(fetcher, extractor, attach.Config{
		Workers:       cfg.Attachments.Workers,
		MinAlphaChars: cfg.Attachments.MinAlphaChars,
	}, logger)

	runner := pipeline.NewRunner(fetcher, pager, story.NewParser(logger), resolver, store, logger)
	return runner, store, cleanup, nil
}
