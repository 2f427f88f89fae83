package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/mmcdole/tablesync/internal/adapter/source"
	"github.com/mmcdole/tablesync/internal/config"
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/fetch"
	"github.com/mmcdole/tablesync/internal/log"
	"github.com/mmcdole/tablesync/internal/search"
	"github.com/mmcdole/tablesync/internal/service"
	"github.com/mmcdole/tablesync/internal/store"
	"github.com/mmcdole/tablesync/internal/tui"
	"github.com/mmcdole/tablesync/internal/tui/components"
	"github.com/mmcdole/tablesync/internal/tui/styles"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags
var Version = "dev"

// maxSearchResults caps the rows printed by -search
const maxSearchResults = 20

type options struct {
	refresh       bool
	invalidate    string
	invalidateAll bool
	stats         bool
	query         string
	dataset       string
	field         string
	plain         bool
}

func main() {
	var showVersion bool
	var opts options
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.BoolVar(&opts.refresh, "refresh", false, "ignore the cache and fetch every dataset")
	flag.StringVar(&opts.invalidate, "invalidate", "", "drop the cached snapshot of one dataset")
	flag.BoolVar(&opts.invalidateAll, "invalidate-all", false, "drop every cached snapshot")
	flag.BoolVar(&opts.stats, "stats", false, "print cache statistics")
	flag.StringVar(&opts.query, "search", "", "fuzzy search the records of -dataset")
	flag.StringVar(&opts.dataset, "dataset", "", "dataset to search")
	flag.StringVar(&opts.field, "field", "name", "record field to search")
	flag.BoolVar(&opts.plain, "plain", false, "print progress as plain lines")
	flag.Parse()

	if showVersion {
		fmt.Printf("tablesync %s\n", Version)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Setup logger
	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting tablesync", "version", Version)

	if cfg.Metrics.Addr != "" {
		serveMetrics(cfg.Metrics.Addr, logger)
	}

	// Open the persistent cache
	cache := store.New(cfg.Cache.Path, logger, store.WithIdleTimeout(cfg.Cache.IdleTimeout))
	if err := cache.Open(); err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer cache.Close()

	svc := service.NewSyncService(cache, logger,
		service.WithLoadTimeout(cfg.Sync.LoadTimeout),
		service.WithBackgroundTimeout(cfg.Sync.BackgroundTimeout),
	)
	cache.SetFaultSink(svc.ReportFault)
	go drainFaults(ctx, svc, logger)

	switch {
	case opts.invalidateAll:
		if err := svc.InvalidateAll(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Println(styles.SuccessStyle.Render("Cleared every cached dataset"))
		return nil

	case opts.invalidate != "":
		if err := svc.Invalidate(opts.invalidate); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", opts.invalidate, err)
		}
		fmt.Println(styles.SuccessStyle.Render("Invalidated " + opts.invalidate))
		return nil

	case opts.stats:
		printStats(svc.Stats())
		return nil
	}

	if !cfg.IsConfigured() {
		return errors.New("remote.url and remote.key must be set (config.yaml or TABLESYNC_REMOTE_URL / TABLESYNC_REMOTE_KEY)")
	}

	src, err := source.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create remote client: %w", err)
	}
	fetcher := fetch.New(src, cfg.Remote.PageSize, logger)

	only := ""
	if opts.query != "" {
		if opts.dataset == "" {
			return errors.New("-search requires -dataset")
		}
		only = opts.dataset
	}
	datasets, err := buildDatasets(cfg, fetcher, cache, logger, only)
	if err != nil {
		return err
	}

	res, err := load(ctx, svc, datasets, opts)
	if err != nil {
		return err
	}

	if opts.query != "" {
		printMatches(search.Records(opts.query, res.Payloads[opts.dataset], opts.field), opts.field)
	} else {
		printSummary(res, datasets)
	}
	if !src.Reachable() {
		fmt.Println(styles.WarningStyle.Render("Remote source is unreachable; serving cached data where possible"))
	}

	if res.FromCache {
		waitForBackground(svc, cfg.Sync.BackgroundTimeout, logger)
	}

	logger.Info("shutting down")
	if res.Status() == service.LoadFailed {
		return res.Err()
	}
	return nil
}

// load runs the sync behind the progress view when stdout is a terminal
func load(ctx context.Context, svc *service.SyncService, datasets []domain.Dataset, opts options) (*service.Result, error) {
	loadOpts := service.LoadOptions{SkipCache: opts.refresh}

	if opts.plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		loadOpts.OnProgress = plainProgress
		return svc.Load(ctx, datasets, loadOpts)
	}
	return tui.Run(ctx, svc, "Syncing datasets", datasets, loadOpts)
}

// plainProgress prints terminal progress events as single lines
func plainProgress(ev domain.ProgressEvent) {
	switch ev.Status {
	case domain.StatusComplete:
		suffix := ""
		if ev.FromCache {
			suffix = " (cached)"
		}
		fmt.Printf("[%d/%d] %s: %s rows%s\n", ev.Completed, ev.Total, ev.Dataset, components.FormatCount(*ev.RowCount), suffix)
	case domain.StatusFailed:
		fmt.Printf("[%d/%d] %s: failed: %v\n", ev.Completed, ev.Total, ev.Dataset, ev.Err)
	}
}

func printSummary(res *service.Result, datasets []domain.Dataset) {
	fmt.Println()
	for _, ds := range datasets {
		st := components.DatasetState{Name: ds.Name, Status: domain.StatusComplete, FromCache: res.FromCache}
		if err, failed := res.Failures[ds.Name]; failed {
			st.Status, st.Error = domain.StatusFailed, err
		} else {
			st.Rows = len(res.Payloads[ds.Name])
		}
		fmt.Println(st.Render(""))
	}

	switch res.Status() {
	case service.LoadPartial:
		fmt.Println(styles.WarningStyle.Render("\nSome datasets failed; the others are up to date. Retry with -refresh."))
	case service.LoadFailed:
		fmt.Println(styles.ErrorStyle.Render("\nNo dataset could be loaded."))
	}
}

func printStats(stats domain.CacheStats) {
	fmt.Println(styles.TitleStyle.Render("Cache"))
	fmt.Printf("  entries: %d\n", stats.EntryCount)
	fmt.Printf("  size:    %s bytes\n", components.FormatCount(int(stats.ApproximateBytes)))

	names := make([]string, 0, len(stats.Ages))
	for name := range stats.Ages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s %s\n", styles.NameStyle.Render(name), styles.DimStyle.Render(stats.Ages[name].Round(time.Second).String()+" old"))
	}
}

func printMatches(matches []search.Match, field string) {
	if len(matches) == 0 {
		fmt.Println(styles.DimStyle.Render("No matches"))
		return
	}
	for i, m := range matches {
		if i == maxSearchResults {
			fmt.Println(styles.DimStyle.Render(fmt.Sprintf("... %d more", len(matches)-maxSearchResults)))
			break
		}
		fmt.Printf("%s  %s=%v\n", styles.AccentStyle.Render(m.Value), field, m.Record["id"])
	}
}

// waitForBackground gives the background refresh a bounded chance to finish
// before the process exits
func waitForBackground(svc *service.SyncService, limit time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(limit):
		logger.Warn("background refresh still running at exit", "waited", limit)
	}
}

// drainFaults logs faults until ctx ends
func drainFaults(ctx context.Context, svc *service.SyncService, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-svc.Faults():
			var cf *domain.CacheFault
			if errors.As(err, &cf) {
				logger.Debug("cache fault", "kind", cf.Kind, "key", cf.Key)
				continue
			}
			logger.Warn("sync fault", "error", err)
		}
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
}
