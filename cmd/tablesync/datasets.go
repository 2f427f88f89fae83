package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/tablesync/internal/config"
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/fetch"
	"github.com/mmcdole/tablesync/internal/transform"
)

const defaultSettingsTable = "app_settings"

// snapshotReader reads a cached dataset snapshot
type snapshotReader interface {
	Get(key string, maxAge time.Duration) ([]domain.Record, bool)
}

// buildDatasets turns the configured datasets into descriptors bound to f.
// only, when non-empty, selects a single dataset. cache may be nil.
func buildDatasets(cfg *config.Config, f *fetch.Fetcher, cache snapshotReader, logger *slog.Logger, only string) ([]domain.Dataset, error) {
	var datasets []domain.Dataset
	for _, dc := range cfg.Datasets {
		if only != "" && dc.Name != only {
			continue
		}

		fn, ok := transform.ByName(dc.Transform)
		if !ok {
			return nil, fmt.Errorf("dataset %q: unknown transform %q", dc.Name, dc.Transform)
		}

		var order *domain.Order
		if dc.Order != nil {
			order = &domain.Order{
				Column:     dc.Order.Column,
				Ascending:  dc.Order.Ascending,
				NullsFirst: dc.Order.NullsFirst,
			}
		}

		def := fetch.Definition{
			Name:      dc.Name,
			Table:     dc.Table,
			TTL:       dc.TTL,
			Order:     order,
			Transform: fn,
		}
		if strings.EqualFold(dc.Transform, "transactions") {
			def.TransformFrom = func(ctx context.Context) domain.TransformFunc {
				return transform.TransactionsWith(cashbackSettings(ctx, cfg, f, cache, logger))
			}
		}
		datasets = append(datasets, fetch.Dataset(f, def))
	}

	if only != "" && len(datasets) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, only)
	}
	return datasets, nil
}

// cashbackSettings resolves the cashback rules for the transactions
// transform. A fresh cached app_settings snapshot wins, then the remote
// table, then the defaults.
func cashbackSettings(ctx context.Context, cfg *config.Config, f *fetch.Fetcher, cache snapshotReader, logger *slog.Logger) transform.CashbackSettings {
	name, table := defaultSettingsTable, defaultSettingsTable
	var ttl time.Duration
	for _, dc := range cfg.Datasets {
		if strings.EqualFold(dc.Transform, "app_settings") {
			name, table, ttl = dc.Name, dc.Table, dc.TTL
			break
		}
	}
	if table == "" {
		table = name
	}

	if cache != nil && ttl > 0 {
		if records, ok := cache.Get(name, ttl); ok {
			if rec, ok := settingsRecord(records); ok {
				return transform.SettingsFromRecord(rec)
			}
		}
	}

	rows, err := f.FetchAll(ctx, table, nil)
	if err != nil {
		logger.Warn("failed to read cashback settings, using defaults", "table", table, "error", err)
		return transform.DefaultCashbackSettings()
	}
	records := make([]domain.Record, len(rows))
	for i, row := range rows {
		records[i] = transform.AppSettings(row)
	}
	rec, ok := settingsRecord(records)
	if !ok {
		logger.Warn("no cashback settings found, using defaults", "table", table)
		return transform.DefaultCashbackSettings()
	}
	return transform.SettingsFromRecord(rec)
}

// settingsRecord picks the row with id "default", falling back to the first
func settingsRecord(records []domain.Record) (domain.Record, bool) {
	for _, rec := range records {
		if fmt.Sprint(rec["id"]) == "default" {
			return rec, true
		}
	}
	if len(records) == 0 {
		return nil, false
	}
	return records[0], true
}
