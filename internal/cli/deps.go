package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/calvinalkan/errthang/internal/catalog"
	"github.com/calvinalkan/errthang/internal/config"
	"github.com/calvinalkan/errthang/internal/crawler"
	"github.com/calvinalkan/errthang/internal/engine"
)

// deps bundles the catalog/crawler/engine trio every subcommand drives.
// Closing it tears down the catalog and engine in the right order.
type deps struct {
	catalog *catalog.Catalog
	engine  *engine.Engine
}

func openDeps(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*deps, error) {
	cat, err := catalog.Open(ctx, cfg.CatalogDirAbs)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	crawl := crawler.New(cat, log)

	eng, err := engine.New(ctx, engine.Options{
		SnapshotPath:     cfg.SnapshotPathAbs,
		ExcludePrefixes:  cfg.ExcludePrefixes,
		DebounceInterval: cfg.DebounceIntervalTime,
	}, cat, crawl, log)
	if err != nil {
		_ = cat.Close()

		return nil, fmt.Errorf("start engine: %w", err)
	}

	return &deps{catalog: cat, engine: eng}, nil
}

func (d *deps) Close() error {
	engErr := d.engine.Close()
	catErr := d.catalog.Close()

	if engErr != nil {
		return engErr
	}

	return catErr
}
