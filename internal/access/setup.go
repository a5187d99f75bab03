package access

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/greento/greento/internal/config"
	"github.com/greento/greento/internal/db"
	"github.com/greento/greento/internal/green"
	"github.com/greento/greento/internal/network"
	"github.com/greento/greento/internal/travel"
)

// ModelFromConfig loads the mode table named by travel.modes_file, or the
// built-in table when unset.
func ModelFromConfig(cfg *config.Config) (*travel.Model, error) {
	if cfg.Travel.ModesFile == "" {
		return travel.Default(), nil
	}
	return travel.LoadTable(cfg.Travel.ModesFile)
}

// RasterOptionsFromConfig maps the green section onto raster source options.
func RasterOptionsFromConfig(cfg *config.Config) green.RasterOptions {
	return green.RasterOptions{
		GreenCodes:   cfg.Green.Codes,
		PixelAreaSqm: cfg.Green.PixelAreaSqm,
		Strategy:     green.Strategy(cfg.Green.Strategy),
		MaxPixels:    cfg.Green.MaxPixels,
	}
}

// VectorOptionsFromConfig maps the green section onto vector source options.
func VectorOptionsFromConfig(cfg *config.Config) green.VectorOptions {
	return green.VectorOptions{
		CellSizeDeg:  cfg.Green.CellSizeDeg,
		PixelAreaSqm: cfg.Green.PixelAreaSqm,
	}
}

// OpenGraphSource opens the network store selected by store.driver. The
// returned close func releases it.
func OpenGraphSource(ctx context.Context, cfg *config.Config) (network.Source, func(), error) {
	switch cfg.Store.Driver {
	case "sqlite":
		src, err := network.NewSQLiteSource(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { _ = src.Close() }, nil
	case "postgres", "":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, nil, err
		}
		src, err := network.NewPostgresSource(pool, cfg.Store.Schema)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return src, pool.Close, nil
	default:
		return nil, nil, eris.Errorf("access: unknown store driver %q", cfg.Store.Driver)
	}
}

// Open builds an engine from configuration: the mode table, the road
// network inside bbox (zero for all of it) and the given green source.
func Open(ctx context.Context, cfg *config.Config, src green.Source, bbox network.BBox) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := ModelFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := OpenGraphSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	g, err := network.LoadGraph(ctx, store, bbox)
	if err != nil {
		return nil, eris.Wrap(err, "access: load network")
	}
	e, err := NewEngine(model, src, g, opts)
	if err != nil {
		return nil, err
	}
	zap.L().Info("access: engine ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("nodes", g.NumNodes()),
		zap.Int("edges", g.NumEdges()),
	)
	return e, nil
}
