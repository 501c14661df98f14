package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/MeKo-Tech/springmap/internal/fetch"
	"github.com/MeKo-Tech/springmap/internal/mapconfig"
	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

// mapOptions are the springmap options every command shares.
func mapOptions(cache fetch.Cache) []springmap.Option {
	opts := []springmap.Option{springmap.WithLogger(logger)}
	if url := viper.GetString("overpass_url"); url != "" {
		opts = append(opts, springmap.WithOverpass(url, nil))
	}
	if cache != nil {
		opts = append(opts, springmap.WithFetch(springmap.FetchConfig{Cache: cache}))
	}
	return opts
}

// buildMap loads the document at path and builds it. Layers that fail to
// load are logged; they are fatal unless allowFailures is set.
func buildMap(ctx context.Context, path string, allowFailures bool, opts ...springmap.Option) (*springmap.Map, *mapconfig.Document, error) {
	doc, err := mapconfig.Load(path)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Building map", "document", path, "layers", len(doc.Layers), "workers", doc.Workers)
	m, err := mapconfig.Build(ctx, doc, opts...)
	if m == nil {
		return nil, nil, fmt.Errorf("failed to build map: %w", err)
	}
	if err != nil {
		if !allowFailures {
			return nil, nil, fmt.Errorf("some layers failed to load: %w", err)
		}
		logger.Warn("Some layers failed to load, but continuing due to --allow-failures flag", "error", err)
	}
	return m, doc, nil
}
