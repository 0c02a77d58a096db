package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/collector"
	"github.com/sells-group/pricing-cli/internal/config"
	"github.com/sells-group/pricing-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "pricing.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// buildRegistry wires the enabled collectors from config. forceDemo adds
// the demo collector regardless of the config flag.
func buildRegistry(c config.CollectorsConfig, forceDemo bool) *collector.Registry {
	registry := collector.NewRegistry()

	if c.Yelp.Enabled {
		registry.Register(collector.NewYelp(collector.YelpConfig{
			APIKey:     c.Yelp.APIKey,
			BaseURL:    c.Yelp.BaseURL,
			Timeout:    time.Duration(c.Yelp.TimeoutSecs) * time.Second,
			RatePerSec: c.Yelp.RatePerSec,
			MaxResults: c.Yelp.MaxResults,
		}))
	}
	if c.Places.Enabled {
		registry.Register(collector.NewPlaces(collector.PlacesConfig{
			APIKey:     c.Places.APIKey,
			BaseURL:    c.Places.BaseURL,
			Timeout:    time.Duration(c.Places.TimeoutSecs) * time.Second,
			RatePerSec: c.Places.RatePerSec,
		}))
	}
	if c.Website.Enabled {
		targets := make([]collector.WebsiteTarget, len(c.Website.Targets))
		for i, t := range c.Website.Targets {
			targets[i] = collector.WebsiteTarget{
				Name:    t.Name,
				Address: t.Address,
				MenuURL: t.MenuURL,
				Lat:     t.Lat,
				Lng:     t.Lng,
			}
		}
		registry.Register(collector.NewWebsite(collector.WebsiteConfig{
			Targets: targets,
			Timeout: time.Duration(c.Website.TimeoutSecs) * time.Second,
		}))
	}
	if c.Delivery.Enabled {
		registry.Register(collector.NewDelivery(collector.DeliveryConfig{
			APIKey:       c.Delivery.APIKey,
			BaseURL:      c.Delivery.BaseURL,
			PlatformName: c.Delivery.PlatformName,
			Timeout:      time.Duration(c.Delivery.TimeoutSecs) * time.Second,
			RatePerSec:   c.Delivery.RatePerSec,
		}))
	}
	if c.Manual.Enabled {
		registry.Register(collector.NewManual(collector.ManualConfig{Path: c.Manual.Path}))
	}
	if c.Demo || forceDemo {
		registry.Register(collector.NewDemo())
	}

	return registry
}
