package store

import (
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/suzieq/ceo-office/internal/config"
)

// PostgRESTSchema is the SQL to provision a Supabase project, including the
// similarity search procedures.
//
//go:embed postgrest_schema.sql
var PostgRESTSchema string

// Open builds a Store from configuration. A postgrest driver without a URL,
// or driver "none", yields an unconfigured store that degrades to no-ops.
func Open(cfg *config.Config) (*Store, error) {
	opts := []Option{WithTimeout(cfg.Store.Timeout)}
	switch driver := cfg.StoreDriver(); driver {
	case "sqlite":
		b, err := OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("Store opened", "driver", driver, "path", cfg.Store.SQLitePath)
		return New(b, opts...), nil
	case "postgrest", "supabase":
		if cfg.Store.URL == "" || cfg.Store.ServiceKey == "" {
			slog.Warn("Store URL or service key missing, running without memory")
			return New(NopBackend{}, opts...), nil
		}
		slog.Info("Store opened", "driver", "postgrest", "url", cfg.Store.URL)
		return New(NewPostgRESTBackend(cfg.Store.URL, cfg.Store.ServiceKey, cfg.Store.Timeout), opts...), nil
	case "none":
		slog.Info("Store disabled, running without memory")
		return New(NopBackend{}, opts...), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
