package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-cli/internal/config"
)

// Open builds the registry selected by cfg.Driver and runs its migration.
func Open(ctx context.Context, cfg config.StoreConfig) (Registry, error) {
	var (
		reg Registry
		err error
	)
	switch cfg.Driver {
	case "", "memory":
		reg = NewMemory()
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "reel.db"
		}
		reg, err = NewSQLite(dsn)
	case "postgres":
		reg, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	case "redis":
		reg, err = NewRedis(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := reg.Migrate(ctx); err != nil {
		reg.Close() //nolint:errcheck
		return nil, err
	}
	return reg, nil
}
