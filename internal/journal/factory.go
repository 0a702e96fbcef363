package journal

import (
	"fmt"

	"github.com/OCAP2/touchfly/internal/config"
	"github.com/OCAP2/touchfly/internal/database"
	"github.com/OCAP2/touchfly/internal/journal/gormjournal"
	"github.com/OCAP2/touchfly/internal/journal/memjournal"
	"github.com/rs/zerolog"
)

var (
	_ Backend = (*memjournal.Backend)(nil)
	_ Reader  = (*memjournal.Backend)(nil)
	_ Backend = (*gormjournal.Backend)(nil)
	_ Reader  = (*gormjournal.Backend)(nil)
	_ Backend = Discard{}
)

// NewBackend creates a journal backend based on configuration.
func NewBackend(cfg config.JournalConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "memory", "":
		return memjournal.New(cfg.Capacity), nil
	case "sqlite":
		db, err := database.OpenSQLite(cfg.SQLite.Path, log)
		if err != nil {
			return nil, err
		}
		opts := gormjournal.Options{}
		if cfg.SQLite.Path == "" {
			opts.DumpPath = cfg.SQLite.DumpPath
			opts.DumpInterval = cfg.SQLite.DumpInterval
		}
		return gormjournal.New(db, opts, log), nil
	case "postgres":
		db, err := database.OpenPostgres(cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		return gormjournal.New(db, gormjournal.Options{}, log), nil
	case "none":
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}
