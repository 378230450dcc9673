package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"         // postgres driver, registered for LedgerBackend="postgres"
	_ "modernc.org/sqlite"        // pure-Go sqlite driver, registered for LedgerBackend="sqlite"

	"github.com/swarmmesh/substrate/pkg/auditlog"
	"github.com/swarmmesh/substrate/pkg/config"
)

// NewFromConfig builds the Ledger selected by cfg.LedgerBackend. "memory"
// is the single-process default (pkg/simulator and tests); "sqlite" and
// "postgres" back a SQLLedger with a real database/sql connection so a
// production node survives a restart without losing account state.
func NewFromConfig(ctx context.Context, cfg *config.Config, audit auditlog.AuditLog) (Ledger, error) {
	switch cfg.LedgerBackend {
	case "", "memory":
		return NewMemoryLedger(audit), nil
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("ledger: open sqlite: %w", err)
		}
		l := NewSQLLedger(db)
		if err := l.Init(ctx); err != nil {
			return nil, err
		}
		return l, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("ledger: open postgres: %w", err)
		}
		l := NewSQLLedger(db)
		if err := l.Init(ctx); err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("ledger: unsupported backend %q", cfg.LedgerBackend)
	}
}
