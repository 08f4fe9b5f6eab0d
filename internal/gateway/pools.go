// Package gateway implements the dispatch core: per-operation pipelines that
// authenticate, permit, validate, build SQL, execute against the right pool,
// and classify failures.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/pgcrud/pgcrud/internal/config"
)

// healthProbeTimeout bounds the health-check query.
const healthProbeTimeout = 5 * time.Second

// Pools holds the primary connection pool and the optional read replica
// pool. Reads go to Read when configured; writes always go to Primary.
type Pools struct {
	Primary *sql.DB
	Read    *sql.DB
}

// OpenPools opens and verifies the configured pools. Introspection and all
// writes use the primary; a missing read URL leaves Read nil and reads fall
// back to the primary.
func OpenPools(ctx context.Context, cfg *config.Config) (*Pools, error) {
	primary, err := openPool(ctx, cfg.DatabaseDSN(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open primary pool: %w", err)
	}

	p := &Pools{Primary: primary}
	if dsn := cfg.ReadDSN(); dsn != "" {
		read, err := openPool(ctx, dsn, cfg)
		if err != nil {
			primary.Close()
			return nil, fmt.Errorf("open read pool: %w", err)
		}
		p.Read = read
	}
	return p, nil
}

func openPool(ctx context.Context, dsn string, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", withStatementTimeout(dsn, cfg.Database.StatementTimeout))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// withStatementTimeout appends the statement_timeout runtime parameter to a
// DSN, handling both URL and key=value forms. The driver passes it to the
// server at session startup.
func withStatementTimeout(dsn string, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ms := fmt.Sprintf("%d", timeout.Milliseconds())

	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "statement_timeout=" + url.QueryEscape(ms)
	}
	return dsn + " statement_timeout=" + ms
}

// reader returns the pool list/read queries execute on.
func (p *Pools) reader() *sql.DB {
	if p.Read != nil {
		return p.Read
	}
	return p.Primary
}

// Close closes both pools.
func (p *Pools) Close() {
	if p.Read != nil {
		p.Read.Close()
	}
	p.Primary.Close()
}

// Probe verifies the primary pool answers a trivial query within the probe
// timeout.
func (p *Pools) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	var one int
	return p.Primary.QueryRowContext(probeCtx, "SELECT 1").Scan(&one)
}
