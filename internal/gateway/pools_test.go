package gateway

import (
	"testing"
	"time"
)

func TestWithStatementTimeout(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		timeout time.Duration
		want    string
	}{
		{
			"url without query",
			"postgres://u:p@host:5432/db",
			10 * time.Second,
			"postgres://u:p@host:5432/db?statement_timeout=10000",
		},
		{
			"url with query",
			"postgres://host/db?sslmode=disable",
			10 * time.Second,
			"postgres://host/db?sslmode=disable&statement_timeout=10000",
		},
		{
			"key value form",
			"host=localhost dbname=app",
			10 * time.Second,
			"host=localhost dbname=app statement_timeout=10000",
		},
		{
			"zero falls back to thirty seconds",
			"postgres://host/db",
			0,
			"postgres://host/db?statement_timeout=30000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withStatementTimeout(tt.dsn, tt.timeout); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
