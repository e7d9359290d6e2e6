// Package cmd holds the shared wiring helpers the binaries use to build
// persistence, the event bus and the instance lock from configuration.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caseflow-io/caseflow/pkg/persistence"
	"github.com/caseflow-io/caseflow/pkg/persistence/memory"
	"github.com/caseflow-io/caseflow/pkg/persistence/postgresql"
)

// NewPersistence picks the persistence backend from the database URL scheme:
// postgres:// (or postgresql://) for PostgreSQL, memory:// for the in-memory
// store used in local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case strings.HasPrefix(databaseURL, "memory://"):
		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database URL %q", databaseURL)
	}
}
