package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/caseflow-io/caseflow/pkg/persistence"
)

// generateInstanceCode builds a human-readable case code like
// ONBOARD-2026-0007. The sequence is store-side and atomic, so concurrent
// creations never collide. Sequences reset per template per year.
func generateInstanceCode(ctx context.Context, sequences persistence.SequenceRepository, templateCode string) (string, error) {
	year := time.Now().UTC().Year()

	seq, err := sequences.Next(ctx, fmt.Sprintf("instance_code:%s:%d", templateCode, year))
	if err != nil {
		return "", fmt.Errorf("failed to advance instance code sequence: %w", err)
	}

	return fmt.Sprintf("%s-%d-%04d", templateCode, year, seq), nil
}
