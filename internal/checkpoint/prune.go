package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/veritest/veritest/internal/model"
)

// RetentionPolicy controls session cleanup.
type RetentionPolicy struct {
	KeepLast int
	KeepDays int
}

// PruneResult summarizes a prune operation.
type PruneResult struct {
	Considered int
	Kept       int
	Deleted    int
	Skipped    int
}

// Prune deletes old terminal sessions per the retention policy. Sessions that
// have not reached DONE are never pruned.
func (s *Store) Prune(ctx context.Context, policy RetentionPolicy, dryRun bool) (PruneResult, error) {
	if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
		return PruneResult{}, nil
	}
	cutoff := time.Time{}
	if policy.KeepDays > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}

	sessions, err := s.List(ctx)
	if err != nil {
		return PruneResult{}, fmt.Errorf("prune: %w", err)
	}

	res := PruneResult{Considered: len(sessions)}
	kept := 0
	for _, sum := range sessions {
		if sum.Stage != model.StageDone {
			res.Skipped++
			continue
		}
		keep := false
		if policy.KeepLast > 0 && kept < policy.KeepLast {
			keep = true
		}
		if !cutoff.IsZero() && sum.UpdatedAt.After(cutoff) {
			keep = true
		}
		if keep {
			kept++
			res.Kept++
			continue
		}
		if dryRun {
			log.Info().Str("session_id", sum.SessionID).Msg("prune: would delete session")
			res.Deleted++
			continue
		}
		if err := s.Delete(ctx, sum.SessionID); err != nil {
			return res, err
		}
		log.Debug().Str("session_id", sum.SessionID).Msg("prune: deleted session")
		res.Deleted++
	}
	return res, nil
}
