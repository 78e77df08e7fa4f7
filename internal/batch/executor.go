// Package batch runs follow/unfollow mutations one at a time and records an
// outcome for every edge.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

// Mutator is the remote follow/unfollow collaborator.
type Mutator interface {
	Follow(ctx context.Context, sess *models.Session, did string) (string, error)
	Unfollow(ctx context.Context, sess *models.Session, relationshipURI string) error
}

type Options struct {
	// MaxPerRun truncates the input to its first MaxPerRun edges. Zero or less means no limit.
	MaxPerRun int
	// InterItemDelay is the pause after each attempt before the next one starts.
	InterItemDelay time.Duration
	// CapDaily enables DailyRemaining, the number of mutations today's cap still allows.
	CapDaily       bool
	DailyRemaining int
}

type Executor struct {
	mut Mutator
}

func NewExecutor(mut Mutator) *Executor {
	return &Executor{mut: mut}
}

// Run applies action to edges in order and returns one ledger entry per
// processed edge. Per-item failures never stop the run. If ctx is cancelled
// the ledger accumulated so far is returned together with the context error.
func (x *Executor) Run(ctx context.Context, sess *models.Session, edges []models.Edge, action models.Action, opts Options) (models.Ledger, error) {
	if action != models.ActionFollow && action != models.ActionUnfollow {
		return nil, fmt.Errorf("%w: unknown action %q", models.ErrInvalidArgument, action)
	}
	if opts.MaxPerRun > 0 && len(edges) > opts.MaxPerRun {
		edges = edges[:opts.MaxPerRun]
	}

	budget := -1
	if opts.CapDaily {
		budget = max(opts.DailyRemaining, 0)
	}
	authLost := false
	ledger := make(models.Ledger, 0, len(edges))

	for i, e := range edges {
		// no pause once the session is gone: the remaining items make no calls
		if i > 0 && !authLost {
			if err := pause(ctx, opts.InterItemDelay); err != nil {
				return ledger, err
			}
		}

		item := models.ResultItem{Ordinal: i, DID: e.DID, Label: e.Label()}

		switch {
		case authLost:
			item.Outcome = models.OutcomeFailed
			item.Reason = models.ReasonAuthenticationLost
			item.Err = models.ErrAuthenticationLost
		case action == models.ActionUnfollow && !e.CanUnfollow():
			item.Outcome = models.OutcomeSkipped
			item.Reason = models.ReasonMissingRelationship
		case budget == 0:
			item.Outcome = models.OutcomeSkipped
			item.Reason = models.ReasonDailyCap
		default:
			uri, err := x.mutate(ctx, sess, e, action)
			if budget > 0 {
				budget--
			}
			switch {
			case err == nil:
				item.Outcome = models.OutcomeSucceeded
				item.RelationshipURI = uri
			case errors.Is(err, models.ErrAuthenticationLost):
				authLost = true
				item.Outcome = models.OutcomeFailed
				item.Reason = models.ReasonAuthenticationLost
				item.Err = err
			default:
				item.Outcome = models.OutcomeFailed
				item.Reason = err.Error()
				item.Err = fmt.Errorf("%w: %w", models.ErrMutationFailed, err)
			}
		}
		ledger = append(ledger, item)
	}
	if err := ctx.Err(); err != nil {
		return ledger, err
	}
	return ledger, nil
}

// pause suspends for d after an attempt. It returns the context error if ctx
// ends first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (x *Executor) mutate(ctx context.Context, sess *models.Session, e models.Edge, action models.Action) (string, error) {
	if action == models.ActionFollow {
		return x.mut.Follow(ctx, sess, e.DID)
	}
	return e.RelationshipURI, x.mut.Unfollow(ctx, sess, e.RelationshipURI)
}
