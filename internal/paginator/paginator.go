// Package paginator enumerates a cursor-paged follow or follower listing in full.
package paginator

import (
	"context"
	"fmt"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

// Lister fetches one page of a listing for actor, starting at cursor.
type Lister interface {
	ListFollows(ctx context.Context, sess *models.Session, actor string, limit int, cursor string) (models.Page, error)
	ListFollowers(ctx context.Context, sess *models.Session, actor string, limit int, cursor string) (models.Page, error)
}

// Stats describes one enumeration.
type Stats struct {
	Requests   int
	Duplicates int
	// Truncated is set when maxPages was reached while the service still had a cursor.
	Truncated bool
	// MissingRelationship counts edges that cannot be unfollowed.
	MissingRelationship int
}

type Paginator struct {
	lister Lister
}

func New(lister Lister) *Paginator {
	return &Paginator{lister: lister}
}

// Enumerate returns every edge of target's listing, deduplicated by DID in
// first-seen order. It issues at most maxPages requests. Any failed page
// aborts the whole enumeration and nothing is returned.
func (p *Paginator) Enumerate(ctx context.Context, sess *models.Session, target string, kind models.ListKind, pageSize, maxPages int) ([]models.Edge, error) {
	edges, _, err := p.EnumerateWithStats(ctx, sess, target, kind, pageSize, maxPages)
	return edges, err
}

func (p *Paginator) EnumerateWithStats(ctx context.Context, sess *models.Session, target string, kind models.ListKind, pageSize, maxPages int) ([]models.Edge, Stats, error) {
	var stats Stats

	if target == "" {
		return nil, stats, fmt.Errorf("%w: target actor is required", models.ErrInvalidArgument)
	}
	if pageSize <= 0 || maxPages <= 0 {
		return nil, stats, fmt.Errorf("%w: page size %d and max pages %d must be positive", models.ErrInvalidArgument, pageSize, maxPages)
	}

	list, err := p.listFunc(kind)
	if err != nil {
		return nil, stats, err
	}

	var (
		acc    []models.Edge
		cursor string
	)
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, &models.FetchError{Page: page, Err: err}
		}

		res, err := list(ctx, sess, target, pageSize, cursor)
		stats.Requests++
		if err != nil {
			return nil, stats, &models.FetchError{Page: page, Err: err}
		}

		acc = append(acc, res.Edges...)
		cursor = res.Cursor
		if cursor == "" {
			break
		}
		if page == maxPages {
			stats.Truncated = true
		}
	}

	edges := dedupe(acc)
	stats.Duplicates = len(acc) - len(edges)
	for _, e := range edges {
		if !e.CanUnfollow() {
			stats.MissingRelationship++
		}
	}
	return edges, stats, nil
}

func (p *Paginator) listFunc(kind models.ListKind) (func(context.Context, *models.Session, string, int, string) (models.Page, error), error) {
	switch kind {
	case models.ListFollows, "":
		return p.lister.ListFollows, nil
	case models.ListFollowers:
		return p.lister.ListFollowers, nil
	default:
		return nil, fmt.Errorf("%w: unknown list kind %q", models.ErrInvalidArgument, kind)
	}
}

func dedupe(edges []models.Edge) []models.Edge {
	seen := make(map[string]struct{}, len(edges))
	out := make([]models.Edge, 0, len(edges))
	for _, e := range edges {
		if _, ok := seen[e.DID]; ok {
			continue
		}
		seen[e.DID] = struct{}{}
		out = append(out, e)
	}
	return out
}
