package paginator

import (
	"context"
	"fmt"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

// MaxRelationshipLookup is the most accounts the service accepts per relationship lookup.
const MaxRelationshipLookup = 30

// RelationshipLookup returns, for each of others, the URI of actor's follow
// record pointing at it. Accounts actor does not follow are absent from the map.
type RelationshipLookup interface {
	Relationships(ctx context.Context, sess *models.Session, actor string, others []string) (map[string]string, error)
}

// Resolve fills in missing relationship handles through lookup. The input is
// not modified. A failed lookup aborts with a FetchError like a failed page.
func Resolve(ctx context.Context, lookup RelationshipLookup, sess *models.Session, actor string, edges []models.Edge) ([]models.Edge, error) {
	out := make([]models.Edge, len(edges))
	copy(out, edges)

	var missing []int
	for i, e := range out {
		if !e.CanUnfollow() {
			missing = append(missing, i)
		}
	}

	chunk := 0
	for start := 0; start < len(missing); start += MaxRelationshipLookup {
		chunk++
		if err := ctx.Err(); err != nil {
			return nil, &models.FetchError{Page: chunk, Err: err}
		}

		end := min(start+MaxRelationshipLookup, len(missing))
		dids := make([]string, 0, end-start)
		for _, idx := range missing[start:end] {
			dids = append(dids, out[idx].DID)
		}

		found, err := lookup.Relationships(ctx, sess, actor, dids)
		if err != nil {
			return nil, &models.FetchError{Page: chunk, Err: fmt.Errorf("relationships: %w", err)}
		}
		for _, idx := range missing[start:end] {
			if uri, ok := found[out[idx].DID]; ok {
				out[idx].RelationshipURI = uri
			}
		}
	}
	return out, nil
}
