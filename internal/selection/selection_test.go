package selection

import (
	"fmt"
	"testing"

	"github.com/ZetoOfficial/bluewave/internal/models"
	"github.com/stretchr/testify/assert"
)

func sampleEdges() []models.Edge {
	return []models.Edge{
		{DID: "did:plc:a", DisplayName: "Alice", Description: "Go developer"},
		{DID: "did:plc:b", DisplayName: "Bob", Description: "crypto gains daily"},
		{DID: "did:plc:c", DisplayName: "CRYPTO Carl", Description: ""},
		{DID: "did:plc:d", Handle: "dana.test", Description: "Straße photography"},
	}
}

func dids(edges []models.Edge) []string {
	var out []string
	for _, e := range edges {
		out = append(out, e.DID)
	}
	return out
}

func TestToggleRoundTrip(t *testing.T) {
	s := New(sampleEdges())
	s.Toggle("did:plc:b", models.FlagFollow, true)

	before := s.Marked(models.FlagUnfollow)
	s.Toggle("did:plc:a", models.FlagUnfollow, true)
	assert.True(t, s.IsMarked("did:plc:a", models.FlagUnfollow))
	s.Toggle("did:plc:a", models.FlagUnfollow, false)

	assert.Equal(t, before, s.Marked(models.FlagUnfollow))
	assert.Equal(t, 0, s.CountMarked(models.FlagUnfollow))
	assert.Equal(t, 1, s.CountMarked(models.FlagFollow))
}

func TestFlagsAreIndependent(t *testing.T) {
	s := New(sampleEdges())
	s.Toggle("did:plc:a", models.FlagFollow, true)
	s.Toggle("did:plc:a", models.FlagUnfollow, true)
	s.Toggle("did:plc:a", models.FlagFollow, false)

	assert.False(t, s.IsMarked("did:plc:a", models.FlagFollow))
	assert.True(t, s.IsMarked("did:plc:a", models.FlagUnfollow))
}

func TestToggleUnknownIsNoop(t *testing.T) {
	s := New(sampleEdges())
	s.Toggle("did:plc:zzz", models.FlagUnfollow, true)

	assert.Equal(t, 0, s.CountMarked(models.FlagUnfollow))
	assert.False(t, s.IsMarked("did:plc:zzz", models.FlagUnfollow))
}

func TestFilterIsCaseInsensitiveOverNameAndDescription(t *testing.T) {
	s := New(sampleEdges())

	assert.Equal(t, []string{"did:plc:b", "did:plc:c"}, dids(s.Filter("crypto")))
	assert.Equal(t, []string{"did:plc:a"}, dids(s.Filter("GO DEV")))
	assert.Equal(t, []string{"did:plc:d"}, dids(s.Filter("STRASSE")))
	assert.Len(t, s.Filter(""), 4)
	assert.Empty(t, s.Filter("dana.test"), "handle is not part of the match")
}

func TestToggleAllRespectsActiveFilter(t *testing.T) {
	s := New(sampleEdges())
	s.Toggle("did:plc:a", models.FlagUnfollow, true)

	s.SetFilter("crypto")
	s.Toggle(All, models.FlagUnfollow, true)

	assert.Equal(t, []string{"did:plc:a", "did:plc:b", "did:plc:c"}, dids(s.Marked(models.FlagUnfollow)))

	s.Toggle(All, models.FlagUnfollow, false)
	assert.Equal(t, []string{"did:plc:a"}, dids(s.Marked(models.FlagUnfollow)), "filtered-out marks stay")

	s.SetFilter("")
	s.Toggle(All, models.FlagUnfollow, true)
	assert.Equal(t, 4, s.CountMarked(models.FlagUnfollow))
	assert.Equal(t, 0, s.CountMarked(models.FlagFollow))
}

func TestReplaceReconcilesByIdentity(t *testing.T) {
	s := New(sampleEdges())
	s.Toggle("did:plc:a", models.FlagUnfollow, true)
	s.Toggle("did:plc:b", models.FlagUnfollow, true)

	next := []models.Edge{
		{DID: "did:plc:b", DisplayName: "Bob (renamed)"},
		{DID: "did:plc:e", DisplayName: "Eve"},
	}
	s.Replace(next)

	assert.Equal(t, []string{"did:plc:b"}, dids(s.Marked(models.FlagUnfollow)))
	assert.False(t, s.IsMarked("did:plc:a", models.FlagUnfollow))
	assert.Equal(t, "Bob (renamed)", s.Marked(models.FlagUnfollow)[0].DisplayName)

	// a DID that left and came back does not resurrect its old mark
	s.Replace(sampleEdges())
	assert.False(t, s.IsMarked("did:plc:a", models.FlagUnfollow))
}

func TestResetClearsMarks(t *testing.T) {
	s := New(sampleEdges())
	s.Toggle(All, models.FlagUnfollow, true)
	s.Reset(sampleEdges())
	assert.Equal(t, 0, s.CountMarked(models.FlagUnfollow))
}

func TestMarkedFollowsListOrder(t *testing.T) {
	var edges []models.Edge
	for i := 0; i < 600; i++ {
		edges = append(edges, models.Edge{DID: fmt.Sprintf("did:plc:%03d", i)})
	}
	s := New(edges)
	for i := 599; i >= 0; i-- {
		s.Toggle(edges[i].DID, models.FlagUnfollow, true)
	}

	marked := s.Marked(models.FlagUnfollow)
	assert.Len(t, marked, 600)
	assert.Equal(t, "did:plc:000", marked[0].DID)
	assert.Equal(t, "did:plc:599", marked[599].DID)
}

func TestRemove(t *testing.T) {
	s := New(sampleEdges())
	s.Toggle(All, models.FlagUnfollow, true)

	s.Remove("did:plc:a", "did:plc:c", "did:plc:nope")

	assert.Equal(t, []string{"did:plc:b", "did:plc:d"}, dids(s.Edges()))
	assert.Equal(t, 2, s.CountMarked(models.FlagUnfollow))
	assert.Equal(t, 2, s.Len())
}
