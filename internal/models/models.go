package models

import "time"

// Edge is one account in a follow or follower listing.
type Edge struct {
	DID         string
	Handle      string
	DisplayName string
	Description string
	Avatar      string
	// RelationshipURI is the at:// URI of the viewer's follow record for this account.
	RelationshipURI string
}

// Label returns the most human-friendly name available.
func (e Edge) Label() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	if e.Handle != "" {
		return e.Handle
	}
	return e.DID
}

// CanUnfollow reports whether the edge carries a relationship handle.
func (e Edge) CanUnfollow() bool {
	return e.RelationshipURI != ""
}

// Page is one page of a listing. An empty Cursor means no further pages.
type Page struct {
	Edges  []Edge
	Cursor string
}

// Credentials identify the account and its app password.
type Credentials struct {
	Identifier string
	Secret     string
}

// Session is an authenticated handle against the remote service.
type Session struct {
	DID        string
	Handle     string
	Host       string
	AccessJwt  string
	RefreshJwt string
}

type ListKind string

const (
	ListFollows   ListKind = "follows"
	ListFollowers ListKind = "followers"
)

type Action string

const (
	ActionFollow   Action = "follow"
	ActionUnfollow Action = "unfollow"
)

// Flag selects which mark a selection toggle acts on.
type Flag int

const (
	FlagFollow Flag = iota
	FlagUnfollow
)

// FlagFor maps a batch action to the flag that marks edges for it.
func FlagFor(a Action) Flag {
	if a == ActionFollow {
		return FlagFollow
	}
	return FlagUnfollow
}

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

const (
	ReasonMissingRelationship = "missing-relationship-handle"
	ReasonDailyCap            = "daily-cap-exceeded"
	ReasonAuthenticationLost  = "authentication-lost"
)

// ResultItem is the recorded outcome of one batch attempt.
type ResultItem struct {
	Ordinal         int
	DID             string
	Label           string
	Outcome         Outcome
	Reason          string
	RelationshipURI string
	Err             error `json:"-"`
}

// Ledger is the ordered list of outcomes of one batch run.
type Ledger []ResultItem

// Counts returns the number of items per outcome.
func (l Ledger) Counts() map[Outcome]int {
	counts := make(map[Outcome]int, 3)
	for _, item := range l {
		counts[item.Outcome]++
	}
	return counts
}

// AuthLost reports whether the run stopped calling the service because the session died.
func (l Ledger) AuthLost() bool {
	for _, item := range l {
		if item.Reason == ReasonAuthenticationLost {
			return true
		}
	}
	return false
}

// Succeeded returns the DIDs of succeeded items in ledger order.
func (l Ledger) Succeeded() []string {
	var dids []string
	for _, item := range l {
		if item.Outcome == OutcomeSucceeded {
			dids = append(dids, item.DID)
		}
	}
	return dids
}

// Run is a completed batch as written to the journal.
type Run struct {
	ID        string
	ActorDID  string
	Action    Action
	StartedAt time.Time
	Ledger    Ledger
}
