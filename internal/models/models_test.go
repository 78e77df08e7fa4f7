package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEdgeLabel(t *testing.T) {
	assert.Equal(t, "Alice", Edge{DID: "did:plc:a", Handle: "alice.test", DisplayName: "Alice"}.Label())
	assert.Equal(t, "alice.test", Edge{DID: "did:plc:a", Handle: "alice.test"}.Label())
	assert.Equal(t, "did:plc:a", Edge{DID: "did:plc:a"}.Label())
}

func TestLedger(t *testing.T) {
	l := Ledger{
		{DID: "did:plc:a", Outcome: OutcomeSucceeded},
		{DID: "did:plc:b", Outcome: OutcomeSkipped, Reason: ReasonMissingRelationship},
		{DID: "did:plc:c", Outcome: OutcomeSucceeded},
	}
	assert.Equal(t, map[Outcome]int{OutcomeSucceeded: 2, OutcomeSkipped: 1}, l.Counts())
	assert.Equal(t, []string{"did:plc:a", "did:plc:c"}, l.Succeeded())
	assert.False(t, l.AuthLost())

	l = append(l, ResultItem{DID: "did:plc:d", Outcome: OutcomeFailed, Reason: ReasonAuthenticationLost})
	assert.True(t, l.AuthLost())
}

func TestFetchErrorMatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("upstream 502")
	err := error(&FetchError{Page: 3, Err: cause})
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "fetch failed on page 3: upstream 502")
	assert.ErrorIs(t, ErrAppPasswordRequired, ErrAuthenticationFailed)
}
