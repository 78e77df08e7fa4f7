package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NEO4J_URI", "")
	var out bytes.Buffer
	err := New(&out).RunContext(context.Background(), append([]string{"bluewave", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestQueryRejectsUnknownName(t *testing.T) {
	_, err := run(t, "query", "top_cities")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Equal(t, 2, ExitCode(err))
}

func TestQueryAgainstMemoryJournal(t *testing.T) {
	out, err := run(t, "query", "runs")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestUnfollowRequiresSelection(t *testing.T) {
	_, err := run(t, "unfollow", "--filter", "crypto")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestBadLogLevel(t *testing.T) {
	var out bytes.Buffer
	err := New(&out).RunContext(context.Background(), []string{"bluewave", "--log-level", "loud", "query", "runs"})
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	for _, tt := range []struct {
		err  error
		code int
	}{
		{nil, 0},
		{fmt.Errorf("get session: %w", models.ErrAppPasswordRequired), 3},
		{fmt.Errorf("batch run-x: %w", context.Canceled), 130},
		{fmt.Errorf("%w: authenticate alice.test: %w", models.ErrAuthenticationFailed, errors.New("XRPC ERROR 429")), 3},
		{fmt.Errorf("%w: authenticate alice.test: %w", models.ErrAuthenticationFailed, context.Canceled), 130},
		{&models.FetchError{Page: 2, Err: models.ErrAuthenticationLost}, 3},
		{errors.New("boom"), 1},
	} {
		assert.Equal(t, tt.code, ExitCode(tt.err), "%v", tt.err)
	}
}
