package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

type fakePDS struct {
	t *testing.T

	mu     sync.Mutex
	hits   map[string]int
	bodies map[string]map[string]interface{}
	auth   []string
	query  map[string][]string
}

func newFakePDS(t *testing.T) (*fakePDS, *BskyClient) {
	f := &fakePDS{t: t, hits: map[string]int{}, bodies: map[string]map[string]interface{}{}, query: map[string][]string{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, NewBskyClientWithHTTP(srv.URL, srv.Client(), srv.Client())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakePDS) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[len("/xrpc/"):]

	f.mu.Lock()
	f.hits[method]++
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.bodies[method] = body
	}
	for k, v := range r.URL.Query() {
		f.query[method+"."+k] = v
	}
	f.mu.Unlock()

	switch method {
	case "com.atproto.server.createSession":
		if f.bodies[method]["password"] != "abcd-efgh-ijkl-mnop" {
			writeJSON(w, 401, map[string]string{"error": "AuthenticationRequired", "message": "Invalid identifier or password"})
			return
		}
		writeJSON(w, 200, map[string]string{"did": "did:plc:alice", "handle": "alice.test", "accessJwt": "access", "refreshJwt": "refresh"})
	case "app.bsky.graph.getFollows":
		if r.Header.Get("Authorization") == "Bearer expired" {
			writeJSON(w, 400, map[string]string{"error": "ExpiredToken", "message": "Token has expired"})
			return
		}
		if r.URL.Query().Get("cursor") == "" {
			writeJSON(w, 200, map[string]interface{}{
				"subject": map[string]string{"did": "did:plc:alice", "handle": "alice.test"},
				"cursor":  "next-1",
				"follows": []map[string]interface{}{
					{"did": "did:plc:bob", "handle": "bob.test", "displayName": "Bob", "description": "hi",
						"viewer": map[string]string{"following": "at://did:plc:alice/app.bsky.graph.follow/3kbob"}},
					{"did": "did:plc:carl", "handle": "carl.test"},
				},
			})
			return
		}
		writeJSON(w, 200, map[string]interface{}{
			"subject": map[string]string{"did": "did:plc:alice", "handle": "alice.test"},
			"follows": []map[string]interface{}{},
		})
	case "app.bsky.graph.getFollowers":
		writeJSON(w, 502, map[string]string{"error": "UpstreamFailure", "message": "appview down"})
	case "com.atproto.repo.createRecord":
		writeJSON(w, 200, map[string]string{"uri": "at://did:plc:alice/app.bsky.graph.follow/3knew", "cid": "bafyrei"})
	case "com.atproto.repo.deleteRecord":
		writeJSON(w, 200, map[string]interface{}{})
	case "app.bsky.graph.getRelationships":
		writeJSON(w, 200, map[string]interface{}{
			"actor": "did:plc:alice",
			"relationships": []map[string]interface{}{
				{"$type": "app.bsky.graph.defs#relationship", "did": "did:plc:bob", "following": "at://did:plc:alice/app.bsky.graph.follow/3kbob"},
				{"$type": "app.bsky.graph.defs#relationship", "did": "did:plc:carl"},
				{"$type": "app.bsky.graph.defs#notFoundActor", "actor": "did:plc:gone", "notFound": true},
			},
		})
	case "com.atproto.server.deleteSession":
		writeJSON(w, 200, map[string]interface{}{})
	default:
		writeJSON(w, 404, map[string]string{"error": "MethodNotImplemented"})
	}
}

var testSession = &models.Session{DID: "did:plc:alice", Handle: "alice.test", AccessJwt: "access", RefreshJwt: "refresh"}

func TestAuthenticate(t *testing.T) {
	_, c := newFakePDS(t)
	ctx := context.Background()

	sess, err := c.Authenticate(ctx, models.Credentials{Identifier: "alice.test", Secret: "abcd-efgh-ijkl-mnop"})
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", sess.DID)
	assert.Equal(t, "access", sess.AccessJwt)
	assert.Equal(t, c.Host, sess.Host)

	_, err = c.Authenticate(ctx, models.Credentials{Identifier: "alice.test", Secret: "wxyz-wxyz-wxyz-wxyz"})
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
	assert.NotErrorIs(t, err, models.ErrAuthenticationLost)
}

func TestListFollowsMapsProfiles(t *testing.T) {
	f, c := newFakePDS(t)
	ctx := context.Background()

	page, err := c.ListFollows(ctx, testSession, "alice.test", 100, "")
	require.NoError(t, err)

	assert.Equal(t, "next-1", page.Cursor)
	require.Len(t, page.Edges, 2)
	assert.Equal(t, models.Edge{
		DID: "did:plc:bob", Handle: "bob.test", DisplayName: "Bob", Description: "hi",
		RelationshipURI: "at://did:plc:alice/app.bsky.graph.follow/3kbob",
	}, page.Edges[0])
	assert.False(t, page.Edges[1].CanUnfollow())
	assert.Equal(t, []string{"100"}, f.query["app.bsky.graph.getFollows.limit"])
	assert.Equal(t, "Bearer access", f.auth[0])

	page, err = c.ListFollows(ctx, testSession, "alice.test", 100, "next-1")
	require.NoError(t, err)
	assert.Empty(t, page.Cursor)
	assert.Empty(t, page.Edges)
}

func TestListErrors(t *testing.T) {
	_, c := newFakePDS(t)
	ctx := context.Background()

	expired := *testSession
	expired.AccessJwt = "expired"
	_, err := c.ListFollows(ctx, &expired, "alice.test", 100, "")
	assert.ErrorIs(t, err, models.ErrAuthenticationLost)

	_, err = c.ListFollowers(ctx, testSession, "alice.test", 100, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrAuthenticationLost)
	assert.Contains(t, err.Error(), "UpstreamFailure")
}

func TestFollowCreatesRecord(t *testing.T) {
	f, c := newFakePDS(t)

	uri, err := c.Follow(context.Background(), testSession, "did:plc:dana")
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:alice/app.bsky.graph.follow/3knew", uri)

	body := f.bodies["com.atproto.repo.createRecord"]
	assert.Equal(t, "app.bsky.graph.follow", body["collection"])
	assert.Equal(t, "did:plc:alice", body["repo"])
	record := body["record"].(map[string]interface{})
	assert.Equal(t, "did:plc:dana", record["subject"])
	assert.Equal(t, "app.bsky.graph.follow", record["$type"])
	createdAt, err := time.Parse(time.RFC3339, record["createdAt"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), createdAt, time.Minute)

	_, err = c.Follow(context.Background(), testSession, "not-a-did")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Equal(t, 1, f.hits["com.atproto.repo.createRecord"])
}

func TestUnfollowDeletesRecord(t *testing.T) {
	f, c := newFakePDS(t)

	err := c.Unfollow(context.Background(), testSession, "at://did:plc:alice/app.bsky.graph.follow/3kbob")
	require.NoError(t, err)

	body := f.bodies["com.atproto.repo.deleteRecord"]
	assert.Equal(t, "app.bsky.graph.follow", body["collection"])
	assert.Equal(t, "did:plc:alice", body["repo"])
	assert.Equal(t, "3kbob", body["rkey"])

	for _, bad := range []string{"", "not a uri", "at://did:plc:alice/app.bsky.feed.like/3k"} {
		err = c.Unfollow(context.Background(), testSession, bad)
		assert.ErrorIs(t, err, models.ErrInvalidArgument, bad)
	}
	assert.Equal(t, 1, f.hits["com.atproto.repo.deleteRecord"])
}

func TestUnfollowRejectsForeignRecord(t *testing.T) {
	f, c := newFakePDS(t)

	for _, uri := range []string{
		"at://did:plc:mallory/app.bsky.graph.follow/3kbob",
		"at://alice.test/app.bsky.graph.follow/3kbob",
		"at://did:plc:alice/app.bsky.graph.follow",
	} {
		err := c.Unfollow(context.Background(), testSession, uri)
		assert.ErrorIs(t, err, models.ErrInvalidArgument, uri)
	}
	assert.Zero(t, f.hits["com.atproto.repo.deleteRecord"])
}

func TestCancelledContextSkipsRequest(t *testing.T) {
	f, c := newFakePDS(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListFollows(ctx, testSession, "did:plc:alice", 100, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.hits["app.bsky.graph.getFollows"])
}

func TestRelationshipsAreCached(t *testing.T) {
	f, c := newFakePDS(t)
	ctx := context.Background()
	others := []string{"did:plc:bob", "did:plc:carl", "did:plc:gone"}

	found, err := c.Relationships(ctx, testSession, "did:plc:alice", others)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"did:plc:bob": "at://did:plc:alice/app.bsky.graph.follow/3kbob"}, found)
	assert.Equal(t, others, f.query["app.bsky.graph.getRelationships.others"])

	found, err = c.Relationships(ctx, testSession, "did:plc:alice", others[:2])
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, 1, f.hits["app.bsky.graph.getRelationships"])

	require.NoError(t, c.Unfollow(ctx, testSession, "at://did:plc:alice/app.bsky.graph.follow/3kbob"))
	found, err = c.Relationships(ctx, testSession, "did:plc:alice", others[:1])
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, 1, f.hits["app.bsky.graph.getRelationships"])
}

func TestDeleteSessionUsesRefreshToken(t *testing.T) {
	f, c := newFakePDS(t)

	require.NoError(t, c.DeleteSession(context.Background(), testSession))
	assert.Equal(t, "Bearer refresh", f.auth[len(f.auth)-1])
	assert.Equal(t, "access", testSession.AccessJwt)
}
