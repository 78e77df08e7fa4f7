package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

const (
	followCollection = "app.bsky.graph.follow"

	relationshipCacheSize = 4096

	// client-side ceiling on XRPC calls to one host
	requestRate  = 10
	requestBurst = 10
)

// XRPC error names that mean the access token is no longer usable.
var authErrorNames = map[string]bool{
	"AuthenticationRequired": true,
	"ExpiredToken":           true,
	"InvalidToken":           true,
	"AuthMissing":            true,
}

// BskyClient talks to a Bluesky PDS or entryway over XRPC.
type BskyClient struct {
	Host string

	// queries may be retried; procedures are sent once since a retried
	// createRecord can create a second follow record
	queryHTTP *http.Client
	procHTTP  *http.Client

	relationships *lru.Cache[string, string]
	limiter       *rate.Limiter
}

func NewBskyClient(host string, timeout time.Duration) *BskyClient {
	return NewBskyClientWithHTTP(host, NewHTTPClient(3, timeout), NewHTTPClient(0, timeout))
}

func NewBskyClientWithHTTP(host string, query, proc *http.Client) *BskyClient {
	cache, err := lru.New[string, string](relationshipCacheSize)
	if err != nil {
		logrus.Fatalf("create relationship cache: %v", err)
	}
	return &BskyClient{
		Host:          host,
		queryHTTP:     query,
		procHTTP:      proc,
		relationships: cache,
		limiter:       rate.NewLimiter(rate.Limit(requestRate), requestBurst),
	}
}

func (c *BskyClient) xrpcClient(sess *models.Session, procedure bool) *xrpc.Client {
	xc := &xrpc.Client{Client: c.queryHTTP, Host: c.Host}
	if procedure {
		xc.Client = c.procHTTP
	}
	if sess != nil {
		if sess.Host != "" {
			xc.Host = sess.Host
		}
		xc.Auth = &xrpc.AuthInfo{
			AccessJwt:  sess.AccessJwt,
			RefreshJwt: sess.RefreshJwt,
			Handle:     sess.Handle,
			Did:        sess.DID,
		}
	}
	return xc
}

// do runs one XRPC call, records metrics and maps service errors onto the
// model error taxonomy.
func (c *BskyClient) do(ctx context.Context, sess *models.Session, kind xrpc.XRPCRequestType, method string, params map[string]interface{}, body, out interface{}) error {
	procedure := kind == xrpc.Procedure
	encoding := ""
	if procedure && body != nil {
		encoding = "application/json"
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for %s: %w", method, err)
	}

	start := time.Now()
	err := c.xrpcClient(sess, procedure).Do(ctx, kind, encoding, method, params, body, out)
	xrpcDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	xrpcCalls.WithLabelValues(method, statusLabel(err)).Inc()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"method": method,
			"host":   c.Host,
			"error":  err,
		}).Warn("XRPC call failed")
		return mapError(err, sess != nil)
	}
	return nil
}

func statusLabel(err error) string {
	if err == nil {
		return "200"
	}
	var xe *xrpc.Error
	if errors.As(err, &xe) {
		return strconv.Itoa(xe.StatusCode)
	}
	return "error"
}

// mapError marks token failures on authenticated calls as authentication loss
// and on the login call as authentication failure.
func mapError(err error, authenticated bool) error {
	var xe *xrpc.Error
	if !errors.As(err, &xe) {
		return err
	}
	name := ""
	var inner *xrpc.XRPCError
	if errors.As(xe.Wrapped, &inner) {
		name = inner.ErrStr
	}
	if xe.StatusCode != http.StatusUnauthorized && !authErrorNames[name] {
		return err
	}
	if authenticated {
		return fmt.Errorf("%w: %w", models.ErrAuthenticationLost, err)
	}
	return fmt.Errorf("%w: %w", models.ErrAuthenticationFailed, err)
}

type createSessionInput struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Authenticate creates a session with an app password.
func (c *BskyClient) Authenticate(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	in := createSessionInput{Identifier: creds.Identifier, Password: creds.Secret}
	var out comatproto.ServerCreateSession_Output
	if err := c.do(ctx, nil, xrpc.Procedure, "com.atproto.server.createSession", nil, &in, &out); err != nil {
		if errors.Is(err, models.ErrAuthenticationFailed) {
			return nil, fmt.Errorf("%w (is this an app password?)", err)
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"did":    out.Did,
		"handle": out.Handle,
	}).Info("Session created")

	return &models.Session{
		DID:        out.Did,
		Handle:     out.Handle,
		Host:       c.Host,
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
	}, nil
}

// DeleteSession revokes the session's refresh token.
func (c *BskyClient) DeleteSession(ctx context.Context, sess *models.Session) error {
	refresh := *sess
	refresh.AccessJwt = sess.RefreshJwt
	return c.do(ctx, &refresh, xrpc.Procedure, "com.atproto.server.deleteSession", nil, nil, nil)
}

func (c *BskyClient) ListFollows(ctx context.Context, sess *models.Session, actor string, limit int, cursor string) (models.Page, error) {
	var out bsky.GraphGetFollows_Output
	if err := c.do(ctx, sess, xrpc.Query, "app.bsky.graph.getFollows", pageParams(actor, limit, cursor), nil, &out); err != nil {
		return models.Page{}, err
	}
	return toPage(out.Follows, out.Cursor), nil
}

func (c *BskyClient) ListFollowers(ctx context.Context, sess *models.Session, actor string, limit int, cursor string) (models.Page, error) {
	var out bsky.GraphGetFollowers_Output
	if err := c.do(ctx, sess, xrpc.Query, "app.bsky.graph.getFollowers", pageParams(actor, limit, cursor), nil, &out); err != nil {
		return models.Page{}, err
	}
	return toPage(out.Followers, out.Cursor), nil
}

func pageParams(actor string, limit int, cursor string) map[string]interface{} {
	params := map[string]interface{}{
		"actor": actor,
		"limit": limit,
	}
	if cursor != "" {
		params["cursor"] = cursor
	}
	return params
}

func toPage(profiles []*bsky.ActorDefs_ProfileView, cursor *string) models.Page {
	page := models.Page{Edges: make([]models.Edge, 0, len(profiles))}
	for _, p := range profiles {
		if p == nil || p.Did == "" {
			continue
		}
		page.Edges = append(page.Edges, toEdge(p))
	}
	if cursor != nil {
		page.Cursor = *cursor
	}
	return page
}

func toEdge(p *bsky.ActorDefs_ProfileView) models.Edge {
	e := models.Edge{
		DID:         p.Did,
		Handle:      p.Handle,
		DisplayName: deref(p.DisplayName),
		Description: deref(p.Description),
		Avatar:      deref(p.Avatar),
	}
	if p.Viewer != nil {
		e.RelationshipURI = deref(p.Viewer.Following)
	}
	return e
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Follow creates a follow record for did in the session's repo and returns its URI.
func (c *BskyClient) Follow(ctx context.Context, sess *models.Session, did string) (string, error) {
	if _, err := syntax.ParseDID(did); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInvalidArgument, err)
	}

	in := comatproto.RepoCreateRecord_Input{
		Collection: followCollection,
		Repo:       sess.DID,
		Record: &lexutil.LexiconTypeDecoder{Val: &bsky.GraphFollow{
			LexiconTypeID: followCollection,
			CreatedAt:     syntax.DatetimeNow().String(),
			Subject:       did,
		}},
	}
	var out comatproto.RepoCreateRecord_Output
	if err := c.do(ctx, sess, xrpc.Procedure, "com.atproto.repo.createRecord", nil, &in, &out); err != nil {
		return "", err
	}

	c.relationships.Add(relationshipKey(sess.DID, did), out.Uri)
	logrus.WithFields(logrus.Fields{
		"subject": did,
		"uri":     out.Uri,
	}).Debug("Follow record created")
	return out.Uri, nil
}

// Unfollow deletes the follow record named by relationshipURI.
func (c *BskyClient) Unfollow(ctx context.Context, sess *models.Session, relationshipURI string) error {
	aturi, err := syntax.ParseATURI(relationshipURI)
	if err != nil {
		return fmt.Errorf("%w: relationship handle: %v", models.ErrInvalidArgument, err)
	}
	if aturi.Authority().String() != sess.DID {
		return fmt.Errorf("%w: %s is not a record of %s", models.ErrInvalidArgument, relationshipURI, sess.DID)
	}
	if aturi.Collection().String() != followCollection {
		return fmt.Errorf("%w: %s is not a follow record", models.ErrInvalidArgument, relationshipURI)
	}
	rkey := aturi.RecordKey()
	if rkey.String() == "" {
		return fmt.Errorf("%w: %s has no record key", models.ErrInvalidArgument, relationshipURI)
	}

	in := comatproto.RepoDeleteRecord_Input{
		Collection: followCollection,
		Repo:       sess.DID,
		Rkey:       rkey.String(),
	}
	if err := c.do(ctx, sess, xrpc.Procedure, "com.atproto.repo.deleteRecord", nil, &in, nil); err != nil {
		return err
	}

	c.forgetRelationship(sess.DID, relationshipURI)
	logrus.WithField("uri", relationshipURI).Debug("Follow record deleted")
	return nil
}

// forgetRelationship marks any cached relationship of actor that pointed at uri
// as no longer followed.
func (c *BskyClient) forgetRelationship(actor, uri string) {
	prefix := actor + " "
	for _, key := range c.relationships.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if v, ok := c.relationships.Peek(key); ok && v == uri {
			c.relationships.Add(key, "")
		}
	}
}

// relationshipsOutput is the subset of app.bsky.graph.getRelationships this
// client reads. The lexicon returns a union per entry; unknown actors carry
// no did and are skipped.
type relationshipsOutput struct {
	Actor         string `json:"actor"`
	Relationships []struct {
		Did       string `json:"did"`
		Following string `json:"following"`
		NotFound  bool   `json:"notFound"`
	} `json:"relationships"`
}

// Relationships returns the URIs of actor's follow records for each of others
// that actor follows. Answers are cached per actor for the client's lifetime.
func (c *BskyClient) Relationships(ctx context.Context, sess *models.Session, actor string, others []string) (map[string]string, error) {
	found := make(map[string]string, len(others))
	var ask []string
	for _, did := range others {
		if uri, ok := c.relationships.Get(relationshipKey(actor, did)); ok {
			relationshipCacheHits.Inc()
			if uri != "" {
				found[did] = uri
			}
			continue
		}
		ask = append(ask, did)
	}
	if len(ask) == 0 {
		return found, nil
	}

	params := map[string]interface{}{
		"actor":  actor,
		"others": ask,
	}
	var out relationshipsOutput
	if err := c.do(ctx, sess, xrpc.Query, "app.bsky.graph.getRelationships", params, nil, &out); err != nil {
		return nil, err
	}

	answered := make(map[string]bool, len(out.Relationships))
	for _, r := range out.Relationships {
		if r.NotFound || r.Did == "" {
			continue
		}
		answered[r.Did] = true
		c.relationships.Add(relationshipKey(actor, r.Did), r.Following)
		if r.Following != "" {
			found[r.Did] = r.Following
		}
	}
	for _, did := range ask {
		if !answered[did] {
			logrus.WithField("did", did).Debug("No relationship returned for actor")
		}
	}
	return found, nil
}

func relationshipKey(actor, did string) string {
	return actor + " " + did
}
