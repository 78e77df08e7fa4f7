package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ZetoOfficial/bluewave/internal/batch"
	"github.com/ZetoOfficial/bluewave/internal/idgen"
	"github.com/ZetoOfficial/bluewave/internal/models"
	"github.com/ZetoOfficial/bluewave/internal/paginator"
	"github.com/ZetoOfficial/bluewave/internal/selection"
)

type Sessions interface {
	Get(ctx context.Context) (*models.Session, error)
	Invalidate()
	Logout(ctx context.Context) error
}

type Enumerator interface {
	EnumerateWithStats(ctx context.Context, sess *models.Session, target string, kind models.ListKind, pageSize, maxPages int) ([]models.Edge, paginator.Stats, error)
}

type Runner interface {
	Run(ctx context.Context, sess *models.Session, edges []models.Edge, action models.Action, opts batch.Options) (models.Ledger, error)
}

type Journal interface {
	SaveRun(ctx context.Context, run models.Run) error
	CountSince(ctx context.Context, actorDID string, action models.Action, since time.Time) (int, error)
	RunQuery(ctx context.Context, queryName string) ([]map[string]interface{}, error)
}

type Settings struct {
	PageSize       int
	MaxPages       int
	MaxPerRun      int
	InterItemDelay time.Duration
	// DailyCap bounds succeeded mutations per action over the last 24 hours. Zero disables it.
	DailyCap int
}

type App struct {
	sessions Sessions
	pages    Enumerator
	lookup   paginator.RelationshipLookup
	runner   Runner
	journal  Journal
	settings Settings

	Selection *selection.Set

	now func() time.Time
}

// NewApp wires the engine together. lookup may be nil, in which case edges
// without a relationship handle are left as they came from the listing.
func NewApp(sessions Sessions, pages Enumerator, lookup paginator.RelationshipLookup, runner Runner, journal Journal, settings Settings) *App {
	return &App{
		sessions:  sessions,
		pages:     pages,
		lookup:    lookup,
		runner:    runner,
		journal:   journal,
		settings:  settings,
		Selection: selection.New(nil),
		now:       time.Now,
	}
}

// Fetch enumerates actor's listing and reconciles it into the selection set.
// An empty actor means the authenticated account.
func (a *App) Fetch(ctx context.Context, actor string, kind models.ListKind) ([]models.Edge, error) {
	sess, err := a.sessions.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if actor == "" {
		actor = sess.DID
	}

	log := logrus.WithFields(logrus.Fields{"actor": actor, "list": kind})
	log.Info("Fetching listing")

	edges, stats, err := a.pages.EnumerateWithStats(ctx, sess, actor, kind, a.settings.PageSize, a.settings.MaxPages)
	pagesFetched.WithLabelValues(string(kind)).Add(float64(stats.Requests))
	if err != nil {
		a.checkSession(err)
		return nil, fmt.Errorf("fetch %s: %w", kind, err)
	}
	if stats.Truncated {
		log.Warnf("Stopped after %d pages, listing is incomplete", stats.Requests)
	}

	// Own follows should all carry a handle; fill the ones the listing lost.
	if kind == models.ListFollows && actor == sess.DID && stats.MissingRelationship > 0 && a.lookup != nil {
		log.WithField("missing", stats.MissingRelationship).Info("Resolving relationship handles")
		if edges, err = paginator.Resolve(ctx, a.lookup, sess, sess.DID, edges); err != nil {
			a.checkSession(err)
			return nil, fmt.Errorf("resolve relationships: %w", err)
		}
	}

	a.Selection.Replace(edges)
	log.WithFields(logrus.Fields{
		"edges":      len(edges),
		"pages":      stats.Requests,
		"duplicates": stats.Duplicates,
	}).Info("Listing fetched")
	return edges, nil
}

// Mark sets flag on the listed DIDs and, when all is set, on every edge
// matching filter.
func (a *App) Mark(flag models.Flag, filter string, all bool, dids ...string) int {
	a.Selection.SetFilter(filter)
	if all {
		a.Selection.Toggle(selection.All, flag, true)
	}
	for _, did := range dids {
		a.Selection.Toggle(did, flag, true)
	}
	return a.Selection.CountMarked(flag)
}

func (a *App) Unfollow(ctx context.Context) (*models.Run, error) {
	return a.runBatch(ctx, models.ActionUnfollow)
}

func (a *App) Follow(ctx context.Context) (*models.Run, error) {
	return a.runBatch(ctx, models.ActionFollow)
}

// FollowBack follows every follower of the authenticated account that it does
// not follow yet, limited to those matching filter.
func (a *App) FollowBack(ctx context.Context, filter string) (*models.Run, error) {
	if _, err := a.Fetch(ctx, "", models.ListFollowers); err != nil {
		return nil, err
	}
	a.Selection.SetFilter(filter)
	for _, e := range a.Selection.Visible() {
		if !e.CanUnfollow() {
			a.Selection.Toggle(e.DID, models.FlagFollow, true)
		}
	}
	return a.runBatch(ctx, models.ActionFollow)
}

func (a *App) runBatch(ctx context.Context, action models.Action) (*models.Run, error) {
	sess, err := a.sessions.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	log := logrus.WithFields(logrus.Fields{"actor": sess.DID, "action": action})

	edges := a.Selection.Marked(models.FlagFor(action))
	run := &models.Run{ActorDID: sess.DID, Action: action, StartedAt: a.now()}
	if len(edges) == 0 {
		log.Info("Nothing marked")
		return run, nil
	}

	opts := batch.Options{
		MaxPerRun:      a.settings.MaxPerRun,
		InterItemDelay: a.settings.InterItemDelay,
	}
	if a.settings.DailyCap > 0 {
		done, err := a.journal.CountSince(ctx, sess.DID, action, a.now().Add(-24*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("count today's mutations: %w", err)
		}
		opts.CapDaily = true
		opts.DailyRemaining = a.settings.DailyCap - done
		log.WithFields(logrus.Fields{"done": done, "cap": a.settings.DailyCap}).Debug("Daily cap")
	}

	if run.ID, err = idgen.NewRunID(); err != nil {
		return nil, err
	}
	log = log.WithField("run", run.ID)
	log.WithField("marked", len(edges)).Info("Starting batch")

	ledger, runErr := a.runner.Run(ctx, sess, edges, action, opts)
	run.Ledger = ledger

	for _, item := range ledger {
		batchOutcomes.WithLabelValues(string(action), string(item.Outcome)).Inc()
		if item.Outcome == models.OutcomeFailed {
			log.WithFields(logrus.Fields{"did": item.DID, "reason": item.Reason}).Warn("Mutation failed")
		}
	}

	if len(ledger) > 0 {
		// the run is journaled even when ctx was cancelled mid-batch
		if err := a.journal.SaveRun(context.WithoutCancel(ctx), *run); err != nil {
			log.Errorf("save run: %v", err)
		}
	}

	succeeded := ledger.Succeeded()
	if action == models.ActionUnfollow {
		a.Selection.Remove(succeeded...)
	} else {
		for _, did := range succeeded {
			a.Selection.Toggle(did, models.FlagFollow, false)
		}
	}

	if ledger.AuthLost() {
		log.Warn("Session lost during batch")
		a.sessions.Invalidate()
	}

	counts := ledger.Counts()
	log.WithFields(logrus.Fields{
		"succeeded": counts[models.OutcomeSucceeded],
		"failed":    counts[models.OutcomeFailed],
		"skipped":   counts[models.OutcomeSkipped],
	}).Info("Batch finished")

	if runErr != nil {
		return run, fmt.Errorf("batch %s: %w", run.ID, runErr)
	}
	return run, nil
}

func (a *App) Query(ctx context.Context, name string) ([]map[string]interface{}, error) {
	logrus.Infof("Run query: %s", name)
	results, err := a.journal.RunQuery(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	return results, nil
}

func (a *App) Logout(ctx context.Context) error {
	return a.sessions.Logout(ctx)
}

func (a *App) checkSession(err error) {
	if errors.Is(err, models.ErrAuthenticationLost) {
		a.sessions.Invalidate()
	}
}
