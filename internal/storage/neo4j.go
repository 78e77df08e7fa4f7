package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

// Neo4jJournal stores batch runs as (:Account)-[:RAN]->(:Run)-[:MUTATION]->(:Account).
type Neo4jJournal struct {
	Driver neo4j.DriverWithContext
}

func NewNeo4jJournal(uri, username, password string) (*Neo4jJournal, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("connect to driver: %w", err)
	}
	return &Neo4jJournal{Driver: driver}, nil
}

func (s *Neo4jJournal) Close(ctx context.Context) error {
	return s.Driver.Close(ctx)
}

func closeSession(ctx context.Context, session neo4j.SessionWithContext) {
	if err := session.Close(ctx); err != nil {
		logrus.Warnf("close session: %v", err)
	}
}

// EnsureSchema creates the uniqueness constraints. Idempotent.
func (s *Neo4jJournal) EnsureSchema(ctx context.Context) error {
	session := s.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer closeSession(ctx, session)

	for _, query := range []string{
		`CREATE CONSTRAINT account_did_unique IF NOT EXISTS FOR (a:Account) REQUIRE a.did IS UNIQUE`,
		`CREATE CONSTRAINT run_id_unique IF NOT EXISTS FOR (r:Run) REQUIRE r.id IS UNIQUE`,
	} {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Neo4jJournal) SaveRun(ctx context.Context, run models.Run) error {
	items := make([]map[string]interface{}, 0, len(run.Ledger))
	for _, item := range run.Ledger {
		items = append(items, map[string]interface{}{
			"ordinal": item.Ordinal,
			"did":     item.DID,
			"label":   item.Label,
			"outcome": string(item.Outcome),
			"reason":  item.Reason,
		})
	}

	session := s.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer closeSession(ctx, session)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(
			ctx,
			`
			MERGE (a:Account {did: $actor})
			CREATE (r:Run {id: $id, action: $action, started_at: $started_at})
			CREATE (a)-[:RAN]->(r)
			WITH r
			UNWIND $items AS item
			MERGE (t:Account {did: item.did})
			SET t.label = item.label
			CREATE (r)-[:MUTATION {ordinal: item.ordinal, outcome: item.outcome, reason: item.reason, at: $at}]->(t)
			`,
			map[string]interface{}{
				"actor":      run.ActorDID,
				"id":         run.ID,
				"action":     string(run.Action),
				"started_at": run.StartedAt,
				"at":         time.Now().UTC(),
				"items":      items,
			},
		)
		return nil, err
	})
	if err != nil {
		logrus.Errorf("save run %s: %v", run.ID, err)
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// CountSince counts actor's succeeded mutations of the given action recorded at or after since.
func (s *Neo4jJournal) CountSince(ctx context.Context, actorDID string, action models.Action, since time.Time) (int, error) {
	session := s.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer closeSession(ctx, session)

	total, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(
			ctx,
			`
			MATCH (:Account {did: $actor})-[:RAN]->(:Run {action: $action})-[m:MUTATION {outcome: 'succeeded'}]->(:Account)
			WHERE m.at >= $since
			RETURN COUNT(m) AS total
			`,
			map[string]interface{}{
				"actor":  actorDID,
				"action": string(action),
				"since":  since.UTC(),
			},
		)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		v, _ := record.Get("total")
		return v, nil
	})
	if err != nil {
		return 0, fmt.Errorf("count mutations: %w", err)
	}
	n, ok := total.(int64)
	if !ok {
		return 0, fmt.Errorf("count mutations: unexpected result %T", total)
	}
	return int(n), nil
}

func (s *Neo4jJournal) RunQuery(ctx context.Context, queryName string) ([]map[string]interface{}, error) {
	query, exists := neo4jQueries[queryName]
	if !exists {
		return nil, fmt.Errorf("query %s not found", queryName)
	}

	session := s.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer closeSession(ctx, session)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]interface{}, 0, len(records))
		for _, record := range records {
			out = append(out, record.AsMap())
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("run query %s: %w", queryName, err)
	}
	return rows.([]map[string]interface{}), nil
}

func (s *Neo4jJournal) Ping(ctx context.Context) error {
	if err := s.Driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("ping neo4j: %w", err)
	}
	return nil
}
