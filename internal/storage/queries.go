package storage

import "sort"

const (
	QueryMutationsToday = "mutations_today"
	QueryRecentFailures = "recent_failures"
	QuerySkipReasons    = "skip_reasons"
	QueryRuns           = "runs"
)

var neo4jQueries = map[string]string{
	// mutations of the last 24 hours per actor, action and outcome
	QueryMutationsToday: `
			MATCH (a:Account)-[:RAN]->(r:Run)-[m:MUTATION]->(:Account)
			WHERE m.at >= datetime() - duration('P1D')
			RETURN a.did AS actor, r.action AS action, m.outcome AS outcome, COUNT(m) AS total
			ORDER BY actor, action, outcome
		`,
	// last 20 failed mutations
	QueryRecentFailures: `
			MATCH (r:Run)-[m:MUTATION {outcome: 'failed'}]->(t:Account)
			RETURN r.id AS run, r.action AS action, t.did AS did, t.label AS label, m.reason AS reason, m.at AS at
			ORDER BY m.at DESC
			LIMIT 20
		`,
	// why items were skipped
	QuerySkipReasons: `
			MATCH (:Run)-[m:MUTATION {outcome: 'skipped'}]->(:Account)
			RETURN m.reason AS reason, COUNT(m) AS total
			ORDER BY total DESC
		`,
	// last 10 runs with their size
	QueryRuns: `
		MATCH (a:Account)-[:RAN]->(r:Run)
		OPTIONAL MATCH (r)-[m:MUTATION]->(:Account)
		RETURN r.id AS run, a.did AS actor, r.action AS action, r.started_at AS started_at, COUNT(m) AS items
		ORDER BY r.started_at DESC
		LIMIT 10
	`,
}

// QueryNames lists the predefined journal queries.
func QueryNames() []string {
	names := make([]string, 0, len(neo4jQueries))
	for name := range neo4jQueries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsQuery reports whether name is a predefined journal query.
func IsQuery(name string) bool {
	_, ok := neo4jQueries[name]
	return ok
}
