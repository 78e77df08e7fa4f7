package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

type memoryRun struct {
	run     models.Run
	savedAt time.Time
}

// MemoryJournal keeps runs for the life of the process. Used when Neo4j is not configured.
type MemoryJournal struct {
	mu   sync.Mutex
	runs []memoryRun
	now  func() time.Time
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{now: time.Now}
}

func (m *MemoryJournal) SaveRun(ctx context.Context, run models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.Ledger = append(models.Ledger(nil), run.Ledger...)
	m.runs = append(m.runs, memoryRun{run: run, savedAt: m.now()})
	return nil
}

func (m *MemoryJournal) CountSince(ctx context.Context, actorDID string, action models.Action, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.runs {
		if r.run.ActorDID != actorDID || r.run.Action != action || r.savedAt.Before(since) {
			continue
		}
		n += r.run.Ledger.Counts()[models.OutcomeSucceeded]
	}
	return n, nil
}

func (m *MemoryJournal) RunQuery(ctx context.Context, queryName string) ([]map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch queryName {
	case QueryMutationsToday:
		return m.mutationsSince(m.now().Add(-24 * time.Hour)), nil
	case QueryRecentFailures:
		return m.recentFailures(20), nil
	case QuerySkipReasons:
		return m.skipReasons(), nil
	case QueryRuns:
		return m.lastRuns(10), nil
	default:
		return nil, fmt.Errorf("query %s not found", queryName)
	}
}

func (m *MemoryJournal) mutationsSince(since time.Time) []map[string]interface{} {
	type key struct {
		actor   string
		action  models.Action
		outcome models.Outcome
	}
	totals := map[key]int64{}
	for _, r := range m.runs {
		if r.savedAt.Before(since) {
			continue
		}
		for outcome, n := range r.run.Ledger.Counts() {
			totals[key{r.run.ActorDID, r.run.Action, outcome}] += int64(n)
		}
	}

	keys := make([]key, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].actor != keys[j].actor {
			return keys[i].actor < keys[j].actor
		}
		if keys[i].action != keys[j].action {
			return keys[i].action < keys[j].action
		}
		return keys[i].outcome < keys[j].outcome
	})

	var results []map[string]interface{}
	for _, k := range keys {
		results = append(results, map[string]interface{}{
			"actor":   k.actor,
			"action":  string(k.action),
			"outcome": string(k.outcome),
			"total":   totals[k],
		})
	}
	return results
}

func (m *MemoryJournal) recentFailures(limit int) []map[string]interface{} {
	var results []map[string]interface{}
	for i := len(m.runs) - 1; i >= 0 && len(results) < limit; i-- {
		r := m.runs[i]
		for j := len(r.run.Ledger) - 1; j >= 0 && len(results) < limit; j-- {
			item := r.run.Ledger[j]
			if item.Outcome != models.OutcomeFailed {
				continue
			}
			results = append(results, map[string]interface{}{
				"run":    r.run.ID,
				"action": string(r.run.Action),
				"did":    item.DID,
				"label":  item.Label,
				"reason": item.Reason,
				"at":     r.savedAt,
			})
		}
	}
	return results
}

func (m *MemoryJournal) skipReasons() []map[string]interface{} {
	totals := map[string]int64{}
	for _, r := range m.runs {
		for _, item := range r.run.Ledger {
			if item.Outcome == models.OutcomeSkipped {
				totals[item.Reason]++
			}
		}
	}
	reasons := make([]string, 0, len(totals))
	for reason := range totals {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if totals[reasons[i]] != totals[reasons[j]] {
			return totals[reasons[i]] > totals[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})

	var results []map[string]interface{}
	for _, reason := range reasons {
		results = append(results, map[string]interface{}{"reason": reason, "total": totals[reason]})
	}
	return results
}

func (m *MemoryJournal) lastRuns(limit int) []map[string]interface{} {
	var results []map[string]interface{}
	for i := len(m.runs) - 1; i >= 0 && len(results) < limit; i-- {
		r := m.runs[i].run
		results = append(results, map[string]interface{}{
			"run":        r.ID,
			"actor":      r.ActorDID,
			"action":     string(r.Action),
			"started_at": r.StartedAt,
			"items":      int64(len(r.Ledger)),
		})
	}
	return results
}

func (m *MemoryJournal) Close(ctx context.Context) error {
	return nil
}
