// Package selection keeps the follow/unfollow marks a caller sets over the
// current listing.
package selection

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

// All addresses every edge visible under the active filter.
const All = "all"

type marks struct {
	follow   bool
	unfollow bool
}

func (m marks) get(f models.Flag) bool {
	if f == models.FlagFollow {
		return m.follow
	}
	return m.unfollow
}

func (m *marks) set(f models.Flag, v bool) {
	if f == models.FlagFollow {
		m.follow = v
	} else {
		m.unfollow = v
	}
}

type Set struct {
	mu     sync.RWMutex
	edges  []models.Edge
	marks  map[string]*marks
	filter string
}

func New(edges []models.Edge) *Set {
	s := &Set{}
	s.Reset(edges)
	return s
}

// Reset replaces the backing list and clears every mark.
func (s *Set) Reset(edges []models.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.edges = append([]models.Edge(nil), edges...)
	s.marks = make(map[string]*marks, len(edges))
	for _, e := range s.edges {
		s.marks[e.DID] = &marks{}
	}
}

// Replace swaps in a fresh listing, keeping marks for DIDs still present and
// dropping marks for DIDs that disappeared.
func (s *Set) Replace(edges []models.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*marks, len(edges))
	for _, e := range edges {
		if m, ok := s.marks[e.DID]; ok {
			next[e.DID] = m
		} else {
			next[e.DID] = &marks{}
		}
	}
	s.edges = append([]models.Edge(nil), edges...)
	s.marks = next
}

// Edges returns a copy of the backing list.
func (s *Set) Edges() []models.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Edge(nil), s.edges...)
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// SetFilter sets the text filter that scopes Toggle(All, ...). Empty clears it.
func (s *Set) SetFilter(text string) {
	s.mu.Lock()
	s.filter = text
	s.mu.Unlock()
}

// Filter returns the edges whose display name or description contains text,
// ignoring case. It does not change the active filter.
func (s *Set) Filter(text string) []models.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matching(text)
}

// Visible returns the edges passing the active filter.
func (s *Set) Visible() []models.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matching(s.filter)
}

func (s *Set) matching(text string) []models.Edge {
	if text == "" {
		return append([]models.Edge(nil), s.edges...)
	}
	fold := cases.Fold()
	needle := fold.String(text)

	var out []models.Edge
	for _, e := range s.edges {
		if matches(fold, e, needle) {
			out = append(out, e)
		}
	}
	return out
}

func matches(fold cases.Caser, e models.Edge, needle string) bool {
	return strings.Contains(fold.String(e.DisplayName+" "+e.Description), needle)
}

// Toggle sets flag to value on the edge with the given DID, or on every
// visible edge when id is All. Unknown DIDs are ignored.
func (s *Set) Toggle(id string, flag models.Flag, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != All {
		if m, ok := s.marks[id]; ok {
			m.set(flag, value)
		}
		return
	}
	for _, e := range s.matching(s.filter) {
		s.marks[e.DID].set(flag, value)
	}
}

func (s *Set) IsMarked(id string, flag models.Flag) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.marks[id]
	return ok && m.get(flag)
}

func (s *Set) CountMarked(flag models.Flag) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.marks {
		if m.get(flag) {
			n++
		}
	}
	return n
}

// Marked returns the edges carrying flag, in backing-list order.
func (s *Set) Marked(flag models.Flag) []models.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Edge
	for _, e := range s.edges {
		if s.marks[e.DID].get(flag) {
			out = append(out, e)
		}
	}
	return out
}

// Remove drops the given DIDs from the backing list along with their marks.
func (s *Set) Remove(dids ...string) {
	if len(dids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(dids))
	for _, did := range dids {
		drop[did] = struct{}{}
		delete(s.marks, did)
	}
	kept := s.edges[:0]
	for _, e := range s.edges {
		if _, ok := drop[e.DID]; !ok {
			kept = append(kept, e)
		}
	}
	s.edges = kept
}
