// Package knowledge maintains the snippet store the council retrieves from
// before prompting: chunks of research notes, filings, and reports indexed
// by token overlap.
package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Snippet is one retrievable chunk of a research document.
type Snippet struct {
	ID     string
	Source string
	Symbol string
	Text   string
}

// Scored pairs a snippet with its retrieval score for a query.
type Scored struct {
	Snippet Snippet
	Score   float64
}

// Store indexes snippets for token-overlap retrieval.
type Store struct {
	mu       sync.RWMutex
	snippets []Snippet
	tokens   []map[string]struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Add indexes a snippet. Empty text is rejected.
func (s *Store) Add(snippet Snippet) error {
	if strings.TrimSpace(snippet.Text) == "" {
		return fmt.Errorf("knowledge: snippet %s has no text", snippet.ID)
	}
	if snippet.ID == "" {
		return fmt.Errorf("knowledge: snippet id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snippets = append(s.snippets, snippet)
	s.tokens = append(s.tokens, tokenSet(snippet.Text))
	return nil
}

// Len reports how many snippets are indexed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snippets)
}

// Retrieve returns up to k snippets ranked by the fraction of query tokens
// they contain. Snippets with no overlap are omitted. Ties break by ID so
// results are deterministic.
func (s *Store) Retrieve(query string, k int) []Scored {
	if k <= 0 {
		return nil
	}
	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]Scored, 0, len(s.snippets))
	for i, snippet := range s.snippets {
		overlap := 0
		for token := range queryTokens {
			if _, ok := s.tokens[i][token]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		scored = append(scored, Scored{
			Snippet: snippet,
			Score:   float64(overlap) / float64(len(queryTokens)),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			return scored[i].Snippet.ID < scored[j].Snippet.ID
		}
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// tokenSet lowercases and splits text on non-letter/digit boundaries.
// Han ideograph runs stay together, which is good enough for ticker and
// keyword matching.
func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
