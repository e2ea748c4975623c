// Package fuzzy scores free-text queries against a vocabulary of reference names.
package fuzzy

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of distinct queries whose scores are memoised.
const DefaultCacheSize = 256

// Candidate is one scored vocabulary name.
type Candidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	// Index is the first-seen position of Name in the vocabulary.
	Index int `json:"-"`
}

// Options controls Extract.
type Options struct {
	// Limit caps the number of candidates returned; 0 means no cap.
	Limit int
	// Threshold, when set, drops every candidate scoring <= *Threshold
	// before Limit is applied.
	Threshold *float64
}

// Matcher scores queries against a fixed vocabulary. Duplicate names are
// scored once; callers map a name back to every row that carries it.
// A Matcher is safe for concurrent use.
type Matcher struct {
	names     []string
	processed []string
	cache     *lru.Cache[string, []Candidate]
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithCacheSize sets the score cache size. Zero or negative disables caching.
func WithCacheSize(size int) MatcherOption {
	return func(m *Matcher) {
		if size <= 0 {
			m.cache = nil
			return
		}
		m.cache, _ = lru.New[string, []Candidate](size)
	}
}

// NewMatcher builds a matcher over vocabulary, keeping first-seen order.
func NewMatcher(vocabulary []string, opts ...MatcherOption) *Matcher {
	m := &Matcher{}
	seen := make(map[string]struct{}, len(vocabulary))
	for _, name := range vocabulary {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		m.names = append(m.names, name)
		m.processed = append(m.processed, Process(name))
	}

	WithCacheSize(DefaultCacheSize)(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Len returns the number of distinct names.
func (m *Matcher) Len() int {
	return len(m.names)
}

// Extract returns candidates ordered by score descending, ties in
// vocabulary order. The returned slice is owned by the caller.
func (m *Matcher) Extract(query string, opts Options) []Candidate {
	if len(m.names) == 0 {
		return []Candidate{}
	}

	ranked := m.rank(Process(query))

	out := make([]Candidate, 0, len(ranked))
	for _, c := range ranked {
		if opts.Threshold != nil && c.Score <= *opts.Threshold {
			// Sorted descending: nothing after this passes either.
			break
		}
		out = append(out, c)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}

// rank scores every name against an already processed query.
// The cached slice must not be modified.
func (m *Matcher) rank(query string) []Candidate {
	if m.cache != nil {
		if ranked, ok := m.cache.Get(query); ok {
			return ranked
		}
	}

	ranked := make([]Candidate, len(m.names))
	for i, name := range m.names {
		ranked[i] = Candidate{Name: name, Score: WRatio(query, m.processed[i]), Index: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if m.cache != nil {
		m.cache.Add(query, ranked)
	}
	return ranked
}
