// Package matcher binds raw product strings to the active catalog: exact
// lookup on the normalized name first, Levenshtein-ratio fuzzy match second.
package matcher

import (
	"math"

	"github.com/delsur/comandero/internal/domain"
	"github.com/delsur/comandero/internal/textnorm"
)

// DefaultThreshold is the minimum fuzzy ratio (0-100) accepted as a match,
// overridable via FUZZY_MATCH_THRESHOLD.
const DefaultThreshold = 80

// Method mirrors domain.MatchMethod for matcher results.
type Method = domain.MatchMethod

// Result is the outcome of matching one raw product string.
type Result struct {
	Method    Method
	ProductID string
	Family    int
	// Score is 1.0 for exact hits, ratio/100 for fuzzy hits, 0 otherwise.
	Score float64
}

// Matcher matches against one catalog snapshot. Entries must be in catalog
// scan order (alphabetical by norm_name, as the loader guarantees); ties in
// the fuzzy phase resolve to the first entry scanned.
type Matcher struct {
	threshold int
	entries   []domain.CatalogProduct
	byNorm    map[string]int
}

// New builds a Matcher over the given snapshot. A threshold outside (0,100]
// falls back to DefaultThreshold.
func New(entries []domain.CatalogProduct, threshold int) *Matcher {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	byNorm := make(map[string]int, len(entries))
	for i, e := range entries {
		if _, dup := byNorm[e.NormName]; !dup {
			byNorm[e.NormName] = i
		}
	}
	return &Matcher{threshold: threshold, entries: entries, byNorm: byNorm}
}

// Match resolves one raw product string against the snapshot.
func (m *Matcher) Match(raw string) Result {
	key := textnorm.Norm(raw)
	if key == "" || len(m.entries) == 0 {
		return Result{Method: domain.MatchNoMatch}
	}

	if i, ok := m.byNorm[key]; ok {
		e := m.entries[i]
		return Result{Method: domain.MatchExact, ProductID: e.ID, Family: e.Family, Score: 1.0}
	}

	bestRatio := -1
	bestIdx := -1
	for i, e := range m.entries {
		r := Ratio(key, e.NormName)
		if r > bestRatio {
			bestRatio = r
			bestIdx = i
		}
	}
	if bestIdx >= 0 && bestRatio >= m.threshold {
		e := m.entries[bestIdx]
		return Result{Method: domain.MatchFuzzy, ProductID: e.ID, Family: e.Family, Score: float64(bestRatio) / 100}
	}

	return Result{Method: domain.MatchNoMatch}
}

// Ratio is the Levenshtein similarity as an integer percentage:
// 100 × (1 − distance ÷ max(len a, len b)). Two empty strings are 100.
func Ratio(a, b string) int {
	la, lb := len(a), len(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 100
	}
	d := levenshtein(a, b)
	return int(math.Round(100 * (1 - float64(d)/float64(longest))))
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}

	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
