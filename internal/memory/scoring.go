package memory

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// keywordScore is the fraction of distinct query terms present in content.
func keywordScore(query, content string) float64 {
	q := terms(query)
	if len(q) == 0 {
		return 0
	}
	c := terms(content)
	hits := 0
	for t := range q {
		if _, ok := c[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(q))
}

func terms(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true,
	"that": true, "to": true, "of": true, "in": true, "on": true,
	"is": true, "it": true, "an": true, "be": true, "as": true,
}

// cosine returns the cosine similarity of a and b, 0 for mismatched or zero vectors.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank applies threshold, ordering and the result cap shared by all adapters.
// Scored entries sort by descending relevance, ties by creation time.
func rank(entries []Entry, q Query) Result {
	if q.Text != "" {
		kept := entries[:0]
		for _, e := range entries {
			if e.Relevance != nil && *e.Relevance >= q.Threshold {
				kept = append(kept, e)
			}
		}
		entries = kept
		sort.SliceStable(entries, func(i, j int) bool {
			return *entries[i].Relevance > *entries[j].Relevance
		})
	}
	res := Result{TotalCount: len(entries)}
	if q.MaxResults > 0 && len(entries) > q.MaxResults {
		entries = entries[:q.MaxResults]
	}
	res.Entries = entries
	return res
}

func score(v float64) *float64 { return &v }
