// Package search finds records in a cached dataset by fuzzy matching one
// field.
package search

import (
	"fmt"
	"sort"
	"strings"

	lfuzzy "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/sahilm/fuzzy"
)

// Match is a record that matched a query
type Match struct {
	Record         domain.Record
	Index          int    // Position in the searched slice
	Value          string // Field value that matched
	Score          int    // Match score (higher = better)
	Distance       int    // Levenshtein distance between query and value
	MatchedIndexes []int  // Character positions that matched (for highlighting)
}

// fieldIndex implements sahilm/fuzzy.Source over one record field
type fieldIndex struct {
	lower []string
}

// String returns the lowercase value at index i (implements fuzzy.Source)
func (idx *fieldIndex) String(i int) string { return idx.lower[i] }

// Len returns the number of values (implements fuzzy.Source)
func (idx *fieldIndex) Len() int { return len(idx.lower) }

// Records returns the records whose field matches query, best first.
//
// Values are matched as case-insensitive subsequences. Values that only
// match once accents are folded ("joao" for "João") are appended with a
// zero score. Ties are broken by edit distance to the query, then by
// position.
func Records(query string, records []domain.Record, field string) []Match {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || len(records) == 0 {
		return nil
	}

	idx := &fieldIndex{lower: make([]string, len(records))}
	values := make([]string, len(records))
	for i, rec := range records {
		values[i] = fieldValue(rec, field)
		idx.lower[i] = strings.ToLower(values[i])
	}

	matched := make(map[int]bool)
	var results []Match
	for _, m := range fuzzy.FindFrom(query, idx) {
		matched[m.Index] = true
		results = append(results, newMatch(query, records, values, idx, m.Index, m.Score, m.MatchedIndexes))
	}

	for i, v := range values {
		if matched[i] || v == "" {
			continue
		}
		if lfuzzy.MatchNormalizedFold(query, v) {
			results = append(results, newMatch(query, records, values, idx, i, 0, nil))
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		if results[a].Distance != results[b].Distance {
			return results[a].Distance < results[b].Distance
		}
		return results[a].Index < results[b].Index
	})
	return results
}

func newMatch(query string, records []domain.Record, values []string, idx *fieldIndex, i, score int, positions []int) Match {
	return Match{
		Record:         records[i],
		Index:          i,
		Value:          values[i],
		Score:          score,
		Distance:       lfuzzy.LevenshteinDistance(query, idx.lower[i]),
		MatchedIndexes: positions,
	}
}

// fieldValue renders a record field as text; missing and null fields are ""
func fieldValue(rec domain.Record, field string) string {
	v, ok := rec[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
