package producer

import (
	"context"

	"github.com/antzucaro/matchr"
)

// Search interleaves search results from every registered source for
// query, preserving the original engine's round-robin merge (one slot per
// source per round, cycling in the order given by order). Each source's
// results are first sorted by Jaro-Winkler similarity against query, so
// every source contributes its closest textual match in the first round.
func Search(sources map[SongType]Source, order []SongType, query string) []Song {
	results := make(map[SongType][]Song, len(order))
	maxLen := 0
	for _, t := range order {
		src, ok := sources[t]
		if !ok {
			continue
		}
		found, err := src.Search(context.Background(), query)
		if err != nil {
			continue
		}
		rankBySimilarity(found, query)
		results[t] = found
		if len(found) > maxLen {
			maxLen = len(found)
		}
	}

	var merged []Song
	for i := 0; i < maxLen; i++ {
		for _, t := range order {
			list := results[t]
			if i < len(list) {
				merged = append(merged, list[i])
			}
		}
	}
	return merged
}

// rankBySimilarity sorts songs in place, closest query match first,
// using Jaro-Winkler similarity over each song's Query field (the text
// the source returned alongside its result).
func rankBySimilarity(songs []Song, query string) {
	scores := make([]float64, len(songs))
	for i, s := range songs {
		scores[i] = matchr.JaroWinkler(query, s.Query, true)
	}
	// insertion sort: result sets per source are small (typically under
	// 25 entries), so this avoids pulling in sort.Slice's closures for a
	// negligible win.
	for i := 1; i < len(songs); i++ {
		j := i
		for j > 0 && scores[j-1] < scores[j] {
			scores[j-1], scores[j] = scores[j], scores[j-1]
			songs[j-1], songs[j] = songs[j], songs[j-1]
			j--
		}
	}
}
