package screening

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/resumatch/cvscreen/internal/models"
)

// Merge order for chunks inside one candidate context.
const (
	MergeOrderRetrieval = "retrieval" // result order, most relevant first
	MergeOrderPosition  = "position"  // original position within the document
)

// MergeBySource groups retrieved chunks back into one candidate per source
// file. Grouping preserves the first-seen order of sources so downstream
// scoring order is reproducible for a fixed retrieval result. Texts are
// joined with a line break; the similarity is the unweighted mean of the
// group's scores.
func MergeBySource(hits []models.ScoredChunk, order string) []models.Candidate {
	var sources []string
	groups := make(map[string][]models.ScoredChunk)

	for _, hit := range hits {
		src := hit.Chunk.Source
		if _, ok := groups[src]; !ok {
			sources = append(sources, src)
		}
		groups[src] = append(groups[src], hit)
	}

	candidates := make([]models.Candidate, 0, len(sources))
	for _, src := range sources {
		group := groups[src]

		if order == MergeOrderPosition {
			sort.SliceStable(group, func(a, b int) bool {
				return group[a].Chunk.Seq < group[b].Chunk.Seq
			})
		}

		texts := make([]string, 0, len(group))
		var sum float64
		for _, hit := range group {
			texts = append(texts, hit.Chunk.Text)
			sum += hit.Similarity
		}

		candidates = append(candidates, models.Candidate{
			Source:     src,
			Filename:   filepath.Base(src),
			Text:       strings.Join(texts, "\n"),
			Similarity: sum / float64(len(group)),
		})
	}

	return candidates
}
