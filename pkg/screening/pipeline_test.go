package screening_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/resumatch/cvscreen/internal/models"
	"github.com/resumatch/cvscreen/pkg/screening"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func (fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeIndex struct {
	hits []models.ScoredChunk
}

func (f fakeIndex) Search(_ context.Context, _ []float32, k int) ([]models.ScoredChunk, error) {
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f fakeIndex) Len() int { return len(f.hits) }

// fakeGenerator answers by matching a key against the prompt, which embeds the
// candidate's CV text.
type fakeGenerator struct {
	responses map[string]string
	errors    map[string]error
}

func (f fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	for key, err := range f.errors {
		if strings.Contains(prompt, key) {
			return "", err
		}
	}
	for key, response := range f.responses {
		if strings.Contains(prompt, key) {
			return response, nil
		}
	}
	return "no grade here", nil
}

func TestParseGrade(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected int
	}{
		{"standard format", "NOTE: 7/10 - Decision: Keep\nJustification: solid profile.", 7},
		{"spaced colon", "NOTE : 5", 5},
		{"grade later in text", "The candidate fits.\nNOTE: 10/10", 10},
		{"missing token", "I would rate this candidate highly.", 0},
		{"empty response", "", 0},
		{"lowercase token ignored", "note: 8", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, screening.ParseGrade(tt.response))
		})
	}
}

func TestCombinedScore(t *testing.T) {
	assert.InDelta(t, 8.0, screening.CombinedScore(0.8, 8), 1e-9)
	assert.InDelta(t, 10.0, screening.CombinedScore(1.0, 10), 1e-9)
	assert.InDelta(t, 0.0, screening.CombinedScore(0, 0), 1e-9)
	// Model judgment dominates: a weak match with a strong grade still scores
	// above a strong match with a weak grade.
	assert.Greater(t, screening.CombinedScore(0.2, 9), screening.CombinedScore(0.9, 3))
}

func TestScreenRanksByGrade(t *testing.T) {
	index := fakeIndex{hits: []models.ScoredChunk{
		hit("data/raw/weak.txt", 0, "WEAK-CANDIDATE text", 0.9),
		hit("data/raw/strong.txt", 0, "STRONG-CANDIDATE text", 0.5),
	}}

	generator := fakeGenerator{responses: map[string]string{
		"WEAK-CANDIDATE":   "NOTE: 4/10 - Decision: Reject\nJustification: limited experience.",
		"STRONG-CANDIDATE": "NOTE: 9/10 - Decision: Keep\nJustification: excellent fit.",
	}}

	pipeline := screening.NewWithConfig(screening.PipelineConfig{Workers: 2}, index, fakeEmbedder{}, generator, nil)

	evaluations, err := pipeline.Screen(context.Background(), "Who knows Go?", nil)
	require.NoError(t, err)
	require.Len(t, evaluations, 2)

	// Highest grade first, regardless of retrieval similarity.
	assert.Equal(t, "strong.txt", evaluations[0].Filename)
	assert.Equal(t, 9, evaluations[0].LLMScore)
	assert.Equal(t, "weak.txt", evaluations[1].Filename)
	assert.Equal(t, 4, evaluations[1].LLMScore)
	assert.Contains(t, evaluations[0].Justification, "excellent fit")
}

func TestScreenMinSimilarityFilter(t *testing.T) {
	index := fakeIndex{hits: []models.ScoredChunk{
		hit("close.txt", 0, "CLOSE text", 0.9),
		hit("far.txt", 0, "FAR text", 0.3),
	}}

	generator := fakeGenerator{responses: map[string]string{
		"CLOSE": "NOTE: 6/10",
		"FAR":   "NOTE: 6/10",
	}}

	pipeline := screening.NewWithConfig(screening.PipelineConfig{
		MinSimilarity: 0.5,
	}, index, fakeEmbedder{}, generator, nil)

	evaluations, err := pipeline.Screen(context.Background(), "Who knows Go?", nil)
	require.NoError(t, err)
	require.Len(t, evaluations, 1)
	assert.Equal(t, "close.txt", evaluations[0].Filename)
}

func TestScreenFailureDoesNotAbortSiblings(t *testing.T) {
	index := fakeIndex{hits: []models.ScoredChunk{
		hit("broken.txt", 0, "BROKEN text", 0.9),
		hit("fine.txt", 0, "FINE text", 0.8),
	}}

	generator := fakeGenerator{
		responses: map[string]string{"FINE": "NOTE: 7/10 - Decision: Keep\nJustification: good."},
		errors:    map[string]error{"BROKEN": errors.New("model unavailable")},
	}

	pipeline := screening.NewWithConfig(screening.PipelineConfig{}, index, fakeEmbedder{}, generator, nil)

	evaluations, err := pipeline.Screen(context.Background(), "Who knows Go?", nil)
	require.NoError(t, err)
	require.Len(t, evaluations, 2)

	// The failed candidate falls to the bottom with a zero grade.
	assert.Equal(t, "fine.txt", evaluations[0].Filename)
	assert.Equal(t, 7, evaluations[0].LLMScore)

	failed := evaluations[1]
	assert.Equal(t, "broken.txt", failed.Filename)
	assert.True(t, failed.Failed)
	assert.Zero(t, failed.LLMScore)
	assert.Contains(t, failed.Justification, "evaluation unavailable")
}

func TestScreenSelection(t *testing.T) {
	index := fakeIndex{hits: []models.ScoredChunk{
		hit("data/raw/keep.txt", 0, "KEEP-ME text", 0.9),
		hit("data/raw/reject.txt", 0, "REJECT-ME text", 0.2),
	}}

	generator := fakeGenerator{responses: map[string]string{
		"KEEP-ME":   "NOTE: 9/10 - Decision: Keep\nJustification: strong.",
		"REJECT-ME": "NOTE: 2/10 - Decision: Reject\nJustification: weak.",
	}}

	var mu sync.Mutex
	moves := make(map[string]string)

	pipeline := screening.NewWithConfig(screening.PipelineConfig{
		SelectThreshold: 6,
		SelectedDir:     t.TempDir(),
		MoveFile: func(src, dst string) error {
			mu.Lock()
			defer mu.Unlock()
			moves[src] = dst
			return nil
		},
	}, index, fakeEmbedder{}, generator, nil)

	evaluations, err := pipeline.Screen(context.Background(), "Who knows Go?", nil)
	require.NoError(t, err)
	require.Len(t, evaluations, 2)

	keep := evaluations[0]
	assert.Equal(t, "keep.txt", keep.Filename)
	assert.InDelta(t, 9.0, keep.Combined, 1e-9) // 4*0.9 + 6*(9/10)
	assert.True(t, keep.Promoted)

	reject := evaluations[1]
	assert.InDelta(t, 2.0, reject.Combined, 1e-9) // 4*0.2 + 6*(2/10)
	assert.False(t, reject.Promoted)

	require.Len(t, moves, 1)
	dst, ok := moves["data/raw/keep.txt"]
	require.True(t, ok)
	assert.Equal(t, "keep.txt", filepathBase(dst))
}

func TestScreenSelectionMoveFailure(t *testing.T) {
	index := fakeIndex{hits: []models.ScoredChunk{
		hit("good.txt", 0, "GOOD text", 0.9),
	}}

	generator := fakeGenerator{responses: map[string]string{
		"GOOD": "NOTE: 10/10 - Decision: Keep\nJustification: perfect.",
	}}

	pipeline := screening.NewWithConfig(screening.PipelineConfig{
		SelectThreshold: 6,
		SelectedDir:     t.TempDir(),
		MoveFile: func(src, dst string) error {
			return errors.New("disk full")
		},
	}, index, fakeEmbedder{}, generator, nil)

	evaluations, err := pipeline.Screen(context.Background(), "Who knows Go?", nil)
	require.NoError(t, err)
	require.Len(t, evaluations, 1)

	// The move failure is absorbed: the evaluation still carries its scores.
	assert.False(t, evaluations[0].Promoted)
	assert.Equal(t, 10, evaluations[0].LLMScore)
	assert.InDelta(t, 9.6, evaluations[0].Combined, 1e-9)
}

func TestScreenStreamsResults(t *testing.T) {
	index := fakeIndex{hits: []models.ScoredChunk{
		hit("a.txt", 0, "AAA text", 0.9),
		hit("b.txt", 0, "BBB text", 0.8),
	}}

	generator := fakeGenerator{responses: map[string]string{
		"AAA": "NOTE: 5/10",
		"BBB": "NOTE: 8/10",
	}}

	pipeline := screening.NewWithConfig(screening.PipelineConfig{}, index, fakeEmbedder{}, generator, nil)

	var mu sync.Mutex
	var streamed []string

	_, err := pipeline.Screen(context.Background(), "Who knows Go?", func(ev models.Evaluation) {
		mu.Lock()
		defer mu.Unlock()
		streamed = append(streamed, ev.Filename)
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, streamed)
}

func filepathBase(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
