package screening

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/resumatch/cvscreen/internal/models"
	"github.com/resumatch/cvscreen/internal/types"
	"github.com/resumatch/cvscreen/pkg/extract"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PipelineConfig represents the configuration for one screening pipeline.
type PipelineConfig struct {
	TopK            int
	MinSimilarity   float64 // 0 disables the similarity pre-filter
	SelectThreshold float64 // 0 disables selection and the combined score
	SelectedDir     string
	MergeOrder      string
	Extract         bool
	Workers         int
	MoveFile        func(src, dst string) error // defaults to os.Rename
}

// Pipeline runs the query-time flow: retrieval, per-candidate aggregation,
// optional field extraction, concurrent scoring, and final ranking. It holds
// an immutable index handle; rebuilds swap in a new Pipeline rather than
// mutating a running one.
type Pipeline struct {
	config    PipelineConfig
	index     types.Index
	embedder  types.Embedder
	generator types.Generator
	logger    *zap.Logger
}

func NewWithConfig(config PipelineConfig, index types.Index, embedder types.Embedder, generator types.Generator, logger *zap.Logger) *Pipeline {
	if config.TopK == 0 {
		config.TopK = 10
	}
	if config.MergeOrder == "" {
		config.MergeOrder = MergeOrderRetrieval
	}
	if config.Workers == 0 {
		config.Workers = 4
	}
	if config.MoveFile == nil {
		config.MoveFile = os.Rename
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		config:    config,
		index:     index,
		embedder:  embedder,
		generator: generator,
		logger:    logger,
	}
}

// Screen evaluates every indexed candidate relevant to the question and
// returns evaluations ranked by LLM score, highest first. onResult, when
// non-nil, is invoked for each evaluation as its scoring completes. A failure
// of one candidate's grading call never aborts the others.
func (p *Pipeline) Screen(ctx context.Context, question string, onResult func(models.Evaluation)) ([]models.Evaluation, error) {
	vector, err := p.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := p.index.Search(ctx, vector, p.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	candidates := MergeBySource(hits, p.config.MergeOrder)

	if p.config.MinSimilarity > 0 {
		kept := candidates[:0]
		for _, cand := range candidates {
			if cand.Similarity >= p.config.MinSimilarity {
				kept = append(kept, cand)
			}
		}
		candidates = kept
	}

	// One slot per candidate so ties in the final sort keep aggregation
	// order no matter which grading call finishes first.
	evaluations := make([]models.Evaluation, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)

	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			ev := p.evaluate(gctx, question, cand)
			evaluations[i] = ev
			if onResult != nil {
				onResult(ev)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(evaluations, func(a, b int) bool {
		return evaluations[a].LLMScore > evaluations[b].LLMScore
	})

	return evaluations, nil
}

func (p *Pipeline) evaluate(ctx context.Context, question string, cand models.Candidate) models.Evaluation {
	ev := models.Evaluation{
		Source:     cand.Source,
		Filename:   cand.Filename,
		Similarity: cand.Similarity,
	}

	if p.config.Extract {
		profile := extract.Extract(cand.Text)
		ev.Profile = &profile
	}

	prompt := buildPrompt(question, cand.Text, ev.Profile)

	response, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		p.logger.Warn("grading call failed",
			zap.String("filename", cand.Filename),
			zap.Error(err),
		)
		ev.Failed = true
		ev.Justification = fmt.Sprintf("evaluation unavailable: %v", err)
		return ev
	}

	ev.LLMScore = ParseGrade(response)
	ev.Justification = strings.TrimSpace(response)

	if p.config.SelectThreshold > 0 {
		ev.Combined = CombinedScore(cand.Similarity, ev.LLMScore)
		if ev.Combined >= p.config.SelectThreshold {
			ev.Promoted = p.promote(cand)
		}
	}

	return ev
}

// promote moves the original CV file into the selected directory. A move
// failure is logged and ignored; the evaluation itself is unaffected.
func (p *Pipeline) promote(cand models.Candidate) bool {
	if err := os.MkdirAll(p.config.SelectedDir, 0o755); err != nil {
		p.logger.Warn("failed to create selected directory",
			zap.String("dir", p.config.SelectedDir),
			zap.Error(err),
		)
		return false
	}

	dst := filepath.Join(p.config.SelectedDir, cand.Filename)
	if err := p.config.MoveFile(cand.Source, dst); err != nil {
		p.logger.Warn("failed to move selected CV",
			zap.String("source", cand.Source),
			zap.String("dest", dst),
			zap.Error(err),
		)
		return false
	}

	return true
}

var gradePattern = regexp.MustCompile(`NOTE\s*:\s*(\d+)`)

// ParseGrade recovers the numeric grade from the model's free-text response.
// The token is an implicit contract with the prompt wording; when the model
// drifts from it the grade defaults to 0 instead of failing the document.
func ParseGrade(response string) int {
	match := gradePattern.FindStringSubmatch(response)
	if match == nil {
		return 0
	}

	grade, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return grade
}

// CombinedScore blends the retrieval similarity with the model grade,
// weighted 40/60 in favor of the model's judgment.
func CombinedScore(similarity float64, llmScore int) float64 {
	return 4*similarity + 6*(float64(llmScore)/10)
}
