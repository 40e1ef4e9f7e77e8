package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/resumatch/cvscreen/internal/models"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
)

// ErrNoDocuments is returned when the staging directory holds nothing loadable.
var ErrNoDocuments = errors.New("no loadable documents in staging directory")

type IngesterConfig struct {
	StagingDir   string
	ChunkSize    int
	ChunkOverlap int
}

// Ingester loads CV files from a staging directory and splits them into
// overlapping chunks ready for embedding.
type Ingester struct {
	config   IngesterConfig
	splitter textsplitter.RecursiveCharacter
}

func NewWithConfig(config IngesterConfig) Ingester {
	if config.ChunkSize == 0 {
		config.ChunkSize = 200
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 20
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(config.ChunkSize),
		textsplitter.WithChunkOverlap(config.ChunkOverlap),
	)

	return Ingester{
		config:   config,
		splitter: splitter,
	}
}

// Ingest loads every supported file in the staging directory and returns the
// resulting chunks. It fails if the directory is unreadable or no file could
// be loaded, so a broken batch never produces a partial index.
func (in *Ingester) Ingest(ctx context.Context) ([]models.Chunk, error) {
	entries, err := os.ReadDir(in.config.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read staging directory: %w", err)
	}

	var chunks []models.Chunk
	loaded := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(in.config.StagingDir, entry.Name())
		text, err := loadFile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", entry.Name(), err)
		}
		if text == "" {
			continue
		}
		loaded++

		parts, err := in.splitter.SplitText(text)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", entry.Name(), err)
		}

		for i, part := range parts {
			chunks = append(chunks, models.Chunk{
				Source: path,
				Seq:    i,
				Text:   part,
			})
		}
	}

	if loaded == 0 {
		return nil, ErrNoDocuments
	}

	return chunks, nil
}

// loadFile extracts raw text from a single file. Unsupported extensions yield
// an empty string and are skipped by the caller.
func loadFile(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return loadText(ctx, path)
	case ".pdf":
		return loadPDF(ctx, path)
	case ".html", ".htm":
		return loadHTML(path)
	default:
		return "", nil
	}
}

func loadText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for _, doc := range docs {
		builder.WriteString(doc.PageContent)
	}
	return strings.TrimSpace(builder.String()), nil
}

func loadPDF(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return "", err
	}

	// Pages are concatenated into one document before splitting.
	pages := make([]string, 0, len(docs))
	for _, doc := range docs {
		pages = append(pages, doc.PageContent)
	}
	return strings.TrimSpace(strings.Join(pages, "\n")), nil
}

func loadHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript").Remove()
	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	// Collapse runs of whitespace left behind by markup
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n"), nil
}
