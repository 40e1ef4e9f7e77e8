package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/resumatch/cvscreen/internal/logger"
	cfgPkg "github.com/resumatch/cvscreen/pkg/config"
	"github.com/resumatch/cvscreen/pkg/ingest"
	"github.com/resumatch/cvscreen/pkg/llm"
	"github.com/resumatch/cvscreen/pkg/store"
	"github.com/resumatch/cvscreen/server"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

func main() {
	// Optional .env in the working directory
	_ = godotenv.Load()

	config, buildOnly, debug, jsonLogs := parseFlags()

	if errs := config.Validate(); len(errs) > 0 {
		for _, err := range errs {
			color.Red("config: %v", err)
		}
		os.Exit(1)
	}

	if err := run(config, buildOnly, debug, jsonLogs); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() (*cfgPkg.Config, bool, bool, bool) {
	var configPath string
	var baseURL, dbURL, model, stagingDir, port string
	var buildOnly, debug, jsonLogs bool

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&baseURL, "ollama-url", "", "Ollama server URL")
	flag.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string (pgvector backend)")
	flag.StringVar(&model, "model", "", "LLM model to use for grading")
	flag.StringVar(&stagingDir, "cv-dir", "", "Staging directory holding the CV batch")
	flag.StringVar(&port, "port", "", "HTTP port")
	flag.BoolVar(&buildOnly, "build", false, "Build the index from the staging directory and exit")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&jsonLogs, "json-logs", false, "Emit JSON logs")
	flag.Parse()

	config, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		color.Red("failed to load config: %v", err)
		os.Exit(1)
	}

	// Command line flags override the config file
	if baseURL != "" {
		config.LLM.BaseURL = baseURL
		config.Embedding.BaseURL = baseURL
	}
	if dbURL != "" {
		config.Store.URL = dbURL
	}
	if model != "" {
		config.LLM.Model = model
	}
	if stagingDir != "" {
		config.Ingest.StagingDir = stagingDir
	}
	if port != "" {
		config.Server.Port = port
	}

	return config, buildOnly, debug, jsonLogs
}

func run(config *cfgPkg.Config, buildOnly, debug, jsonLogs bool) error {
	zlog, err := logger.New(jsonLogs, debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	if buildOnly {
		return buildIndex(config)
	}

	srv, err := server.New(config, zlog)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %v", err)
	}

	if err := srv.LoadIndex(context.Background()); err != nil {
		zlog.Warn("could not load existing index", zap.Error(err))
	}

	return srv.ListenAndServe()
}

// buildIndex runs the one-shot ingestion and index build with progress output.
func buildIndex(config *cfgPkg.Config) error {
	ctx := context.Background()

	color.Blue("\nBuilding CV index from %s\n", config.Ingest.StagingDir)

	ingester := ingest.NewWithConfig(ingest.IngesterConfig{
		StagingDir:   config.Ingest.StagingDir,
		ChunkSize:    config.Ingest.ChunkSize,
		ChunkOverlap: config.Ingest.ChunkOverlap,
	})

	chunks, err := ingester.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("failed to ingest CVs: %v", err)
	}
	color.Green("✓ Loaded and split into %d chunks\n", len(chunks))

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   config.Embedding.Model,
		BaseURL: config.Embedding.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	bar := getProgressBar(len(chunks), "Embedding chunks...")

	index, err := store.Build(ctx, store.BuildConfig{
		Backend:      config.Store.Backend,
		SnapshotPath: config.Store.SnapshotPath,
		ConnString:   config.Store.URL,
		TableName:    config.Store.TableName,
		VectorDim:    config.Store.VectorDim,
		BatchSize:    config.Store.BatchSize,
	}, embedder, chunks, func(done int) {
		bar.Set(done)
	})
	if err != nil {
		return fmt.Errorf("failed to build index: %v", err)
	}
	bar.Finish()

	color.Green("\n✓ Indexed %d chunks\n", index.Len())

	if closer, ok := index.(interface{ Close() }); ok {
		closer.Close()
	}
	return nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
