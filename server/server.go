package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/resumatch/cvscreen/internal/models"
	"github.com/resumatch/cvscreen/internal/types"
	"github.com/resumatch/cvscreen/pkg/config"
	"github.com/resumatch/cvscreen/pkg/ingest"
	"github.com/resumatch/cvscreen/pkg/llm"
	"github.com/resumatch/cvscreen/pkg/screening"
	"github.com/resumatch/cvscreen/pkg/store"
	"go.uber.org/zap"
)

const minQuestionLength = 5

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the WebSocket frame exchanged with clients.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Server owns the screening pipeline lifecycle: it loads the last index at
// startup, rebuilds it on demand, and swaps the handle under a lock so
// in-flight queries keep reading their own immutable snapshot.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder types.Embedder
	grader   types.Generator

	mu       sync.RWMutex
	index    types.Index
	pipeline *screening.Pipeline
}

func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.Embedding.Model,
		BaseURL: cfg.Embedding.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	grader, err := llm.NewGraderWithConfig(llm.GraderConfig{
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		RateLimit:   cfg.LLM.RateLimit,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize grader: %w", err)
	}

	return &Server{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		grader:   grader,
	}, nil
}

// LoadIndex tries to restore the last published index. Absence is normal: the
// server starts and reports "no index" until /index-cvs/ is called.
func (s *Server) LoadIndex(ctx context.Context) error {
	index, err := store.Load(ctx, s.buildConfig())
	if err != nil {
		return err
	}
	if index == nil {
		s.logger.Info("no index snapshot found, waiting for first build")
		return nil
	}

	s.logger.Info("loaded index snapshot", zap.Int("chunks", index.Len()))
	s.swap(index)
	return nil
}

// Rebuild ingests the staging directory, builds and persists a fresh index,
// and swaps it in. On any failure the previous index stays published.
func (s *Server) Rebuild(ctx context.Context) error {
	ingester := ingest.NewWithConfig(ingest.IngesterConfig{
		StagingDir:   s.cfg.Ingest.StagingDir,
		ChunkSize:    s.cfg.Ingest.ChunkSize,
		ChunkOverlap: s.cfg.Ingest.ChunkOverlap,
	})

	chunks, err := ingester.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	index, err := store.Build(ctx, s.buildConfig(), s.embedder, chunks, nil)
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	s.logger.Info("index rebuilt", zap.Int("chunks", index.Len()))
	s.swap(index)
	return nil
}

func (s *Server) swap(index types.Index) {
	pipeline := screening.NewWithConfig(screening.PipelineConfig{
		TopK:            s.cfg.Screening.TopK,
		MinSimilarity:   s.cfg.Screening.MinSimilarity,
		SelectThreshold: s.cfg.Screening.SelectThreshold,
		SelectedDir:     s.cfg.Screening.SelectedDir,
		MergeOrder:      s.cfg.Screening.MergeOrder,
		Extract:         s.cfg.Screening.Extract,
		Workers:         s.cfg.Screening.Workers,
	}, index, s.embedder, s.grader, s.logger)

	s.mu.Lock()
	old := s.index
	s.index = index
	s.pipeline = pipeline
	s.mu.Unlock()

	// The pgvector backend holds a pool; closing blocks until in-flight
	// queries return their connections, so it runs off the request path.
	if closer, ok := old.(interface{ Close() }); ok {
		go closer.Close()
	}
}

func (s *Server) current() *screening.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipeline
}

func (s *Server) buildConfig() store.BuildConfig {
	return store.BuildConfig{
		Backend:      s.cfg.Store.Backend,
		SnapshotPath: s.cfg.Store.SnapshotPath,
		ConnString:   s.cfg.Store.URL,
		TableName:    s.cfg.Store.TableName,
		VectorDim:    s.cfg.Store.VectorDim,
		BatchSize:    s.cfg.Store.BatchSize,
	}
}

// Handler returns the HTTP surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload-cvs/", s.handleUpload)
	mux.HandleFunc("/index-cvs/", s.handleIndex)
	mux.HandleFunc("/ask-cv/", s.handleAsk)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *Server) ListenAndServe() error {
	addr := ":" + s.cfg.Server.Port
	s.logger.Info("starting server", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

// handleUpload clears the staging directory and writes the uploaded batch.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart request: %v", err))
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeDetail(w, http.StatusBadRequest, "no files provided")
		return
	}

	stagingDir := s.cfg.Ingest.StagingDir
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("upload error: %v", err))
		return
	}

	// Replace the previous batch wholesale
	if err := clearDir(stagingDir); err != nil {
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("upload error: %v", err))
		return
	}

	for _, fh := range files {
		if err := saveUploadedFile(fh, filepath.Join(stagingDir, filepath.Base(fh.Filename))); err != nil {
			writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("upload error: %v", err))
			return
		}
		s.logger.Debug("saved uploaded CV", zap.String("filename", fh.Filename))
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("%d CV files saved successfully.", len(files)),
	})
}

// handleIndex triggers ingestion and a full index rebuild.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.Rebuild(r.Context()); err != nil {
		s.logger.Error("index rebuild failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("indexing error: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Indexing completed successfully.",
	})
}

// handleAsk runs the query-time pipeline and returns the ranked shortlist.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	question := r.URL.Query().Get("question")
	if len(question) < minQuestionLength {
		writeDetail(w, http.StatusBadRequest,
			fmt.Sprintf("question must be at least %d characters", minQuestionLength))
		return
	}

	pipeline := s.current()
	if pipeline == nil {
		writeDetail(w, http.StatusBadRequest, "No index available. Run /index-cvs/ first.")
		return
	}

	evaluations, err := pipeline.Screen(r.Context(), question, nil)
	if err != nil {
		s.logger.Error("screening failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("processing error: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Question: question,
		Results:  s.toResults(evaluations),
	})
}

// handleWebSocket streams evaluations as each candidate's scoring completes,
// then the final ranked list.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			client.send(s.logger, "error", "invalid message", nil)
			continue
		}

		if msg.Type != "ask" {
			client.send(s.logger, "error", fmt.Sprintf("unknown message type: %s", msg.Type), nil)
			continue
		}

		if len(msg.Content) < minQuestionLength {
			client.send(s.logger, "error",
				fmt.Sprintf("question must be at least %d characters", minQuestionLength), nil)
			continue
		}

		pipeline := s.current()
		if pipeline == nil {
			client.send(s.logger, "error", "No index available. Run /index-cvs/ first.", nil)
			continue
		}

		evaluations, err := pipeline.Screen(r.Context(), msg.Content, func(ev models.Evaluation) {
			client.send(s.logger, "result", ev.Filename, s.toResult(ev))
		})
		if err != nil {
			client.send(s.logger, "error", fmt.Sprintf("processing error: %v", err), nil)
			continue
		}

		client.send(s.logger, "done", msg.Content, s.toResults(evaluations))
	}
}

// wsClient serializes writes: evaluations arrive from concurrent workers.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) send(logger *zap.Logger, msgType, content string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{Type: msgType, Content: content, Data: data}
	if err := c.conn.WriteJSON(msg); err != nil {
		logger.Warn("failed to send websocket message", zap.Error(err))
	}
}

type askResponse struct {
	Question string       `json:"question"`
	Results  []evalResult `json:"results"`
}

type evalResult struct {
	ScoreLLM      int      `json:"score_llm"`
	ScoreFaiss    float64  `json:"score_faiss"`
	ScoreTotal    *float64 `json:"score_total,omitempty"`
	Justification string   `json:"justification"`
	Filename      string   `json:"filename"`
	Selected      bool     `json:"selected,omitempty"`
	Emails        []string `json:"emails,omitempty"`
	LinkedIn      []string `json:"linkedin,omitempty"`
	GitHub        []string `json:"github,omitempty"`
	Education     []string `json:"formations,omitempty"`
	Projects      []string `json:"projets,omitempty"`
}

func (s *Server) toResult(ev models.Evaluation) evalResult {
	result := evalResult{
		ScoreLLM:      ev.LLMScore,
		ScoreFaiss:    round3(ev.Similarity),
		Justification: ev.Justification,
		Filename:      ev.Filename,
		Selected:      ev.Promoted,
	}

	if s.cfg.Screening.SelectThreshold > 0 && !ev.Failed {
		total := round3(ev.Combined)
		result.ScoreTotal = &total
	}

	if ev.Profile != nil {
		result.Emails = ev.Profile.Emails
		result.LinkedIn = ev.Profile.LinkedIn
		result.GitHub = ev.Profile.GitHub
		result.Education = ev.Profile.Education
		result.Projects = ev.Profile.Projects
	}

	return result
}

func (s *Server) toResults(evaluations []models.Evaluation) []evalResult {
	results := make([]evalResult, 0, len(evaluations))
	for _, ev := range evaluations {
		results = append(results, s.toResult(ev))
	}
	return results
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func saveUploadedFile(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
