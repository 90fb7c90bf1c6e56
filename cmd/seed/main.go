package main

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"douane-rag/internal/models"
	"douane-rag/internal/repository"
	"douane-rag/internal/service"
	"douane-rag/pkg/config"
	"douane-rag/pkg/logger"
	"douane-rag/pkg/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	// Connect to database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	llmService := service.NewLLMService(&cfg.LLM, appLogger)

	s := &seeder{
		country:   cfg.RAG.Country,
		llm:       llmService,
		tariffs:   repository.NewTariffRepository(db, appLogger),
		hsCodes:   repository.NewHSCodeRepository(db, appLogger),
		notes:     repository.NewNoteRepository(db, appLogger),
		controls:  repository.NewControlRepository(db, appLogger),
		legal:     repository.NewLegalRepository(db, appLogger),
		knowledge: repository.NewKnowledgeRepository(db, appLogger),
		watch:     repository.NewWatchRepository(db, appLogger),
		logger:    appLogger,
	}

	appLogger.Info("Starting database seeding...")

	dataDir := filepath.Join("cmd", "seed", "data")
	cacheFile := filepath.Join("cmd", "seed", ".seed_cache.json")
	if err := s.run(ctx, dataDir, cacheFile); err != nil {
		appLogger.Fatal("Seeding failed", zap.Error(err))
	}

	appLogger.Info("Database seeding completed successfully!")
}

type seeder struct {
	country   string
	llm       *service.LLMService
	tariffs   *repository.TariffRepository
	hsCodes   *repository.HSCodeRepository
	notes     *repository.NoteRepository
	controls  *repository.ControlRepository
	legal     *repository.LegalRepository
	knowledge *repository.KnowledgeRepository
	watch     *repository.WatchRepository
	logger    *zap.Logger
}

// run seeds every fixture file found under dataDir. A per-file hash
// cache makes repeated runs skip unchanged files, so rate-limited
// embedding calls are only paid for new or edited fixtures.
func (s *seeder) run(ctx context.Context, dataDir, cacheFile string) error {
	cache, err := loadCache(cacheFile)
	if err != nil {
		s.logger.Warn("Failed to load seed cache, will process all files", zap.Error(err))
		cache = &cacheData{ProcessedFiles: make(map[string]processedFile)}
	}

	loaders := []struct {
		file string
		load func(ctx context.Context, data []byte) (int, error)
	}{
		{"tariff_codes.json", s.seedTariffCodes},
		{"hs_codes.json", s.seedHSCodes},
		{"tariff_notes.json", s.seedTariffNotes},
		{"controlled_products.json", s.seedControls},
		{"legal_chunks.json", s.seedLegalChunks},
		{"knowledge_docs.json", s.seedKnowledgeDocs},
		{"watch_documents.json", s.seedWatchDocuments},
	}

	for _, loader := range loaders {
		path := filepath.Join(dataDir, loader.file)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			s.logger.Warn("Fixture file not found, skipping", zap.String("path", path))
			continue
		}

		fileHash, err := calculateFileHash(path)
		if err != nil {
			s.logger.Warn("Failed to hash fixture file, will process anyway", zap.String("path", path), zap.Error(err))
		}
		if cached, exists := cache.ProcessedFiles[path]; exists && cached.FileHash == fileHash {
			s.logger.Info("Fixture file unchanged, skipping",
				zap.String("path", path),
				zap.Time("processed_at", cached.ProcessedAt),
			)
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		count, err := loader.load(ctx, data)
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", loader.file, err)
		}
		s.logger.Info("Seeded fixture file",
			zap.String("file", loader.file),
			zap.Int("rows", count),
		)

		cache.ProcessedFiles[path] = processedFile{
			FilePath:    path,
			FileHash:    fileHash,
			ProcessedAt: time.Now(),
		}
	}

	if err := saveCache(cacheFile, cache); err != nil {
		s.logger.Warn("Failed to save seed cache", zap.Error(err))
	}
	return nil
}

func (s *seeder) seedTariffCodes(ctx context.Context, data []byte) (int, error) {
	var fixtures []struct {
		CodeHS      string   `json:"code_hs"`
		Description string   `json:"description"`
		DDIRate     *float64 `json:"ddi_rate"`
		VATRate     *float64 `json:"vat_rate"`
		Prohibited  bool     `json:"prohibited"`
		Restricted  bool     `json:"restricted"`
	}
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, err
	}

	for i, f := range fixtures {
		embedding, err := s.llm.Embed(ctx, f.Description)
		if err != nil {
			return i, fmt.Errorf("failed to embed tariff %s: %w", f.CodeHS, err)
		}
		row := &models.TariffRow{
			ID:          uuid.New(),
			CodeHS:      f.CodeHS,
			Description: f.Description,
			DDIRate:     f.DDIRate,
			VATRate:     f.VATRate,
			Prohibited:  f.Prohibited,
			Restricted:  f.Restricted,
			Country:     s.country,
			Embedding:   embedding,
		}
		if err := s.tariffs.Create(ctx, row); err != nil {
			return i, err
		}
	}
	return len(fixtures), nil
}

func (s *seeder) seedHSCodes(ctx context.Context, data []byte) (int, error) {
	var fixtures []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, err
	}

	for i, f := range fixtures {
		embedding, err := s.llm.Embed(ctx, f.Description)
		if err != nil {
			return i, fmt.Errorf("failed to embed hs code %s: %w", f.Code, err)
		}
		code := &models.HSCode{
			ID:          uuid.New(),
			Code:        f.Code,
			Description: f.Description,
			Country:     s.country,
		}
		if err := s.hsCodes.Create(ctx, code, embedding); err != nil {
			return i, err
		}
	}
	return len(fixtures), nil
}

func (s *seeder) seedTariffNotes(ctx context.Context, data []byte) (int, error) {
	var fixtures []struct {
		CodeHS string `json:"code_hs"`
		Note   string `json:"note"`
	}
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, err
	}

	for i, f := range fixtures {
		note := &models.TariffNote{
			ID:      uuid.New(),
			CodeHS:  f.CodeHS,
			Note:    f.Note,
			Country: s.country,
		}
		if err := s.notes.Create(ctx, note); err != nil {
			return i, err
		}
	}
	return len(fixtures), nil
}

func (s *seeder) seedControls(ctx context.Context, data []byte) (int, error) {
	var fixtures []struct {
		CodeHS      string `json:"code_hs"`
		ControlType string `json:"control_type"`
		Authority   string `json:"authority"`
	}
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, err
	}

	for i, f := range fixtures {
		ctrl := &models.ControlRow{
			ID:          uuid.New(),
			CodeHS:      f.CodeHS,
			ControlType: f.ControlType,
			Authority:   f.Authority,
			Country:     s.country,
		}
		if err := s.controls.Create(ctx, ctrl); err != nil {
			return i, err
		}
	}
	return len(fixtures), nil
}

func (s *seeder) seedLegalChunks(ctx context.Context, data []byte) (int, error) {
	var fixtures []struct {
		ArticleNumber string `json:"article_number"`
		Text          string `json:"text"`
		Language      string `json:"language"`
		SourceTitle   string `json:"source_title"`
	}
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, err
	}

	for i, f := range fixtures {
		embedding, err := s.llm.Embed(ctx, f.Text)
		if err != nil {
			return i, fmt.Errorf("failed to embed legal chunk (article %s): %w", f.ArticleNumber, err)
		}
		chunk := &models.LegalChunk{
			ID:            uuid.New(),
			ArticleNumber: f.ArticleNumber,
			Text:          f.Text,
			Language:      f.Language,
			SourceTitle:   f.SourceTitle,
		}
		if err := s.legal.Create(ctx, chunk, embedding); err != nil {
			return i, err
		}
	}
	return len(fixtures), nil
}

func (s *seeder) seedKnowledgeDocs(ctx context.Context, data []byte) (int, error) {
	var fixtures []struct {
		Title    string  `json:"title"`
		Content  string  `json:"content"`
		Category string  `json:"category"`
		URL      *string `json:"url"`
	}
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, err
	}

	for i, f := range fixtures {
		embedding, err := s.llm.Embed(ctx, f.Title+"\n"+f.Content)
		if err != nil {
			return i, fmt.Errorf("failed to embed knowledge doc %q: %w", f.Title, err)
		}
		doc := &models.KnowledgeDoc{
			ID:       uuid.New(),
			Title:    f.Title,
			Content:  f.Content,
			Category: f.Category,
			URL:      f.URL,
			Country:  s.country,
		}
		if err := s.knowledge.Create(ctx, doc, embedding); err != nil {
			return i, err
		}
	}
	return len(fixtures), nil
}

func (s *seeder) seedWatchDocuments(ctx context.Context, data []byte) (int, error) {
	var fixtures []struct {
		Title      string  `json:"title"`
		Content    string  `json:"content"`
		Importance string  `json:"importance"`
		URL        *string `json:"url"`
	}
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, err
	}

	for i, f := range fixtures {
		embedding, err := s.llm.Embed(ctx, f.Title+"\n"+f.Content)
		if err != nil {
			return i, fmt.Errorf("failed to embed watch document %q: %w", f.Title, err)
		}
		doc := &models.WatchDocument{
			ID:         uuid.New(),
			Title:      f.Title,
			Content:    f.Content,
			Importance: f.Importance,
			URL:        f.URL,
			Country:    s.country,
		}
		if err := s.watch.Create(ctx, doc, embedding); err != nil {
			return i, err
		}
	}
	return len(fixtures), nil
}

// processedFile represents a processed fixture file in cache
type processedFile struct {
	FilePath    string    `json:"file_path"`
	FileHash    string    `json:"file_hash"`
	ProcessedAt time.Time `json:"processed_at"`
}

// cacheData stores information about processed files
type cacheData struct {
	ProcessedFiles map[string]processedFile `json:"processed_files"` // key: file path
}

// loadCache loads the cache of processed files
func loadCache(cacheFile string) (*cacheData, error) {
	cache := &cacheData{
		ProcessedFiles: make(map[string]processedFile),
	}

	if _, err := os.Stat(cacheFile); os.IsNotExist(err) {
		return cache, nil
	}

	data, err := os.ReadFile(cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if len(data) == 0 {
		return cache, nil
	}

	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}

	return cache, nil
}

// saveCache saves the cache of processed files
func saveCache(cacheFile string, cache *cacheData) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// calculateFileHash calculates MD5 hash of a file
func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
