package handlers

import (
	"errors"
	"io"

	"douane-rag/internal/dto"
	"douane-rag/internal/repository"
	"douane-rag/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxUploadBytes bounds uploaded document text.
const maxUploadBytes = 10 << 20

type DocumentHandler struct {
	docService     *service.DocumentService
	defaultCountry string
	logger         *zap.Logger
}

func NewDocumentHandler(docService *service.DocumentService, defaultCountry string, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		docService:     docService,
		defaultCountry: defaultCountry,
		logger:         logger,
	}
}

// UploadDocument stores a text document for later batched analysis.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}
	if file.Size > maxUploadBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "File too large",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to open file",
		})
	}
	defer src.Close()

	content, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read file",
		})
	}

	title := c.FormValue("title")
	if title == "" {
		title = file.Filename
	}
	country := c.FormValue("country")
	if country == "" {
		country = h.defaultCountry
	}

	doc, err := h.docService.Upload(c.Context(), title, country, string(content))
	if err != nil {
		if errors.Is(err, service.ErrEmptyDocument) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Document has no text content",
			})
		}
		h.logger.Error("Failed to upload document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to upload document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.UploadDocumentResponse{
		DocumentID: doc.ID.String(),
		Title:      doc.Title,
		PageCount:  doc.PageCount,
	})
}

// AnalyzeDocument processes one batch of pages and returns the cursor
// for the next batch.
func (h *DocumentHandler) AnalyzeDocument(c *fiber.Ctx) error {
	documentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid document ID",
		})
	}

	var req dto.AnalyzeDocumentRequest
	if err := c.BodyParser(&req); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.docService.Analyze(c.Context(), documentID, &req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		case errors.Is(err, service.ErrServiceUnavailable):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Analysis service unavailable, please retry",
			})
		default:
			h.logger.Error("Failed to analyze document", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to analyze document",
			})
		}
	}

	return c.JSON(resp)
}
