package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"douane-rag/internal/dto"
	"douane-rag/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDocumentStore struct {
	docs        map[uuid.UUID]*models.PDFDocument
	content     map[uuid.UUID]string
	created     []*models.PDFDocument
	extractions int
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{
		docs:    make(map[uuid.UUID]*models.PDFDocument),
		content: make(map[uuid.UUID]string),
	}
}

func (f *fakeDocumentStore) GetByID(_ context.Context, id uuid.UUID) (*models.PDFDocument, error) {
	if doc, ok := f.docs[id]; ok {
		return doc, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeDocumentStore) GetContent(_ context.Context, id uuid.UUID) (string, error) {
	return f.content[id], nil
}

func (f *fakeDocumentStore) Create(_ context.Context, doc *models.PDFDocument) error {
	f.docs[doc.ID] = doc
	f.content[doc.ID] = doc.FullText
	f.created = append(f.created, doc)
	return nil
}

func (f *fakeDocumentStore) AppendExtraction(_ context.Context, _ uuid.UUID, _, _ string) error {
	f.extractions++
	return nil
}

type fakeTextExtractor struct {
	calls   int
	failAt  int
	failErr error
}

func (f *fakeTextExtractor) ExtractFromText(_ context.Context, _, _ string) (*DocumentExtraction, error) {
	f.calls++
	if f.failErr != nil && f.calls == f.failAt {
		return nil, f.failErr
	}
	return &DocumentExtraction{
		Summary:        "Résumé de la page",
		SuggestedCodes: []string{"847130"},
		Text:           "Texte extrait de la page.",
	}, nil
}

func TestUploadDerivesPageCount(t *testing.T) {
	store := newFakeDocumentStore()
	s := NewDocumentService(store, &fakeTextExtractor{}, zap.NewNop())

	doc, err := s.Upload(context.Background(), "Chapitre 84 du tarif", "MA", strings.Repeat("x", pageSize*2+1))

	require.NoError(t, err)
	assert.Equal(t, 3, doc.PageCount)
	assert.Equal(t, "84", doc.Chapter)
	require.Len(t, store.created, 1)
}

func TestUploadRejectsEmptyContent(t *testing.T) {
	s := NewDocumentService(newFakeDocumentStore(), &fakeTextExtractor{}, zap.NewNop())

	_, err := s.Upload(context.Background(), "titre", "MA", "   ")

	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestAnalyzeBatchAndCursor(t *testing.T) {
	store := newFakeDocumentStore()
	extractor := &fakeTextExtractor{}
	s := NewDocumentService(store, extractor, zap.NewNop())
	doc, err := s.Upload(context.Background(), "Tarif", "MA", strings.Repeat("x", pageSize*5))
	require.NoError(t, err)

	got, err := s.Analyze(context.Background(), doc.ID, &dto.AnalyzeDocumentRequest{PageCount: 3})

	require.NoError(t, err)
	assert.Equal(t, 3, got.PagesProcessed)
	assert.Equal(t, 3, got.NextPage)
	assert.Equal(t, []string{"847130"}, got.SuggestedCodes)
	assert.Equal(t, 1, store.extractions)

	got, err = s.Analyze(context.Background(), doc.ID, &dto.AnalyzeDocumentRequest{StartPage: 3, PageCount: 3})

	require.NoError(t, err)
	assert.Equal(t, 2, got.PagesProcessed)
	assert.Equal(t, -1, got.NextPage, "final batch signals completion")
}

func TestAnalyzePastEndIsDone(t *testing.T) {
	store := newFakeDocumentStore()
	s := NewDocumentService(store, &fakeTextExtractor{}, zap.NewNop())
	doc, err := s.Upload(context.Background(), "Tarif", "MA", "contenu court du document")
	require.NoError(t, err)

	got, err := s.Analyze(context.Background(), doc.ID, &dto.AnalyzeDocumentRequest{StartPage: 10})

	require.NoError(t, err)
	assert.Equal(t, -1, got.NextPage)
	assert.Zero(t, got.PagesProcessed)
}

func TestAnalyzeResumableOnPageFailure(t *testing.T) {
	store := newFakeDocumentStore()
	extractor := &fakeTextExtractor{failAt: 2, failErr: errors.New("timeout")}
	s := NewDocumentService(store, extractor, zap.NewNop())
	doc, err := s.Upload(context.Background(), "Tarif", "MA", strings.Repeat("x", pageSize*4))
	require.NoError(t, err)

	got, err := s.Analyze(context.Background(), doc.ID, &dto.AnalyzeDocumentRequest{PageCount: 4})

	require.NoError(t, err)
	assert.Equal(t, 1, got.PagesProcessed, "batch stops at the failing page")
	assert.Equal(t, 1, got.NextPage, "client resumes from the failed page")
}

func TestAnalyzeAllPagesFailing(t *testing.T) {
	store := newFakeDocumentStore()
	extractor := &fakeTextExtractor{failAt: 1, failErr: errors.New("down")}
	s := NewDocumentService(store, extractor, zap.NewNop())
	doc, err := s.Upload(context.Background(), "Tarif", "MA", strings.Repeat("x", pageSize))
	require.NoError(t, err)

	_, err = s.Analyze(context.Background(), doc.ID, &dto.AnalyzeDocumentRequest{})

	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
