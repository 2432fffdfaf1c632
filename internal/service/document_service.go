package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/writepro/writepro/internal/aigc"
	"github.com/writepro/writepro/internal/apperrors"
	"github.com/writepro/writepro/internal/extract"
	"github.com/writepro/writepro/internal/models"
	"github.com/writepro/writepro/internal/repository"
	"github.com/writepro/writepro/internal/storage"
	"github.com/writepro/writepro/pkg/database"
	"go.uber.org/zap"
)

// Download variants
const (
	DownloadOriginal  = "original"
	DownloadProcessed = "processed"
)

// DocumentService handles document upload, retrieval and deletion
type DocumentService struct {
	db          *database.DB
	docRepo     *repository.DocumentRepository
	orderRepo   *repository.OrderRepository
	store       storage.ArtifactStore
	client      aigc.Client
	maxFileSize int64
	logger      *zap.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	db *database.DB,
	docRepo *repository.DocumentRepository,
	orderRepo *repository.OrderRepository,
	store storage.ArtifactStore,
	client aigc.Client,
	maxFileSize int64,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		db:          db,
		docRepo:     docRepo,
		orderRepo:   orderRepo,
		store:       store,
		client:      client,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// UploadInput carries one document upload
type UploadInput struct {
	FileName       string
	Title          string
	RewriteType    string
	TargetLanguage string
	Content        []byte
}

// Upload validates and stores an uploaded document. The word count is
// computed up front from the extracted text so order pricing never has to
// re-read the artifact.
func (s *DocumentService) Upload(userID string, in UploadInput) (*models.Document, error) {
	if len(in.Content) == 0 {
		return nil, fmt.Errorf("%w: file is empty", apperrors.ErrValidation)
	}
	if int64(len(in.Content)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: file exceeds maximum size of %d bytes",
			apperrors.ErrValidation, s.maxFileSize)
	}

	ext := strings.ToLower(filepath.Ext(in.FileName))
	if !extract.AllowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, ext)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(in.FileName), ext)
	}
	rewriteType := in.RewriteType
	if rewriteType == "" {
		rewriteType = "standard"
	}
	language := in.TargetLanguage
	if language == "" {
		language = "zh"
	}

	relPath, err := s.store.SaveOriginal(userID, ext, in.Content)
	if err != nil {
		return nil, err
	}

	// Unreadable files are rejected at upload rather than left to fail
	// later in the pipeline
	path, err := s.store.Path(relPath)
	if err != nil {
		return nil, err
	}
	text, err := extract.Text(path)
	if err != nil {
		if removeErr := s.store.Remove(relPath); removeErr != nil {
			s.logger.Warn("Failed to clean up rejected upload",
				zap.String("path", relPath), zap.Error(removeErr))
		}
		return nil, err
	}

	doc := &models.Document{
		UserID:         userID,
		Title:          title,
		OriginalFile:   relPath,
		FileSize:       int64(len(in.Content)),
		FileType:       strings.TrimPrefix(ext, "."),
		WordCount:      extract.WordCount(text),
		Status:         models.DocumentStatusUploaded,
		RewriteType:    rewriteType,
		TargetLanguage: language,
	}

	if err := s.docRepo.Create(nil, doc); err != nil {
		if removeErr := s.store.Remove(relPath); removeErr != nil {
			s.logger.Warn("Failed to clean up orphaned upload",
				zap.String("path", relPath), zap.Error(removeErr))
		}
		return nil, err
	}

	s.logger.Info("Document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("user_id", userID),
		zap.Int("word_count", doc.WordCount),
		zap.Int64("file_size", doc.FileSize))

	return doc, nil
}

// List retrieves the user's documents, newest first
func (s *DocumentService) List(userID string) ([]*models.Document, error) {
	return s.docRepo.ListByUser(userID)
}

// Get retrieves one document with its processing logs
func (s *DocumentService) Get(userID, documentID string) (*models.Document, []*models.ProcessingLog, error) {
	doc, err := s.docRepo.GetByIDForUser(documentID, userID)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("%w: document %s", apperrors.ErrNotFound, documentID)
	}

	logs, err := s.docRepo.ListLogs(documentID)
	if err != nil {
		return nil, nil, err
	}
	return doc, logs, nil
}

// Status reports the last-known state of a document. For documents in
// flight with the rewrite provider it refreshes the detection rate with a
// synchronous poll; the document status itself is only ever advanced by the
// pipeline.
func (s *DocumentService) Status(ctx context.Context, userID, documentID string) (*models.Document, error) {
	doc, err := s.docRepo.GetByIDForUser(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", apperrors.ErrNotFound, documentID)
	}

	if doc.Status == models.DocumentStatusProcessing && doc.AIGCTaskID != "" {
		status, err := s.client.Status(ctx, doc.AIGCTaskID)
		if err != nil {
			// Provider unreachable; last-known persisted state stands
			return doc, nil
		}
		if status.AIDetectionRate != nil {
			if err := s.docRepo.SetDetectionRateAfter(nil, doc.ID, *status.AIDetectionRate); err != nil {
				s.logger.Warn("Failed to refresh detection rate",
					zap.String("document_id", doc.ID), zap.Error(err))
			} else {
				doc.DetectionRateAfter = status.AIDetectionRate
			}
		}
	}

	return doc, nil
}

// Download returns the bytes and suggested filename of a document artifact
func (s *DocumentService) Download(userID, documentID, variant string) ([]byte, string, error) {
	doc, err := s.docRepo.GetByIDForUser(documentID, userID)
	if err != nil {
		return nil, "", err
	}
	if doc == nil {
		return nil, "", fmt.Errorf("%w: document %s", apperrors.ErrNotFound, documentID)
	}

	var relPath, name string
	switch variant {
	case DownloadOriginal:
		relPath = doc.OriginalFile
		name = doc.Title + "." + doc.FileType
	case DownloadProcessed:
		if doc.Status != models.DocumentStatusCompleted || doc.ProcessedFile == "" {
			return nil, "", fmt.Errorf("%w: document is not completed", apperrors.ErrInvalidState)
		}
		relPath = doc.ProcessedFile
		name = doc.Title + "_processed.txt"
	default:
		return nil, "", fmt.Errorf("%w: unknown download variant %q", apperrors.ErrValidation, variant)
	}

	content, err := s.store.Read(relPath)
	if err != nil {
		return nil, "", err
	}
	return content, name, nil
}

// Delete removes a document and its artifacts. Deletion is rejected while
// the document is being processed or has an order in flight.
func (s *DocumentService) Delete(userID, documentID string) error {
	doc, err := s.docRepo.GetByIDForUser(documentID, userID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: document %s", apperrors.ErrNotFound, documentID)
	}
	if doc.Status == models.DocumentStatusProcessing {
		return fmt.Errorf("%w: document is being processed", apperrors.ErrInvalidState)
	}

	active, err := s.orderRepo.GetActiveByDocument(nil, documentID)
	if err != nil {
		return err
	}
	if active != nil {
		return fmt.Errorf("%w: document has an order in flight", apperrors.ErrConflict)
	}

	if err := s.docRepo.Delete(nil, documentID); err != nil {
		return err
	}

	// Artifact removal is best effort; a leftover file is harmless while a
	// dangling record is not
	if err := s.store.Remove(doc.OriginalFile); err != nil {
		s.logger.Warn("Failed to remove original artifact",
			zap.String("document_id", documentID), zap.Error(err))
	}
	if doc.ProcessedFile != "" {
		if err := s.store.Remove(doc.ProcessedFile); err != nil {
			s.logger.Warn("Failed to remove processed artifact",
				zap.String("document_id", documentID), zap.Error(err))
		}
	}

	s.logger.Info("Document deleted",
		zap.String("document_id", documentID),
		zap.String("user_id", userID))
	return nil
}
