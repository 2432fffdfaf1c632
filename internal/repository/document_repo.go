package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/writepro/writepro/internal/models"
	"go.uber.org/zap"
)

// DocumentRepository handles document and processing-log database operations
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

const documentColumns = `
	id, user_id, title, original_file, processed_file, file_size, file_type,
	word_count, status, ai_detection_rate_before, ai_detection_rate_after,
	aigc_task_id, rewrite_type, target_language, created_at, updated_at, processed_at
`

// Create inserts a new document record
func (r *DocumentRepository) Create(tx *sql.Tx, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.DocumentStatusUploaded
	}

	query := `
		INSERT INTO documents (
			id, user_id, title, original_file, file_size, file_type, word_count,
			status, ai_detection_rate_before, rewrite_type, target_language,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := pick(r.db, tx).Exec(query,
		doc.ID,
		doc.UserID,
		doc.Title,
		doc.OriginalFile,
		doc.FileSize,
		doc.FileType,
		doc.WordCount,
		doc.Status,
		doc.DetectionRateBefore,
		doc.RewriteType,
		doc.TargetLanguage,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by id; returns nil when not found
func (r *DocumentRepository) GetByID(id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByIDForUser retrieves a document owned by the given user; returns nil
// when not found or owned by someone else
func (r *DocumentRepository) GetByIDForUser(id, userID string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ? AND user_id = ?`
	return r.scanOne(r.db.QueryRow(query, id, userID))
}

// ListByUser retrieves all documents for a user, newest first
func (r *DocumentRepository) ListByUser(userID string) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// TransitionStatus performs a compare-and-swap status update. It reports
// whether the row was actually moved, which the pipeline uses as its
// mutual-exclusion guard against double submission.
func (r *DocumentRepository) TransitionStatus(tx *sql.Tx, id, fromStatus, toStatus string) (bool, error) {
	query := `UPDATE documents SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

	result, err := pick(r.db, tx).Exec(query, toStatus, time.Now().UTC(), id, fromStatus)
	if err != nil {
		r.logger.Error("Failed to transition document status",
			zap.String("document_id", id),
			zap.String("from", fromStatus),
			zap.String("to", toStatus),
			zap.Error(err))
		return false, fmt.Errorf("failed to transition document status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}

// UpdateStatus unconditionally sets the document status
func (r *DocumentRepository) UpdateStatus(tx *sql.Tx, id, status string) error {
	query := `UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, status, time.Now().UTC(), id); err != nil {
		r.logger.Error("Failed to update document status", zap.String("document_id", id), zap.Error(err))
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

// SetTaskID stores the external rewrite task id on the document
func (r *DocumentRepository) SetTaskID(tx *sql.Tx, id, taskID string) error {
	query := `UPDATE documents SET aigc_task_id = ?, updated_at = ? WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, taskID, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to set task id: %w", err)
	}
	return nil
}

// SetWordCount stores the word count computed from extracted text
func (r *DocumentRepository) SetWordCount(tx *sql.Tx, id string, wordCount int) error {
	query := `UPDATE documents SET word_count = ?, updated_at = ? WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, wordCount, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to set word count: %w", err)
	}
	return nil
}

// CompleteProcessing records the processed artifact and the post-processing
// detection rate, and moves the document to completed
func (r *DocumentRepository) CompleteProcessing(tx *sql.Tx, id, processedFile string, detectionRateAfter float64) error {
	now := time.Now().UTC()
	query := `
		UPDATE documents
		SET processed_file = ?, ai_detection_rate_after = ?, status = ?,
			processed_at = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := pick(r.db, tx).Exec(query, processedFile, detectionRateAfter,
		models.DocumentStatusCompleted, now, now, id); err != nil {
		r.logger.Error("Failed to complete document processing", zap.String("document_id", id), zap.Error(err))
		return fmt.Errorf("failed to complete document processing: %w", err)
	}
	return nil
}

// SetDetectionRateAfter records the post-processing detection rate only,
// used by the status poll-on-read path
func (r *DocumentRepository) SetDetectionRateAfter(tx *sql.Tx, id string, rate float64) error {
	query := `UPDATE documents SET ai_detection_rate_after = ?, updated_at = ? WHERE id = ?`
	if _, err := pick(r.db, tx).Exec(query, rate, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to set detection rate: %w", err)
	}
	return nil
}

// Delete removes a document row; processing logs cascade
func (r *DocumentRepository) Delete(tx *sql.Tx, id string) error {
	if _, err := pick(r.db, tx).Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		r.logger.Error("Failed to delete document", zap.String("document_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// AppendLog writes an append-only processing log entry
func (r *DocumentRepository) AppendLog(tx *sql.Tx, entry *models.ProcessingLog) error {
	query := `
		INSERT INTO document_processing_logs (document_id, step, status, message, details)
		VALUES (?, ?, ?, ?, ?)
	`

	var details any
	if entry.Details != "" {
		details = entry.Details
	}

	result, err := pick(r.db, tx).Exec(query,
		entry.DocumentID,
		entry.Step,
		entry.Status,
		entry.Message,
		details,
	)
	if err != nil {
		r.logger.Error("Failed to append processing log",
			zap.String("document_id", entry.DocumentID),
			zap.String("step", entry.Step),
			zap.Error(err))
		return fmt.Errorf("failed to append processing log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListLogs retrieves the processing logs for a document, newest first
func (r *DocumentRepository) ListLogs(documentID string) ([]*models.ProcessingLog, error) {
	query := `
		SELECT id, document_id, step, status, message, details, created_at
		FROM document_processing_logs
		WHERE document_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Query(query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ProcessingLog
	for rows.Next() {
		var entry models.ProcessingLog
		var details sql.NullString
		if err := rows.Scan(&entry.ID, &entry.DocumentID, &entry.Step, &entry.Status,
			&entry.Message, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan processing log: %w", err)
		}
		entry.Details = details.String
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *DocumentRepository) scanOne(row *sql.Row) (*models.Document, error) {
	doc, err := r.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

func (r *DocumentRepository) scanRow(s rowScanner) (*models.Document, error) {
	var doc models.Document
	var processedFile, taskID sql.NullString
	var rateBefore, rateAfter sql.NullFloat64
	var processedAt sql.NullTime

	err := s.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Title,
		&doc.OriginalFile,
		&processedFile,
		&doc.FileSize,
		&doc.FileType,
		&doc.WordCount,
		&doc.Status,
		&rateBefore,
		&rateAfter,
		&taskID,
		&doc.RewriteType,
		&doc.TargetLanguage,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&processedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		r.logger.Error("Failed to scan document", zap.Error(err))
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.ProcessedFile = processedFile.String
	doc.AIGCTaskID = taskID.String
	if rateBefore.Valid {
		doc.DetectionRateBefore = &rateBefore.Float64
	}
	if rateAfter.Valid {
		doc.DetectionRateAfter = &rateAfter.Float64
	}
	if processedAt.Valid {
		doc.ProcessedAt = &processedAt.Time
	}

	return &doc, nil
}
