package models

import "time"

// Document status values
const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

// Document is an uploaded file tracked through the rewrite pipeline.
// ProcessedFile is set if and only if Status is completed.
type Document struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`

	// Artifact references, relative to the storage base directory
	OriginalFile  string `json:"original_file"`
	ProcessedFile string `json:"processed_file,omitempty"`

	FileSize  int64  `json:"file_size"`
	FileType  string `json:"file_type"`
	WordCount int    `json:"word_count"`

	Status              string   `json:"status"`
	DetectionRateBefore *float64 `json:"ai_detection_rate_before,omitempty"`
	DetectionRateAfter  *float64 `json:"ai_detection_rate_after,omitempty"`

	// Task id assigned by the external rewrite service once submitted
	AIGCTaskID string `json:"aigc_task_id,omitempty"`

	RewriteType    string `json:"rewrite_type"`
	TargetLanguage string `json:"target_language"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// ProcessingLog is an append-only audit entry for one pipeline step
type ProcessingLog struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	Step       string    `json:"step"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"` // JSON blob, optional
	CreatedAt  time.Time `json:"created_at"`
}

// Pipeline step names recorded in processing logs
const (
	StepStartProcessing     = "start_processing"
	StepTextExtraction      = "text_extraction"
	StepSubmission          = "aigc_submission"
	StepPolling             = "aigc_polling"
	StepProcessingCompleted = "processing_completed"
	StepProcessingFailed    = "processing_failed"
)

// Processing log step status values
const (
	StepStatusStarted   = "started"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
)
