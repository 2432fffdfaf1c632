package worker

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/writepro/writepro/internal/aigc"
	"github.com/writepro/writepro/internal/apperrors"
	"github.com/writepro/writepro/internal/extract"
	"github.com/writepro/writepro/internal/lifecycle"
	"github.com/writepro/writepro/internal/models"
	"github.com/writepro/writepro/internal/repository"
	"github.com/writepro/writepro/internal/storage"
	"github.com/writepro/writepro/pkg/database"
	"go.uber.org/zap"
)

// PipelineConfig holds pipeline tuning parameters
type PipelineConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Pipeline drives documents through extraction, submission to the rewrite
// provider, status polling and artifact retrieval. Each submitted document
// runs on its own goroutine; an in-flight set plus a status compare-and-swap
// guarantee a document is never processed twice concurrently.
type Pipeline struct {
	db        *database.DB
	docRepo   *repository.DocumentRepository
	orderRepo *repository.OrderRepository
	store     storage.ArtifactStore
	client    aigc.Client
	logger    *zap.Logger

	pollInterval    time.Duration
	maxPollAttempts int

	mu        sync.Mutex
	inFlight  map[string]struct{}
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPipeline creates a new processing pipeline worker
func NewPipeline(
	db *database.DB,
	docRepo *repository.DocumentRepository,
	orderRepo *repository.OrderRepository,
	store storage.ArtifactStore,
	client aigc.Client,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		db:              db,
		docRepo:         docRepo,
		orderRepo:       orderRepo,
		store:           store,
		client:          client,
		logger:          logger,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		inFlight:        make(map[string]struct{}),
	}
}

// Start makes the pipeline accept submissions
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("pipeline is already running")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.isRunning = true

	p.logger.Info("Pipeline started",
		zap.Duration("poll_interval", p.pollInterval),
		zap.Int("max_poll_attempts", p.maxPollAttempts))

	return nil
}

// Stop cancels all in-flight runs and waits for them to wind down
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.logger.Info("Pipeline stopped")
}

// Name returns the worker name for identification
func (p *Pipeline) Name() string {
	return "Pipeline"
}

// Submit claims a document and enqueues asynchronous processing. The claim
// happens synchronously so callers learn about an unsubmittable document
// before the goroutine starts: a duplicate in-flight submission fails with a
// conflict, a document outside the submittable states with an invalid-state
// error.
func (p *Pipeline) Submit(documentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return fmt.Errorf("pipeline is not running")
	}
	if _, active := p.inFlight[documentID]; active {
		return fmt.Errorf("%w: document %s is already being processed", apperrors.ErrConflict, documentID)
	}

	doc, err := p.docRepo.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: document %s", apperrors.ErrNotFound, documentID)
	}

	machine, err := lifecycle.DocumentFlow().Build(lifecycle.State(doc.Status))
	if err != nil {
		return fmt.Errorf("%w: document %s has status %s", apperrors.ErrInvalidState, documentID, doc.Status)
	}
	if err := machine.Fire(p.ctx, lifecycle.TriggerStartProcessing); err != nil {
		return fmt.Errorf("%w: document %s is not submittable from status %s",
			apperrors.ErrInvalidState, documentID, doc.Status)
	}

	// Status CAS is the second half of the double-submission guard: only
	// one writer can move the row into processing
	moved, err := p.docRepo.TransitionStatus(nil, documentID,
		doc.Status, string(machine.State()))
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("%w: document %s was claimed concurrently", apperrors.ErrConflict, documentID)
	}

	p.inFlight[documentID] = struct{}{}
	p.wg.Add(1)
	go p.run(doc)

	return nil
}

// InFlight reports whether a document is currently being processed
func (p *Pipeline) InFlight(documentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, active := p.inFlight[documentID]
	return active
}

// SetPollInterval overrides the polling interval (for testing)
func (p *Pipeline) SetPollInterval(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pollInterval = interval
}

func (p *Pipeline) release(documentID string) {
	p.mu.Lock()
	delete(p.inFlight, documentID)
	p.mu.Unlock()
	p.wg.Done()
}

func (p *Pipeline) run(doc *models.Document) {
	defer p.release(doc.ID)

	p.appendLog(doc.ID, models.StepStartProcessing, models.StepStatusStarted,
		"document processing started")

	// Step 1: extract text from the original artifact
	path, err := p.store.Path(doc.OriginalFile)
	if err != nil {
		p.fail(doc.ID, models.StepTextExtraction, err)
		return
	}
	text, err := extract.Text(path)
	if err != nil {
		p.fail(doc.ID, models.StepTextExtraction, err)
		return
	}

	// The extracted text is the authoritative word count source
	if err := p.docRepo.SetWordCount(nil, doc.ID, extract.WordCount(text)); err != nil {
		p.logger.Warn("Failed to refresh word count",
			zap.String("document_id", doc.ID), zap.Error(err))
	}

	p.appendLog(doc.ID, models.StepTextExtraction, models.StepStatusCompleted,
		fmt.Sprintf("text extraction finished, %d characters", utf8.RuneCountInString(text)))

	// Step 2: submit to the rewrite provider
	taskID, err := p.client.Submit(p.ctx, text, doc.RewriteType, doc.TargetLanguage)
	if err != nil {
		p.fail(doc.ID, models.StepSubmission, err)
		return
	}

	if err := p.docRepo.SetTaskID(nil, doc.ID, taskID); err != nil {
		p.fail(doc.ID, models.StepSubmission, err)
		return
	}

	p.appendLog(doc.ID, models.StepSubmission, models.StepStatusCompleted,
		fmt.Sprintf("submitted to rewrite service, task id: %s", taskID))

	// Step 3: poll until the task reaches a terminal status or the
	// budget runs out
	p.poll(doc, taskID)
}

func (p *Pipeline) poll(doc *models.Document, taskID string) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.maxPollAttempts; attempt++ {
		select {
		case <-p.ctx.Done():
			// Worker shutdown is the only cancellation path; the
			// document stays in processing for the next start-up
			p.logger.Info("Polling cancelled by shutdown",
				zap.String("document_id", doc.ID),
				zap.String("task_id", taskID))
			return
		case <-ticker.C:
		}

		status, err := p.client.Status(p.ctx, taskID)
		if err != nil {
			// Transient: an unreachable provider consumes the attempt
			// but does not fail the run
			continue
		}

		switch status.Status {
		case aigc.TaskStatusCompleted:
			p.finish(doc, taskID, status)
			return
		case aigc.TaskStatusFailed:
			msg := status.Message
			if msg == "" {
				msg = "unknown error"
			}
			p.fail(doc.ID, models.StepPolling,
				fmt.Errorf("%w: %s", apperrors.ErrRemoteProcessing, msg))
			return
		default:
			// submitted/processing or anything unrecognized: keep polling
		}
	}

	p.fail(doc.ID, models.StepPolling,
		fmt.Errorf("%w after %d poll attempts", apperrors.ErrTimeout, p.maxPollAttempts))
}

// finish downloads the rewritten artifact and settles document and order in
// one transaction
func (p *Pipeline) finish(doc *models.Document, taskID string, status *aigc.TaskStatus) {
	content, err := p.client.Download(p.ctx, taskID)
	if err != nil {
		p.fail(doc.ID, models.StepProcessingCompleted, err)
		return
	}

	processedPath, err := p.store.SaveProcessed(doc.UserID, ".txt", content)
	if err != nil {
		p.fail(doc.ID, models.StepProcessingCompleted, err)
		return
	}

	var detectionRate float64
	if status.AIDetectionRate != nil {
		detectionRate = *status.AIDetectionRate
	}

	err = p.db.WithTransaction(func(tx *sql.Tx) error {
		// Look up the order inside the transaction so a failed read fails
		// the run instead of silently skipping settlement
		order, err := p.orderRepo.GetActiveByDocument(tx, doc.ID)
		if err != nil {
			return err
		}

		if err := p.docRepo.CompleteProcessing(tx, doc.ID, processedPath, detectionRate); err != nil {
			return err
		}

		if err := p.docRepo.AppendLog(tx, &models.ProcessingLog{
			DocumentID: doc.ID,
			Step:       models.StepProcessingCompleted,
			Status:     models.StepStatusCompleted,
			Message:    "document processing completed",
		}); err != nil {
			return err
		}

		// Settle the in-flight order alongside the document so the two
		// can never disagree
		if order != nil && order.Status == models.OrderStatusProcessing {
			moved, err := p.orderRepo.TransitionStatus(tx, order.ID,
				models.OrderStatusProcessing, models.OrderStatusCompleted)
			if err != nil {
				return err
			}
			if moved {
				if err := p.orderRepo.AppendHistory(tx, &models.OrderStatusHistory{
					OrderID:    order.ID,
					FromStatus: models.OrderStatusProcessing,
					ToStatus:   models.OrderStatusCompleted,
					Reason:     "document processing completed",
				}); err != nil {
					return err
				}
			}
		}

		return nil
	})
	if err != nil {
		p.fail(doc.ID, models.StepProcessingCompleted, err)
		return
	}

	p.logger.Info("Document processing completed",
		zap.String("document_id", doc.ID),
		zap.String("task_id", taskID),
		zap.Float64("ai_detection_rate_after", detectionRate))
}

// fail moves the document to failed and writes the terminal audit entry.
// Failed runs are never retried automatically.
func (p *Pipeline) fail(documentID, step string, cause error) {
	p.logger.Error("Document processing failed",
		zap.String("document_id", documentID),
		zap.String("step", step),
		zap.Error(cause))

	err := p.db.WithTransaction(func(tx *sql.Tx) error {
		if err := p.docRepo.UpdateStatus(tx, documentID, models.DocumentStatusFailed); err != nil {
			return err
		}
		return p.docRepo.AppendLog(tx, &models.ProcessingLog{
			DocumentID: documentID,
			Step:       models.StepProcessingFailed,
			Status:     models.StepStatusFailed,
			Message:    fmt.Sprintf("processing failed at %s: %v", step, cause),
		})
	})
	if err != nil {
		p.logger.Error("Failed to record processing failure",
			zap.String("document_id", documentID), zap.Error(err))
	}
}

func (p *Pipeline) appendLog(documentID, step, status, message string) {
	if err := p.docRepo.AppendLog(nil, &models.ProcessingLog{
		DocumentID: documentID,
		Step:       step,
		Status:     status,
		Message:    message,
	}); err != nil {
		p.logger.Error("Failed to append processing log",
			zap.String("document_id", documentID),
			zap.String("step", step),
			zap.Error(err))
	}
}
