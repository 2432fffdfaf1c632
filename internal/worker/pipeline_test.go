package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/writepro/writepro/internal/aigc"
	"github.com/writepro/writepro/internal/apperrors"
	"github.com/writepro/writepro/internal/models"
	"github.com/writepro/writepro/internal/repository"
	"github.com/writepro/writepro/internal/storage"
	"github.com/writepro/writepro/pkg/database"
)

// fakeRewriteClient drives the pipeline through scripted provider behavior
type fakeRewriteClient struct {
	mu sync.Mutex

	completeAfter int // report completed once this many status calls happened; 0 means never
	failTask      bool
	submitErr     error

	statusCalls int
	downloads   int
}

func (f *fakeRewriteClient) Submit(ctx context.Context, text, rewriteType, language string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "task-1", nil
}

func (f *fakeRewriteClient) Status(ctx context.Context, taskID string) (*aigc.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusCalls++
	if f.failTask {
		return &aigc.TaskStatus{Status: aigc.TaskStatusFailed, Message: "model rejected input"}, nil
	}
	if f.completeAfter > 0 && f.statusCalls >= f.completeAfter {
		rate := 0.08
		return &aigc.TaskStatus{Status: aigc.TaskStatusCompleted, AIDetectionRate: &rate}, nil
	}
	return &aigc.TaskStatus{Status: aigc.TaskStatusProcessing}, nil
}

func (f *fakeRewriteClient) Download(ctx context.Context, taskID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	return []byte("rewritten output"), nil
}

func (f *fakeRewriteClient) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads
}

type pipelineEnv struct {
	db        *database.DB
	docRepo   *repository.DocumentRepository
	orderRepo *repository.OrderRepository
	store     *storage.LocalStore
	storeDir  string
	client    *fakeRewriteClient
	pipeline  *Pipeline
}

func newPipelineEnv(t *testing.T, client *fakeRewriteClient, cfg PipelineConfig) *pipelineEnv {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, logger)
	require.NoError(t, migrator.RunMigrations("../../migrations"))

	storeDir := t.TempDir()
	env := &pipelineEnv{
		db:        db,
		docRepo:   repository.NewDocumentRepository(db.DB, logger),
		orderRepo: repository.NewOrderRepository(db.DB, logger),
		store:     storage.NewLocalStore(storeDir, logger),
		storeDir:  storeDir,
		client:    client,
	}
	env.pipeline = NewPipeline(db, env.docRepo, env.orderRepo, env.store, client, cfg, logger)

	require.NoError(t, env.pipeline.Start(context.Background()))
	t.Cleanup(env.pipeline.Stop)

	return env
}

func (e *pipelineEnv) createDocument(t *testing.T, userID string) *models.Document {
	t.Helper()

	_, err := e.db.Exec(
		`INSERT INTO users (id, email, name, credits) VALUES (?, ?, ?, 0)`,
		userID, userID+"@example.com", userID)
	require.NoError(t, err)

	relPath, err := e.store.SaveOriginal(userID, ".txt", []byte("original draft text"))
	require.NoError(t, err)

	doc := &models.Document{
		UserID:         userID,
		Title:          "draft",
		OriginalFile:   relPath,
		FileSize:       19,
		FileType:       "txt",
		WordCount:      5, // stale on purpose; extraction refreshes it
		Status:         models.DocumentStatusUploaded,
		RewriteType:    "standard",
		TargetLanguage: "zh",
	}
	require.NoError(t, e.docRepo.Create(nil, doc))
	return doc
}

func (e *pipelineEnv) documentStatus(t *testing.T, id string) string {
	t.Helper()
	doc, err := e.docRepo.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc.Status
}

func (e *pipelineEnv) processedArtifactCount(t *testing.T) int {
	t.Helper()
	count := 0
	root := filepath.Join(e.storeDir, "documents", "processed")
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		require.NoError(t, err)
	}
	return count
}

func TestPipeline_CompletesOnThirdPoll(t *testing.T) {
	client := &fakeRewriteClient{completeAfter: 3}
	env := newPipelineEnv(t, client, PipelineConfig{
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 60,
	})
	doc := env.createDocument(t, "alice")

	// An order mid-settlement, as pay leaves it
	order := &models.Order{
		UserID:     "alice",
		DocumentID: doc.ID,
		Status:     models.OrderStatusProcessing,
	}
	require.NoError(t, env.orderRepo.Create(nil, order))

	require.NoError(t, env.pipeline.Submit(doc.ID))

	require.Eventually(t, func() bool {
		return env.documentStatus(t, doc.ID) == models.DocumentStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, client.downloadCount())
	assert.Equal(t, 1, env.processedArtifactCount(t))

	reloaded, err := env.docRepo.GetByID(doc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, reloaded.ProcessedFile)
	assert.NotNil(t, reloaded.ProcessedAt)
	require.NotNil(t, reloaded.DetectionRateAfter)
	assert.InDelta(t, 0.08, *reloaded.DetectionRateAfter, 1e-9)
	assert.Equal(t, "task-1", reloaded.AIGCTaskID)

	// Word count refreshed from the extracted text ("original draft text")
	assert.Equal(t, 17, reloaded.WordCount)

	// Order settled alongside the document
	settled, err := env.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, settled.Status)
	assert.NotNil(t, settled.CompletedAt)
}

func TestPipeline_TimesOutWhenProviderStalls(t *testing.T) {
	client := &fakeRewriteClient{} // never completes
	env := newPipelineEnv(t, client, PipelineConfig{
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 5,
	})
	doc := env.createDocument(t, "alice")

	require.NoError(t, env.pipeline.Submit(doc.ID))

	require.Eventually(t, func() bool {
		return env.documentStatus(t, doc.ID) == models.DocumentStatusFailed
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, client.downloadCount())
	assert.Equal(t, 0, env.processedArtifactCount(t))

	logs, err := env.docRepo.ListLogs(doc.ID)
	require.NoError(t, err)

	found := false
	for _, entry := range logs {
		if entry.Step == models.StepProcessingFailed &&
			strings.Contains(entry.Message, "timed out") {
			found = true
		}
	}
	assert.True(t, found, "expected a failure log mentioning the timeout")
}

func TestPipeline_RemoteFailure(t *testing.T) {
	client := &fakeRewriteClient{failTask: true}
	env := newPipelineEnv(t, client, PipelineConfig{
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 60,
	})
	doc := env.createDocument(t, "alice")

	require.NoError(t, env.pipeline.Submit(doc.ID))

	require.Eventually(t, func() bool {
		return env.documentStatus(t, doc.ID) == models.DocumentStatusFailed
	}, 5*time.Second, 5*time.Millisecond)

	logs, err := env.docRepo.ListLogs(doc.ID)
	require.NoError(t, err)

	found := false
	for _, entry := range logs {
		if strings.Contains(entry.Message, "model rejected input") {
			found = true
		}
	}
	assert.True(t, found, "expected the provider message in the failure log")
}

func TestPipeline_SubmissionFailure(t *testing.T) {
	client := &fakeRewriteClient{submitErr: errors.New("connection refused")}
	env := newPipelineEnv(t, client, PipelineConfig{
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 60,
	})
	doc := env.createDocument(t, "alice")

	require.NoError(t, env.pipeline.Submit(doc.ID))

	require.Eventually(t, func() bool {
		return env.documentStatus(t, doc.ID) == models.DocumentStatusFailed
	}, 5*time.Second, 5*time.Millisecond)
}

func TestPipeline_DuplicateSubmitConflicts(t *testing.T) {
	client := &fakeRewriteClient{completeAfter: 1000}
	env := newPipelineEnv(t, client, PipelineConfig{
		PollInterval:    50 * time.Millisecond,
		MaxPollAttempts: 1000,
	})
	doc := env.createDocument(t, "alice")

	require.NoError(t, env.pipeline.Submit(doc.ID))

	err := env.pipeline.Submit(doc.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestPipeline_RejectsUnsubmittableDocument(t *testing.T) {
	client := &fakeRewriteClient{completeAfter: 1}
	env := newPipelineEnv(t, client, PipelineConfig{
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 60,
	})
	doc := env.createDocument(t, "alice")
	require.NoError(t, env.docRepo.UpdateStatus(nil, doc.ID, models.DocumentStatusCompleted))

	// The rejection must surface synchronously so a paying caller can
	// compensate instead of stranding the order
	err := env.pipeline.Submit(doc.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	assert.False(t, env.pipeline.InFlight(doc.ID))
	assert.Equal(t, models.DocumentStatusCompleted, env.documentStatus(t, doc.ID))
}

func TestPipeline_ResubmitsFailedDocument(t *testing.T) {
	client := &fakeRewriteClient{completeAfter: 1}
	env := newPipelineEnv(t, client, PipelineConfig{
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 60,
	})
	doc := env.createDocument(t, "alice")
	require.NoError(t, env.docRepo.UpdateStatus(nil, doc.ID, models.DocumentStatusFailed))

	require.NoError(t, env.pipeline.Submit(doc.ID))

	require.Eventually(t, func() bool {
		return env.documentStatus(t, doc.ID) == models.DocumentStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)
}

func TestPipeline_RejectsSubmitWhenStopped(t *testing.T) {
	client := &fakeRewriteClient{}
	env := newPipelineEnv(t, client, PipelineConfig{
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 1,
	})
	env.pipeline.Stop()

	err := env.pipeline.Submit("whatever")
	assert.Error(t, err)
}
