package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/writepro/writepro/internal/aigc"
	"github.com/writepro/writepro/internal/models"
	"github.com/writepro/writepro/internal/repository"
	"github.com/writepro/writepro/internal/storage"
	"github.com/writepro/writepro/pkg/database"
)

// fakeStatusClient serves scripted task statuses for poll-on-read tests
type fakeStatusClient struct {
	status *aigc.TaskStatus
	err    error
}

func (f *fakeStatusClient) Submit(ctx context.Context, text, rewriteType, language string) (string, error) {
	return "task-1", nil
}

func (f *fakeStatusClient) Status(ctx context.Context, taskID string) (*aigc.TaskStatus, error) {
	return f.status, f.err
}

func (f *fakeStatusClient) Download(ctx context.Context, taskID string) ([]byte, error) {
	return []byte("rewritten output"), nil
}

// fakeDispatcher records pipeline submissions
type fakeDispatcher struct {
	calls []string
	err   error
}

func (f *fakeDispatcher) Submit(documentID string) error {
	f.calls = append(f.calls, documentID)
	return f.err
}

type testEnv struct {
	db          *database.DB
	docRepo     *repository.DocumentRepository
	orderRepo   *repository.OrderRepository
	paymentRepo *repository.PaymentRepository
	creditRepo  *repository.CreditRepository
	store       *storage.LocalStore
	dispatcher  *fakeDispatcher
	client      *fakeStatusClient
	documents   *DocumentService
	orders      *OrderService
	payments    *PaymentService
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestEnv(t *testing.T) *testEnv {
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

	env := &testEnv{
		db:          db,
		docRepo:     repository.NewDocumentRepository(db.DB, logger),
		orderRepo:   repository.NewOrderRepository(db.DB, logger),
		paymentRepo: repository.NewPaymentRepository(db.DB, logger),
		creditRepo:  repository.NewCreditRepository(db.DB, logger),
		store:       storage.NewLocalStore(t.TempDir(), logger),
		dispatcher:  &fakeDispatcher{},
		client:      &fakeStatusClient{},
	}
	env.documents = NewDocumentService(db, env.docRepo, env.orderRepo, env.store,
		env.client, 50*1024*1024, logger)
	env.orders = NewOrderService(db, env.orderRepo, env.docRepo, env.creditRepo,
		env.store, env.dispatcher, logger)
	env.payments = NewPaymentService(db, env.paymentRepo, env.creditRepo, logger)

	return env
}

func (e *testEnv) createUser(t *testing.T, id string, credits int) {
	t.Helper()
	require.NoError(t, e.creditRepo.CreateUser(nil, &models.User{
		ID:      id,
		Email:   id + "@example.com",
		Name:    id,
		Credits: credits,
	}))
}

func (e *testEnv) createDocument(t *testing.T, userID string, wordCount int) *models.Document {
	t.Helper()
	doc := &models.Document{
		UserID:         userID,
		Title:          "essay",
		OriginalFile:   "documents/" + userID + "/essay.txt",
		FileSize:       1024,
		FileType:       "txt",
		WordCount:      wordCount,
		Status:         models.DocumentStatusUploaded,
		RewriteType:    "standard",
		TargetLanguage: "zh",
	}
	require.NoError(t, e.docRepo.Create(nil, doc))
	return doc
}
