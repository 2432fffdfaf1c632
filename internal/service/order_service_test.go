package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/writepro/writepro/internal/apperrors"
	"github.com/writepro/writepro/internal/models"
	"github.com/writepro/writepro/internal/worker"
)

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 0)
	doc := env.createDocument(t, "alice", 5000)

	order, err := env.orders.Create("alice", CreateInput{
		DocumentID:  doc.ID,
		ServiceType: "academic",
		Urgency:     "rush",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "717.60", order.TotalAmount.StringFixed(2))
	assert.NotEmpty(t, order.OrderNumber)

	items, err := env.orderRepo.ListItems(order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "717.60", items[0].TotalPrice.StringFixed(2))

	history, err := env.orderRepo.ListHistory(order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "", history[0].FromStatus)
	assert.Equal(t, models.OrderStatusPending, history[0].ToStatus)
}

func TestCreateOrder_ConflictOnSecondActive(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 0)
	doc := env.createDocument(t, "alice", 5000)

	_, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID})
	require.NoError(t, err)

	_, err = env.orders.Create("alice", CreateInput{DocumentID: doc.ID})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCreateOrder_DocumentNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 0)

	_, err := env.orders.Create("alice", CreateInput{DocumentID: "missing"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreateOrder_OtherUsersDocument(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 0)
	env.createUser(t, "bob", 0)
	doc := env.createDocument(t, "alice", 5000)

	_, err := env.orders.Create("bob", CreateInput{DocumentID: doc.ID})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPayOrder_Success(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 500)
	doc := env.createDocument(t, "alice", 5000)

	order, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID, CreditsUsed: 100})
	require.NoError(t, err)

	paid, err := env.orders.Pay("alice", order.ID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusProcessing, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	balance, err := env.creditRepo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 400, balance)

	history, err := env.orderRepo.ListHistory(order.ID)
	require.NoError(t, err)
	require.Len(t, history, 3) // creation plus the two pay transitions
	assert.Equal(t, models.OrderStatusPaid, history[1].ToStatus)
	assert.Equal(t, models.OrderStatusProcessing, history[2].ToStatus)

	require.Len(t, env.dispatcher.calls, 1)
	assert.Equal(t, doc.ID, env.dispatcher.calls[0])
}

func TestPayOrder_InsufficientCreditsLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 50)
	doc := env.createDocument(t, "alice", 5000)

	order, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID, CreditsUsed: 100})
	require.NoError(t, err)

	_, err = env.orders.Pay("alice", order.ID)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientCredits)

	balance, err := env.creditRepo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 50, balance)

	reloaded, err := env.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, reloaded.Status)

	assert.Empty(t, env.dispatcher.calls)
}

func TestPayOrder_NotPending(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 500)
	doc := env.createDocument(t, "alice", 5000)

	order, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID})
	require.NoError(t, err)

	_, err = env.orders.Pay("alice", order.ID)
	require.NoError(t, err)

	_, err = env.orders.Pay("alice", order.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestPayOrder_DispatchFailureCompensates(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 500)
	doc := env.createDocument(t, "alice", 5000)
	env.dispatcher.err = errors.New("pipeline is not running")

	order, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID, CreditsUsed: 100})
	require.NoError(t, err)

	_, err = env.orders.Pay("alice", order.ID)
	require.Error(t, err)

	// Debited credits came back and the order is terminally cancelled
	balance, err := env.creditRepo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 500, balance)

	reloaded, err := env.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, reloaded.Status)
}

func TestCancelOrder_FromPaidRefunds(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 500)
	doc := env.createDocument(t, "alice", 5000)

	order, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID, CreditsUsed: 100})
	require.NoError(t, err)

	// Put the order into paid with the debit applied, as a pay that
	// stopped short of dispatch would
	require.NoError(t, env.creditRepo.Debit(nil, "alice", 100))
	moved, err := env.orderRepo.TransitionStatus(nil, order.ID,
		models.OrderStatusPending, models.OrderStatusPaid)
	require.NoError(t, err)
	require.True(t, moved)

	cancelled, err := env.orders.Cancel("alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	balance, err := env.creditRepo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 500, balance)
}

func TestCancelOrder_FromPendingNoRefund(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 500)
	doc := env.createDocument(t, "alice", 5000)

	order, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID, CreditsUsed: 100})
	require.NoError(t, err)

	cancelled, err := env.orders.Cancel("alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	balance, err := env.creditRepo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 500, balance)
}

func TestCancelOrder_FromProcessingRejected(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 500)
	doc := env.createDocument(t, "alice", 5000)

	order, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID})
	require.NoError(t, err)

	_, err = env.orders.Pay("alice", order.ID)
	require.NoError(t, err)

	_, err = env.orders.Cancel("alice", order.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestDownloadResult_RequiresCompleted(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 0)
	doc := env.createDocument(t, "alice", 5000)

	order, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID})
	require.NoError(t, err)

	_, _, err = env.orders.DownloadResult("alice", order.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestDownloadResult_Completed(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 0)
	doc := env.createDocument(t, "alice", 5000)

	order, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID})
	require.NoError(t, err)

	// Walk the order to completed and attach a processed artifact, as the
	// pipeline would
	for _, step := range [][2]string{
		{models.OrderStatusPending, models.OrderStatusPaid},
		{models.OrderStatusPaid, models.OrderStatusProcessing},
		{models.OrderStatusProcessing, models.OrderStatusCompleted},
	} {
		moved, err := env.orderRepo.TransitionStatus(nil, order.ID, step[0], step[1])
		require.NoError(t, err)
		require.True(t, moved)
	}

	relPath, err := env.store.SaveProcessed("alice", ".txt", []byte("rewritten text"))
	require.NoError(t, err)
	require.NoError(t, env.docRepo.CompleteProcessing(nil, doc.ID, relPath, 0.05))

	content, name, err := env.orders.DownloadResult("alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, "rewritten text", string(content))
	assert.Contains(t, name, "_processed")
}

func TestPayOrder_UnsubmittableDocumentCompensated(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 500)
	doc := env.createDocument(t, "alice", 5000)

	// The document already ran to completion under an earlier order
	require.NoError(t, env.docRepo.UpdateStatus(nil, doc.ID, models.DocumentStatusCompleted))

	// Pay against the real pipeline so the dispatch rejection takes the
	// same path it would in production
	pipeline := worker.NewPipeline(env.db, env.docRepo, env.orderRepo, env.store,
		env.client, worker.PipelineConfig{
			PollInterval:    time.Millisecond,
			MaxPollAttempts: 3,
		}, testLogger())
	require.NoError(t, pipeline.Start(context.Background()))
	t.Cleanup(pipeline.Stop)

	orders := NewOrderService(env.db, env.orderRepo, env.docRepo, env.creditRepo,
		env.store, pipeline, testLogger())

	order, err := orders.Create("alice", CreateInput{DocumentID: doc.ID, CreditsUsed: 100})
	require.NoError(t, err)

	_, err = orders.Pay("alice", order.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	// The debit is returned and the order does not linger in processing
	balance, err := env.creditRepo.Balance("alice")
	require.NoError(t, err)
	assert.Equal(t, 500, balance)

	reloaded, err := env.orderRepo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, reloaded.Status)

	// The completed document itself is untouched
	refreshed, err := env.docRepo.GetByID(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusCompleted, refreshed.Status)
}

func TestGetOrder_ByOrderNumber(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", 0)
	doc := env.createDocument(t, "alice", 5000)

	created, err := env.orders.Create("alice", CreateInput{DocumentID: doc.ID})
	require.NoError(t, err)

	order, _, _, err := env.orders.Get("alice", created.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, created.ID, order.ID)

	// Another user cannot resolve the same number
	env.createUser(t, "bob", 0)
	_, _, _, err = env.orders.Get("bob", created.OrderNumber)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
