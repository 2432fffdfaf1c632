package lifecycle

import "github.com/writepro/writepro/internal/models"

// Triggers shared by the domain lifecycles
const (
	TriggerStartProcessing Trigger = "START_PROCESSING"
	TriggerComplete        Trigger = "COMPLETE"
	TriggerFail            Trigger = "FAIL"
	TriggerPay             Trigger = "PAY"
	TriggerCancel          Trigger = "CANCEL"
	TriggerRefund          Trigger = "REFUND"
)

// DocumentFlow builds the document lifecycle:
// uploaded -> processing -> completed | failed
func DocumentFlow() *Builder {
	b := NewBuilder(
		State(models.DocumentStatusUploaded),
		State(models.DocumentStatusProcessing),
		State(models.DocumentStatusCompleted),
		State(models.DocumentStatusFailed),
	)
	b.MarkTerminal(State(models.DocumentStatusCompleted))

	b.Configure(State(models.DocumentStatusUploaded)).
		Permit(TriggerStartProcessing, State(models.DocumentStatusProcessing)).
		Permit(TriggerFail, State(models.DocumentStatusFailed))
	b.Configure(State(models.DocumentStatusProcessing)).
		Permit(TriggerComplete, State(models.DocumentStatusCompleted)).
		Permit(TriggerFail, State(models.DocumentStatusFailed))
	// A failed document may be resubmitted by a fresh user action
	b.Configure(State(models.DocumentStatusFailed)).
		Permit(TriggerStartProcessing, State(models.DocumentStatusProcessing))

	return b
}

// OrderFlow builds the order lifecycle:
// pending -> paid -> processing -> completed, with cancellation from
// pending/paid and refund from paid onward
func OrderFlow() *Builder {
	b := NewBuilder(
		State(models.OrderStatusPending),
		State(models.OrderStatusPaid),
		State(models.OrderStatusProcessing),
		State(models.OrderStatusCompleted),
		State(models.OrderStatusCancelled),
		State(models.OrderStatusRefunded),
	)
	b.MarkTerminal(
		State(models.OrderStatusCompleted),
		State(models.OrderStatusCancelled),
		State(models.OrderStatusRefunded),
	)

	b.Configure(State(models.OrderStatusPending)).
		Permit(TriggerPay, State(models.OrderStatusPaid)).
		Permit(TriggerCancel, State(models.OrderStatusCancelled))
	b.Configure(State(models.OrderStatusPaid)).
		Permit(TriggerStartProcessing, State(models.OrderStatusProcessing)).
		Permit(TriggerCancel, State(models.OrderStatusCancelled)).
		Permit(TriggerRefund, State(models.OrderStatusRefunded))
	b.Configure(State(models.OrderStatusProcessing)).
		Permit(TriggerComplete, State(models.OrderStatusCompleted)).
		Permit(TriggerRefund, State(models.OrderStatusRefunded))

	return b
}

// PaymentFlow builds the payment lifecycle:
// pending -> completed, cancellation from pending/processing
func PaymentFlow() *Builder {
	b := NewBuilder(
		State(models.PaymentStatusPending),
		State(models.PaymentStatusProcessing),
		State(models.PaymentStatusCompleted),
		State(models.PaymentStatusFailed),
		State(models.PaymentStatusCancelled),
		State(models.PaymentStatusRefunded),
	)
	b.MarkTerminal(
		State(models.PaymentStatusCompleted),
		State(models.PaymentStatusFailed),
		State(models.PaymentStatusCancelled),
		State(models.PaymentStatusRefunded),
	)

	b.Configure(State(models.PaymentStatusPending)).
		Permit(TriggerComplete, State(models.PaymentStatusCompleted)).
		Permit(TriggerFail, State(models.PaymentStatusFailed)).
		Permit(TriggerCancel, State(models.PaymentStatusCancelled))
	b.Configure(State(models.PaymentStatusProcessing)).
		Permit(TriggerComplete, State(models.PaymentStatusCompleted)).
		Permit(TriggerFail, State(models.PaymentStatusFailed)).
		Permit(TriggerCancel, State(models.PaymentStatusCancelled))

	return b
}
