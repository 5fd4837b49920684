// Package models provides data model definitions for the POS core.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationType discriminates the kind of deferred business operation.
type OperationType string

const (
	OperationInvoice  OperationType = "invoice"
	OperationCustomer OperationType = "customer"
)

// OperationAction is the type-specific verb of a queued operation.
type OperationAction string

const (
	// invoice actions
	ActionCreateDraft  OperationAction = "create_draft"
	ActionSubmitAndPay OperationAction = "submit_and_pay"
	ActionCreateAndPay OperationAction = "create_and_pay"
	ActionSubmit       OperationAction = "submit" // legacy invoice push

	// customer actions
	ActionCreate OperationAction = "create"
)

// OperationStatus represents the lifecycle state of a queued operation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// QueueOperation is a durable record of a business operation that could
// not be executed against the backend at the time it happened. The id
// is assigned by the store at enqueue time and is monotonic, so listing
// by id preserves enqueue order.
type QueueOperation struct {
	ID         int64           `db:"id" json:"id"`
	Type       OperationType   `db:"type" json:"type"`
	Action     OperationAction `db:"action" json:"action"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Status     OperationStatus `db:"status" json:"status"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	Token      string          `db:"token" json:"token"` // client-side idempotency token
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"`
	UpdatedAt  int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for QueueOperation.
func (QueueOperation) TableName() string {
	return "sync_queue"
}

// EnqueuedAtTime returns the EnqueuedAt as time.Time.
func (op *QueueOperation) EnqueuedAtTime() time.Time {
	return time.Unix(op.EnqueuedAt, 0)
}

// Payload variants. Each (type, action) pair has its own struct so the
// replay dispatch works on concrete fields instead of a loose bag.

// CreateDraftPayload creates a remote draft invoice for an offline
// checkout. OrderID keys the PendingCheckoutLink the paired
// submit_and_pay resolves later.
type CreateDraftPayload struct {
	OrderID      string     `json:"order_id" validate:"required"`
	CustomerName string     `json:"customer_name" validate:"required"`
	Company      string     `json:"company" validate:"required"`
	Items        []CartItem `json:"items" validate:"required,min=1,dive"`
}

// SubmitAndPayPayload submits and pays an existing draft invoice,
// referenced either directly or through the order id of an earlier
// create_draft.
type SubmitAndPayPayload struct {
	OrderID         string `json:"order_id,omitempty" validate:"required_without=RemoteInvoiceID"`
	RemoteInvoiceID string `json:"remote_invoice_id,omitempty"`
	ModeOfPayment   string `json:"mode_of_payment" validate:"required"`
	LocalInvoiceID  int64  `json:"local_invoice_id,omitempty"`
}

// CreateAndPayPayload creates a draft and immediately submits and pays
// it as a single replay attempt.
type CreateAndPayPayload struct {
	CustomerName   string     `json:"customer_name" validate:"required"`
	Company        string     `json:"company" validate:"required"`
	Items          []CartItem `json:"items" validate:"required,min=1,dive"`
	ModeOfPayment  string     `json:"mode_of_payment" validate:"required"`
	LocalInvoiceID int64      `json:"local_invoice_id,omitempty"`
}

// SubmitInvoicePayload pushes a locally recorded invoice through the
// legacy submit endpoint.
type SubmitInvoicePayload struct {
	LocalInvoiceID int64        `json:"local_invoice_id" validate:"required"`
	Invoice        LocalInvoice `json:"invoice"`
}

// CreateCustomerPayload creates a customer that was captured offline
// under a placeholder id.
type CreateCustomerPayload struct {
	TempID string `json:"temp_id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Phone  string `json:"phone" validate:"required"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`
}

// DecodePayload unmarshals the raw payload into the variant matching
// the operation's (type, action) pair.
func (op *QueueOperation) DecodePayload() (interface{}, error) {
	var target interface{}

	switch {
	case op.Type == OperationInvoice && op.Action == ActionCreateDraft:
		target = &CreateDraftPayload{}
	case op.Type == OperationInvoice && op.Action == ActionSubmitAndPay:
		target = &SubmitAndPayPayload{}
	case op.Type == OperationInvoice && op.Action == ActionCreateAndPay:
		target = &CreateAndPayPayload{}
	case op.Type == OperationInvoice && op.Action == ActionSubmit:
		target = &SubmitInvoicePayload{}
	case op.Type == OperationCustomer && op.Action == ActionCreate:
		target = &CreateCustomerPayload{}
	default:
		return nil, fmt.Errorf("unknown queue operation %s/%s", op.Type, op.Action)
	}

	if err := json.Unmarshal(op.Payload, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s payload: %w", op.Type, op.Action, err)
	}
	return target, nil
}
