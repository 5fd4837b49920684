// Package queue manages the durable queue of deferred business
// operations. Every mutation goes straight to the store, so a crash
// mid-drain loses nothing; items found in processing at startup are
// returned to pending and replayed.
package queue

import (
	"encoding/json"
	"time"

	"github.com/ldttech/poscore/internal/db"
	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/logging"
	"github.com/ldttech/poscore/internal/models"
	"github.com/ldttech/poscore/internal/uuid"
	"github.com/ldttech/poscore/internal/validation"
)

// MaxRetries is the replay ceiling. An operation that has failed this
// many times is parked as failed and needs an explicit retry.
const MaxRetries = 3

// Queue wraps the persistent operation queue. It owns no goroutines;
// the sync engine drives it.
type Queue struct {
	repo      *db.Repository
	validator *validation.Validator
}

// New creates a Queue over the given repository.
func New(repo *db.Repository) *Queue {
	return &Queue{
		repo:      repo,
		validator: validation.New(),
	}
}

// Enqueue validates and persists a new operation. The payload must be
// one of the variant structs matching the (type, action) pair; a
// payload that fails validation is rejected here because it would fail
// identically on every replay. Each operation gets a fresh idempotency
// token that travels with every replay attempt.
func (q *Queue) Enqueue(opType models.OperationType, action models.OperationAction, payload interface{}) (*models.QueueOperation, error) {
	if err := q.validator.ValidatePayload(payload); err != nil {
		return nil, err
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	op := &models.QueueOperation{
		Type:       opType,
		Action:     action,
		Payload:    raw,
		Status:     models.StatusPending,
		Token:      uuid.New(),
		EnqueuedAt: now,
		UpdatedAt:  now,
	}

	if err := q.repo.EnqueueOperation(op); err != nil {
		return nil, err
	}

	logging.Info("Enqueued operation", map[string]interface{}{
		"id":     op.ID,
		"type":   string(opType),
		"action": string(action),
	})
	return op, nil
}

// encodePayload marshals a payload variant for storage.
func encodePayload(payload interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to encode operation payload", err)
	}
	return raw, nil
}

// Pending returns pending operations in enqueue order.
func (q *Queue) Pending() ([]models.QueueOperation, error) {
	return q.repo.ListOperationsByStatus(models.StatusPending)
}

// List returns every operation currently in the queue table.
func (q *Queue) List() ([]models.QueueOperation, error) {
	return q.repo.ListAllOperations()
}

// Get returns one operation by id.
func (q *Queue) Get(id int64) (*models.QueueOperation, error) {
	op, err := q.repo.GetOperation(id)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, errors.New(errors.ErrQueueItemNotFound, "queue operation not found")
	}
	return op, nil
}

// MarkProcessing transitions an operation to processing before its
// replay attempt starts.
func (q *Queue) MarkProcessing(op *models.QueueOperation) error {
	op.Status = models.StatusProcessing
	return q.repo.UpdateOperation(op.ID, op.Status, op.RetryCount, op.LastError)
}

// MarkCompleted records a successful replay. The row stays in the
// table until SweepCompleted removes it, so the operator UI can show
// recent history.
func (q *Queue) MarkCompleted(op *models.QueueOperation) error {
	op.Status = models.StatusCompleted
	op.LastError = ""
	if err := q.repo.UpdateOperation(op.ID, op.Status, op.RetryCount, ""); err != nil {
		return err
	}

	logging.Info("Operation completed", map[string]interface{}{
		"id":     op.ID,
		"type":   string(op.Type),
		"action": string(op.Action),
	})
	return nil
}

// MarkFailed records a failed attempt. Below the retry ceiling the
// operation returns to pending for the next cycle; at the ceiling it
// is parked as failed and left for an explicit Retry.
func (q *Queue) MarkFailed(op *models.QueueOperation, cause error) error {
	op.RetryCount++
	op.LastError = cause.Error()

	if op.RetryCount >= MaxRetries {
		op.Status = models.StatusFailed
		logging.ErrorWithCode("Operation failed permanently",
			string(errors.ErrRetryLimitExceeded), cause, map[string]interface{}{
				"id":      op.ID,
				"type":    string(op.Type),
				"action":  string(op.Action),
				"retries": op.RetryCount,
			})
	} else {
		op.Status = models.StatusPending
		logging.Warn("Operation failed, will retry", map[string]interface{}{
			"id":      op.ID,
			"retries": op.RetryCount,
			"error":   op.LastError,
		})
	}

	return q.repo.UpdateOperation(op.ID, op.Status, op.RetryCount, op.LastError)
}

// MarkFailedTerminal parks an operation as failed immediately, without
// consuming the remaining retries. Used for errors that cannot heal on
// their own, such as a payment whose draft reference is gone for good.
func (q *Queue) MarkFailedTerminal(op *models.QueueOperation, cause error) error {
	op.RetryCount++
	op.LastError = cause.Error()
	op.Status = models.StatusFailed

	logging.ErrorWithCode("Operation failed permanently",
		string(errors.CodeOf(cause)), cause, map[string]interface{}{
			"id":     op.ID,
			"type":   string(op.Type),
			"action": string(op.Action),
		})
	return q.repo.UpdateOperation(op.ID, op.Status, op.RetryCount, op.LastError)
}

// Retry resets a failed operation to pending with a clean retry count.
func (q *Queue) Retry(id int64) error {
	op, err := q.Get(id)
	if err != nil {
		return err
	}
	if op.Status != models.StatusFailed {
		return errors.New(errors.ErrInvalid, "only failed operations can be retried")
	}
	return q.repo.UpdateOperation(id, models.StatusPending, 0, "")
}

// RetryAllFailed resets every failed operation to pending. Returns the
// number of operations reset.
func (q *Queue) RetryAllFailed() (int, error) {
	failed, err := q.repo.ListOperationsByStatus(models.StatusFailed)
	if err != nil {
		return 0, err
	}
	for _, op := range failed {
		if err := q.repo.UpdateOperation(op.ID, models.StatusPending, 0, ""); err != nil {
			return 0, err
		}
	}
	return len(failed), nil
}

// Remove deletes an operation regardless of status.
func (q *Queue) Remove(id int64) error {
	return q.repo.RemoveOperation(id)
}

// Recover returns crashed processing operations to pending. Called
// once at startup, before the first drain.
func (q *Queue) Recover() (int64, error) {
	n, err := q.repo.ResetProcessingOperations()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Warn("Recovered interrupted operations", map[string]interface{}{
			"count": n,
		})
	}
	return n, nil
}

// SweepCompleted removes completed operations older than age.
func (q *Queue) SweepCompleted(age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).Unix()
	return q.repo.RemoveCompletedBefore(cutoff)
}

// Stats counts operations per status.
func (q *Queue) Stats() (map[models.OperationStatus]int, error) {
	ops, err := q.repo.ListAllOperations()
	if err != nil {
		return nil, err
	}

	stats := map[models.OperationStatus]int{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusCompleted:  0,
		models.StatusFailed:     0,
	}
	for _, op := range ops {
		stats[op.Status]++
	}
	return stats, nil
}
