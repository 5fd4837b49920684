package sync

import (
	"fmt"
	"time"
)

// TaskResult is the outcome of one independent sub-task of a cycle.
type TaskResult struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Err   error  `json:"-"`
}

// OperationError records one queued operation whose replay failed
// during a drain.
type OperationError struct {
	OperationID int64  `json:"id"`
	Message     string `json:"error"`
}

// DrainResult is the outcome of a queue drain. Errors lists the
// operations that failed their replay; Err is set only when the drain
// itself could not proceed.
type DrainResult struct {
	Processed int              `json:"processed"`
	Completed int              `json:"completed"`
	Failed    int              `json:"failed"`
	Errors    []OperationError `json:"errors,omitempty"`
	Err       error            `json:"-"`
}

// Report is the composite outcome of a sync cycle. Sub-tasks succeed
// or fail independently; there is deliberately no single boolean for
// the whole cycle beyond the derived Succeeded.
type Report struct {
	Full       bool      `json:"full"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Products  TaskResult  `json:"products"`
	Customers TaskResult  `json:"customers"`
	TaxRules  TaskResult  `json:"tax_rules"`
	Queue     DrainResult `json:"queue"`
	Invoices  TaskResult  `json:"invoices"`
}

// Succeeded reports whether every sub-task ran clean and no queued
// operation failed its replay.
func (r *Report) Succeeded() bool {
	return len(r.ErrorStrings()) == 0 && r.Queue.Failed == 0
}

// ErrorStrings collects sub-task and per-operation errors for logs
// and events.
func (r *Report) ErrorStrings() []string {
	var errs []string
	for _, task := range []TaskResult{r.Products, r.Customers, r.TaxRules, r.Invoices} {
		if task.Err != nil {
			errs = append(errs, task.Name+": "+task.Err.Error())
		}
	}
	if r.Queue.Err != nil {
		errs = append(errs, "queue: "+r.Queue.Err.Error())
	}
	for _, opErr := range r.Queue.Errors {
		errs = append(errs, fmt.Sprintf("operation %d: %s", opErr.OperationID, opErr.Message))
	}
	return errs
}
