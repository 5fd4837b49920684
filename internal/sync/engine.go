// Package sync orchestrates synchronization between the local cache,
// the durable operation queue, and the ERP backend.
package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ldttech/poscore/internal/db"
	"github.com/ldttech/poscore/internal/erpnext"
	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/logging"
	"github.com/ldttech/poscore/internal/models"
	"github.com/ldttech/poscore/internal/sync/queue"
)

// Settings keys the engine owns.
const (
	SettingTaxRules = "tax_rules"
	SettingLastSync = "last_sync"
)

// RemoteAPI is the slice of the backend client the engine needs.
// *erpnext.Client satisfies it; tests substitute a fake.
type RemoteAPI interface {
	CreateInvoiceDraft(ctx context.Context, req erpnext.DraftRequest, token string) (*erpnext.DraftInvoice, error)
	SubmitAndPay(ctx context.Context, salesInvoice, modeOfPayment, token string) error
	SubmitInvoice(ctx context.Context, inv models.LocalInvoice) error
	SearchItems(ctx context.Context, txt, priceList string, start, pageLength int) (*erpnext.ItemPage, error)
	SearchCustomers(ctx context.Context, search string) ([]models.Customer, error)
	CreateCustomer(ctx context.Context, req erpnext.CreateCustomerRequest, token string) (*models.Customer, error)
	FetchTaxRuleSet(ctx context.Context, company string) (*models.TaxRuleSet, error)
}

// EventSink receives engine lifecycle events for UI broadcast.
type EventSink interface {
	Publish(event string, data map[string]interface{})
}

// NopSink drops all events.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(string, map[string]interface{}) {}

// Config tunes a sync Engine.
type Config struct {
	Company    string
	PriceList  string
	PageLength int
	SweepAge   time.Duration
}

// Engine runs sync cycles. Only one cycle may be active at a time; a
// trigger arriving while one runs is dropped, which keeps two cycles
// from racing on the same queue.
type Engine struct {
	repo   *db.Repository
	queue  *queue.Queue
	remote RemoteAPI
	events EventSink
	cfg    Config

	running atomic.Bool

	mu         sync.Mutex
	lastReport *Report
}

// NewEngine creates an Engine. A nil sink is replaced with NopSink.
func NewEngine(repo *db.Repository, q *queue.Queue, remote RemoteAPI, events EventSink, cfg Config) *Engine {
	if events == nil {
		events = NopSink{}
	}
	if cfg.PageLength <= 0 {
		cfg.PageLength = 20
	}
	if cfg.SweepAge <= 0 {
		cfg.SweepAge = time.Hour
	}
	return &Engine{
		repo:   repo,
		queue:  q,
		remote: remote,
		events: events,
		cfg:    cfg,
	}
}

// Running reports whether a cycle is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// LastReport returns the most recent cycle report, or nil before the
// first cycle.
func (e *Engine) LastReport() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}

// Recover returns crashed processing operations to pending. Call once
// at startup before any cycle runs.
func (e *Engine) Recover() error {
	_, err := e.queue.Recover()
	return err
}

// AutoSync runs the lightweight cycle: catalog pull, customer pull,
// tax rule refresh, queue drain. Safe to run on every reconnect and
// periodically while online.
func (e *Engine) AutoSync(ctx context.Context) (*Report, error) {
	return e.run(ctx, false)
}

// FullSync additionally pushes locally recorded invoices that never
// made it to the backend.
func (e *Engine) FullSync(ctx context.Context) (*Report, error) {
	return e.run(ctx, true)
}

func (e *Engine) run(ctx context.Context, full bool) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, errors.New(errors.ErrSyncInProgress, "a sync cycle is already running")
	}
	defer e.running.Store(false)

	report := &Report{Full: full, StartedAt: time.Now()}
	e.events.Publish("sync.started", map[string]interface{}{"full": full})

	// Each sub-task fails independently; a dead customer endpoint must
	// not stop the queue drain.
	report.Products = e.pullProducts(ctx)
	report.Customers = e.pullCustomers(ctx)
	report.TaxRules = e.refreshTaxRules(ctx)
	report.Queue = e.drainQueue(ctx)
	if full {
		report.Invoices = e.pushUnsyncedInvoices(ctx)
	}

	if n, err := e.queue.SweepCompleted(e.cfg.SweepAge); err != nil {
		logging.Error("Completed-operation sweep failed", err)
	} else if n > 0 {
		logging.Debug("Swept completed operations", map[string]interface{}{"count": n})
	}

	report.FinishedAt = time.Now()
	if report.Succeeded() {
		if err := e.repo.PutSetting(SettingLastSync, report.FinishedAt.Unix()); err != nil {
			logging.Error("Failed to record last sync time", err)
		}
	}

	e.mu.Lock()
	e.lastReport = report
	e.mu.Unlock()

	e.events.Publish("sync.completed", map[string]interface{}{
		"full":      full,
		"succeeded": report.Succeeded(),
		"errors":    report.ErrorStrings(),
	})
	logging.Info("Sync cycle finished", map[string]interface{}{
		"full":      full,
		"succeeded": report.Succeeded(),
		"duration":  report.FinishedAt.Sub(report.StartedAt).String(),
	})
	return report, nil
}

// pullProducts replaces the catalog snapshot page by page.
func (e *Engine) pullProducts(ctx context.Context) TaskResult {
	result := TaskResult{Name: "products"}

	start := 0
	for {
		page, err := e.remote.SearchItems(ctx, "", e.cfg.PriceList, start, e.cfg.PageLength)
		if err != nil {
			result.Err = err
			return result
		}
		if len(page.Items) == 0 {
			return result
		}

		if err := e.repo.PutProducts(page.Items); err != nil {
			result.Err = err
			return result
		}
		result.Count += len(page.Items)
		start += len(page.Items)

		if !page.HasMore {
			return result
		}
	}
}

// pullCustomers replaces the customer snapshot. Placeholder customers
// created offline live under their own local- keys, so the upsert
// leaves them alone until their create operation replays.
func (e *Engine) pullCustomers(ctx context.Context) TaskResult {
	result := TaskResult{Name: "customers"}

	customers, err := e.remote.SearchCustomers(ctx, "")
	if err != nil {
		result.Err = err
		return result
	}
	if len(customers) == 0 {
		return result
	}

	if err := e.repo.PutCustomers(customers); err != nil {
		result.Err = err
		return result
	}
	result.Count = len(customers)
	return result
}

// refreshTaxRules snapshots the duty/tax chart into settings for the
// tax engine's offline lookups.
func (e *Engine) refreshTaxRules(ctx context.Context) TaskResult {
	result := TaskResult{Name: "tax_rules"}

	rules, err := e.remote.FetchTaxRuleSet(ctx, e.cfg.Company)
	if err != nil {
		result.Err = err
		return result
	}

	if err := e.repo.PutSetting(SettingTaxRules, rules); err != nil {
		result.Err = err
		return result
	}
	result.Count = len(rules.Taxes)
	return result
}

// drainQueue replays pending operations strictly in enqueue order.
// A failed operation consumes a retry and the drain moves on; ordering
// between dependent operations is preserved because the dependent one
// cannot succeed before its predecessor has. A missing invoice
// reference is a dead local reference, not a remote hiccup, so it parks
// the operation immediately instead of burning retries, unless the
// paired draft failed earlier in this same drain and may still produce
// the link.
func (e *Engine) drainQueue(ctx context.Context) DrainResult {
	result := DrainResult{}

	pending, err := e.queue.Pending()
	if err != nil {
		result.Err = err
		return result
	}

	// Orders whose create_draft failed during this drain. The paired
	// submit_and_pay cannot find a link yet, which is transient.
	draftFailed := make(map[string]bool)

	for i := range pending {
		op := &pending[i]

		if err := e.queue.MarkProcessing(op); err != nil {
			result.Err = err
			return result
		}
		result.Processed++

		if err := e.replayOperation(ctx, op); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, OperationError{
				OperationID: op.ID,
				Message:     err.Error(),
			})

			orderID := operationOrderID(op)
			if op.Action == models.ActionCreateDraft && orderID != "" {
				draftFailed[orderID] = true
			}

			var merr error
			if errors.Is(err, errors.ErrMissingInvoiceRef) && !draftFailed[orderID] {
				merr = e.queue.MarkFailedTerminal(op, err)
			} else {
				merr = e.queue.MarkFailed(op, err)
			}
			if merr != nil {
				result.Err = merr
				return result
			}
			continue
		}

		if err := e.queue.MarkCompleted(op); err != nil {
			result.Err = err
			return result
		}
		result.Completed++
	}
	return result
}

// operationOrderID extracts the order id from the payload variants that
// carry one. Decode failures surface through the replay itself.
func operationOrderID(op *models.QueueOperation) string {
	decoded, err := op.DecodePayload()
	if err != nil {
		return ""
	}
	switch payload := decoded.(type) {
	case *models.CreateDraftPayload:
		return payload.OrderID
	case *models.SubmitAndPayPayload:
		return payload.OrderID
	default:
		return ""
	}
}

// pushUnsyncedInvoices submits invoices recorded before the queue-based
// checkout existed, or whose queued operations were removed.
func (e *Engine) pushUnsyncedInvoices(ctx context.Context) TaskResult {
	result := TaskResult{Name: "invoices"}

	invoices, err := e.repo.GetUnsyncedInvoices()
	if err != nil {
		result.Err = err
		return result
	}

	for _, inv := range invoices {
		if err := e.remote.SubmitInvoice(ctx, inv); err != nil {
			result.Err = err
			return result
		}
		if err := e.repo.MarkInvoiceSynced(inv.ID, inv.RemoteName); err != nil {
			result.Err = err
			return result
		}
		result.Count++
	}
	return result
}
