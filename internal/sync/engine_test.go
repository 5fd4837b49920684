package sync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldttech/poscore/internal/db"
	"github.com/ldttech/poscore/internal/erpnext"
	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/models"
	"github.com/ldttech/poscore/internal/sync/queue"
)

// fakeRemote implements RemoteAPI with canned data, per-method error
// injection, and call counting.
type fakeRemote struct {
	mu sync.Mutex

	itemPages [][]models.Product
	customers []models.Customer
	taxRules  models.TaxRuleSet

	errSearchItems     error
	errSearchCustomers error
	errCreateDraft     error
	errSubmitAndPay    error
	errSubmitInvoice   error
	errCreateCustomer  error
	errFetchTaxRules   error

	calls map[string]int

	draftSeq  int
	submitted []string
	paid      []string

	gate chan struct{} // when set, SearchItems blocks until closed
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{calls: make(map[string]int)}
}

func (f *fakeRemote) count(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

func (f *fakeRemote) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRemote) SearchItems(_ context.Context, _, _ string, start, _ int) (*erpnext.ItemPage, error) {
	f.count("SearchItems")
	if f.gate != nil {
		<-f.gate
	}
	if f.errSearchItems != nil {
		return nil, f.errSearchItems
	}

	pageIdx := f.callCount("SearchItems") - 1
	var total int
	for _, p := range f.itemPages {
		total += len(p)
	}
	if pageIdx >= len(f.itemPages) {
		return &erpnext.ItemPage{Total: total}, nil
	}
	return &erpnext.ItemPage{
		Items:   f.itemPages[pageIdx],
		Total:   total,
		HasMore: pageIdx < len(f.itemPages)-1,
	}, nil
}

func (f *fakeRemote) SearchCustomers(context.Context, string) ([]models.Customer, error) {
	f.count("SearchCustomers")
	if f.errSearchCustomers != nil {
		return nil, f.errSearchCustomers
	}
	return f.customers, nil
}

func (f *fakeRemote) FetchTaxRuleSet(context.Context, string) (*models.TaxRuleSet, error) {
	f.count("FetchTaxRuleSet")
	if f.errFetchTaxRules != nil {
		return nil, f.errFetchTaxRules
	}
	rules := f.taxRules
	return &rules, nil
}

func (f *fakeRemote) CreateInvoiceDraft(_ context.Context, req erpnext.DraftRequest, _ string) (*erpnext.DraftInvoice, error) {
	f.count("CreateInvoiceDraft")
	if f.errCreateDraft != nil {
		return nil, f.errCreateDraft
	}
	f.mu.Lock()
	f.draftSeq++
	name := fmt.Sprintf("SINV-26-%05d", f.draftSeq)
	f.mu.Unlock()
	return &erpnext.DraftInvoice{Name: name, GrandTotal: 100}, nil
}

func (f *fakeRemote) SubmitAndPay(_ context.Context, salesInvoice, _, _ string) error {
	f.count("SubmitAndPay")
	if f.errSubmitAndPay != nil {
		return f.errSubmitAndPay
	}
	f.mu.Lock()
	f.paid = append(f.paid, salesInvoice)
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) SubmitInvoice(_ context.Context, inv models.LocalInvoice) error {
	f.count("SubmitInvoice")
	if f.errSubmitInvoice != nil {
		return f.errSubmitInvoice
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, inv.OrderID)
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) CreateCustomer(_ context.Context, req erpnext.CreateCustomerRequest, _ string) (*models.Customer, error) {
	f.count("CreateCustomer")
	if f.errCreateCustomer != nil {
		return nil, f.errCreateCustomer
	}
	return &models.Customer{
		Name:         "CUST-001",
		CustomerName: req.Name,
		CustomerType: "Individual",
		Phone:        req.Phone,
		Email:        req.Email,
	}, nil
}

type testEnv struct {
	repo   *db.Repository
	queue  *queue.Queue
	remote *fakeRemote
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	migrator := db.NewMigrator(database.DB)
	require.NoError(t, migrator.Initialize())
	require.NoError(t, migrator.Up())

	repo := db.NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })

	q := queue.New(repo)
	remote := newFakeRemote()
	engine := NewEngine(repo, q, remote, nil, Config{
		Company:    "LDT TECH",
		PriceList:  "Standard Selling",
		PageLength: 2,
	})
	return &testEnv{repo: repo, queue: q, remote: remote, engine: engine}
}

func draftPayload(orderID string) models.CreateDraftPayload {
	return models.CreateDraftPayload{
		OrderID:      orderID,
		CustomerName: "CUST-001",
		Company:      "LDT TECH",
		Items:        []models.CartItem{{ItemCode: "PEN", Quantity: 2, Rate: 10}},
	}
}

func TestAutoSyncPullsPaginatedCatalog(t *testing.T) {
	env := newTestEnv(t)
	env.remote.itemPages = [][]models.Product{
		{{ItemCode: "A", ItemName: "A", Rate: 1}, {ItemCode: "B", ItemName: "B", Rate: 2}},
		{{ItemCode: "C", ItemName: "C", Rate: 3}},
	}
	env.remote.customers = []models.Customer{{Name: "CUST-001", CustomerName: "Ravi"}}
	env.remote.taxRules = models.TaxRuleSet{Taxes: []models.TaxRule{
		{Name: "Output Tax IGST - L", AccountName: "Output Tax IGST", TaxRate: 18},
	}}

	report, err := env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Equal(t, 3, report.Products.Count)
	assert.Equal(t, 1, report.Customers.Count)
	assert.Equal(t, 1, report.TaxRules.Count)
	assert.Equal(t, 2, env.remote.callCount("SearchItems"))

	products, err := env.repo.GetAllProducts()
	require.NoError(t, err)
	assert.Len(t, products, 3)

	var rules models.TaxRuleSet
	found, err := env.repo.GetSetting(SettingTaxRules, &rules)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, rules.Taxes, 1)
}

func TestSubTaskFailureDoesNotAbortDrain(t *testing.T) {
	env := newTestEnv(t)
	env.remote.errSearchCustomers = errors.New(errors.ErrRemoteUnavailable, "customers down")

	_, err := env.queue.Enqueue(models.OperationInvoice, models.ActionCreateDraft, draftPayload("ord-1"))
	require.NoError(t, err)

	report, err := env.engine.AutoSync(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Succeeded())
	assert.Error(t, report.Customers.Err)
	assert.Equal(t, 1, report.Queue.Completed)
	assert.Equal(t, 1, env.remote.callCount("CreateInvoiceDraft"))
}

func TestDrainLinkRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	// An offline checkout enqueues the draft and payment as a pair.
	_, err := env.queue.Enqueue(models.OperationInvoice, models.ActionCreateDraft, draftPayload("ord-1"))
	require.NoError(t, err)
	_, err = env.queue.Enqueue(models.OperationInvoice, models.ActionSubmitAndPay, models.SubmitAndPayPayload{
		OrderID:       "ord-1",
		ModeOfPayment: "Cash",
	})
	require.NoError(t, err)

	report, err := env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Queue.Completed)
	assert.Equal(t, []string{"SINV-26-00001"}, env.remote.paid)

	// The link is consumed.
	linked, err := env.repo.GetPendingCheckoutLink("ord-1")
	require.NoError(t, err)
	assert.Empty(t, linked)
}

func TestSubmitAndPayWithoutReferenceFailsTerminally(t *testing.T) {
	env := newTestEnv(t)

	op, err := env.queue.Enqueue(models.OperationInvoice, models.ActionSubmitAndPay, models.SubmitAndPayPayload{
		OrderID:       "ord-unknown",
		ModeOfPayment: "Cash",
	})
	require.NoError(t, err)

	report, err := env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queue.Failed)
	require.Len(t, report.Queue.Errors, 1)
	assert.Equal(t, op.ID, report.Queue.Errors[0].OperationID)
	assert.Contains(t, report.Queue.Errors[0].Message, "no remote invoice reference")

	// A dead reference parks the operation right away instead of
	// burning retries on an error that cannot heal.
	stored, err := env.queue.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "no remote invoice reference")
	assert.Equal(t, 0, env.remote.callCount("SubmitAndPay"))

	report, err = env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Queue.Processed)
}

func TestSubmitAndPayWaitsForFailingDraft(t *testing.T) {
	env := newTestEnv(t)
	env.remote.errCreateDraft = errors.New(errors.ErrRemoteUnavailable, "down")

	_, err := env.queue.Enqueue(models.OperationInvoice, models.ActionCreateDraft, draftPayload("ord-1"))
	require.NoError(t, err)
	payOp, err := env.queue.Enqueue(models.OperationInvoice, models.ActionSubmitAndPay, models.SubmitAndPayPayload{
		OrderID:       "ord-1",
		ModeOfPayment: "Cash",
	})
	require.NoError(t, err)

	report, err := env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Queue.Failed)

	// The payment's missing link is only as dead as its draft; while
	// the draft can still retry, the payment retries with it.
	stored, err := env.queue.Get(payOp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)

	env.remote.errCreateDraft = nil
	report, err = env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Queue.Completed)
	assert.Equal(t, []string{"SINV-26-00001"}, env.remote.paid)
}

func TestDrainReportsPerOperationErrors(t *testing.T) {
	env := newTestEnv(t)
	env.remote.errCreateDraft = errors.New(errors.ErrRemoteUnavailable, "down")

	failing, err := env.queue.Enqueue(models.OperationInvoice, models.ActionCreateDraft, draftPayload("ord-1"))
	require.NoError(t, err)
	_, err = env.queue.Enqueue(models.OperationCustomer, models.ActionCreate, models.CreateCustomerPayload{
		TempID: "local-7",
		Name:   "Walk-in Jane",
		Phone:  "555",
	})
	require.NoError(t, err)

	report, err := env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queue.Completed)
	assert.Equal(t, 1, report.Queue.Failed)

	require.Len(t, report.Queue.Errors, 1)
	assert.Equal(t, failing.ID, report.Queue.Errors[0].OperationID)
	assert.Contains(t, report.Queue.Errors[0].Message, "down")

	// Per-operation failures flow into the flat error list that feeds
	// events and logs.
	errs := report.ErrorStrings()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], fmt.Sprintf("operation %d", failing.ID))
}

func TestRetryCeilingStopsReplays(t *testing.T) {
	env := newTestEnv(t)
	env.remote.errCreateDraft = errors.New(errors.ErrRemoteUnavailable, "down")

	op, err := env.queue.Enqueue(models.OperationInvoice, models.ActionCreateDraft, draftPayload("ord-1"))
	require.NoError(t, err)

	for i := 0; i < queue.MaxRetries; i++ {
		_, err := env.engine.AutoSync(context.Background())
		require.NoError(t, err)
	}

	stored, err := env.queue.Get(op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, queue.MaxRetries, stored.RetryCount)

	// A fourth cycle must not touch the failed operation.
	_, err = env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.MaxRetries, env.remote.callCount("CreateInvoiceDraft"))
}

func TestCustomerPlaceholderReplacement(t *testing.T) {
	env := newTestEnv(t)

	tempID := "local-42"
	require.NoError(t, env.repo.PutCustomers([]models.Customer{{
		Name:         tempID,
		CustomerName: "Walk-in Jane",
		CustomerType: "Individual",
		Phone:        "555",
	}}))

	_, err := env.queue.Enqueue(models.OperationCustomer, models.ActionCreate, models.CreateCustomerPayload{
		TempID: tempID,
		Name:   "Walk-in Jane",
		Phone:  "555",
	})
	require.NoError(t, err)

	report, err := env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queue.Completed)

	placeholder, err := env.repo.GetCustomer(tempID)
	require.NoError(t, err)
	assert.Nil(t, placeholder)

	authoritative, err := env.repo.GetCustomer("CUST-001")
	require.NoError(t, err)
	require.NotNil(t, authoritative)
	assert.Equal(t, "Walk-in Jane", authoritative.CustomerName)
}

func TestMutualExclusionDropsOverlappingTrigger(t *testing.T) {
	env := newTestEnv(t)
	env.remote.gate = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := env.engine.FullSync(context.Background())
		assert.NoError(t, err)
	}()

	// Wait until the full sync is inside its first remote call.
	require.Eventually(t, func() bool {
		return env.remote.callCount("SearchItems") == 1
	}, time.Second, 5*time.Millisecond)

	_, err := env.engine.AutoSync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSyncInProgress))

	close(env.remote.gate)
	wg.Wait()

	// Only the first cycle's calls happened.
	assert.Equal(t, 1, env.remote.callCount("SearchItems"))
	assert.Equal(t, 1, env.remote.callCount("SearchCustomers"))
	assert.False(t, env.engine.Running())
}

func TestEmptyQueueDrainIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		report, err := env.engine.AutoSync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, report.Queue.Processed)
	}
	assert.Equal(t, 0, env.remote.callCount("CreateInvoiceDraft"))
	assert.Equal(t, 0, env.remote.callCount("SubmitInvoice"))
}

func TestFullSyncPushesUnsyncedInvoices(t *testing.T) {
	env := newTestEnv(t)

	inv := &models.LocalInvoice{
		OrderID:      "ord-9",
		CustomerName: "CUST-001",
		Company:      "LDT TECH",
		Items:        []byte(`[{"item_code":"PEN","quantity":1,"rate":10}]`),
		Subtotal:     10,
		GrandTotal:   12,
	}
	require.NoError(t, env.repo.SaveInvoice(inv))

	// Auto sync leaves legacy invoices alone.
	report, err := env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, env.remote.callCount("SubmitInvoice"))

	report, err = env.engine.FullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Invoices.Count)
	assert.Equal(t, []string{"ord-9"}, env.remote.submitted)

	unsynced, err := env.repo.GetUnsyncedInvoices()
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestRecoverRequeuesInterruptedOperations(t *testing.T) {
	env := newTestEnv(t)

	op, err := env.queue.Enqueue(models.OperationInvoice, models.ActionCreateDraft, draftPayload("ord-1"))
	require.NoError(t, err)
	require.NoError(t, env.queue.MarkProcessing(op))

	require.NoError(t, env.engine.Recover())

	report, err := env.engine.AutoSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queue.Completed)
}
