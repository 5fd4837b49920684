package pos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldttech/poscore/internal/db"
	"github.com/ldttech/poscore/internal/erpnext"
	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/models"
	syncpkg "github.com/ldttech/poscore/internal/sync"
	"github.com/ldttech/poscore/internal/sync/queue"
)

type fakeRemote struct {
	draftCalls   int
	payCalls     int
	custCalls    int
	errDraft     error
	errPay       error
	errCustomer  error
	lastDraft    erpnext.DraftRequest
	lastPaid     string
	lastPayMode  string
	customerName string
}

func (f *fakeRemote) CreateInvoiceDraft(_ context.Context, req erpnext.DraftRequest, _ string) (*erpnext.DraftInvoice, error) {
	f.draftCalls++
	if f.errDraft != nil {
		return nil, f.errDraft
	}
	f.lastDraft = req
	return &erpnext.DraftInvoice{Name: "SINV-26-00001", GrandTotal: 118}, nil
}

func (f *fakeRemote) SubmitAndPay(_ context.Context, salesInvoice, modeOfPayment, _ string) error {
	f.payCalls++
	if f.errPay != nil {
		return f.errPay
	}
	f.lastPaid = salesInvoice
	f.lastPayMode = modeOfPayment
	return nil
}

func (f *fakeRemote) CreateCustomer(_ context.Context, req erpnext.CreateCustomerRequest, _ string) (*models.Customer, error) {
	f.custCalls++
	if f.errCustomer != nil {
		return nil, f.errCustomer
	}
	name := f.customerName
	if name == "" {
		name = "CUST-001"
	}
	return &models.Customer{Name: name, CustomerName: req.Name, CustomerType: "Individual", Phone: req.Phone}, nil
}

type testEnv struct {
	repo     *db.Repository
	queue    *queue.Queue
	remote   *fakeRemote
	register *Register
	online   bool
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

	env := &testEnv{
		repo:   repo,
		queue:  queue.New(repo),
		remote: &fakeRemote{},
	}
	env.register = NewRegister(repo, env.queue, env.remote, func() bool { return env.online }, Config{
		Company:      "LDT TECH",
		CompanyState: "Kerala",
	})
	return env
}

func pen() models.Product {
	return models.Product{ItemCode: "PEN", ItemName: "Pen", Rate: 100, StockUOM: "Nos"}
}

func outStateCustomer() *models.Customer {
	return &models.Customer{Name: "CUST-001", CustomerName: "Ravi", TaxCategory: "Out of State"}
}

func seedTaxRules(t *testing.T, env *testEnv) {
	t.Helper()
	require.NoError(t, env.repo.PutSetting(syncpkg.SettingTaxRules, models.TaxRuleSet{Taxes: []models.TaxRule{
		{Name: "Output Tax IGST - L", AccountName: "Output Tax IGST", TaxRate: 18},
		{Name: "Output Tax CGST - L", AccountName: "Output Tax CGST", TaxRate: 9},
		{Name: "Output Tax SGST - L", AccountName: "Output Tax SGST", TaxRate: 9},
	}}))
}

func TestCartMutations(t *testing.T) {
	env := newTestEnv(t)
	r := env.register

	r.AddProduct(pen(), 2)
	r.AddProduct(pen(), 1) // merges into the existing line
	r.AddProduct(models.Product{ItemCode: "BOOK", ItemName: "Book", Rate: 50}, 1)

	items := r.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 3.0, items[0].Quantity)
	assert.Equal(t, "Nos", items[1].UOM) // empty stock UOM defaults

	r.UpdateQuantity("BOOK", 5)
	assert.Equal(t, 5.0, r.Items()[1].Quantity)

	r.UpdateQuantity("BOOK", 0)
	assert.Len(t, r.Items(), 1)

	// Snapshots are copies; mutating one must not touch the cart.
	snapshot := r.Items()
	snapshot[0].Quantity = 99
	assert.Equal(t, 3.0, r.Items()[0].Quantity)

	r.ClearCart()
	assert.Empty(t, r.Items())
	assert.Nil(t, r.Customer())
}

func TestTotalsUsesSnapshottedRules(t *testing.T) {
	env := newTestEnv(t)
	seedTaxRules(t, env)

	env.register.AddProduct(pen(), 2)
	env.register.SetCustomer(outStateCustomer())

	totals, err := env.register.Totals()
	require.NoError(t, err)
	assert.Equal(t, 200.0, totals.Subtotal)
	assert.Equal(t, 36.0, totals.TotalTax)
	assert.Equal(t, 236.0, totals.GrandTotal)

	// Without a rules snapshot the engine yields silent zeros.
	require.NoError(t, env.repo.DeleteSetting(syncpkg.SettingTaxRules))
	totals, err = env.register.Totals()
	require.NoError(t, err)
	assert.Equal(t, 0.0, totals.TotalTax)
	assert.Equal(t, 200.0, totals.GrandTotal)
}

func TestCheckoutGuards(t *testing.T) {
	env := newTestEnv(t)
	seedTaxRules(t, env)

	_, err := env.register.Checkout(context.Background(), "Cash")
	assert.True(t, errors.Is(err, errors.ErrEmptyCart))

	env.register.AddProduct(pen(), 1)
	_, err = env.register.Checkout(context.Background(), "Cash")
	assert.True(t, errors.Is(err, errors.ErrNoCustomer))
}

func TestCheckoutOnlineDirect(t *testing.T) {
	env := newTestEnv(t)
	seedTaxRules(t, env)
	env.online = true

	env.register.AddProduct(pen(), 2)
	env.register.SetCustomer(outStateCustomer())

	result, err := env.register.Checkout(context.Background(), "Cash")
	require.NoError(t, err)

	assert.False(t, result.Queued)
	assert.Equal(t, "SINV-26-00001", result.RemoteInvoice)
	assert.Equal(t, 236.0, result.Totals.GrandTotal)
	assert.Equal(t, 1, env.remote.draftCalls)
	assert.Equal(t, "SINV-26-00001", env.remote.lastPaid)
	assert.Equal(t, "Cash", env.remote.lastPayMode)
	assert.Empty(t, env.register.Items())

	// The local record is synced; nothing is queued.
	unsynced, err := env.repo.GetUnsyncedInvoices()
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	pending, err := env.queue.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCheckoutOfflineQueuesPair(t *testing.T) {
	env := newTestEnv(t)
	seedTaxRules(t, env)
	env.online = false

	env.register.AddProduct(pen(), 2)
	env.register.SetCustomer(outStateCustomer())

	result, err := env.register.Checkout(context.Background(), "UPI")
	require.NoError(t, err)

	assert.True(t, result.Queued)
	assert.Empty(t, result.RemoteInvoice)
	assert.Equal(t, 0, env.remote.draftCalls)

	pending, err := env.queue.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, models.ActionCreateDraft, pending[0].Action)
	assert.Equal(t, models.ActionSubmitAndPay, pending[1].Action)

	draft, err := pending[0].DecodePayload()
	require.NoError(t, err)
	pay, err := pending[1].DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, result.OrderID, draft.(*models.CreateDraftPayload).OrderID)
	assert.Equal(t, result.OrderID, pay.(*models.SubmitAndPayPayload).OrderID)
	assert.Equal(t, "UPI", pay.(*models.SubmitAndPayPayload).ModeOfPayment)
	assert.Equal(t, result.LocalInvoice, pay.(*models.SubmitAndPayPayload).LocalInvoiceID)

	unsynced, err := env.repo.GetUnsyncedInvoices()
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, result.OrderID, unsynced[0].OrderID)
}

func TestCheckoutFallsBackToQueueOnRemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	seedTaxRules(t, env)
	env.online = true
	env.remote.errPay = errors.New(errors.ErrRemoteUnavailable, "backend lost mid-checkout")

	env.register.AddProduct(pen(), 1)
	env.register.SetCustomer(outStateCustomer())

	result, err := env.register.Checkout(context.Background(), "Cash")
	require.NoError(t, err)
	assert.True(t, result.Queued)

	pending, err := env.queue.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestCheckoutWithPlaceholderCustomerAlwaysQueues(t *testing.T) {
	env := newTestEnv(t)
	seedTaxRules(t, env)
	env.online = true

	env.register.AddProduct(pen(), 1)
	env.register.SetCustomer(&models.Customer{Name: "local-abc", CustomerName: "Walk-in"})

	result, err := env.register.Checkout(context.Background(), "Cash")
	require.NoError(t, err)
	assert.True(t, result.Queued)
	assert.Equal(t, 0, env.remote.draftCalls)
}

func TestCreateCustomerOnline(t *testing.T) {
	env := newTestEnv(t)
	env.online = true

	created, err := env.register.CreateCustomer(context.Background(), "Jane", "555", "")
	require.NoError(t, err)
	assert.Equal(t, "CUST-001", created.Name)

	cached, err := env.repo.GetCustomer("CUST-001")
	require.NoError(t, err)
	require.NotNil(t, cached)

	pending, err := env.queue.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateCustomerOfflinePlaceholder(t *testing.T) {
	env := newTestEnv(t)
	env.online = false

	created, err := env.register.CreateCustomer(context.Background(), "Jane", "555", "jane@example.com")
	require.NoError(t, err)
	assert.True(t, created.IsLocal())

	cached, err := env.repo.GetCustomer(created.Name)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Jane", cached.CustomerName)

	pending, err := env.queue.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OperationCustomer, pending[0].Type)

	payload, err := pending[0].DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, created.Name, payload.(*models.CreateCustomerPayload).TempID)
}
