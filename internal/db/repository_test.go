package db

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldttech/poscore/internal/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	database, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	migrator := NewMigrator(database.DB)
	require.NoError(t, migrator.Initialize())
	require.NoError(t, migrator.Up())

	repo := NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestPutProductsUpsert(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.PutProducts([]models.Product{
		{ItemCode: "PEN-01", ItemName: "Ball Pen", Rate: 10, StockUOM: "Nos"},
		{ItemCode: "NB-01", ItemName: "Notebook", Rate: 45, StockUOM: "Nos"},
	}))

	// Second sync changes the rate; the row is rewritten, not duplicated.
	require.NoError(t, repo.PutProducts([]models.Product{
		{ItemCode: "PEN-01", ItemName: "Ball Pen", Rate: 12, StockUOM: "Nos"},
	}))

	products, err := repo.GetAllProducts()
	require.NoError(t, err)
	require.Len(t, products, 2)

	// Ordered by item_name.
	assert.Equal(t, "PEN-01", products[0].ItemCode)
	assert.Equal(t, float64(12), products[0].Rate)
	assert.Equal(t, "NB-01", products[1].ItemCode)
	assert.NotZero(t, products[0].LastSynced)
}

func TestSearchProductsLocal(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.PutProducts([]models.Product{
		{ItemCode: "PEN-01", ItemName: "Ball Pen"},
		{ItemCode: "PEN-02", ItemName: "Gel Pen"},
		{ItemCode: "NB-01", ItemName: "Notebook"},
	}))

	matches, err := repo.SearchProductsLocal("pen")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = repo.SearchProductsLocal("NB")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Notebook", matches[0].ItemName)

	matches, err = repo.SearchProductsLocal("stapler")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCustomerLifecycle(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.PutCustomers([]models.Customer{
		{Name: "CUST-001", CustomerName: "Asha Traders", State: "Karnataka"},
		{Name: "local-abc", CustomerName: "Walk In"},
	}))

	got, err := repo.GetCustomer("CUST-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Asha Traders", got.CustomerName)
	assert.Equal(t, "Karnataka", got.State)

	missing, err := repo.GetCustomer("CUST-999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	matches, err := repo.SearchCustomersLocal("asha")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "CUST-001", matches[0].Name)

	// Placeholder replaced by the authoritative record.
	require.NoError(t, repo.DeleteCustomer("local-abc"))
	all, err := repo.GetAllCustomers()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSettingsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	type snapshot struct {
		Count int    `json:"count"`
		Label string `json:"label"`
	}

	require.NoError(t, repo.PutSetting("last_pull", snapshot{Count: 3, Label: "ok"}))

	var out snapshot
	found, err := repo.GetSetting("last_pull", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, snapshot{Count: 3, Label: "ok"}, out)

	// Overwrite wins.
	require.NoError(t, repo.PutSetting("last_pull", snapshot{Count: 4}))
	found, err = repo.GetSetting("last_pull", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4, out.Count)

	found, err = repo.GetSetting("never_written", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.DeleteSetting("last_pull"))
	found, err = repo.GetSetting("last_pull", &out)
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error.
	require.NoError(t, repo.DeleteSetting("never_written"))
}

func TestInvoiceSaveAndSync(t *testing.T) {
	repo := newTestRepo(t)

	inv := &models.LocalInvoice{
		OrderID:      "ord-1",
		CustomerName: "CUST-001",
		Company:      "LDT TECH",
		Items:        json.RawMessage(`[{"item_code":"PEN-01","qty":2,"rate":10}]`),
		Subtotal:     20,
		TotalTax:     3.6,
		GrandTotal:   23.6,
	}
	require.NoError(t, repo.SaveInvoice(inv))
	assert.NotZero(t, inv.ID)
	assert.NotZero(t, inv.CreatedAt)

	second := &models.LocalInvoice{OrderID: "ord-2", CustomerName: "CUST-001"}
	require.NoError(t, repo.SaveInvoice(second))

	unsynced, err := repo.GetUnsyncedInvoices()
	require.NoError(t, err)
	require.Len(t, unsynced, 2)
	assert.Equal(t, "ord-1", unsynced[0].OrderID)
	// Nil items default to an empty array.
	assert.Equal(t, json.RawMessage("[]"), unsynced[1].Items)

	require.NoError(t, repo.MarkInvoiceSynced(inv.ID, "SINV-26-00042"))
	unsynced, err = repo.GetUnsyncedInvoices()
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, "ord-2", unsynced[0].OrderID)
}

func TestQueueOperationLifecycle(t *testing.T) {
	repo := newTestRepo(t)

	first := &models.QueueOperation{
		Type:    models.OperationInvoice,
		Action:  models.ActionCreateDraft,
		Payload: json.RawMessage(`{"order_id":"ord-1"}`),
		Token:   "tok-1",
	}
	require.NoError(t, repo.EnqueueOperation(first))
	assert.Equal(t, models.StatusPending, first.Status)
	assert.NotZero(t, first.EnqueuedAt)

	second := &models.QueueOperation{
		Type:    models.OperationInvoice,
		Action:  models.ActionSubmitAndPay,
		Payload: json.RawMessage(`{"order_id":"ord-1"}`),
		Token:   "tok-2",
	}
	require.NoError(t, repo.EnqueueOperation(second))
	assert.Greater(t, second.ID, first.ID)

	pending, err := repo.ListOperationsByStatus(models.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, repo.UpdateOperation(first.ID, models.StatusProcessing, 0, ""))
	got, err := repo.GetOperation(first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusProcessing, got.Status)

	// A restart flips processing rows back to pending.
	n, err := repo.ResetProcessingOperations()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err = repo.GetOperation(first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	require.NoError(t, repo.UpdateOperation(first.ID, models.StatusFailed, 3, "remote rejected"))
	got, err = repo.GetOperation(first.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, "remote rejected", got.LastError)

	require.NoError(t, repo.RemoveOperation(first.ID))
	gone, err := repo.GetOperation(first.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestUpdateOperationMissingRow(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.UpdateOperation(999, models.StatusCompleted, 0, "")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRemoveCompletedBefore(t *testing.T) {
	repo := newTestRepo(t)

	op := &models.QueueOperation{
		Type:    models.OperationCustomer,
		Action:  models.ActionCreate,
		Payload: json.RawMessage(`{}`),
		Token:   "tok-1",
	}
	require.NoError(t, repo.EnqueueOperation(op))
	require.NoError(t, repo.UpdateOperation(op.ID, models.StatusCompleted, 0, ""))

	// Not old enough yet.
	n, err := repo.RemoveCompletedBefore(time.Now().Unix() - 60)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.RemoveCompletedBefore(time.Now().Unix() + 60)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPendingCheckoutLinks(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetPendingCheckoutLink("ord-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, repo.PutPendingCheckoutLink("ord-1", "SINV-26-00001"))
	got, err = repo.GetPendingCheckoutLink("ord-1")
	require.NoError(t, err)
	assert.Equal(t, "SINV-26-00001", got)

	// A replayed draft rewrites the link for the same order.
	require.NoError(t, repo.PutPendingCheckoutLink("ord-1", "SINV-26-00002"))
	got, err = repo.GetPendingCheckoutLink("ord-1")
	require.NoError(t, err)
	assert.Equal(t, "SINV-26-00002", got)

	require.NoError(t, repo.DeletePendingCheckoutLink("ord-1"))
	got, err = repo.GetPendingCheckoutLink("ord-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
