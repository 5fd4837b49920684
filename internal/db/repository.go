// Package db provides CRUD repository operations for the POS cache store.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ldttech/poscore/internal/models"
)

// Repository provides CRUD operations for all locally cached records.
// It is the single durable store: catalog and customer snapshots, the
// sync queue, pending checkout links, settings, and local invoices all
// live in the same SQLite file.
type Repository struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Store in cache (if already stored by another goroutine, use existing)
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// Product Operations
// =====================================================

// PutProducts overwrites the cached catalog rows for the given items.
// Each row is a whole-record upsert; the last sync always wins.
func (r *Repository) PutProducts(items []models.Product) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin product write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT INTO products (item_code, item_name, description, actual_qty, rate,
		stock_uom, image, item_tax_template, tax_category, last_synced)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(item_code) DO UPDATE SET
		item_name=excluded.item_name, description=excluded.description,
		actual_qty=excluded.actual_qty, rate=excluded.rate,
		stock_uom=excluded.stock_uom, image=excluded.image,
		item_tax_template=excluded.item_tax_template,
		tax_category=excluded.tax_category, last_synced=excluded.last_synced
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare product upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i := range items {
		p := &items[i]
		if p.LastSynced == 0 {
			p.LastSynced = now
		}
		_, err := stmt.Exec(p.ItemCode, p.ItemName, p.Description, p.ActualQty, p.Rate,
			p.StockUOM, p.Image, p.ItemTaxTemplate, p.TaxCategory, p.LastSynced)
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.ItemCode, err)
		}
	}

	return tx.Commit()
}

const productColumns = `item_code, item_name, description, actual_qty, rate,
	stock_uom, image, item_tax_template, tax_category, last_synced`

func scanProduct(scan func(dest ...interface{}) error) (models.Product, error) {
	var p models.Product
	err := scan(&p.ItemCode, &p.ItemName, &p.Description, &p.ActualQty, &p.Rate,
		&p.StockUOM, &p.Image, &p.ItemTaxTemplate, &p.TaxCategory, &p.LastSynced)
	return p, err
}

// GetAllProducts returns the full cached catalog ordered by name.
func (r *Repository) GetAllProducts() ([]models.Product, error) {
	rows, err := r.db.Query("SELECT " + productColumns + " FROM products ORDER BY item_name")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// SearchProductsLocal searches cached products by code or name.
func (r *Repository) SearchProductsLocal(term string) ([]models.Product, error) {
	stmt, err := r.PrepareStmt("SELECT " + productColumns + ` FROM products
	WHERE item_code LIKE ? COLLATE NOCASE OR item_name LIKE ? COLLATE NOCASE
	ORDER BY item_name`)
	if err != nil {
		return nil, err
	}

	pattern := "%" + strings.TrimSpace(term) + "%"
	rows, err := stmt.Query(pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// =====================================================
// Customer Operations
// =====================================================

const customerColumns = `name, customer_name, customer_type, territory, tax_category,
	state, default_price_list, phone, email, last_synced`

// PutCustomers overwrites cached customer rows. Same whole-record
// upsert policy as products.
func (r *Repository) PutCustomers(customers []models.Customer) error {
	if len(customers) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin customer write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT INTO customers (name, customer_name, customer_type, territory, tax_category,
		state, default_price_list, phone, email, last_synced)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		customer_name=excluded.customer_name, customer_type=excluded.customer_type,
		territory=excluded.territory, tax_category=excluded.tax_category,
		state=excluded.state, default_price_list=excluded.default_price_list,
		phone=excluded.phone, email=excluded.email, last_synced=excluded.last_synced
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare customer upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i := range customers {
		c := &customers[i]
		if c.LastSynced == 0 {
			c.LastSynced = now
		}
		_, err := stmt.Exec(c.Name, c.CustomerName, c.CustomerType, c.Territory,
			c.TaxCategory, c.State, c.DefaultPriceList, c.Phone, c.Email, c.LastSynced)
		if err != nil {
			return fmt.Errorf("failed to upsert customer %s: %w", c.Name, err)
		}
	}

	return tx.Commit()
}

func scanCustomer(scan func(dest ...interface{}) error) (models.Customer, error) {
	var c models.Customer
	err := scan(&c.Name, &c.CustomerName, &c.CustomerType, &c.Territory, &c.TaxCategory,
		&c.State, &c.DefaultPriceList, &c.Phone, &c.Email, &c.LastSynced)
	return c, err
}

// GetAllCustomers returns all cached customers ordered by display name.
func (r *Repository) GetAllCustomers() ([]models.Customer, error) {
	rows, err := r.db.Query("SELECT " + customerColumns + " FROM customers ORDER BY customer_name")
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows.Scan)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// GetCustomer returns a single cached customer, or nil when absent.
func (r *Repository) GetCustomer(name string) (*models.Customer, error) {
	stmt, err := r.PrepareStmt("SELECT " + customerColumns + " FROM customers WHERE name = ?")
	if err != nil {
		return nil, err
	}

	c, err := scanCustomer(stmt.QueryRow(name).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %s: %w", name, err)
	}
	return &c, nil
}

// SearchCustomersLocal searches cached customers by id or display name.
func (r *Repository) SearchCustomersLocal(term string) ([]models.Customer, error) {
	stmt, err := r.PrepareStmt("SELECT " + customerColumns + ` FROM customers
	WHERE name LIKE ? COLLATE NOCASE OR customer_name LIKE ? COLLATE NOCASE
	ORDER BY customer_name`)
	if err != nil {
		return nil, err
	}

	pattern := "%" + strings.TrimSpace(term) + "%"
	rows, err := stmt.Query(pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows.Scan)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// DeleteCustomer removes a cached customer record. Used to drop the
// placeholder once the authoritative record replaces it.
func (r *Repository) DeleteCustomer(name string) error {
	_, err := r.db.Exec("DELETE FROM customers WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete customer %s: %w", name, err)
	}
	return nil
}

// =====================================================
// Settings Operations
// =====================================================

// PutSetting stores a JSON-encoded setting value under key.
func (r *Repository) PutSetting(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}

	_, err = r.db.Exec(`
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, string(data))
	if err != nil {
		return fmt.Errorf("failed to put setting %s: %w", key, err)
	}
	return nil
}

// GetSetting decodes the setting stored under key into out.
// Returns false when the key is absent.
func (r *Repository) GetSetting(key string, out interface{}) (bool, error) {
	stmt, err := r.PrepareStmt("SELECT value FROM settings WHERE key = ?")
	if err != nil {
		return false, err
	}

	var raw string
	err = stmt.QueryRow(key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}

// DeleteSetting removes a setting. Missing keys are not an error.
func (r *Repository) DeleteSetting(key string) error {
	_, err := r.db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// =====================================================
// Local Invoice Operations
// =====================================================

const invoiceColumns = `id, order_id, customer_name, company, items, subtotal,
	total_tax, grand_total, mode_of_payment, remote_name, synced, created_at`

// SaveInvoice inserts a local invoice record and assigns its id.
func (r *Repository) SaveInvoice(inv *models.LocalInvoice) error {
	if inv.CreatedAt == 0 {
		inv.CreatedAt = time.Now().Unix()
	}
	if inv.Items == nil {
		inv.Items = json.RawMessage("[]")
	}

	res, err := r.db.Exec(`
	INSERT INTO sales_invoices (order_id, customer_name, company, items, subtotal,
		total_tax, grand_total, mode_of_payment, remote_name, synced, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.OrderID, inv.CustomerName, inv.Company, string(inv.Items), inv.Subtotal,
		inv.TotalTax, inv.GrandTotal, inv.ModeOfPayment, inv.RemoteName, inv.Synced, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}

	inv.ID, err = res.LastInsertId()
	return err
}

func scanInvoice(scan func(dest ...interface{}) error) (models.LocalInvoice, error) {
	var inv models.LocalInvoice
	var items string
	err := scan(&inv.ID, &inv.OrderID, &inv.CustomerName, &inv.Company, &items,
		&inv.Subtotal, &inv.TotalTax, &inv.GrandTotal, &inv.ModeOfPayment,
		&inv.RemoteName, &inv.Synced, &inv.CreatedAt)
	inv.Items = json.RawMessage(items)
	return inv, err
}

// GetUnsyncedInvoices returns local invoices not yet pushed, oldest first.
func (r *Repository) GetUnsyncedInvoices() ([]models.LocalInvoice, error) {
	rows, err := r.db.Query("SELECT " + invoiceColumns + " FROM sales_invoices WHERE synced = 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced invoices: %w", err)
	}
	defer rows.Close()

	var invoices []models.LocalInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows.Scan)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// MarkInvoiceSynced flags a local invoice as pushed and records the
// backend invoice name when known.
func (r *Repository) MarkInvoiceSynced(id int64, remoteName string) error {
	var err error
	if remoteName != "" {
		_, err = r.db.Exec("UPDATE sales_invoices SET synced = 1, remote_name = ? WHERE id = ?", remoteName, id)
	} else {
		_, err = r.db.Exec("UPDATE sales_invoices SET synced = 1 WHERE id = ?", id)
	}
	if err != nil {
		return fmt.Errorf("failed to mark invoice %d synced: %w", id, err)
	}
	return nil
}

// =====================================================
// Sync Queue Operations
// =====================================================

const queueColumns = `id, type, action, payload, status, retry_count, last_error,
	token, enqueued_at, updated_at`

// EnqueueOperation inserts a queue row and assigns its monotonic id.
func (r *Repository) EnqueueOperation(op *models.QueueOperation) error {
	now := time.Now().Unix()
	if op.EnqueuedAt == 0 {
		op.EnqueuedAt = now
	}
	op.UpdatedAt = now
	if op.Status == "" {
		op.Status = models.StatusPending
	}

	res, err := r.db.Exec(`
	INSERT INTO sync_queue (type, action, payload, status, retry_count, last_error,
		token, enqueued_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.Type, op.Action, string(op.Payload), op.Status, op.RetryCount, op.LastError,
		op.Token, op.EnqueuedAt, op.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}

	op.ID, err = res.LastInsertId()
	return err
}

func scanOperation(scan func(dest ...interface{}) error) (models.QueueOperation, error) {
	var op models.QueueOperation
	var payload string
	err := scan(&op.ID, &op.Type, &op.Action, &payload, &op.Status, &op.RetryCount,
		&op.LastError, &op.Token, &op.EnqueuedAt, &op.UpdatedAt)
	op.Payload = json.RawMessage(payload)
	return op, err
}

// ListOperationsByStatus returns queue rows with the given status in
// enqueue (id) order.
func (r *Repository) ListOperationsByStatus(status models.OperationStatus) ([]models.QueueOperation, error) {
	stmt, err := r.PrepareStmt("SELECT " + queueColumns + " FROM sync_queue WHERE status = ? ORDER BY id")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(status)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue operations: %w", err)
	}
	defer rows.Close()

	var ops []models.QueueOperation
	for rows.Next() {
		op, err := scanOperation(rows.Scan)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// ListAllOperations returns every queue row in enqueue order.
func (r *Repository) ListAllOperations() ([]models.QueueOperation, error) {
	rows, err := r.db.Query("SELECT " + queueColumns + " FROM sync_queue ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list queue operations: %w", err)
	}
	defer rows.Close()

	var ops []models.QueueOperation
	for rows.Next() {
		op, err := scanOperation(rows.Scan)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// GetOperation returns a queue row by id, or nil when absent.
func (r *Repository) GetOperation(id int64) (*models.QueueOperation, error) {
	stmt, err := r.PrepareStmt("SELECT " + queueColumns + " FROM sync_queue WHERE id = ?")
	if err != nil {
		return nil, err
	}

	op, err := scanOperation(stmt.QueryRow(id).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue operation %d: %w", id, err)
	}
	return &op, nil
}

// UpdateOperation writes a status transition for a queue row.
func (r *Repository) UpdateOperation(id int64, status models.OperationStatus, retryCount int, lastError string) error {
	res, err := r.db.Exec(`
	UPDATE sync_queue SET status = ?, retry_count = ?, last_error = ?, updated_at = ?
	WHERE id = ?`,
		status, retryCount, lastError, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update queue operation %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RemoveOperation deletes a queue row.
func (r *Repository) RemoveOperation(id int64) error {
	_, err := r.db.Exec("DELETE FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to remove queue operation %d: %w", id, err)
	}
	return nil
}

// ResetProcessingOperations flips any row stuck in `processing` back to
// `pending`. Called on startup: a crash mid-replay must never lose an
// operation, so `processing` is resumable rather than authoritative.
func (r *Repository) ResetProcessingOperations() (int64, error) {
	res, err := r.db.Exec(`
	UPDATE sync_queue SET status = ?, updated_at = ? WHERE status = ?`,
		models.StatusPending, time.Now().Unix(), models.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing operations: %w", err)
	}
	return res.RowsAffected()
}

// RemoveCompletedBefore deletes completed rows older than cutoff.
// Completed entries are kept briefly so the UI can show them.
func (r *Repository) RemoveCompletedBefore(cutoff int64) (int64, error) {
	res, err := r.db.Exec("DELETE FROM sync_queue WHERE status = ? AND updated_at < ?",
		models.StatusCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep completed operations: %w", err)
	}
	return res.RowsAffected()
}

// =====================================================
// Pending Checkout Link Operations
// =====================================================

// PutPendingCheckoutLink records the remote draft invoice created for a
// local order id. One link per order id; a rewrite overwrites.
func (r *Repository) PutPendingCheckoutLink(orderID, remoteInvoiceID string) error {
	_, err := r.db.Exec(`
	INSERT INTO pending_checkout_links (order_id, remote_invoice_id, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(order_id) DO UPDATE SET remote_invoice_id=excluded.remote_invoice_id`,
		orderID, remoteInvoiceID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to put checkout link %s: %w", orderID, err)
	}
	return nil
}

// GetPendingCheckoutLink resolves the remote invoice id for an order id.
// Returns empty string when no link exists.
func (r *Repository) GetPendingCheckoutLink(orderID string) (string, error) {
	stmt, err := r.PrepareStmt("SELECT remote_invoice_id FROM pending_checkout_links WHERE order_id = ?")
	if err != nil {
		return "", err
	}

	var remoteID string
	err = stmt.QueryRow(orderID).Scan(&remoteID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get checkout link %s: %w", orderID, err)
	}
	return remoteID, nil
}

// DeletePendingCheckoutLink removes a consumed link.
func (r *Repository) DeletePendingCheckoutLink(orderID string) error {
	_, err := r.db.Exec("DELETE FROM pending_checkout_links WHERE order_id = ?", orderID)
	if err != nil {
		return fmt.Errorf("failed to delete checkout link %s: %w", orderID, err)
	}
	return nil
}
