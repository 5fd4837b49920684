// Package pos holds the in-memory transaction state of a terminal: the
// cart, the selected customer, and the checkout logic that turns them
// into either a direct backend call or queued operations.
package pos

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ldttech/poscore/internal/db"
	"github.com/ldttech/poscore/internal/erpnext"
	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/logging"
	"github.com/ldttech/poscore/internal/models"
	syncpkg "github.com/ldttech/poscore/internal/sync"
	"github.com/ldttech/poscore/internal/sync/queue"
	"github.com/ldttech/poscore/internal/tax"
	"github.com/ldttech/poscore/internal/uuid"
)

// RemoteAPI is the slice of the backend client checkout needs.
type RemoteAPI interface {
	CreateInvoiceDraft(ctx context.Context, req erpnext.DraftRequest, token string) (*erpnext.DraftInvoice, error)
	SubmitAndPay(ctx context.Context, salesInvoice, modeOfPayment, token string) error
	CreateCustomer(ctx context.Context, req erpnext.CreateCustomerRequest, token string) (*models.Customer, error)
}

// Config holds the register's static context, taken from the selected
// POS profile after login.
type Config struct {
	Company      string
	CompanyState string
}

// Register is one terminal's transaction state. Cart mutations are
// cheap in-memory operations; nothing touches storage until checkout.
type Register struct {
	repo   *db.Repository
	queue  *queue.Queue
	remote RemoteAPI
	online func() bool
	cfg    Config

	mu       sync.Mutex
	cart     []models.CartItem
	customer *models.Customer
}

// NewRegister creates a Register. online reports current connectivity,
// normally the monitor's IsOnline.
func NewRegister(repo *db.Repository, q *queue.Queue, remote RemoteAPI, online func() bool, cfg Config) *Register {
	if online == nil {
		online = func() bool { return false }
	}
	return &Register{
		repo:   repo,
		queue:  q,
		remote: remote,
		online: online,
		cfg:    cfg,
	}
}

// AddProduct adds qty units of a cached product to the cart, merging
// with an existing line for the same item code.
func (r *Register) AddProduct(p models.Product, qty float64) {
	if qty <= 0 {
		qty = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.cart {
		if r.cart[i].ItemCode == p.ItemCode {
			r.cart[i].Quantity += qty
			return
		}
	}

	uom := p.StockUOM
	if uom == "" {
		uom = "Nos"
	}
	r.cart = append(r.cart, models.CartItem{
		ItemCode:        p.ItemCode,
		ItemName:        p.ItemName,
		Quantity:        qty,
		Rate:            p.Rate,
		UOM:             uom,
		TaxCategory:     p.TaxCategory,
		ItemTaxTemplate: p.ItemTaxTemplate,
	})
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (r *Register) UpdateQuantity(itemCode string, qty float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.cart {
		if r.cart[i].ItemCode != itemCode {
			continue
		}
		if qty <= 0 {
			r.cart = append(r.cart[:i], r.cart[i+1:]...)
		} else {
			r.cart[i].Quantity = qty
		}
		return
	}
}

// RemoveItem deletes a cart line.
func (r *Register) RemoveItem(itemCode string) {
	r.UpdateQuantity(itemCode, 0)
}

// ClearCart empties the cart and deselects the customer.
func (r *Register) ClearCart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cart = nil
	r.customer = nil
}

// SetCustomer selects the customer for the current order.
func (r *Register) SetCustomer(c *models.Customer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customer = c
}

// Customer returns the selected customer, or nil.
func (r *Register) Customer() *models.Customer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.customer
}

// Items returns a snapshot copy of the cart lines. Queue payloads and
// callers get copies, never the live slice.
func (r *Register) Items() []models.CartItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.CartItem(nil), r.cart...)
}

// Totals computes subtotal, tax, and grand total for the current cart
// using the locally snapshotted tax rules. Pure and cheap; safe to
// call on every cart or customer change.
func (r *Register) Totals() (tax.Result, error) {
	r.mu.Lock()
	cart := append([]models.CartItem(nil), r.cart...)
	customer := r.customer
	r.mu.Unlock()

	rules, err := r.taxRules()
	if err != nil {
		return tax.Result{}, err
	}
	return tax.ComputeCartTax(cart, customer, rules, r.cfg.CompanyState), nil
}

func (r *Register) taxRules() (*models.TaxRuleSet, error) {
	var rules models.TaxRuleSet
	found, err := r.repo.GetSetting(syncpkg.SettingTaxRules, &rules)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.TaxRuleSet{}, nil
	}
	return &rules, nil
}

// CheckoutResult describes what happened to an order at checkout.
type CheckoutResult struct {
	OrderID       string     `json:"order_id"`
	LocalInvoice  int64      `json:"local_invoice"`
	RemoteInvoice string     `json:"remote_invoice,omitempty"`
	Queued        bool       `json:"queued"`
	Totals        tax.Result `json:"totals"`
}

// Checkout finalizes the current cart. Online it creates and pays the
// invoice directly against the backend; offline, or when the direct
// call fails, it records the order locally and enqueues the draft and
// payment operations for the next sync cycle. Either way the cart is
// cleared only on success.
func (r *Register) Checkout(ctx context.Context, modeOfPayment string) (*CheckoutResult, error) {
	r.mu.Lock()
	cart := append([]models.CartItem(nil), r.cart...)
	customer := r.customer
	r.mu.Unlock()

	if len(cart) == 0 {
		return nil, errors.New(errors.ErrEmptyCart, "cannot checkout an empty cart")
	}
	if customer == nil {
		return nil, errors.New(errors.ErrNoCustomer, "no customer selected")
	}
	if modeOfPayment == "" {
		modeOfPayment = "Cash"
	}

	rules, err := r.taxRules()
	if err != nil {
		return nil, err
	}
	totals := tax.ComputeCartTax(cart, customer, rules, r.cfg.CompanyState)

	orderID := uuid.New()
	itemsJSON, err := json.Marshal(cart)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to encode cart", err)
	}

	inv := &models.LocalInvoice{
		OrderID:       orderID,
		CustomerName:  customer.Name,
		Company:       r.cfg.Company,
		Items:         itemsJSON,
		Subtotal:      totals.Subtotal,
		TotalTax:      totals.TotalTax,
		GrandTotal:    totals.GrandTotal,
		ModeOfPayment: modeOfPayment,
		CreatedAt:     time.Now().Unix(),
	}
	if err := r.repo.SaveInvoice(inv); err != nil {
		return nil, err
	}

	result := &CheckoutResult{
		OrderID:      orderID,
		LocalInvoice: inv.ID,
		Totals:       totals,
	}

	// A placeholder customer has no backend record yet, so its order
	// must wait in the queue behind the customer create.
	if r.online() && !customer.IsLocal() {
		remoteName, err := r.checkoutDirect(ctx, cart, customer, modeOfPayment, inv.ID)
		if err == nil {
			result.RemoteInvoice = remoteName
			r.ClearCart()
			return result, nil
		}
		logging.Warn("Direct checkout failed, queueing order", map[string]interface{}{
			"order_id": orderID,
			"error":    err.Error(),
		})
	}

	if err := r.enqueueCheckout(orderID, cart, customer, modeOfPayment, inv.ID); err != nil {
		return nil, err
	}
	result.Queued = true
	r.ClearCart()
	return result, nil
}

// checkoutDirect runs the draft-then-pay pair immediately.
func (r *Register) checkoutDirect(ctx context.Context, cart []models.CartItem, customer *models.Customer, modeOfPayment string, localInvoiceID int64) (string, error) {
	token := uuid.New()

	draft, err := r.remote.CreateInvoiceDraft(ctx, erpnext.DraftRequest{
		CustomerName: customer.Name,
		Company:      r.cfg.Company,
		Items:        cart,
	}, token)
	if err != nil {
		return "", err
	}

	if err := r.remote.SubmitAndPay(ctx, draft.Name, modeOfPayment, token); err != nil {
		return "", err
	}

	if err := r.repo.MarkInvoiceSynced(localInvoiceID, draft.Name); err != nil {
		return "", err
	}
	return draft.Name, nil
}

// enqueueCheckout records the order as a create_draft / submit_and_pay
// pair keyed by the local order id.
func (r *Register) enqueueCheckout(orderID string, cart []models.CartItem, customer *models.Customer, modeOfPayment string, localInvoiceID int64) error {
	_, err := r.queue.Enqueue(models.OperationInvoice, models.ActionCreateDraft, models.CreateDraftPayload{
		OrderID:      orderID,
		CustomerName: customer.Name,
		Company:      r.cfg.Company,
		Items:        cart,
	})
	if err != nil {
		return err
	}

	_, err = r.queue.Enqueue(models.OperationInvoice, models.ActionSubmitAndPay, models.SubmitAndPayPayload{
		OrderID:        orderID,
		ModeOfPayment:  modeOfPayment,
		LocalInvoiceID: localInvoiceID,
	})
	return err
}

// CreateCustomer creates a customer record. Online it goes straight to
// the backend; offline it writes a local placeholder and queues the
// create so a later sync replaces the placeholder with the
// authoritative record.
func (r *Register) CreateCustomer(ctx context.Context, name, phone, email string) (*models.Customer, error) {
	if name == "" {
		return nil, errors.New(errors.ErrInvalid, "customer name is required")
	}

	if r.online() {
		created, err := r.remote.CreateCustomer(ctx, erpnext.CreateCustomerRequest{
			Name:  name,
			Phone: phone,
			Email: email,
		}, uuid.New())
		if err == nil {
			if err := r.repo.PutCustomers([]models.Customer{*created}); err != nil {
				return nil, err
			}
			return created, nil
		}
		logging.Warn("Direct customer create failed, queueing", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
	}

	placeholder := models.Customer{
		Name:         uuid.NewLocal(models.LocalCustomerPrefix),
		CustomerName: name,
		CustomerType: "Individual",
		Phone:        phone,
		Email:        email,
	}
	if err := r.repo.PutCustomers([]models.Customer{placeholder}); err != nil {
		return nil, err
	}

	_, err := r.queue.Enqueue(models.OperationCustomer, models.ActionCreate, models.CreateCustomerPayload{
		TempID: placeholder.Name,
		Name:   name,
		Phone:  phone,
		Email:  email,
	})
	if err != nil {
		return nil, err
	}
	return &placeholder, nil
}
