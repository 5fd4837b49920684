package erpnext

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/models"
)

const (
	pathCreateInvoice        = "/api/method/erpnext.accounts.doctype.sales_invoice.sales_invoice_api.create_sales_invoice_api"
	pathSubmitAndPay         = "/api/method/erpnext.accounts.doctype.sales_invoice.sales_invoice_api.submit_and_pay_sales_invoice_api"
	pathResourceSalesInvoice = "/api/resource/Sales Invoice"
)

// DraftRequest describes the invoice draft to create remotely.
type DraftRequest struct {
	CustomerName string
	Company      string
	Items        []models.CartItem
}

// RemoteTaxCharge is one tax line the backend computed for a draft.
type RemoteTaxCharge struct {
	Description string  `json:"description"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"tax_amount"`
}

// DraftInvoice is the backend's view of a created draft.
type DraftInvoice struct {
	Name       string            `json:"name"`
	NetTotal   float64           `json:"net_total"`
	GrandTotal float64           `json:"grand_total"`
	Taxes      []RemoteTaxCharge `json:"taxes"`
}

// CreateInvoiceDraft creates a draft sales invoice for the customer and
// line items. token, when non-empty, is sent as the idempotency key so
// a deduplicating backend can drop a double replay.
func (c *Client) CreateInvoiceDraft(ctx context.Context, req DraftRequest, token string) (*DraftInvoice, error) {
	type lineItem struct {
		ItemCode string  `json:"item_code"`
		Qty      float64 `json:"qty"`
		Rate     float64 `json:"rate"`
	}

	lines := make([]lineItem, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, lineItem{ItemCode: item.ItemCode, Qty: item.Quantity, Rate: item.Rate})
	}

	payload := map[string]interface{}{
		"posting_date": time.Now().Format("2006-01-02"),
		"submit":       0,
		"company":      req.Company,
		"customer":     req.CustomerName,
		"items":        lines,
	}

	raw, err := c.postJSON(ctx, pathCreateInvoice, payload, token)
	if err != nil {
		return nil, err
	}

	var draft DraftInvoice
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, errors.Wrap(errors.ErrBadResponse, "failed to decode draft invoice", err)
	}
	if draft.Name == "" {
		return nil, errors.New(errors.ErrBadResponse, "draft invoice response carried no name")
	}
	return &draft, nil
}

// SubmitAndPay submits a draft invoice and records its payment.
func (c *Client) SubmitAndPay(ctx context.Context, salesInvoice, modeOfPayment, token string) error {
	if modeOfPayment == "" {
		modeOfPayment = "Cash"
	}

	payload := map[string]interface{}{
		"sales_invoice":   salesInvoice,
		"mode_of_payment": modeOfPayment,
	}

	_, err := c.postJSON(ctx, pathSubmitAndPay, payload, token)
	return err
}

// SubmitInvoice pushes a locally recorded invoice through the legacy
// resource endpoint. Used by the full-sync path for invoices captured
// before the queue-based checkout existed.
func (c *Client) SubmitInvoice(ctx context.Context, inv models.LocalInvoice) error {
	items, err := inv.CartItems()
	if err != nil {
		return errors.Wrap(errors.ErrInvalid, "invoice has malformed items", err)
	}

	type lineItem struct {
		ItemCode string  `json:"item_code"`
		ItemName string  `json:"item_name"`
		Qty      float64 `json:"qty"`
		Rate     float64 `json:"rate"`
		UOM      string  `json:"uom"`
	}

	lines := make([]lineItem, 0, len(items))
	for _, item := range items {
		uom := item.UOM
		if uom == "" {
			uom = "Nos"
		}
		lines = append(lines, lineItem{
			ItemCode: item.ItemCode,
			ItemName: item.ItemName,
			Qty:      item.Quantity,
			Rate:     item.Rate,
			UOM:      uom,
		})
	}

	date := inv.CreatedAtTime().Format("2006-01-02")
	payload := map[string]interface{}{
		"doctype":            "Sales Invoice",
		"customer":           inv.CustomerName,
		"posting_date":       date,
		"due_date":           date,
		"items":              lines,
		"total":              inv.Subtotal,
		"grand_total":        inv.GrandTotal,
		"outstanding_amount": inv.GrandTotal,
	}

	_, err = c.postJSON(ctx, pathResourceSalesInvoice, payload, "")
	return err
}
