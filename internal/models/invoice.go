// Package models provides data model definitions for the POS core.
package models

import (
	"encoding/json"
	"time"
)

// LocalInvoice represents a sale recorded on this device. Invoices
// created while offline stay Synced=false until a sync cycle pushes
// them (or their queued operations replay) against the backend.
type LocalInvoice struct {
	ID            int64           `db:"id" json:"id"`
	OrderID       string          `db:"order_id" json:"order_id"`
	CustomerName  string          `db:"customer_name" json:"customer_name"`
	Company       string          `db:"company" json:"company"`
	Items         json.RawMessage `db:"items" json:"items"`
	Subtotal      float64         `db:"subtotal" json:"subtotal"`
	TotalTax      float64         `db:"total_tax" json:"total_tax"`
	GrandTotal    float64         `db:"grand_total" json:"grand_total"`
	ModeOfPayment string          `db:"mode_of_payment" json:"mode_of_payment,omitempty"`
	RemoteName    string          `db:"remote_name" json:"remote_name,omitempty"`
	Synced        bool            `db:"synced" json:"synced"`
	CreatedAt     int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for LocalInvoice.
func (LocalInvoice) TableName() string {
	return "sales_invoices"
}

// CartItems decodes the stored line items.
func (inv *LocalInvoice) CartItems() ([]CartItem, error) {
	var items []CartItem
	if err := json.Unmarshal(inv.Items, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (inv *LocalInvoice) CreatedAtTime() time.Time {
	return time.Unix(inv.CreatedAt, 0)
}
