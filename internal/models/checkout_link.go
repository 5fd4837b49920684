// Package models provides data model definitions for the POS core.
package models

// PendingCheckoutLink maps a locally-generated order id to the remote
// draft invoice created for it. Written when a create_draft operation
// replays successfully, consumed and deleted by the paired
// submit_and_pay. At most one link exists per order id.
type PendingCheckoutLink struct {
	OrderID         string `db:"order_id" json:"order_id"`
	RemoteInvoiceID string `db:"remote_invoice_id" json:"remote_invoice_id"`
	CreatedAt       int64  `db:"created_at" json:"created_at"`
}

// TableName returns the table name for PendingCheckoutLink.
func (PendingCheckoutLink) TableName() string {
	return "pending_checkout_links"
}
