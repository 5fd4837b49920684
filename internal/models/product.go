// Package models provides data model definitions for the POS core.
package models

import "time"

// Product represents a catalog item cached locally for offline sale.
// Rows are overwritten wholesale on each sync; the backend is the
// source of truth and there are no merge semantics.
type Product struct {
	ItemCode        string  `db:"item_code" json:"item_code"`
	ItemName        string  `db:"item_name" json:"item_name"`
	Description     string  `db:"description" json:"description,omitempty"`
	ActualQty       float64 `db:"actual_qty" json:"actual_qty"`
	Rate            float64 `db:"rate" json:"rate"`
	StockUOM        string  `db:"stock_uom" json:"stock_uom"`
	Image           string  `db:"image" json:"image,omitempty"`
	ItemTaxTemplate string  `db:"item_tax_template" json:"item_tax_template,omitempty"`
	TaxCategory     string  `db:"tax_category" json:"tax_category,omitempty"`
	LastSynced      int64   `db:"last_synced" json:"last_synced"`
}

// TableName returns the table name for Product.
func (Product) TableName() string {
	return "products"
}

// LastSyncedTime returns the LastSynced as time.Time.
func (p *Product) LastSyncedTime() time.Time {
	return time.Unix(p.LastSynced, 0)
}
