// Package models provides data model definitions for the POS core.
package models

// CartItem represents one line of an in-memory cart. Queue payloads
// carry copies of cart lines, never live references, so later cart
// mutation cannot corrupt a queued operation.
type CartItem struct {
	ItemCode        string  `json:"item_code" validate:"required"`
	ItemName        string  `json:"item_name"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0"`
	Rate            float64 `json:"rate" validate:"gte=0"`
	UOM             string  `json:"uom,omitempty"`
	TaxCategory     string  `json:"tax_category,omitempty"`
	ItemTaxTemplate string  `json:"item_tax_template,omitempty"`
}

// Amount returns the line amount before tax.
func (i CartItem) Amount() float64 {
	return i.Rate * i.Quantity
}
