// Package models provides data model definitions for the POS core.
package models

// TaxRule is one row of the company's duties-and-taxes chart.
// Group rows (IsGroup=1) are containers, never charged directly.
type TaxRule struct {
	Name        string  `json:"name"`
	AccountName string  `json:"account_name"`
	TaxRate     float64 `json:"tax_rate"`
	IsGroup     int     `json:"is_group"`
}

// TaxRuleSet is a snapshot of the company duty/tax accounts, refreshed
// after login and on each sync. Read-only to the tax engine.
type TaxRuleSet struct {
	Taxes []TaxRule `json:"taxes"`
}
