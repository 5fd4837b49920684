// Package models provides data model definitions for the POS core.
package models

// POSProfile is the terminal profile selected after login. CompanyState
// feeds the tax engine's address comparison tier.
type POSProfile struct {
	Name             string          `json:"name"`
	Company          string          `json:"company"`
	CompanyState     string          `json:"company_state,omitempty"`
	Warehouse        string          `json:"warehouse,omitempty"`
	SellingPriceList string          `json:"selling_price_list,omitempty"`
	PaymentMethods   []PaymentMethod `json:"payment_methods,omitempty"`
}

// PaymentMethod is one mode of payment allowed by a POS profile.
type PaymentMethod struct {
	ModeOfPayment string `json:"mode_of_payment"`
	Default       int    `json:"default,omitempty"`
}

// Session carries the credentials and endpoint the remote client uses.
// It is loaded from the settings store after login and passed around
// explicitly; nothing in the core reads credentials from globals.
type Session struct {
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	User      string `json:"user,omitempty"`
	SavedAt   string `json:"saved_at,omitempty"`
}

// Configured reports whether the session can authenticate requests.
func (s Session) Configured() bool {
	return s.BaseURL != "" && s.APIKey != "" && s.APISecret != ""
}

/// OpeningEntryStatus describes the shift gate for a user: whether an
// opening entry exists and sales may be recorded.
type OpeningEntryStatus struct {
	Name       string `json:"name,omitempty"`
	POSProfile string `json:"pos_profile,omitempty"`
	Company    string `json:"company,omitempty"`
	Open       bool   `json:"open"`
}
