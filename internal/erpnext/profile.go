package erpnext

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/models"
)

const (
	pathLogin                = "/api/method/frappe.core.doctype.user.custom.login"
	pathGetPOSProfiles       = "/api/method/frappe.core.doctype.user.custom.get_pos_profiles"
	pathGetDutiesAndTaxes    = "/api/method/frappe.core.doctype.user.custom.get_duties_and_taxes_list"
	pathCheckOpeningEntry    = "/api/method/erpnext.selling.page.point_of_sale.point_of_sale.check_opening_entry"
	pathCreateOpeningVoucher = "/api/method/erpnext.selling.page.point_of_sale.point_of_sale.create_opening_voucher"
	pathGetClosingData       = "/api/method/frappe.core.doctype.user.custom.get_pos_closing_data_by_opening_entry"
	pathSaveDocs             = "/api/method/frappe.desk.form.save.savedocs"
)

// LoginResult is what the backend login method returns for a valid
// user: API credentials the session keeps for every later call.
type LoginResult struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	User      string `json:"user"`
	FullName  string `json:"full_name"`
	Company   string `json:"company"`
}

// Login exchanges username and password for API credentials. It does
// not mutate the client; the caller builds a Session from the result
// and applies it through Configure.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	raw, err := c.postJSON(ctx, pathLogin, map[string]interface{}{
		"usr": username,
		"pwd": password,
	}, "")
	if err != nil {
		return nil, err
	}

	var result LoginResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(errors.ErrBadResponse, "failed to decode login response", err)
	}
	if result.APIKey == "" || result.APISecret == "" {
		return nil, errors.New(errors.ErrAuthFailed, "login response carried no API credentials")
	}
	if result.User == "" {
		result.User = username
	}
	return &result, nil
}

// FetchPOSProfiles lists the POS profiles the user may open a shift
// against, including each profile's company state and payment methods.
func (c *Client) FetchPOSProfiles(ctx context.Context) ([]models.POSProfile, error) {
	raw, err := c.postJSON(ctx, pathGetPOSProfiles, map[string]interface{}{}, "")
	if err != nil {
		return nil, err
	}

	var profiles []models.POSProfile
	if err := json.Unmarshal(asList(raw, "data", "profiles", "pos_profiles"), &profiles); err != nil {
		return nil, errors.Wrap(errors.ErrBadResponse, "failed to decode POS profiles", err)
	}
	return profiles, nil
}

// FetchTaxRuleSet pulls the company's duties-and-taxes chart. The tax
// engine treats the result as a read-only snapshot.
func (c *Client) FetchTaxRuleSet(ctx context.Context, company string) (*models.TaxRuleSet, error) {
	raw, err := c.postJSON(ctx, pathGetDutiesAndTaxes, map[string]interface{}{"company": company}, "")
	if err != nil {
		return nil, err
	}

	var rules []models.TaxRule
	if err := json.Unmarshal(asList(raw, "data", "taxes", "accounts"), &rules); err != nil {
		return nil, errors.Wrap(errors.ErrBadResponse, "failed to decode tax accounts", err)
	}
	return &models.TaxRuleSet{Taxes: rules}, nil
}

// FetchOpeningEntryStatus checks whether the user has an open POS
// shift. The backend answers with a list of open entries; an empty
// list means sales are gated behind creating an opening voucher.
func (c *Client) FetchOpeningEntryStatus(ctx context.Context, user string) (*models.OpeningEntryStatus, error) {
	form := url.Values{}
	form.Set("user", user)

	raw, err := c.postForm(ctx, pathCheckOpeningEntry, form)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		Name       string `json:"name"`
		POSProfile string `json:"pos_profile"`
		Company    string `json:"company"`
	}
	if err := json.Unmarshal(asList(raw, "data"), &entries); err != nil {
		return nil, errors.Wrap(errors.ErrBadResponse, "failed to decode opening entry", err)
	}

	if len(entries) == 0 {
		return &models.OpeningEntryStatus{Open: false}, nil
	}
	first := entries[0]
	return &models.OpeningEntryStatus{
		Name:       first.Name,
		POSProfile: first.POSProfile,
		Company:    first.Company,
		Open:       true,
	}, nil
}

// BalanceDetail is one opening cash balance line.
type BalanceDetail struct {
	ModeOfPayment string  `json:"mode_of_payment"`
	OpeningAmount float64 `json:"opening_amount"`
}

// CreateOpeningVoucher opens a POS shift with the given starting
// balances and returns the backend's voucher document.
func (c *Client) CreateOpeningVoucher(ctx context.Context, posProfile, company string, balances []BalanceDetail) (json.RawMessage, error) {
	details, err := json.Marshal(balances)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to encode balance details", err)
	}

	form := url.Values{}
	form.Set("pos_profile", posProfile)
	form.Set("company", company)
	form.Set("balance_details", string(details))

	return c.postForm(ctx, pathCreateOpeningVoucher, form)
}

// FetchClosingData returns the reconciliation document for an opening
// entry: expected totals per payment mode as the backend computed them.
// The shape is backend-defined, so it passes through as raw JSON.
func (c *Client) FetchClosingData(ctx context.Context, openingEntry string) (json.RawMessage, error) {
	return c.postJSON(ctx, pathGetClosingData, map[string]interface{}{
		"pos_opening_entry": openingEntry,
	}, "")
}

// SaveClosingEntry saves or submits a POS Closing Entry document
// through the generic savedocs endpoint. action is Save, Submit, or
// Update.
func (c *Client) SaveClosingEntry(ctx context.Context, doc json.RawMessage, action string) (json.RawMessage, error) {
	if action == "" {
		action = "Save"
	}

	form := url.Values{}
	form.Set("doc", string(doc))
	form.Set("action", action)

	return c.postForm(ctx, pathSaveDocs, form)
}
