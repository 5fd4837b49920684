package erpnext

import (
	"context"
	"encoding/json"

	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/models"
)

const (
	pathGetCustomers     = "/api/method/frappe.core.doctype.user.custom.get_customers"
	pathResourceCustomer = "/api/resource/Customer"
)

// rawCustomer tolerates the two shapes the customer search returns:
// full records and link-field style {value,label,description} rows.
type rawCustomer struct {
	Name             string `json:"name"`
	Value            string `json:"value"`
	Label            string `json:"label"`
	Description      string `json:"description"`
	CustomerName     string `json:"customer_name"`
	CustomerType     string `json:"customer_type"`
	Territory        string `json:"territory"`
	TaxCategory      string `json:"tax_category"`
	GSTCategory      string `json:"gst_category"`
	Address          string `json:"address"`
	State            string `json:"state"`
	GSTState         string `json:"gst_state"`
	AddressState     string `json:"address_state"`
	DefaultPriceList string `json:"default_price_list"`
	PhoneNumber      string `json:"phone_number"`
	EmailID          string `json:"email_id"`
}

func (rc rawCustomer) toCustomer() models.Customer {
	return models.Customer{
		Name:             firstNonEmpty(rc.Name, rc.Value),
		CustomerName:     firstNonEmpty(rc.Label, rc.CustomerName, rc.Description, rc.Value, rc.Name),
		CustomerType:     firstNonEmpty(rc.CustomerType, "Individual"),
		Territory:        rc.Territory,
		TaxCategory:      firstNonEmpty(rc.TaxCategory, rc.GSTCategory),
		State:            firstNonEmpty(rc.Address, rc.State, rc.GSTState, rc.AddressState),
		DefaultPriceList: rc.DefaultPriceList,
		Phone:            rc.PhoneNumber,
		Email:            rc.EmailID,
	}
}

// SearchCustomers queries the backend customer search. An empty search
// string returns the default result set the backend chooses.
func (c *Client) SearchCustomers(ctx context.Context, search string) ([]models.Customer, error) {
	raw, err := c.postJSON(ctx, pathGetCustomers, map[string]interface{}{"search": search}, "")
	if err != nil {
		return nil, err
	}

	var rows []rawCustomer
	if err := json.Unmarshal(asList(raw, "data", "customers"), &rows); err != nil {
		return nil, errors.Wrap(errors.ErrBadResponse, "failed to decode customer list", err)
	}

	customers := make([]models.Customer, 0, len(rows))
	for _, row := range rows {
		cust := row.toCustomer()
		if cust.Name == "" {
			continue
		}
		customers = append(customers, cust)
	}
	return customers, nil
}

// CreateCustomerRequest carries the fields for a new customer record.
type CreateCustomerRequest struct {
	Name  string
	Phone string
	Email string
}

// CreateCustomer creates a customer on the backend and returns the
// authoritative record, including the backend-assigned name.
func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest, token string) (*models.Customer, error) {
	payload := map[string]interface{}{
		"customer_name":      req.Name,
		"customer_type":      "Individual",
		"phone_number":       req.Phone,
		"default_price_list": "Standard Selling",
		"gst_category":       "Unregistered",
	}
	if req.Email != "" {
		payload["email_id"] = req.Email
	}

	raw, err := c.postJSON(ctx, pathResourceCustomer, payload, token)
	if err != nil {
		return nil, err
	}

	var row rawCustomer
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, errors.Wrap(errors.ErrBadResponse, "failed to decode created customer", err)
	}

	cust := row.toCustomer()
	if cust.Name == "" {
		return nil, errors.New(errors.ErrBadResponse, "created customer response carried no name")
	}
	if cust.Phone == "" {
		cust.Phone = req.Phone
	}
	if cust.Email == "" {
		cust.Email = req.Email
	}
	return &cust, nil
}
