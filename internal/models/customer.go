// Package models provides data model definitions for the POS core.
package models

import (
	"strings"
	"time"
)

// LocalCustomerPrefix marks customers created on this device while
// offline, before the backend has assigned an authoritative name.
const LocalCustomerPrefix = "local-"

// Customer represents a customer record cached locally.
// Name is the backend identifier; placeholder records created offline
// carry a generated name with LocalCustomerPrefix until synced.
type Customer struct {
	Name             string `db:"name" json:"name"`
	CustomerName     string `db:"customer_name" json:"customer_name"`
	CustomerType     string `db:"customer_type" json:"customer_type"`
	Territory        string `db:"territory" json:"territory,omitempty"`
	TaxCategory      string `db:"tax_category" json:"tax_category,omitempty"`
	State            string `db:"state" json:"state,omitempty"`
	DefaultPriceList string `db:"default_price_list" json:"default_price_list,omitempty"`
	Phone            string `db:"phone" json:"phone,omitempty"`
	Email            string `db:"email" json:"email,omitempty"`
	LastSynced       int64  `db:"last_synced" json:"last_synced"`
}

// TableName returns the table name for Customer.
func (Customer) TableName() string {
	return "customers"
}

// IsLocal reports whether this is an unsynced placeholder record.
func (c *Customer) IsLocal() bool {
	return strings.HasPrefix(c.Name, LocalCustomerPrefix)
}

// LastSyncedTime returns the LastSynced as time.Time.
func (c *Customer) LastSyncedTime() time.Time {
	return time.Unix(c.LastSynced, 0)
}
