// Package tax computes GST for a cart from customer, item and address
// signals. The engine is a pure function over its inputs: no I/O, no
// errors. Missing or malformed inputs degrade to zero-rate charges so
// a total can always be rendered.
package tax

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ldttech/poscore/internal/models"
)

// Tax resolution order per cart line, first applicable tier wins:
//  1. Customer tax category: out-state keyword -> IGST, in-state -> CGST+SGST.
//     A category string that matches neither set still resolves here, as IGST.
//  2. Item tax category, same keyword classification.
//  3. Item tax template naming a GST percentage ("GST 18%") -> that rate as IGST.
//  4. Customer address state vs company state: no customer state -> CGST+SGST,
//     no company state -> IGST, same state -> CGST+SGST, different -> IGST.

var outStateKeywords = []string{
	"out of state", "outstate", "out state", "inter state", "interstate", "overseas",
}

var inStateKeywords = []string{
	"in state", "instate", "intra state", "intrastate", "within state",
}

// Account-name fragments locating the configured output tax rows.
const (
	igstAccountPattern = "output tax igst"
	cgstAccountPattern = "output tax cgst"
	sgstAccountPattern = "output tax sgst"
)

var gstTemplateRegex = regexp.MustCompile(`(?i)GST\s*(\d+)\s*%`)

// TaxLine is one aggregated charge in a tax breakdown.
type TaxLine struct {
	Label  string  `json:"label"`
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
}

// Result is the full tax computation for a cart. GrandTotal is rounded
// half-up to the nearest whole currency unit; nothing else is rounded.
type Result struct {
	Subtotal   float64   `json:"subtotal"`
	TotalTax   float64   `json:"total_tax"`
	GrandTotal float64   `json:"grand_total"`
	Breakdown  []TaxLine `json:"breakdown"`
}

func isOutState(taxCategory string) bool {
	lower := strings.ToLower(strings.TrimSpace(taxCategory))
	if lower == "" {
		return false
	}
	for _, kw := range outStateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isInState(taxCategory string) bool {
	lower := strings.ToLower(strings.TrimSpace(taxCategory))
	if lower == "" {
		return false
	}
	for _, kw := range inStateKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// gstTemplateRate extracts the percentage from an item tax template
// name like "GST 18%". Returns -1 when the name carries no GST rate.
func gstTemplateRate(templateName string) float64 {
	match := gstTemplateRegex.FindStringSubmatch(templateName)
	if match == nil {
		return -1
	}
	rate, err := strconv.Atoi(match[1])
	if err != nil {
		return -1
	}
	return float64(rate)
}

// findRate locates a non-group tax rule whose name or account contains
// pattern and returns its rate. A missing rule yields 0, not an error.
func findRate(rules *models.TaxRuleSet, pattern string) float64 {
	if rules == nil {
		return 0
	}
	for _, rule := range rules.Taxes {
		if rule.IsGroup == 1 {
			continue
		}
		name := strings.ToLower(rule.Name)
		account := strings.ToLower(rule.AccountName)
		if strings.Contains(name, pattern) || strings.Contains(account, pattern) {
			return rule.TaxRate
		}
	}
	return 0
}

func sameState(customerState, companyState string) bool {
	c := strings.ToLower(strings.TrimSpace(customerState))
	co := strings.ToLower(strings.TrimSpace(companyState))
	if c == "" || co == "" {
		return false
	}
	return c == co
}

// lineTax is the resolved charge for one cart line.
type lineTax struct {
	interState bool // single IGST charge vs CGST+SGST split
	igstRate   float64
	cgstRate   float64
	sgstRate   float64
}

func (lt lineTax) totalRate() float64 {
	if lt.interState {
		return lt.igstRate
	}
	return lt.cgstRate + lt.sgstRate
}

func resolveLineTax(item models.CartItem, customer *models.Customer, rules *models.TaxRuleSet, companyState string) lineTax {
	igst := func() lineTax {
		return lineTax{interState: true, igstRate: findRate(rules, igstAccountPattern)}
	}
	split := func() lineTax {
		return lineTax{
			cgstRate: findRate(rules, cgstAccountPattern),
			sgstRate: findRate(rules, sgstAccountPattern),
		}
	}

	var customerTaxCat, customerState string
	if customer != nil {
		customerTaxCat = customer.TaxCategory
		customerState = customer.State
	}

	// Tier 1: customer tax category is authoritative when present; item
	// and address signals are not consulted even if the string matches
	// neither keyword set (unmatched categories fall through to IGST).
	if strings.TrimSpace(customerTaxCat) != "" {
		if isInState(customerTaxCat) {
			return split()
		}
		return igst()
	}

	// Tier 2: item tax category.
	if isOutState(item.TaxCategory) {
		return igst()
	}
	if isInState(item.TaxCategory) {
		return split()
	}

	// Tier 3: item tax template naming a GST percentage.
	if rate := gstTemplateRate(item.ItemTaxTemplate); rate >= 0 {
		return lineTax{interState: true, igstRate: rate}
	}

	// Tier 4: address comparison. A customer with no state on file is
	// assumed in-state; a company with no state cannot prove in-state.
	if strings.TrimSpace(customerState) == "" {
		return split()
	}
	if strings.TrimSpace(companyState) == "" {
		return igst()
	}
	if sameState(customerState, companyState) {
		return split()
	}
	return igst()
}

// ComputeCartTax resolves tax for every cart line, aggregates the
// breakdown by (label, rate) and rounds the grand total half-up to the
// nearest whole currency unit. Zero-amount charges are dropped.
func ComputeCartTax(cart []models.CartItem, customer *models.Customer, rules *models.TaxRuleSet, companyState string) Result {
	var subtotal, totalTax float64
	var charges []TaxLine

	for _, item := range cart {
		amount := item.Amount()
		subtotal += amount

		lt := resolveLineTax(item, customer, rules, companyState)
		lineAmount := amount * lt.totalRate() / 100
		totalTax += lineAmount

		if lineAmount <= 0 {
			continue
		}
		if lt.interState {
			charges = append(charges, TaxLine{Label: "IGST", Rate: lt.igstRate, Amount: amount * lt.igstRate / 100})
		} else {
			charges = append(charges,
				TaxLine{Label: "CGST", Rate: lt.cgstRate, Amount: amount * lt.cgstRate / 100},
				TaxLine{Label: "SGST", Rate: lt.sgstRate, Amount: amount * lt.sgstRate / 100},
			)
		}
	}

	// Merge same-label-same-rate charges, dropping zero amounts.
	var breakdown []TaxLine
	for _, charge := range charges {
		if charge.Amount <= 0 {
			continue
		}
		merged := false
		for i := range breakdown {
			if breakdown[i].Label == charge.Label && breakdown[i].Rate == charge.Rate {
				breakdown[i].Amount += charge.Amount
				merged = true
				break
			}
		}
		if !merged {
			breakdown = append(breakdown, charge)
		}
	}

	return Result{
		Subtotal:   subtotal,
		TotalTax:   totalTax,
		GrandTotal: math.Floor(subtotal + totalTax + 0.5),
		Breakdown:  breakdown,
	}
}
