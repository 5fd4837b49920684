package erpnext

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/models"
)

const pathGetItems = "/api/method/frappe.core.doctype.user.custom.get_items"

// ItemPage is one page of a catalog search.
type ItemPage struct {
	Items   []models.Product
	Total   int
	HasMore bool
}

// rawItem mirrors the loose item shape the backend returns. Fields
// double up (qty vs actual_qty, uom vs stock_uom) because the custom
// endpoint has drifted across backend versions.
type rawItem struct {
	Name            string         `json:"name"`
	ItemCode        string         `json:"item_code"`
	ItemName        string         `json:"item_name"`
	Description     string         `json:"description"`
	StandardRate    float64        `json:"standard_rate"`
	Rate            float64        `json:"rate"`
	PriceListRate   float64        `json:"price_list_rate"`
	StockUOM        string         `json:"stock_uom"`
	UOM             string         `json:"uom"`
	SalesUOM        string         `json:"sales_uom"`
	Image           string         `json:"image"`
	ItemImage       string         `json:"item_image"`
	Qty             float64        `json:"qty"`
	ActualQty       float64        `json:"actual_qty"`
	ItemTaxTemplate string         `json:"item_tax_template"`
	TaxCategory     string         `json:"tax_category"`
	PriceLists      []rawPriceList `json:"price_lists"`
}

type rawPriceList struct {
	PriceList     string  `json:"price_list"`
	PriceListRate float64 `json:"price_list_rate"`
	UOM           string  `json:"uom"`
	Selling       int     `json:"selling"`
}

// SearchItems queries the catalog endpoint. priceList selects which
// selling price list rates to resolve; start and pageLength drive
// pagination (the caller loops while HasMore).
func (c *Client) SearchItems(ctx context.Context, txt, priceList string, start, pageLength int) (*ItemPage, error) {
	if pageLength <= 0 {
		pageLength = 20
	}

	payload := map[string]interface{}{
		"price_list":  priceList,
		"txt":         txt,
		"start":       start,
		"page_length": pageLength,
	}

	raw, err := c.postJSON(ctx, pathGetItems, payload, "")
	if err != nil {
		return nil, err
	}

	var page struct {
		Items   []rawItem `json:"items"`
		Total   int       `json:"total"`
		HasMore bool      `json:"has_more"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, errors.Wrap(errors.ErrBadResponse, "failed to decode item page", err)
	}

	items := make([]models.Product, 0, len(page.Items))
	for _, ri := range page.Items {
		items = append(items, ri.toProduct(priceList))
	}

	total := page.Total
	if total == 0 {
		total = len(items)
	}
	return &ItemPage{Items: items, Total: total, HasMore: page.HasMore}, nil
}

// toProduct flattens a raw item, resolving the rate and UOM through its
// price list entries for the selected selling price list.
func (ri rawItem) toProduct(priceList string) models.Product {
	code := ri.ItemCode
	if code == "" {
		code = ri.Name
	}
	name := ri.ItemName
	if name == "" {
		name = ri.Name
	}
	qty := ri.ActualQty
	if qty == 0 {
		qty = ri.Qty
	}
	image := ri.ItemImage
	if image == "" {
		image = ri.Image
	}

	rate, uom := ri.resolveRate(priceList)

	return models.Product{
		ItemCode:        code,
		ItemName:        name,
		Description:     ri.Description,
		ActualQty:       qty,
		Rate:            rate,
		StockUOM:        uom,
		Image:           image,
		ItemTaxTemplate: ri.ItemTaxTemplate,
		TaxCategory:     ri.TaxCategory,
	}
}

// resolveRate picks the rate and UOM for the given selling price list,
// falling back to the first selling entry, then the item's own fields.
func (ri rawItem) resolveRate(priceList string) (float64, string) {
	want := strings.TrimSpace(priceList)
	for _, pl := range ri.PriceLists {
		if pl.Selling == 1 && strings.TrimSpace(pl.PriceList) == want {
			return pl.PriceListRate, firstNonEmpty(pl.UOM, ri.StockUOM, ri.UOM, "Nos")
		}
	}
	for _, pl := range ri.PriceLists {
		if pl.Selling == 1 {
			return pl.PriceListRate, firstNonEmpty(pl.UOM, ri.StockUOM, ri.UOM, "Nos")
		}
	}

	rate := ri.PriceListRate
	if rate == 0 {
		rate = ri.Rate
	}
	if rate == 0 {
		rate = ri.StandardRate
	}
	return rate, firstNonEmpty(ri.StockUOM, ri.UOM, ri.SalesUOM, "Nos")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
