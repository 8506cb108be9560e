package oracle

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/util"
)

// Wire shapes tolerate nulls and omissions; coercion to internal types
// happens after decoding.
type wireOrder struct {
	InvoiceNumber              *string        `json:"invoice_number"`
	Currency                   *string        `json:"currency"`
	SupplierName               *string        `json:"supplier_name"`
	SupplierGlobalID           *string        `json:"supplier_global_id"`
	SupplierEmail              *string        `json:"supplier_email"`
	SupplierPhone              *string        `json:"supplier_phone"`
	GlobalDiscountPercentage   *float64       `json:"global_discount_percentage"`
	TotalInvoiceDiscountAmount *float64       `json:"total_invoice_discount_amount"`
	DocumentTotalWithVat       *float64       `json:"document_total_with_vat"`
	DocumentTotalWithoutVat    *float64       `json:"document_total_without_vat"`
	DocumentTotalQuantity      *float64       `json:"document_total_quantity"`
	VatRate                    *float64       `json:"vat_rate"`
	LineItems                  []wireLineItem `json:"line_items"`
	MathCheck                  *wireCheck     `json:"math_check"`
	QtyCheck                   *wireCheck     `json:"qty_check"`
}

type wireLineItem struct {
	Barcode            *string  `json:"barcode"`
	Description        *string  `json:"description"`
	Quantity           *float64 `json:"quantity"`
	RawUnitPrice       *float64 `json:"raw_unit_price"`
	VatStatus          *string  `json:"vat_status"`
	DiscountPercentage *float64 `json:"discount_percentage"`
	PaidQuantity       *float64 `json:"paid_quantity"`
	BonusQuantity      *float64 `json:"bonus_quantity"`
	FinalNetPrice      *float64 `json:"final_net_price"`
}

type wireCheck struct {
	Valid     bool   `json:"valid"`
	Reasoning string `json:"reasoning"`
}

type wireDetection struct {
	SupplierCode *string  `json:"supplier_code"`
	Confidence   *float64 `json:"confidence"`
	Reasoning    *string  `json:"reasoning"`
	SeenEmail    *string  `json:"seen_email"`
	SeenGlobalID *string  `json:"seen_global_id"`
}

// parseOrders accepts a JSON array of orders or a single object, with or
// without markdown fences around it.
func parseOrders(text string) ([]internal.Order, error) {
	cleaned := stripFences(text)
	if cleaned == "" {
		return nil, errors.New("empty oracle response")
	}

	var wires []wireOrder
	if err := json.Unmarshal([]byte(cleaned), &wires); err != nil {
		var single wireOrder
		if err2 := json.Unmarshal([]byte(cleaned), &single); err2 != nil {
			return nil, err
		}
		wires = []wireOrder{single}
	}

	orders := make([]internal.Order, 0, len(wires))
	for _, w := range wires {
		orders = append(orders, coerceOrder(w))
	}
	return orders, nil
}

func parseDetection(text string) (internal.DetectionResult, error) {
	cleaned := stripFences(text)
	if cleaned == "" {
		return internal.DetectionResult{}, errors.New("empty oracle response")
	}

	var w wireDetection
	if err := json.Unmarshal([]byte(cleaned), &w); err != nil {
		return internal.DetectionResult{}, err
	}

	result := internal.DetectionResult{
		SupplierCode: strings.TrimSpace(deref(w.SupplierCode)),
		Confidence:   derefF(w.Confidence),
		Reasoning:    deref(w.Reasoning),
		SeenEmail:    util.NormalizeEmail(deref(w.SeenEmail)),
		SeenGlobalID: util.NormalizeDigits(deref(w.SeenGlobalID)),
	}
	if result.SupplierCode == "" {
		result.SupplierCode = internal.UnknownSupplier
	}
	return result, nil
}

func coerceOrder(w wireOrder) internal.Order {
	order := internal.Order{
		InvoiceNumber:              strings.TrimSpace(deref(w.InvoiceNumber)),
		Currency:                   strings.TrimSpace(deref(w.Currency)),
		SupplierName:               strings.TrimSpace(deref(w.SupplierName)),
		SupplierGlobalID:           util.NormalizeDigits(deref(w.SupplierGlobalID)),
		SupplierEmail:              util.NormalizeEmail(deref(w.SupplierEmail)),
		SupplierPhone:              util.NormalizeDigits(deref(w.SupplierPhone)),
		GlobalDiscountPercentage:   derefF(w.GlobalDiscountPercentage),
		TotalInvoiceDiscountAmount: derefF(w.TotalInvoiceDiscountAmount),
		DocumentTotalWithVat:       w.DocumentTotalWithVat,
		DocumentTotalWithoutVat:    w.DocumentTotalWithoutVat,
		DocumentTotalQuantity:      w.DocumentTotalQuantity,
		VatRate:                    normalizeVatRate(w.VatRate),
		Warnings:                   []string{},
	}

	for _, wl := range w.LineItems {
		item := internal.LineItem{
			Barcode:            util.NormalizeDigits(deref(wl.Barcode)),
			Description:        strings.TrimSpace(deref(wl.Description)),
			Quantity:           derefF(wl.Quantity),
			RawUnitPrice:       derefF(wl.RawUnitPrice),
			VatStatus:          coerceVatStatus(deref(wl.VatStatus)),
			DiscountPercentage: derefF(wl.DiscountPercentage),
			PaidQuantity:       wl.PaidQuantity,
			BonusQuantity:      wl.BonusQuantity,
		}
		if item.Description == "" {
			item.Description = "UNKNOWN_ITEM"
		}
		if wl.FinalNetPrice != nil {
			item.FinalNetPrice = *wl.FinalNetPrice
			item.NetPriceReported = true
		}
		order.LineItems = append(order.LineItems, item)
	}

	if w.MathCheck != nil {
		order.MathCheck = internal.SelfCheck{Reported: true, Valid: w.MathCheck.Valid, Reasoning: w.MathCheck.Reasoning}
	}
	if w.QtyCheck != nil {
		order.QtyCheck = internal.SelfCheck{Reported: true, Valid: w.QtyCheck.Valid, Reasoning: w.QtyCheck.Reasoning}
	}

	return order
}

// normalizeVatRate converts fractional rates (0.18) to percent (18).
func normalizeVatRate(rate *float64) *float64 {
	if rate == nil {
		return nil
	}
	v := *rate
	if v > 0 && v < 1 {
		v = v * 100
	}
	return &v
}

func coerceVatStatus(s string) internal.VatStatus {
	if strings.EqualFold(strings.TrimSpace(s), string(internal.VatExcluded)) {
		return internal.VatExcluded
	}
	return internal.VatIncluded
}

// stripFences removes ```json ... ``` wrappers and leading prose up to
// the first bracket.
func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndexAny(s, "]}")
	if end < start {
		return ""
	}
	return s[start : end+1]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefF(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
