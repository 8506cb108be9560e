package pipeline

import (
	"fmt"
	"math"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/util"
)

// ValidationOutcome separates failures that justify a retry from ones
// that only warrant a warning.
type ValidationOutcome struct {
	TotalsValid     bool
	QuantitiesValid bool
}

// Critical reports whether the order must be re-extracted. Only a totals
// mismatch is critical; quantity drift is recorded and accepted.
func (v ValidationOutcome) Critical() bool {
	return !v.TotalsValid
}

// ValidateOrder checks the reconstructed order against the totals the
// document itself declares. Warnings are appended to the order.
func ValidateOrder(order *internal.Order, defaultVatRate, moneyTolerance, qtyTolerance float64) ValidationOutcome {
	outcome := ValidationOutcome{
		TotalsValid:     validateTotals(order, defaultVatRate, moneyTolerance),
		QuantitiesValid: validateQuantities(order, qtyTolerance),
	}
	return outcome
}

// validateTotals reconstructs the gross total four ways and keeps the
// closest candidate: suppliers differ in whether the invoice-level
// discount applies before or after VAT, and some print a net-only total.
// A self-verified extraction reports its own math verdict and that verdict
// wins; the local reconstruction only runs when no verdict was reported.
func validateTotals(order *internal.Order, defaultVatRate, tolerance float64) bool {
	if order.MathCheck.Reported {
		if order.MathCheck.Valid {
			return true
		}
		order.Warnings = append(order.Warnings, "extraction reported a total mismatch")
		if order.MathCheck.Reasoning != "" {
			order.Warnings = append(order.Warnings, "extraction self-check: "+order.MathCheck.Reasoning)
		}
		return false
	}
	if order.DocumentTotalWithVat == nil {
		return true
	}
	declared := *order.DocumentTotalWithVat

	vatRate := defaultVatRate
	if order.VatRate != nil {
		vatRate = *order.VatRate
	}
	vatFactor := 1 + vatRate/100

	net := 0.0
	for _, item := range order.LineItems {
		net += item.Quantity * item.FinalNetPrice
	}
	disc := order.TotalInvoiceDiscountAmount

	candidates := []float64{
		net*vatFactor - disc,
		(net - disc) * vatFactor,
		net * vatFactor,
		net,
	}

	bestDiff := math.Inf(1)
	var best float64
	for _, c := range candidates {
		if diff := math.Abs(c - declared); diff < bestDiff {
			bestDiff = diff
			best = c
		}
	}

	if bestDiff <= tolerance {
		return true
	}

	order.Warnings = append(order.Warnings, fmt.Sprintf(
		"total mismatch: declared %.2f, computed %.2f (diff %.2f)",
		declared, util.Round2(best), util.Round2(bestDiff)))
	return false
}

func validateQuantities(order *internal.Order, tolerance float64) bool {
	if order.QtyCheck.Reported {
		if order.QtyCheck.Valid {
			return true
		}
		order.Warnings = append(order.Warnings, "extraction reported a quantity mismatch")
		if order.QtyCheck.Reasoning != "" {
			order.Warnings = append(order.Warnings, "extraction self-check: "+order.QtyCheck.Reasoning)
		}
		return false
	}
	if order.DocumentTotalQuantity == nil {
		return true
	}
	declared := *order.DocumentTotalQuantity

	total := 0.0
	for _, item := range order.LineItems {
		total += item.Quantity
	}

	if math.Abs(total-declared) <= tolerance {
		return true
	}

	order.Warnings = append(order.Warnings, fmt.Sprintf(
		"quantity mismatch: declared %g, computed %g", declared, total))
	return false
}
