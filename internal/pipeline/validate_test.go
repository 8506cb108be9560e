package pipeline

import (
	"strings"
	"testing"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/util"
)

func TestValidateTotalsMatch(t *testing.T) {
	order := internal.Order{
		DocumentTotalWithVat: util.FloatPtr(117),
		LineItems: []internal.LineItem{
			{Quantity: 10, FinalNetPrice: 10},
		},
	}
	outcome := ValidateOrder(&order, 17, 5.0, 0.1)

	if !outcome.TotalsValid || outcome.Critical() {
		t.Fatalf("outcome=%+v", outcome)
	}
	if len(order.Warnings) != 0 {
		t.Fatalf("warnings=%v", order.Warnings)
	}
}

func TestValidateTotalsMismatchIsCritical(t *testing.T) {
	order := internal.Order{
		DocumentTotalWithVat: util.FloatPtr(50),
		LineItems: []internal.LineItem{
			{Quantity: 10, FinalNetPrice: 10},
		},
	}
	outcome := ValidateOrder(&order, 17, 5.0, 0.1)

	if outcome.TotalsValid || !outcome.Critical() {
		t.Fatalf("outcome=%+v", outcome)
	}
	if len(order.Warnings) != 1 || !strings.Contains(order.Warnings[0], "total mismatch") {
		t.Fatalf("warnings=%v", order.Warnings)
	}
	// The closest reconstruction is the bare net total.
	if !strings.Contains(order.Warnings[0], "100.00") {
		t.Fatalf("warning should carry closest candidate: %s", order.Warnings[0])
	}
}

func TestValidateTotalsTriesDiscountOrderings(t *testing.T) {
	// (net - discount) * vatFactor: 90 * 1.18 = 106.2
	order := internal.Order{
		VatRate:                    util.FloatPtr(18),
		TotalInvoiceDiscountAmount: 10,
		DocumentTotalWithVat:       util.FloatPtr(106.2),
		LineItems: []internal.LineItem{
			{Quantity: 4, FinalNetPrice: 25},
		},
	}
	outcome := ValidateOrder(&order, 18, 1.0, 0.1)
	if !outcome.TotalsValid {
		t.Fatalf("warnings=%v", order.Warnings)
	}
}

func TestValidateTotalsAcceptsNetOnlyTotal(t *testing.T) {
	// Some documents print the net sum in the gross field.
	order := internal.Order{
		DocumentTotalWithVat: util.FloatPtr(100),
		LineItems: []internal.LineItem{
			{Quantity: 10, FinalNetPrice: 10},
		},
	}
	outcome := ValidateOrder(&order, 18, 2.0, 0.1)
	if !outcome.TotalsValid {
		t.Fatalf("warnings=%v", order.Warnings)
	}
}

func TestValidateQuantityMismatchIsNotCritical(t *testing.T) {
	order := internal.Order{
		DocumentTotalQuantity: util.FloatPtr(5),
		LineItems: []internal.LineItem{
			{Quantity: 4, FinalNetPrice: 10},
		},
	}
	outcome := ValidateOrder(&order, 18, 5.0, 0.1)

	if outcome.QuantitiesValid {
		t.Fatal("quantities should not validate")
	}
	if outcome.Critical() {
		t.Fatal("quantity drift must not trigger a retry")
	}
	if len(order.Warnings) != 1 || !strings.Contains(order.Warnings[0], "quantity mismatch") {
		t.Fatalf("warnings=%v", order.Warnings)
	}
}

func TestValidateSkipsAbsentDeclaredTotals(t *testing.T) {
	order := internal.Order{
		LineItems: []internal.LineItem{{Quantity: 1, FinalNetPrice: 9}},
	}
	outcome := ValidateOrder(&order, 18, 5.0, 0.1)
	if !outcome.TotalsValid || !outcome.QuantitiesValid {
		t.Fatalf("outcome=%+v", outcome)
	}
}

func TestValidateTrustsReportedMathVerdict(t *testing.T) {
	// The declared total is nowhere near the lines, but a reported valid
	// self-check wins over the local reconstruction.
	order := internal.Order{
		DocumentTotalWithVat: util.FloatPtr(500),
		MathCheck:            internal.SelfCheck{Reported: true, Valid: true, Reasoning: "totals re-verified"},
		LineItems: []internal.LineItem{
			{Quantity: 1, FinalNetPrice: 10},
		},
	}
	outcome := ValidateOrder(&order, 18, 5.0, 0.1)

	if !outcome.TotalsValid || outcome.Critical() {
		t.Fatalf("outcome=%+v", outcome)
	}
	if len(order.Warnings) != 0 {
		t.Fatalf("warnings=%v", order.Warnings)
	}
}

func TestValidateReportedInvalidMathIsCritical(t *testing.T) {
	// The local reconstruction would pass, but the extraction says its
	// own math failed.
	order := internal.Order{
		VatRate:              util.FloatPtr(18),
		DocumentTotalWithVat: util.FloatPtr(118),
		MathCheck:            internal.SelfCheck{Reported: true, Valid: false, Reasoning: "line 2 price unreadable"},
		LineItems: []internal.LineItem{
			{Quantity: 1, FinalNetPrice: 100},
		},
	}
	outcome := ValidateOrder(&order, 18, 5.0, 0.1)

	if outcome.TotalsValid || !outcome.Critical() {
		t.Fatalf("outcome=%+v", outcome)
	}
	if len(order.Warnings) == 0 || !strings.Contains(order.Warnings[0], "reported a total mismatch") {
		t.Fatalf("warnings=%v", order.Warnings)
	}
}

func TestValidateTrustsReportedQtyVerdict(t *testing.T) {
	order := internal.Order{
		DocumentTotalQuantity: util.FloatPtr(50),
		QtyCheck:              internal.SelfCheck{Reported: true, Valid: true},
		LineItems: []internal.LineItem{
			{Quantity: 4, FinalNetPrice: 10},
		},
	}
	outcome := ValidateOrder(&order, 18, 5.0, 0.1)

	if !outcome.QuantitiesValid {
		t.Fatalf("outcome=%+v", outcome)
	}
	if len(order.Warnings) != 0 {
		t.Fatalf("warnings=%v", order.Warnings)
	}
}

func TestValidateSurfacesSelfCheckReasoning(t *testing.T) {
	order := internal.Order{
		DocumentTotalWithVat: util.FloatPtr(500),
		MathCheck:            internal.SelfCheck{Reported: true, Valid: false, Reasoning: "line 3 price looks misread"},
		LineItems: []internal.LineItem{
			{Quantity: 1, FinalNetPrice: 10},
		},
	}
	ValidateOrder(&order, 18, 5.0, 0.1)

	found := false
	for _, w := range order.Warnings {
		if strings.Contains(w, "line 3 price looks misread") {
			found = true
		}
	}
	if !found {
		t.Fatalf("self-check reasoning missing: %v", order.Warnings)
	}
}
