package pipeline

import (
	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/util"
)

// Some suppliers print a 15.25% global discount on prices that already
// exclude VAT even when the lines say otherwise. Documents in that band
// skip VAT removal.
const (
	vatSkipDiscountLow  = 15.1
	vatSkipDiscountHigh = 15.5
)

// ComputeNetPrice derives the final per-unit net price from the printed
// one: line discount, then global discount, then VAT removal when the
// printed price includes it.
func ComputeNetPrice(rawPrice, lineDiscount, globalDiscount float64, status internal.VatStatus, vatRate float64) float64 {
	net := rawPrice * (1 - lineDiscount/100) * (1 - globalDiscount/100)

	skipVat := globalDiscount >= vatSkipDiscountLow && globalDiscount <= vatSkipDiscountHigh
	if status == internal.VatIncluded && !skipVat {
		net = net / (1 + vatRate/100)
	}
	return util.Round4(net)
}

// ApplyPricing fills FinalNetPrice on every line the extraction did not
// price itself. Self-verified extractions report their own net prices and
// those are kept as-is.
func ApplyPricing(order *internal.Order, defaultVatRate float64) {
	vatRate := defaultVatRate
	if order.VatRate != nil {
		vatRate = *order.VatRate
	}

	for i := range order.LineItems {
		item := &order.LineItems[i]
		if item.NetPriceReported {
			continue
		}
		item.FinalNetPrice = ComputeNetPrice(
			item.RawUnitPrice,
			item.DiscountPercentage,
			order.GlobalDiscountPercentage,
			item.VatStatus,
			vatRate,
		)
	}
}

// AveragePromotions folds bonus lines into one effective unit price.
// Lines sharing a product key get the quantity-weighted average of their
// net prices; zero-quantity lines are dropped afterwards. Idempotent:
// re-averaging identical prices changes nothing.
func AveragePromotions(order *internal.Order) {
	type group struct {
		totalQty   float64
		totalValue float64
	}

	groups := map[string]*group{}
	for _, item := range order.LineItems {
		key := promotionKey(item)
		g := groups[key]
		if g == nil {
			g = &group{}
			groups[key] = g
		}
		g.totalQty += item.Quantity
		g.totalValue += item.Quantity * item.FinalNetPrice
	}

	kept := make([]internal.LineItem, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		g := groups[promotionKey(item)]
		if g.totalQty > 0 {
			item.FinalNetPrice = util.Round4(g.totalValue / g.totalQty)
		}
		if item.Quantity == 0 {
			continue
		}
		kept = append(kept, item)
	}
	order.LineItems = kept
}

func promotionKey(item internal.LineItem) string {
	if item.Barcode != "" {
		return item.Barcode
	}
	return "NO_BARCODE_" + item.Description
}
