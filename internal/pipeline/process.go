package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aaron-Tawil/super-order-automation/internal"
)

// OrdersExtractor is the oracle surface the orchestrator drives.
type OrdersExtractor interface {
	ExtractOrders(ctx context.Context, trial int, docs []internal.Document, meta internal.MessageMeta, instructions, feedback string) ([]internal.Order, internal.Usage, error)
}

// Orchestrator runs extraction attempts until the orders validate or the
// retry budget runs out. Token usage is summed over every attempt,
// failed ones included.
type Orchestrator struct {
	extractor      OrdersExtractor
	defaultVatRate float64
	moneyTolerance float64
	qtyTolerance   float64
	maxRetries     int
	logger         *slog.Logger
}

func NewOrchestrator(extractor OrdersExtractor, defaultVatRate, moneyTolerance, qtyTolerance float64, maxRetries int, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		extractor:      extractor,
		defaultVatRate: defaultVatRate,
		moneyTolerance: moneyTolerance,
		qtyTolerance:   qtyTolerance,
		maxRetries:     maxRetries,
		logger:         logger,
	}
}

// Run extracts, post-processes and validates. Attempt n+1 escalates the
// trial number and carries the previous attempt's failures as feedback.
// When every attempt fails validation the last result is returned with
// its warnings; a quantity-only mismatch never triggers a retry.
func (o *Orchestrator) Run(ctx context.Context, docs []internal.Document, meta internal.MessageMeta, instructions string) ([]internal.Order, internal.Usage, error) {
	var total internal.Usage
	var lastOrders []internal.Order
	var lastErr error
	feedback := ""

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		trial := attempt + 1
		orders, usage, err := o.extractor.ExtractOrders(ctx, trial, docs, meta, instructions, feedback)
		total = total.Add(usage)
		if err != nil {
			lastErr = err
			o.logger.Warn("extraction attempt failed", "trial", trial, "error", err)
			feedback = "The previous attempt did not produce parseable output."
			continue
		}

		critical := false
		var failures []string
		for i := range orders {
			ApplyPricing(&orders[i], o.defaultVatRate)
			AveragePromotions(&orders[i])
			outcome := ValidateOrder(&orders[i], o.defaultVatRate, o.moneyTolerance, o.qtyTolerance)
			if outcome.Critical() {
				critical = true
				failures = append(failures, orderFailure(orders[i]))
			}
		}

		lastOrders = orders
		lastErr = nil

		if !critical {
			o.distributeCost(orders, total)
			return orders, total, nil
		}
		if attempt < o.maxRetries {
			o.logger.Info("totals failed validation, escalating", "trial", trial, "orders", len(orders))
			feedback = strings.Join(failures, "\n")
		}
	}

	if lastOrders == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("extraction produced no orders")
		}
		return nil, total, lastErr
	}

	o.distributeCost(lastOrders, total)
	return lastOrders, total, nil
}

// distributeCost pro-rates the run's cost evenly over its orders.
func (o *Orchestrator) distributeCost(orders []internal.Order, usage internal.Usage) {
	if len(orders) == 0 {
		return
	}
	share := usage.EstimatedCost / float64(len(orders))
	for i := range orders {
		orders[i].ProcessingCost = share
		orders[i].Usage = usage
	}
}

func orderFailure(order internal.Order) string {
	label := order.InvoiceNumber
	if label == "" {
		label = "order"
	}
	return fmt.Sprintf("%s: %s", label, strings.Join(order.Warnings, "; "))
}
