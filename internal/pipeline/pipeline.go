package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/detect"
	"github.com/Aaron-Tawil/super-order-automation/internal/directory"
	"github.com/Aaron-Tawil/super-order-automation/internal/idempotency"
)

// SupplierDetector is the oracle surface used when local detection
// comes up empty.
type SupplierDetector interface {
	DetectSupplier(ctx context.Context, docs []internal.Document, meta internal.MessageMeta, suppliersCSV string) (internal.DetectionResult, internal.Usage, error)
}

// RunRecorder persists one processing run for cost and audit queries.
type RunRecorder interface {
	InsertRun(traceID, messageID, supplierCode string, orders, warnings int, costUsd float64, timings map[string]float64) error
}

// Result is the outcome of processing one message.
type Result struct {
	Skipped   bool
	Detection internal.DetectionResult
	Orders    []internal.Order
	Usage     internal.Usage
}

// Processor drives the full flow for one inbound message: idempotency
// claim, supplier identification, extraction with validation retries,
// directory learning and cost accounting.
type Processor struct {
	guard        *idempotency.Guard
	detector     *detect.Detector
	matcher      *directory.Matcher
	dirService   *directory.Service
	cache        *directory.Cache
	oracleDetect SupplierDetector
	orchestrator *Orchestrator
	runs         RunRecorder
	logger       *slog.Logger
}

func NewProcessor(
	guard *idempotency.Guard,
	detector *detect.Detector,
	matcher *directory.Matcher,
	dirService *directory.Service,
	cache *directory.Cache,
	oracleDetect SupplierDetector,
	orchestrator *Orchestrator,
	runs RunRecorder,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		guard:        guard,
		detector:     detector,
		matcher:      matcher,
		dirService:   dirService,
		cache:        cache,
		oracleDetect: oracleDetect,
		orchestrator: orchestrator,
		runs:         runs,
		logger:       logger,
	}
}

func (p *Processor) ProcessMessage(ctx context.Context, messageID string, meta internal.MessageMeta, docs []internal.Document) (Result, error) {
	claimed, err := p.guard.TryLock(messageID)
	if err != nil {
		return Result{}, fmt.Errorf("claim message: %w", err)
	}
	if !claimed {
		p.logger.Info("message already claimed, skipping", "message_id", messageID)
		return Result{Skipped: true}, nil
	}

	result, err := p.run(ctx, messageID, meta, docs)
	if completeErr := p.guard.Complete(messageID, err == nil); completeErr != nil {
		p.logger.Error("failed to record message status", "message_id", messageID, "error", completeErr)
	}
	return result, err
}

func (p *Processor) run(ctx context.Context, messageID string, meta internal.MessageMeta, docs []internal.Document) (Result, error) {
	started := time.Now()
	timings := map[string]float64{}

	detection, err := p.identifySupplier(ctx, meta, docs)
	if err != nil {
		return Result{}, err
	}
	timings["detect_ms"] = float64(time.Since(started).Milliseconds())
	p.logger.Info("supplier identified",
		"message_id", messageID,
		"supplier", detection.SupplierCode,
		"method", detection.Method,
		"confidence", detection.Confidence)

	p.learn(detection, meta)

	instructions := ""
	if detection.SupplierCode != internal.UnknownSupplier {
		if idx, err := p.cache.Snapshot(); err == nil {
			if rec, ok := idx.ByCode[detection.SupplierCode]; ok {
				instructions = rec.SpecialInstructions
			}
		}
	}

	extractStart := time.Now()
	orders, usage, err := p.orchestrator.Run(ctx, docs, meta, instructions)
	timings["extract_ms"] = float64(time.Since(extractStart).Milliseconds())
	if err != nil {
		return Result{Detection: detection, Usage: usage}, fmt.Errorf("extract orders: %w", err)
	}

	for i := range orders {
		p.assignSupplier(&orders[i], detection)
	}

	warnings := 0
	for _, o := range orders {
		warnings += len(o.Warnings)
	}
	timings["total_ms"] = float64(time.Since(started).Milliseconds())

	if err := p.runs.InsertRun(messageID, messageID, detection.SupplierCode, len(orders), warnings, usage.EstimatedCost, timings); err != nil {
		p.logger.Error("failed to record run", "message_id", messageID, "error", err)
	}

	return Result{Detection: detection, Orders: orders, Usage: usage}, nil
}

// identifySupplier tries the local detector first and falls back to the
// oracle. An oracle answer naming a code outside the directory is
// treated as UNKNOWN.
func (p *Processor) identifySupplier(ctx context.Context, meta internal.MessageMeta, docs []internal.Document) (internal.DetectionResult, error) {
	detection, err := p.detector.Detect(meta, docs)
	if err != nil {
		return internal.DetectionResult{}, fmt.Errorf("local detection: %w", err)
	}
	if detection.SupplierCode != internal.UnknownSupplier || p.oracleDetect == nil {
		return detection, nil
	}

	csvSnapshot, err := p.cache.CSVSnapshot()
	if err != nil {
		return internal.DetectionResult{}, err
	}

	oracleResult, _, err := p.oracleDetect.DetectSupplier(ctx, docs, meta, csvSnapshot)
	if err != nil {
		p.logger.Warn("oracle detection failed, continuing unidentified", "error", err)
		return detection, nil
	}

	if oracleResult.SupplierCode != internal.UnknownSupplier {
		idx, err := p.cache.Snapshot()
		if err != nil {
			return internal.DetectionResult{}, err
		}
		if _, known := idx.ByCode[oracleResult.SupplierCode]; !known {
			p.logger.Warn("oracle named an unknown supplier code", "code", oracleResult.SupplierCode)
			oracleResult.SupplierCode = internal.UnknownSupplier
			oracleResult.Confidence = 0
		}
	}
	if oracleResult.SeenEmail == "" {
		oracleResult.SeenEmail = detection.SeenEmail
	}
	return oracleResult, nil
}

// learn records new identifiers against a confidently matched supplier.
func (p *Processor) learn(detection internal.DetectionResult, meta internal.MessageMeta) {
	if detection.SupplierCode == internal.UnknownSupplier || detection.Confidence < 0.9 {
		return
	}

	if detection.Method != internal.DetectMetadata && detection.SeenEmail != "" {
		if err := p.dirService.LearnEmail(detection.SupplierCode, detection.SeenEmail); err != nil {
			p.logger.Warn("failed to learn email", "supplier", detection.SupplierCode, "error", err)
		}
	}
	if detection.SeenGlobalID != "" {
		if err := p.dirService.LearnGlobalID(detection.SupplierCode, detection.SeenGlobalID); err != nil {
			p.logger.Warn("failed to learn global id", "supplier", detection.SupplierCode, "error", err)
		}
	}
}

// assignSupplier stamps the order with the message-level identification,
// falling back to the order's own extracted signals.
func (p *Processor) assignSupplier(order *internal.Order, detection internal.DetectionResult) {
	code := detection.SupplierCode
	if code == internal.UnknownSupplier {
		fallback, err := p.matcher.Match(directory.MatchSignals{
			GlobalID: order.SupplierGlobalID,
			Phone:    order.SupplierPhone,
			Email:    order.SupplierEmail,
			Name:     order.SupplierName,
		})
		if err != nil {
			p.logger.Warn("fallback match failed", "error", err)
		} else {
			code = fallback.SupplierCode
		}
	}

	order.SupplierCode = code
	if code == internal.UnknownSupplier {
		order.Warnings = append(order.Warnings, "supplier could not be identified")
		return
	}

	if idx, err := p.cache.Snapshot(); err == nil {
		if rec, ok := idx.ByCode[code]; ok {
			order.SupplierName = rec.Name
		}
	}
	if order.SupplierGlobalID != "" {
		if err := p.dirService.LearnGlobalID(code, order.SupplierGlobalID); err != nil {
			p.logger.Warn("failed to learn global id", "supplier", code, "error", err)
		}
	}
}
