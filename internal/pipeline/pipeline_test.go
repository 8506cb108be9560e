package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/detect"
	"github.com/Aaron-Tawil/super-order-automation/internal/directory"
	"github.com/Aaron-Tawil/super-order-automation/internal/idempotency"
	"github.com/Aaron-Tawil/super-order-automation/internal/storage"
	"github.com/Aaron-Tawil/super-order-automation/internal/util"
)

type fakeDetector struct {
	result internal.DetectionResult
	calls  int
}

func (f *fakeDetector) DetectSupplier(_ context.Context, _ []internal.Document, _ internal.MessageMeta, _ string) (internal.DetectionResult, internal.Usage, error) {
	f.calls++
	return f.result, internal.Usage{}, nil
}

func newTestProcessor(t *testing.T, extractor OrdersExtractor, oracleDetect SupplierDetector) (*Processor, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.CreateSupplier(internal.SupplierRecord{
		Code:                "S001",
		Name:                "Acme Trading",
		Email:               "orders@acme.example",
		SpecialInstructions: "prices are always net",
	}); err != nil {
		t.Fatal(err)
	}

	logger := testLogger()
	cache := directory.NewCache(db, logger)
	matcher := directory.NewMatcher(cache, nil, 85)
	svc := directory.NewService(db, cache, logger)
	detector := detect.NewDetector(matcher, nil, nil, logger)
	guard := idempotency.NewGuard(db, time.Hour)
	orchestrator := NewOrchestrator(extractor, 18, 5.0, 0.1, 1, logger)

	return NewProcessor(guard, detector, matcher, svc, cache, oracleDetect, orchestrator, db, logger), db
}

func TestProcessMessageEndToEnd(t *testing.T) {
	order := goodOrder()
	order.SupplierGlobalID = "512345678"
	extractor := &fakeExtractor{responses: []fakeResponse{
		{orders: []internal.Order{order}, usage: internal.Usage{EstimatedCost: 0.5}},
	}}
	processor, db := newTestProcessor(t, extractor, &fakeDetector{})

	meta := internal.MessageMeta{Sender: "Acme <orders@acme.example>", Subject: "Invoice"}
	result, err := processor.ProcessMessage(context.Background(), "<m1@acme.example>", meta, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped {
		t.Fatal("first run skipped")
	}
	if result.Detection.SupplierCode != "S001" || result.Detection.Method != internal.DetectMetadata {
		t.Fatalf("detection=%+v", result.Detection)
	}

	if len(result.Orders) != 1 {
		t.Fatalf("orders=%d", len(result.Orders))
	}
	got := result.Orders[0]
	if got.SupplierCode != "S001" || got.SupplierName != "Acme Trading" {
		t.Fatalf("order supplier=%s/%s", got.SupplierCode, got.SupplierName)
	}
	if got.ProcessingCost != 0.5 {
		t.Fatalf("cost=%g", got.ProcessingCost)
	}

	// The business id printed on the document was learned.
	rec, err := db.GetSupplier("S001")
	if err != nil {
		t.Fatal(err)
	}
	if rec.GlobalID != "512345678" {
		t.Fatalf("global id=%q", rec.GlobalID)
	}
}

func TestProcessMessageIsIdempotent(t *testing.T) {
	extractor := &fakeExtractor{responses: []fakeResponse{
		{orders: []internal.Order{goodOrder()}},
		{orders: []internal.Order{goodOrder()}},
	}}
	processor, _ := newTestProcessor(t, extractor, &fakeDetector{})

	meta := internal.MessageMeta{Sender: "orders@acme.example"}
	if _, err := processor.ProcessMessage(context.Background(), "<m1@acme.example>", meta, nil); err != nil {
		t.Fatal(err)
	}

	result, err := processor.ProcessMessage(context.Background(), "<m1@acme.example>", meta, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped {
		t.Fatal("second run was not skipped")
	}
	if len(extractor.trials) != 1 {
		t.Fatalf("extractor called %d times", len(extractor.trials))
	}
}

func TestProcessMessageFallsBackToOracleDetection(t *testing.T) {
	extractor := &fakeExtractor{responses: []fakeResponse{
		{orders: []internal.Order{goodOrder()}},
	}}
	oracleDetect := &fakeDetector{result: internal.DetectionResult{
		SupplierCode: "S001",
		Confidence:   0.95,
		Reasoning:    "letterhead",
	}}
	processor, _ := newTestProcessor(t, extractor, oracleDetect)

	meta := internal.MessageMeta{Sender: "stranger@forwarder.example"}
	result, err := processor.ProcessMessage(context.Background(), "<m2@acme.example>", meta, nil)
	if err != nil {
		t.Fatal(err)
	}
	if oracleDetect.calls != 1 {
		t.Fatalf("oracle calls=%d", oracleDetect.calls)
	}
	if result.Detection.SupplierCode != "S001" {
		t.Fatalf("detection=%+v", result.Detection)
	}
	if result.Orders[0].SupplierCode != "S001" {
		t.Fatalf("order supplier=%s", result.Orders[0].SupplierCode)
	}
}

func TestProcessMessageRejectsUnknownOracleCode(t *testing.T) {
	order := goodOrder()
	order.SupplierName = "Acme Trading"
	extractor := &fakeExtractor{responses: []fakeResponse{
		{orders: []internal.Order{order}},
	}}
	oracleDetect := &fakeDetector{result: internal.DetectionResult{
		SupplierCode: "S999",
		Confidence:   0.9,
	}}
	processor, _ := newTestProcessor(t, extractor, oracleDetect)

	meta := internal.MessageMeta{Sender: "stranger@forwarder.example"}
	result, err := processor.ProcessMessage(context.Background(), "<m3@acme.example>", meta, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Detection.SupplierCode != internal.UnknownSupplier {
		t.Fatalf("detection=%+v", result.Detection)
	}

	// The order still resolves through its own extracted name.
	if result.Orders[0].SupplierCode != "S001" {
		t.Fatalf("order supplier=%s", result.Orders[0].SupplierCode)
	}
}

func TestProcessMessageWarnsWhenUnidentified(t *testing.T) {
	extractor := &fakeExtractor{responses: []fakeResponse{
		{orders: []internal.Order{{
			DocumentTotalWithVat: util.FloatPtr(100),
			LineItems:            []internal.LineItem{{Description: "x", Quantity: 10, RawUnitPrice: 10, VatStatus: internal.VatExcluded}},
		}}},
	}}
	processor, _ := newTestProcessor(t, extractor, &fakeDetector{result: internal.DetectionResult{SupplierCode: internal.UnknownSupplier}})

	result, err := processor.ProcessMessage(context.Background(), "<m4@x.example>", internal.MessageMeta{Sender: "nobody@nowhere.example"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := result.Orders[0]
	if got.SupplierCode != internal.UnknownSupplier {
		t.Fatalf("supplier=%s", got.SupplierCode)
	}
	found := false
	for _, w := range got.Warnings {
		if w == "supplier could not be identified" {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings=%v", got.Warnings)
	}
}
