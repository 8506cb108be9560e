package oracle

import (
	"strings"
	"testing"

	"github.com/Aaron-Tawil/super-order-automation/internal"
)

func TestExtractionPromptPerTrial(t *testing.T) {
	meta := internal.MessageMeta{Sender: "orders@acme.example", Subject: "Invoice 9"}

	first := extractionPrompt(1, meta, "", "")
	if strings.Contains(first, "math_check") {
		t.Fatal("trial 1 must not request self-checks")
	}
	if strings.Contains(first, "final_net_price") {
		t.Fatal("trial 1 must not request computed prices")
	}

	second := extractionPrompt(2, meta, "", "total mismatch: declared 500, computed 118")
	if !strings.Contains(second, "math_check") || !strings.Contains(second, "qty_check") {
		t.Fatal("trial 2 must request self-checks")
	}
	if !strings.Contains(second, "final_net_price") {
		t.Fatal("trial 2 must request computed prices")
	}
	if !strings.Contains(second, "total mismatch: declared 500") {
		t.Fatal("retry prompt must carry validation feedback")
	}
}

func TestExtractionPromptEmbedsInstructions(t *testing.T) {
	prompt := extractionPrompt(1, internal.MessageMeta{}, "prices are always net", "")
	if !strings.Contains(prompt, "prices are always net") {
		t.Fatal("instructions missing from prompt")
	}
}

func TestRedactMeta(t *testing.T) {
	meta := internal.MessageMeta{
		Sender: "buyer@store.example",
		Body:   "Reply to buyer@store.example or call us.",
	}
	got := redactMeta(meta, []string{"buyer@store.example"})

	if strings.Contains(got.Sender, "buyer@store.example") || strings.Contains(got.Body, "buyer@store.example") {
		t.Fatalf("address not redacted: %+v", got)
	}
	if !strings.Contains(got.Body, "[redacted]") {
		t.Fatalf("body=%q", got.Body)
	}
}

func TestDetectionPromptEmbedsDirectory(t *testing.T) {
	prompt := detectionPrompt(internal.MessageMeta{Subject: "hi"}, "code,name\nS001,Acme\n")
	if !strings.Contains(prompt, "S001,Acme") {
		t.Fatal("directory snapshot missing")
	}
	if !strings.Contains(prompt, "UNKNOWN") {
		t.Fatal("prompt must name the unknown sentinel")
	}
}
