package internal

// UnknownSupplier is the sentinel code returned when no directory entry matches.
const UnknownSupplier = "UNKNOWN"

type VatStatus string

const (
	VatIncluded VatStatus = "INCLUDED"
	VatExcluded VatStatus = "EXCLUDED"
)

// LineItem is one invoiced product line. Barcode is normalized to digits
// only; quantity and prices default to zero when the oracle omits them.
type LineItem struct {
	Barcode            string    `json:"barcode,omitempty"`
	Description        string    `json:"description"`
	Quantity           float64   `json:"quantity"`
	RawUnitPrice       float64   `json:"raw_unit_price"`
	VatStatus          VatStatus `json:"vat_status"`
	DiscountPercentage float64   `json:"discount_percentage"`
	PaidQuantity       *float64  `json:"paid_quantity,omitempty"`
	BonusQuantity      *float64  `json:"bonus_quantity,omitempty"`
	FinalNetPrice      float64   `json:"final_net_price"`

	// NetPriceReported marks a price the extraction computed itself.
	// Such lines keep the reported value instead of the local formula.
	NetPriceReported bool `json:"-"`
}

// SelfCheck is an oracle-reported verification flag. Reported=false means
// the oracle did not perform the check and the caller must run its own.
type SelfCheck struct {
	Reported  bool
	Valid     bool
	Reasoning string
}

// Usage is token accounting for one oracle call. Summed across attempts,
// never discarded even for failed ones.
type Usage struct {
	Model         string
	PromptTokens  int64
	OutputTokens  int64
	TotalTokens   int64
	EstimatedCost float64
}

func (u Usage) Add(other Usage) Usage {
	model := u.Model
	if other.Model != "" {
		model = other.Model
	}
	return Usage{
		Model:         model,
		PromptTokens:  u.PromptTokens + other.PromptTokens,
		OutputTokens:  u.OutputTokens + other.OutputTokens,
		TotalTokens:   u.TotalTokens + other.TotalTokens,
		EstimatedCost: u.EstimatedCost + other.EstimatedCost,
	}
}

// Order is one invoice/purchase document. A single file may yield several
// orders. Mutated in place by post-processing and validation, then treated
// as immutable once the orchestrator returns it.
type Order struct {
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	LineItems     []LineItem `json:"line_items"`

	GlobalDiscountPercentage   float64  `json:"global_discount_percentage"`
	TotalInvoiceDiscountAmount float64  `json:"total_invoice_discount_amount"`
	DocumentTotalWithVat       *float64 `json:"document_total_with_vat,omitempty"`
	DocumentTotalWithoutVat    *float64 `json:"document_total_without_vat,omitempty"`
	DocumentTotalQuantity      *float64 `json:"document_total_quantity,omitempty"`
	VatRate                    *float64 `json:"vat_rate,omitempty"`

	SupplierCode string `json:"supplier_code,omitempty"`
	SupplierName string `json:"supplier_name,omitempty"`

	// Raw identification signals seen in the document. Used for fallback
	// matching, never authoritative.
	SupplierGlobalID string `json:"supplier_global_id,omitempty"`
	SupplierEmail    string `json:"supplier_email,omitempty"`
	SupplierPhone    string `json:"supplier_phone,omitempty"`

	Warnings []string `json:"warnings"`

	MathCheck SelfCheck `json:"-"`
	QtyCheck  SelfCheck `json:"-"`

	ProcessingCost float64 `json:"processing_cost"`
	Usage          Usage   `json:"-"`
}

// SupplierRecord is a known trading partner. Code is the primary key.
// GlobalID is write-once; AdditionalEmails is append-only.
type SupplierRecord struct {
	Code                string
	Name                string
	GlobalID            string
	Email               string
	AdditionalEmails    []string
	Phone               string
	SpecialInstructions string
}

// MessageMeta is the inbound message context handed to supplier detection.
type MessageMeta struct {
	Sender  string
	Subject string
	Body    string
}

// DetectionMethod records how the supplier was identified.
type DetectionMethod string

const (
	DetectNone     DetectionMethod = "none"
	DetectMetadata DetectionMethod = "metadata"
	DetectContent  DetectionMethod = "content_regex"
	DetectOracle   DetectionMethod = "oracle"
	DetectFallback DetectionMethod = "extraction_fallback"
)

// DetectionResult is the outcome of supplier identification.
type DetectionResult struct {
	SupplierCode string
	Confidence   float64
	Method       DetectionMethod
	Reasoning    string
	SeenEmail    string
	SeenGlobalID string
}

// Document is file bytes plus a declared media type, the unit of work the
// engine consumes once ingestion has fetched it.
type Document struct {
	Name      string
	MediaType string
	Content   []byte
}

// MessageRow mirrors one stored inbound message.
type MessageRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

// FetchedMailMessage is one raw message pulled by a mail connector.
type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
