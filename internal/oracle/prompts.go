package oracle

import (
	"fmt"
	"strings"

	"github.com/Aaron-Tawil/super-order-automation/internal"
)

const extractionSchema = `Return ONLY a JSON array of order objects, no prose. Each order:
{
  "invoice_number": string or null,
  "currency": string or null,
  "supplier_name": string or null,
  "supplier_global_id": string or null (the 9-digit registered business id),
  "supplier_email": string or null,
  "supplier_phone": string or null,
  "global_discount_percentage": number (0 when absent),
  "total_invoice_discount_amount": number (0 when absent),
  "document_total_with_vat": number or null,
  "document_total_without_vat": number or null,
  "document_total_quantity": number or null,
  "vat_rate": number or null (percent as printed, e.g. 18),
  "line_items": [
    {
      "barcode": string or null (digits only),
      "description": string,
      "quantity": number,
      "raw_unit_price": number (the unit price exactly as printed),
      "vat_status": "INCLUDED" or "EXCLUDED" (whether that price contains VAT),
      "discount_percentage": number (line-level, 0 when absent),
      "paid_quantity": number or null,
      "bonus_quantity": number or null
    }
  ]
}
A single document may contain several orders; return one object per order.
Never invent values. Use null for anything the document does not state.`

const selfCheckSchema = `Additionally compute and verify your own output before returning it.
Add to every line item:
  "final_net_price": number (the per-unit net price after line and global discounts, with VAT removed when the printed price includes it).
Add to each order:
  "math_check": {"valid": boolean, "reasoning": string} after recomputing line totals against the document total,
  "qty_check": {"valid": boolean, "reasoning": string} after recounting quantities against the document total quantity.
Re-read the document if either check fails and correct the extraction first.`

// redactAddresses blanks out our own mailboxes so the model never treats
// the receiving side as the supplier.
func redactAddresses(text string, blacklist []string) string {
	for _, addr := range blacklist {
		if addr == "" {
			continue
		}
		text = strings.ReplaceAll(text, addr, "[redacted]")
	}
	return text
}

func redactMeta(meta internal.MessageMeta, blacklist []string) internal.MessageMeta {
	meta.Sender = redactAddresses(meta.Sender, blacklist)
	meta.Body = redactAddresses(meta.Body, blacklist)
	return meta
}

func extractionPrompt(trial int, meta internal.MessageMeta, instructions, feedback string) string {
	var sb strings.Builder
	sb.WriteString("You extract purchase order and invoice data from supplier documents.\n\n")
	sb.WriteString(extractionSchema)
	sb.WriteString("\n")
	if trial >= 2 {
		sb.WriteString("\n")
		sb.WriteString(selfCheckSchema)
		sb.WriteString("\n")
	}

	if strings.TrimSpace(instructions) != "" {
		sb.WriteString("\nSupplier-specific instructions, these override the general rules:\n")
		sb.WriteString(instructions)
		sb.WriteString("\n")
	}

	if strings.TrimSpace(feedback) != "" {
		sb.WriteString("\nA previous extraction of this document failed validation:\n")
		sb.WriteString(feedback)
		sb.WriteString("\nRe-extract carefully and fix these issues.\n")
	}

	if meta.Sender != "" || meta.Subject != "" {
		sb.WriteString(fmt.Sprintf("\nMessage context: sender=%q subject=%q\n", meta.Sender, meta.Subject))
	}
	if body := strings.TrimSpace(meta.Body); body != "" {
		sb.WriteString("\nMessage body:\n")
		sb.WriteString(body)
		sb.WriteString("\n")
	}

	return sb.String()
}

func detectionPrompt(meta internal.MessageMeta, suppliersCSV string) string {
	var sb strings.Builder
	sb.WriteString("Identify which known supplier sent the attached documents.\n\n")
	sb.WriteString("Known suppliers (CSV):\n")
	sb.WriteString(suppliersCSV)
	sb.WriteString("\nReturn ONLY a JSON object:\n")
	sb.WriteString(`{"supplier_code": string ("UNKNOWN" if none match), "confidence": number 0..1, "reasoning": string, "seen_email": string or null, "seen_global_id": string or null}`)
	sb.WriteString("\n")
	if meta.Sender != "" || meta.Subject != "" {
		sb.WriteString(fmt.Sprintf("\nMessage context: sender=%q subject=%q\n", meta.Sender, meta.Subject))
	}
	return sb.String()
}
