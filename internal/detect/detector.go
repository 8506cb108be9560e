package detect

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/directory"
	"github.com/Aaron-Tawil/super-order-automation/internal/util"
)

// maxSpreadsheetRows bounds how much of a spreadsheet is scanned for
// identifiers. Supplier details sit in the header region.
const maxSpreadsheetRows = 20

// reGlobalID finds 9-digit business ids that are not part of a longer
// digit run (phone numbers, barcodes).
var (
	reGlobalID = regexp.MustCompile(`(?:^|[^\d])(\d{9})(?:[^\d]|$)`)
	reEmail    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// Detector identifies the sending supplier without calling the oracle:
// first from the sender address, then from identifiers found in the
// subject and body, then in a bounded slice of each document. Every
// identifier hit is authoritative (confidence 1.0).
type Detector struct {
	matcher          *directory.Matcher
	blacklistIDs     map[string]struct{}
	blacklistEmails  map[string]struct{}
	blacklistDomains map[string]struct{}
	logger           *slog.Logger
}

// NewDetector builds the detector. Blacklist email entries starting with
// "@" (or carrying no "@" at all) blacklist the whole domain.
func NewDetector(matcher *directory.Matcher, blacklistIDs, blacklistEmails []string, logger *slog.Logger) *Detector {
	ids := make(map[string]struct{}, len(blacklistIDs))
	for _, id := range blacklistIDs {
		ids[util.NormalizeDigits(id)] = struct{}{}
	}
	emails := make(map[string]struct{}, len(blacklistEmails))
	domains := make(map[string]struct{})
	for _, e := range blacklistEmails {
		e = util.NormalizeEmail(e)
		switch {
		case e == "":
		case strings.HasPrefix(e, "@"):
			domains[strings.TrimPrefix(e, "@")] = struct{}{}
		case strings.Contains(e, "@"):
			emails[e] = struct{}{}
		default:
			domains[e] = struct{}{}
		}
	}
	return &Detector{matcher: matcher, blacklistIDs: ids, blacklistEmails: emails, blacklistDomains: domains, logger: logger}
}

// Detect runs the local cascade: sender address, then message text, then
// bounded document text.
func (d *Detector) Detect(meta internal.MessageMeta, docs []internal.Document) (internal.DetectionResult, error) {
	sender := util.NormalizeEmail(extractAddress(meta.Sender))
	if sender != "" && !d.emailBlacklisted(sender) {
		result, err := d.matcher.Match(directory.MatchSignals{Email: sender})
		if err != nil {
			return internal.DetectionResult{}, err
		}
		if result.SupplierCode != internal.UnknownSupplier {
			result.Confidence = 1.0
			result.Method = internal.DetectMetadata
			result.Reasoning = "sender address matched directory"
			result.SeenEmail = sender
			return result, nil
		}
	}

	if result, ok, err := d.matchText(meta.Subject + "\n" + meta.Body); err != nil {
		return internal.DetectionResult{}, err
	} else if ok {
		return result, nil
	}

	for _, doc := range docs {
		text := boundedText(doc)
		if text == "" {
			continue
		}
		if result, ok, err := d.matchText(text); err != nil {
			return internal.DetectionResult{}, err
		} else if ok {
			return result, nil
		}
	}

	return internal.DetectionResult{
		SupplierCode: internal.UnknownSupplier,
		Method:       internal.DetectNone,
		Reasoning:    "no local signal matched",
		SeenEmail:    sender,
	}, nil
}

// matchText matches blacklist-filtered identifiers found in text against
// the directory, business ids first.
func (d *Detector) matchText(text string) (internal.DetectionResult, bool, error) {
	ids, emails := d.candidates(text)
	for _, id := range ids {
		result, err := d.matcher.Match(directory.MatchSignals{GlobalID: id})
		if err != nil {
			return internal.DetectionResult{}, false, err
		}
		if result.SupplierCode != internal.UnknownSupplier {
			result.Confidence = 1.0
			result.Method = internal.DetectContent
			result.Reasoning = "business id found in content"
			result.SeenGlobalID = id
			return result, true, nil
		}
	}
	for _, email := range emails {
		result, err := d.matcher.Match(directory.MatchSignals{Email: email})
		if err != nil {
			return internal.DetectionResult{}, false, err
		}
		if result.SupplierCode != internal.UnknownSupplier {
			result.Confidence = 1.0
			result.Method = internal.DetectContent
			result.Reasoning = "contact address found in content"
			result.SeenEmail = email
			return result, true, nil
		}
	}
	return internal.DetectionResult{}, false, nil
}

// candidates pulls blacklist-filtered identifiers out of text.
func (d *Detector) candidates(text string) (ids, emails []string) {
	seenID := map[string]struct{}{}
	for _, m := range reGlobalID.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if _, skip := d.blacklistIDs[id]; skip {
			continue
		}
		if _, dup := seenID[id]; dup {
			continue
		}
		seenID[id] = struct{}{}
		ids = append(ids, id)
	}

	seenEmail := map[string]struct{}{}
	for _, m := range reEmail.FindAllString(text, -1) {
		email := util.NormalizeEmail(m)
		if d.emailBlacklisted(email) {
			continue
		}
		if _, dup := seenEmail[email]; dup {
			continue
		}
		seenEmail[email] = struct{}{}
		emails = append(emails, email)
	}
	return ids, emails
}

func (d *Detector) emailBlacklisted(email string) bool {
	if _, skip := d.blacklistEmails[email]; skip {
		return true
	}
	_, skip := d.blacklistDomains[util.EmailDomain(email)]
	return skip
}

// extractAddress unwraps "Name <addr@host>" forms.
func extractAddress(sender string) string {
	if open := strings.LastIndex(sender, "<"); open >= 0 {
		if end := strings.LastIndex(sender, ">"); end > open {
			return sender[open+1 : end]
		}
	}
	return strings.TrimSpace(sender)
}

// boundedText returns the slice of a document worth scanning for supplier
// identifiers: first PDF page, first rows of a spreadsheet, full text of
// small formats.
func boundedText(doc internal.Document) string {
	name := strings.ToLower(doc.Name)
	mediaType := strings.ToLower(doc.MediaType)

	switch {
	case strings.HasSuffix(name, ".pdf") || strings.Contains(mediaType, "pdf"):
		return firstPDFPage(doc.Content)
	case strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xls") || strings.Contains(mediaType, "spreadsheet"):
		return spreadsheetHead(doc.Content)
	case strings.HasSuffix(name, ".csv") || strings.Contains(mediaType, "csv"):
		return csvHead(string(doc.Content))
	case strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm") || strings.Contains(mediaType, "html"):
		return htmlText(string(doc.Content))
	case strings.Contains(mediaType, "text") || strings.HasSuffix(name, ".txt"):
		return string(doc.Content)
	default:
		return ""
	}
}

func firstPDFPage(content []byte) string {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil || r.NumPage() < 1 {
		return ""
	}
	p := r.Page(1)
	if p.V.IsNull() {
		return ""
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

func spreadsheetHead(content []byte) string {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for i, row := range rows {
			if i >= maxSpreadsheetRows {
				break
			}
			sb.WriteString(strings.Join(row, " "))
			sb.WriteString("\n")
		}
		break
	}
	return sb.String()
}

func csvHead(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if len(lines) > maxSpreadsheetRows {
		lines = lines[:maxSpreadsheetRows]
	}
	return strings.Join(lines, "\n")
}

func htmlText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	return doc.Text()
}
