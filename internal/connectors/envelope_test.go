package connectors

import (
	"strings"
	"testing"
)

const rawMessage = "From: Acme Orders <orders@acme.example>\r\n" +
	"To: purchasing@store.example\r\n" +
	"Subject: Invoice 4711\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"frontier\"\r\n" +
	"\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Attached is this week's invoice.\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/csv; name=\"invoice.csv\"\r\n" +
	"Content-Disposition: attachment; filename=\"invoice.csv\"\r\n" +
	"\r\n" +
	"barcode,description,qty,price\r\n" +
	"7290000000001,milk,10,5.90\r\n" +
	"--frontier--\r\n"

func TestOpenMessage(t *testing.T) {
	meta, docs, err := OpenMessage([]byte(rawMessage))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(meta.Sender, "orders@acme.example") {
		t.Fatalf("sender=%q", meta.Sender)
	}
	if meta.Subject != "Invoice 4711" {
		t.Fatalf("subject=%q", meta.Subject)
	}
	if !strings.Contains(meta.Body, "this week's invoice") {
		t.Fatalf("body=%q", meta.Body)
	}

	if len(docs) != 1 {
		t.Fatalf("docs=%d", len(docs))
	}
	doc := docs[0]
	if doc.Name != "invoice.csv" {
		t.Fatalf("name=%q", doc.Name)
	}
	if !strings.Contains(doc.MediaType, "csv") {
		t.Fatalf("media type=%q", doc.MediaType)
	}
	if !strings.Contains(string(doc.Content), "7290000000001") {
		t.Fatalf("content=%q", string(doc.Content))
	}
}
