package directory

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSuppliers(t *testing.T, db *storage.DB, suppliers ...internal.SupplierRecord) {
	t.Helper()
	for _, s := range suppliers {
		if err := db.CreateSupplier(s); err != nil {
			t.Fatal(err)
		}
	}
}

func newMatcher(db *storage.DB) (*Cache, *Matcher) {
	cache := NewCache(db, testLogger())
	return cache, NewMatcher(cache, []string{"gmail.com"}, 85)
}

func TestMatchCascade(t *testing.T) {
	db := openStore(t)
	seedSuppliers(t, db,
		internal.SupplierRecord{Code: "S001", Name: "Acme Trading Ltd", GlobalID: "512345678", Email: "orders@acme.example", Phone: "03-555-1234"},
		internal.SupplierRecord{Code: "S002", Name: "Globex Distribution", Email: "sales@globex.example"},
	)
	_, m := newMatcher(db)

	cases := []struct {
		name    string
		signals MatchSignals
		want    string
	}{
		{"global id", MatchSignals{GlobalID: "512345678"}, "S001"},
		{"global id with punctuation", MatchSignals{GlobalID: "51-234-5678"}, "S001"},
		{"phone digits", MatchSignals{Phone: "+972-3-555-1234"}, "S001"},
		{"exact email", MatchSignals{Email: "Orders@ACME.example"}, "S001"},
		{"email domain", MatchSignals{Email: "warehouse@globex.example"}, "S002"},
		{"exact name", MatchSignals{Name: "  acme   trading ltd "}, "S001"},
		{"fuzzy name", MatchSignals{Name: "Globex Distributions"}, "S002"},
		{"no signal", MatchSignals{}, internal.UnknownSupplier},
		{"unseen everything", MatchSignals{GlobalID: "999999999", Email: "x@nowhere.example", Name: "Initech"}, internal.UnknownSupplier},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := m.Match(tc.signals)
			if err != nil {
				t.Fatal(err)
			}
			if result.SupplierCode != tc.want {
				t.Fatalf("got %s want %s (%s)", result.SupplierCode, tc.want, result.Reasoning)
			}
		})
	}
}

func TestMatchSkipsSharedFreeMailDomain(t *testing.T) {
	db := openStore(t)
	seedSuppliers(t, db,
		internal.SupplierRecord{Code: "S001", Name: "Acme", Email: "acme.orders@gmail.com"},
	)
	_, m := newMatcher(db)

	// The exact address still matches.
	result, err := m.Match(MatchSignals{Email: "acme.orders@gmail.com"})
	if err != nil {
		t.Fatal(err)
	}
	if result.SupplierCode != "S001" {
		t.Fatalf("exact address: got %s", result.SupplierCode)
	}

	// Another mailbox on the shared domain must not.
	result, err = m.Match(MatchSignals{Email: "someone.else@gmail.com"})
	if err != nil {
		t.Fatal(err)
	}
	if result.SupplierCode != internal.UnknownSupplier {
		t.Fatalf("shared domain: got %s", result.SupplierCode)
	}
}

func TestMatchRefusesAmbiguousTier(t *testing.T) {
	db := openStore(t)
	seedSuppliers(t, db,
		internal.SupplierRecord{Code: "S001", Name: "Acme North", Phone: "035551234", Email: "north@acme.example"},
		internal.SupplierRecord{Code: "S002", Name: "Acme South", Phone: "035551234", Email: "south@acme.example"},
	)
	_, m := newMatcher(db)

	// Shared phone: the tier is skipped, not guessed.
	result, err := m.Match(MatchSignals{Phone: "03-555-1234"})
	if err != nil {
		t.Fatal(err)
	}
	if result.SupplierCode != internal.UnknownSupplier {
		t.Fatalf("got %s", result.SupplierCode)
	}

	// A lower tier can still decide.
	result, err = m.Match(MatchSignals{Phone: "03-555-1234", Email: "south@acme.example"})
	if err != nil {
		t.Fatal(err)
	}
	if result.SupplierCode != "S002" {
		t.Fatalf("got %s", result.SupplierCode)
	}
}

func TestFuzzyNameRequiresSingleWinner(t *testing.T) {
	db := openStore(t)
	seedSuppliers(t, db,
		internal.SupplierRecord{Code: "S001", Name: "Fresh Produce Company"},
		internal.SupplierRecord{Code: "S002", Name: "Fresh Produce Compan"},
	)
	_, m := newMatcher(db)

	result, err := m.Match(MatchSignals{Name: "Fresh Produce Compani"})
	if err != nil {
		t.Fatal(err)
	}
	if result.SupplierCode != internal.UnknownSupplier {
		t.Fatalf("ambiguous fuzzy match must not win: got %s", result.SupplierCode)
	}
}
