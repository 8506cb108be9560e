package idempotency

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Aaron-Tawil/super-order-automation/internal/storage"
)

func openStore(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTryLockClaimsExactlyOnce(t *testing.T) {
	guard := NewGuard(openStore(t), time.Hour)

	claimed, err := guard.TryLock("<msg-1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("first claim refused")
	}

	claimed, err = guard.TryLock("<msg-1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if claimed {
		t.Fatal("second claim succeeded")
	}

	// A different message is unaffected.
	claimed, err = guard.TryLock("<msg-2@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("unrelated message refused")
	}
}

func TestTryLockRacingClaimsYieldOneWinner(t *testing.T) {
	guard := NewGuard(openStore(t), time.Hour)

	const claimers = 8
	results := make(chan bool, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := guard.TryLock("<race-1@example.com>")
			if err != nil {
				t.Error(err)
			}
			results <- claimed
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for claimed := range results {
		if claimed {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("wins=%d want exactly 1", wins)
	}
}

func TestLockSurvivesFailure(t *testing.T) {
	guard := NewGuard(openStore(t), time.Hour)

	if _, err := guard.TryLock("<msg-1@example.com>"); err != nil {
		t.Fatal(err)
	}
	if err := guard.Complete("<msg-1@example.com>", false); err != nil {
		t.Fatal(err)
	}

	// A failed run does not release the claim; reprocessing is a manual call.
	claimed, err := guard.TryLock("<msg-1@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if claimed {
		t.Fatal("failed message was reclaimed")
	}
}
