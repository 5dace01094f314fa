package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stemsi/exstem-quiz/internal/model"
)

func newTestLedger(t *testing.T) (*CSVLedgerRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.csv")
	ledger, err := NewCSVLedgerRepository(path)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger, path
}

func record(i int) model.ResultRecord {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	return model.NewResultRecord(at, model.Candidate{Name: fmt.Sprintf("Candidate %d", i), Roll: fmt.Sprintf("R-%d", i)}, i%11, 10)
}

func TestCSVLedgerCreatesHeader(t *testing.T) {
	_, path := newTestLedger(t)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(raw); got != "Timestamp,Name,Roll,Score\n" {
		t.Errorf("file = %q", got)
	}
}

func TestCSVLedgerAppendAndRead(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	withComma := model.ResultRecord{Timestamp: "2024-03-01 09:00:00", Name: "Doe, Jane", Roll: "R-1", Score: "7/10"}
	if err := ledger.Append(ctx, withComma); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := ledger.Append(ctx, record(2)); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, err := ledger.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0] != withComma {
		t.Errorf("row 0 = %+v, want %+v", rows[0], withComma)
	}
	if rows[1] != record(2) {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestCSVLedgerConcurrentAppends(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := ledger.Append(ctx, record(i)); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	rows, err := ledger.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != n {
		t.Fatalf("rows = %d, want %d", len(rows), n)
	}
	seen := make(map[string]bool, n)
	for _, r := range rows {
		seen[r.Roll] = true
	}
	if len(seen) != n {
		t.Errorf("distinct rolls = %d, want %d", len(seen), n)
	}
}

func TestCSVLedgerClear(t *testing.T) {
	ledger, path := newTestLedger(t)
	ctx := context.Background()

	if err := ledger.Append(ctx, record(1)); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still present: %v", err)
	}
	if _, err := ledger.ReadAll(ctx); !errors.Is(err, ErrLedgerAbsent) {
		t.Fatalf("read after clear: %v, want ErrLedgerAbsent", err)
	}
	// Clearing an absent ledger is fine.
	if err := ledger.Clear(ctx); err != nil {
		t.Errorf("second clear: %v", err)
	}

	if err := ledger.Append(ctx, record(3)); err != nil {
		t.Fatalf("append after clear: %v", err)
	}
	rows, err := ledger.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || rows[0] != record(3) {
		t.Errorf("rows = %+v, want only the new row", rows)
	}
}

func TestCSVLedgerConcurrentRecreate(t *testing.T) {
	ledger, path := newTestLedger(t)
	ctx := context.Background()
	if err := ledger.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := ledger.Append(ctx, record(i)); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	rows, err := ledger.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != n {
		t.Errorf("rows = %d, want %d", len(rows), n)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	header := "Timestamp,Name,Roll,Score\n"
	if len(raw) < len(header) || string(raw[:len(header)]) != header {
		t.Errorf("file does not start with header: %q", raw)
	}
}
