package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/xuri/excelize/v2"
)

func newAdminFixture(t *testing.T) (*AdminService, *repository.CSVLedgerRepository) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.csv")
	ledger, err := repository.NewCSVLedgerRepository(path)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	return NewAdminService(ledger, path, logger.Nop()), ledger
}

func seedLedger(t *testing.T, ledger Ledger, n int) {
	t.Helper()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	for i := 0; i < n; i++ {
		rec := model.NewResultRecord(at.Add(time.Duration(i)*time.Minute),
			model.Candidate{Name: "Candidate", Roll: string(rune('A' + i))}, i, 10)
		if err := ledger.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestAdminExportCSV(t *testing.T) {
	svc, ledger := newAdminFixture(t)
	seedLedger(t, ledger, 3)

	var buf bytes.Buffer
	if err := svc.ExportCSV(context.Background(), &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != "Timestamp" || rows[3][3] != "2/10" {
		t.Errorf("unexpected export: %v", rows)
	}
}

func TestAdminExportXLSX(t *testing.T) {
	svc, ledger := newAdminFixture(t)
	seedLedger(t, ledger, 2)

	var buf bytes.Buffer
	if err := svc.ExportXLSX(context.Background(), &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(resultsSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][3] != "Score" || rows[2][2] != "B" {
		t.Errorf("unexpected sheet: %v", rows)
	}
}

func TestAdminClearThenAbsent(t *testing.T) {
	svc, ledger := newAdminFixture(t)
	seedLedger(t, ledger, 1)
	ctx := context.Background()

	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := svc.ListResults(ctx); !errors.Is(err, repository.ErrLedgerAbsent) {
		t.Fatalf("list after clear: %v, want ErrLedgerAbsent", err)
	}
	if err := svc.ExportCSV(ctx, &bytes.Buffer{}); !errors.Is(err, repository.ErrLedgerAbsent) {
		t.Errorf("export after clear: %v, want ErrLedgerAbsent", err)
	}
	if got := svc.AbsentMessage(); got != "No records found in results.csv" {
		t.Errorf("message = %q", got)
	}
}
