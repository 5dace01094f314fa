package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/xuri/excelize/v2"
)

const resultsSheet = "Results"

// AdminService exposes the results ledger to the admin dashboard.
type AdminService struct {
	ledger Ledger
	source string
	log    zerolog.Logger
}

// NewAdminService creates a new AdminService. source names the ledger in
// informational messages (the CSV file name).
func NewAdminService(ledger Ledger, source string, log zerolog.Logger) *AdminService {
	return &AdminService{
		ledger: ledger,
		source: filepath.Base(source),
		log:    log.With().Str("component", "admin_service").Logger(),
	}
}

// ListResults returns every ledger row in append order.
func (s *AdminService) ListResults(ctx context.Context) ([]model.ResultRecord, error) {
	return s.ledger.ReadAll(ctx)
}

// AbsentMessage is shown when the ledger does not exist yet.
func (s *AdminService) AbsentMessage() string {
	return fmt.Sprintf("No records found in %s", s.source)
}

// ExportCSV writes the full ledger in its native tabular format.
func (s *AdminService) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := s.ledger.ReadAll(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(model.LedgerHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportXLSX writes the full ledger as a single-sheet spreadsheet.
func (s *AdminService) ExportXLSX(ctx context.Context, w io.Writer) error {
	records, err := s.ledger.ReadAll(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(model.LedgerHeader))
	for i, h := range model.LedgerHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{r.Timestamp, r.Name, r.Roll, r.Score}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	return f.Write(w)
}

// Clear irreversibly deletes the whole ledger.
func (s *AdminService) Clear(ctx context.Context) error {
	if err := s.ledger.Clear(ctx); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	s.log.Warn().Str("ledger", s.source).Msg("Results ledger cleared")
	return nil
}
