package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// ErrLedgerAbsent means no ledger exists (never written, or cleared).
var ErrLedgerAbsent = errors.New("results ledger does not exist")

// CSVLedgerRepository is the results ledger as a UTF-8 CSV file with header
// Timestamp,Name,Roll,Score. Rows are appended with a single O_APPEND write
// each, so independent writers interleave whole rows without a shared lock.
type CSVLedgerRepository struct {
	path string
}

// NewCSVLedgerRepository opens the ledger at path, creating it with the header
// row if it does not exist yet.
func NewCSVLedgerRepository(path string) (*CSVLedgerRepository, error) {
	r := &CSVLedgerRepository{path: path}
	if err := r.ensure(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the ledger file location.
func (r *CSVLedgerRepository) Path() string {
	return r.path
}

// Append adds one row, recreating the header first if the ledger was cleared.
func (r *CSVLedgerRepository) Append(_ context.Context, rec model.ResultRecord) error {
	if err := r.ensure(); err != nil {
		return err
	}

	line, err := encodeRows(rec.Row())
	if err != nil {
		return err
	}

	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append ledger: %w", err)
	}
	return f.Close()
}

// ReadAll returns every data row in file order.
func (r *CSVLedgerRepository) ReadAll(_ context.Context) ([]model.ResultRecord, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrLedgerAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	records := []model.ResultRecord{}
	header := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		if header {
			header = false
			continue
		}
		for len(row) < len(model.LedgerHeader) {
			row = append(row, "")
		}
		records = append(records, model.ResultRecord{
			Timestamp: row[0],
			Name:      row[1],
			Roll:      row[2],
			Score:     row[3],
		})
	}
	return records, nil
}

// Clear deletes the ledger file. Reads report ErrLedgerAbsent until the next append.
func (r *CSVLedgerRepository) Clear(_ context.Context) error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove ledger: %w", err)
	}
	return nil
}

// ensure creates the ledger with its header if missing. The header is written
// to a temp file and hard-linked into place, so the file never becomes visible
// without a header even when several writers race to create it.
func (r *CSVLedgerRepository) ensure() error {
	if _, err := os.Stat(r.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat ledger: %w", err)
	}

	header, err := encodeRows(model.LedgerHeader)
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.csv")
	if err != nil {
		return fmt.Errorf("create ledger temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger header: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod ledger temp: %w", err)
	}

	if err := os.Link(tmpName, r.path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return r.createExclusive(header)
	}
	return nil
}

// createExclusive is the fallback for filesystems without hard links.
func (r *CSVLedgerRepository) createExclusive(header []byte) error {
	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	if _, err := f.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write ledger header: %w", err)
	}
	return f.Close()
}

func encodeRows(rows ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encode ledger row: %w", err)
	}
	return buf.Bytes(), nil
}
