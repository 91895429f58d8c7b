package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ImportReport summarizes one CSV import run.
type ImportReport struct {
	Imported int
	Skipped  int
}

// ImportProxiesCSV bulk-loads proxies from a headered CSV. Recognized
// columns: host, port, username, password, protocol. Rows matching an
// existing (host, port, username) endpoint are counted as skipped.
func (s *Store) ImportProxiesCSV(ctx context.Context, r io.Reader) (ImportReport, error) {
	var report ImportReport
	err := forEachRecord(r, func(line int, rec map[string]string) error {
		host := rec["host"]
		if host == "" {
			return fmt.Errorf("line %d: missing host", line)
		}
		port, err := strconv.Atoi(rec["port"])
		if err != nil {
			return fmt.Errorf("line %d: bad port %q", line, rec["port"])
		}
		protocol := rec["protocol"]
		if protocol == "" {
			protocol = "http"
		}
		res, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO proxies (host, port, username, password, protocol)
			VALUES (?, ?, ?, ?, ?)`, host, port, rec["username"], rec["password"], protocol)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			report.Imported++
		} else {
			report.Skipped++
		}
		return nil
	})
	return report, err
}

// ImportAccountsCSV bulk-loads linked accounts from a headered CSV.
// Recognized columns: address (or email), secret (or password), provider.
// Duplicate addresses are counted as skipped.
func (s *Store) ImportAccountsCSV(ctx context.Context, r io.Reader) (ImportReport, error) {
	var report ImportReport
	err := forEachRecord(r, func(line int, rec map[string]string) error {
		address := rec["address"]
		if address == "" {
			address = rec["email"]
		}
		if address == "" {
			return fmt.Errorf("line %d: missing address", line)
		}
		secret := rec["secret"]
		if secret == "" {
			secret = rec["password"]
		}

		_, err := s.CreateAccount(ctx, Account{Address: address, Secret: secret, Provider: rec["provider"]})
		if errors.Is(err, ErrDuplicate) {
			report.Skipped++
			return nil
		}
		if err != nil {
			return err
		}
		report.Imported++
		return nil
	})
	return report, err
}

// forEachRecord reads a headered CSV and hands each row to fn as a
// lowercase-header-keyed map.
func forEachRecord(r io.Reader, fn func(line int, rec map[string]string) error) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = strings.TrimSpace(row[i])
			}
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}
