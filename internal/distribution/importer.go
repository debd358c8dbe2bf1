package distribution

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/silq-qms/qmsgo/internal/audit"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ImportOptions controls a spreadsheet import
type ImportOptions struct {
	// Force inserts rows that look like soft duplicates
	Force bool
	Actor string
}

// ImportResult summarizes a spreadsheet import
type ImportResult struct {
	Created        int        `json:"created"`
	EntryIDs       []int64    `json:"entryIds"`
	Errors         []RowError `json:"errors"`
	SoftDuplicates []RowError `json:"softDuplicates"`
	Linked         int        `json:"linked"`
}

// ImportFile parses a CSV or XLSX upload and imports its rows. Parse errors
// are reported alongside row-level validation errors.
func (s *Service) ImportFile(ctx context.Context, tx *gorm.DB, filename string, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	rows, parseErrs := ParseFile(filename, r)
	res, err := s.ImportRows(ctx, tx, rows, opts)
	if err != nil {
		return nil, err
	}
	res.Errors = append(parseErrs, res.Errors...)
	sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Row < res.Errors[j].Row })
	return res, nil
}

// ImportRows runs each row through the same validation and customer matching
// as a manual entry, tagged csv_import. Soft duplicates are skipped unless
// opts.Force is set. Each row is isolated under a savepoint.
func (s *Service) ImportRows(ctx context.Context, tx *gorm.DB, rows []CsvRowInput, opts ImportOptions) (*ImportResult, error) {
	now := s.Clock()
	res := &ImportResult{EntryIDs: []int64{}, Errors: []RowError{}, SoftDuplicates: []RowError{}}

	for _, row := range rows {
		rec, errs := FromCSVRow(row, now)
		if len(errs) > 0 {
			res.Errors = append(res.Errors, RowError{Row: row.Row, Message: joinFieldErrors(errs)})
			continue
		}

		if rec.OrderNumber != "" && !opts.Force {
			dup, err := FindSoftDuplicate(ctx, tx, rec.OrderNumber, rec.ShipDate, rec.Dest.FacilityName)
			if err != nil {
				return nil, err
			}
			if dup != nil {
				res.SoftDuplicates = append(res.SoftDuplicates, RowError{
					Row:     row.Row,
					Message: fmt.Sprintf("duplicate of entry #%d", dup.ID),
				})
				continue
			}
		}

		var (
			entryID int64
			linked  bool
		)
		err := tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
			entry, _, ok, err := s.store(ctx, sp, rec, opts.Actor, now)
			if err != nil {
				return err
			}
			entryID, linked = entry.ID, ok
			return nil
		})
		if err != nil {
			s.log.WithFields(logrus.Fields{"row": row.Row, "error": err}).Warn("csv row failed")
			res.Errors = append(res.Errors, RowError{Row: row.Row, Message: err.Error()})
			continue
		}
		res.Created++
		res.EntryIDs = append(res.EntryIDs, entryID)
		if linked {
			res.Linked++
		}
	}

	if err := s.sink.Record(ctx, tx, audit.Event{
		Action:     audit.ActionDistributionImport,
		EntityType: "distribution_log_entry",
		Actor:      opts.Actor,
		Payload: map[string]interface{}{
			"rows":            len(rows),
			"created":         res.Created,
			"errors":          len(res.Errors),
			"soft_duplicates": len(res.SoftDuplicates),
			"force":           opts.Force,
			"entry_ids":       res.EntryIDs,
		},
	}); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"rows":            len(rows),
		"created":         res.Created,
		"errors":          len(res.Errors),
		"soft_duplicates": len(res.SoftDuplicates),
	}).Info("distribution import finished")
	return res, nil
}

func joinFieldErrors(errs []FieldError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}
