// Package lotlog loads the manufacturing lot log used to correct and
// cross-check lots read from fulfillment notes.
package lotlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/silq-qms/qmsgo/internal/normalize"
	"github.com/xuri/excelize/v2"
)

// Table is the loaded lot log. Both maps are keyed by every variant of a lot
// (raw, normalized, unprefixed) so lookups succeed whatever form the notes used.
type Table struct {
	LotToSKU       map[string]string
	LotCorrections map[string]string
	// Rejected lists rows that were not loaded, in file order
	Rejected []RowError
}

// RowError is one lot-log row that could not be loaded. Row is the 1-based
// record number with the header as record 1; blank CSV lines are not counted.
type RowError struct {
	Row    int    `json:"row"`
	Lot    string `json:"lot"`
	Reason string `json:"reason"`
}

// Empty returns a table with no rows
func Empty() *Table {
	return &Table{LotToSKU: map[string]string{}, LotCorrections: map[string]string{}}
}

// Variants lists the lookup keys for a lot code
func Variants(lot string) []string {
	raw := strings.ToUpper(strings.TrimSpace(lot))
	if raw == "" {
		return nil
	}
	norm := normalize.Lot(raw)
	bare := strings.TrimPrefix(norm, normalize.LotPrefix)
	out := []string{raw}
	for _, v := range []string{norm, bare} {
		if v != "" && v != out[len(out)-1] && !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// Add records one lot-log row. correct may be empty; sku must map onto the device set.
func (t *Table) Add(rawLot, correct, sku string) error {
	canon, ok := normalize.SKU(sku)
	if !ok {
		return fmt.Errorf("lot %q: unrecognized SKU %q", rawLot, sku)
	}
	rawVariants := Variants(rawLot)
	if len(rawVariants) == 0 {
		return fmt.Errorf("empty lot code")
	}
	for _, v := range rawVariants {
		t.LotToSKU[v] = canon
	}
	if strings.TrimSpace(correct) == "" {
		return nil
	}
	fixed := normalize.Lot(correct)
	for _, v := range Variants(correct) {
		t.LotToSKU[v] = canon
	}
	if fixed != normalize.Lot(rawLot) {
		for _, v := range rawVariants {
			t.LotCorrections[v] = fixed
		}
	}
	return nil
}

// Correct returns the corrected, normalized form of lot
func (t *Table) Correct(lot string) string {
	for _, v := range Variants(lot) {
		if fixed, ok := t.LotCorrections[v]; ok {
			return fixed
		}
	}
	return normalize.Lot(lot)
}

// ExpectedSKU returns the SKU the lot log assigns to lot
func (t *Table) ExpectedSKU(lot string) (string, bool) {
	for _, v := range Variants(lot) {
		if sku, ok := t.LotToSKU[v]; ok {
			return sku, true
		}
	}
	return "", false
}

// LoadFile reads a lot log from a .csv or .xlsx file. An empty path yields an empty table.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Empty(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lot log: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return LoadXLSX(f)
	}
	return LoadCSV(f)
}

// LoadCSV reads a lot log exported as CSV
func LoadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read lot log: %w", err)
		}
		rows = append(rows, rec)
	}
	return fromRows(rows)
}

// LoadXLSX reads the first sheet of a lot log workbook
func LoadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open lot log workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Empty(), nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read lot log sheet: %w", err)
	}
	return fromRows(rows)
}

var (
	lotHeaders     = []string{"lot", "lotnumber", "rawlot", "lotcode", "lot#"}
	correctHeaders = []string{"correctlot", "correctedlot", "correctlotnumber", "correction"}
	skuHeaders     = []string{"sku", "product", "item", "partnumber"}
)

func fromRows(rows [][]string) (*Table, error) {
	t := Empty()
	if len(rows) == 0 {
		return t, nil
	}
	lotCol, correctCol, skuCol := -1, -1, -1
	for i, h := range rows[0] {
		tok := headerToken(h)
		switch {
		case lotCol < 0 && contains(lotHeaders, tok):
			lotCol = i
		case correctCol < 0 && contains(correctHeaders, tok):
			correctCol = i
		case skuCol < 0 && contains(skuHeaders, tok):
			skuCol = i
		}
	}
	if lotCol < 0 || skuCol < 0 {
		return nil, fmt.Errorf("lot log needs lot and sku columns, got %v", rows[0])
	}

	cell := func(rec []string, i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	for i, rec := range rows[1:] {
		lot := cell(rec, lotCol)
		if lot == "" {
			continue
		}
		if err := t.Add(lot, cell(rec, correctCol), cell(rec, skuCol)); err != nil {
			t.Rejected = append(t.Rejected, RowError{Row: i + 2, Lot: lot, Reason: err.Error()})
		}
	}
	return t, nil
}

func headerToken(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimPrefix(h, "\ufeff")) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '#' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
