package distribution

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RowError ties a message to a 1-based spreadsheet row (the header is row 1)
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// column -> accepted header spellings, compared after headerToken
var headerSynonyms = map[string][]string{
	"shipDate":     {"shipdate", "dateshipped", "shippeddate", "shipped", "date"},
	"orderNumber":  {"ordernumber", "order#", "orderno", "order", "ordernum", "sonumber", "salesorder", "po"},
	"facilityName": {"facilityname", "facility", "customer", "customername", "shipto", "account", "accountname"},
	"city":         {"city", "shiptocity"},
	"state":        {"state", "st", "shiptostate"},
	"zip":          {"zip", "zipcode", "postalcode", "postcode"},
	"sku":          {"sku", "item", "itemnumber", "product", "partnumber", "part#"},
	"lotNumber":    {"lot", "lotnumber", "lot#", "lotno", "batch"},
	"quantity":     {"quantity", "qty", "units", "qtyshipped"},
}

var requiredColumns = []string{"shipDate", "facilityName", "sku", "lotNumber", "quantity"}

func headerToken(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '#' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseFile picks the parser from the file extension: .xlsx goes through
// excelize, everything else is read as CSV.
func ParseFile(filename string, r io.Reader) ([]CsvRowInput, []RowError) {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return ParseXLSX(r)
	}
	return ParseCSV(r)
}

// ParseCSV reads a distribution spreadsheet exported as CSV
func ParseCSV(r io.Reader) ([]CsvRowInput, []RowError) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, []RowError{{Row: pe.Line, Message: pe.Err.Error()}}
			}
			return nil, []RowError{{Row: 0, Message: err.Error()}}
		}
		records = append(records, rec)
	}
	return rowsToInputs(records)
}

// ParseXLSX reads the first sheet of an Excel workbook
func ParseXLSX(r io.Reader) ([]CsvRowInput, []RowError) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, []RowError{{Row: 0, Message: fmt.Sprintf("open workbook: %v", err)}}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, []RowError{{Row: 0, Message: "workbook has no sheets"}}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, []RowError{{Row: 0, Message: fmt.Sprintf("read sheet %s: %v", sheets[0], err)}}
	}
	return rowsToInputs(rows)
}

func rowsToInputs(records [][]string) ([]CsvRowInput, []RowError) {
	if len(records) == 0 {
		return nil, []RowError{{Row: 1, Message: "file is empty"}}
	}

	index := map[string]int{}
	for i, h := range records[0] {
		tok := headerToken(h)
		for col, syns := range headerSynonyms {
			if _, taken := index[col]; taken {
				continue
			}
			for _, syn := range syns {
				if tok == syn {
					index[col] = i
				}
			}
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, []RowError{{Row: 1, Message: "missing required columns: " + strings.Join(missing, ", ")}}
	}

	cell := func(rec []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []CsvRowInput
	for n, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		rows = append(rows, CsvRowInput{
			Row:          n + 2,
			ShipDate:     cell(rec, "shipDate"),
			OrderNumber:  cell(rec, "orderNumber"),
			FacilityName: cell(rec, "facilityName"),
			City:         cell(rec, "city"),
			State:        cell(rec, "state"),
			Zip:          cell(rec, "zip"),
			SKU:          cell(rec, "sku"),
			LotNumber:    cell(rec, "lotNumber"),
			Quantity:     cell(rec, "quantity"),
		})
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
