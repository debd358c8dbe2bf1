package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/skip2/go-qrcode"
)

// column widths in mm for the Header columns, A4 landscape
var pdfColumns = []float64{22, 30, 60, 30, 12, 25, 27, 17, 30, 24}

const (
	pdfRowHeight = 6.0
	pdfMargin    = 10.0
	pdfQRSize    = 28.0
)

// RenderPDF lays out a stored report for printing. The report digest is
// printed and QR-encoded so a paper copy can be matched to the stored CSV.
func RenderPDF(rep *models.TracingReport, data []byte) ([]byte, error) {
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read report csv: %w", err)
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-8)
		pdf.SetFont("Arial", "", 7)
		pdf.CellFormat(0, 4, fmt.Sprintf("Report %d  sha256 %s  page %d", rep.ID, rep.SHA256, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	qrPng, err := qrcode.Encode("sha256:"+rep.SHA256, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("digest", imgOptions, bytes.NewReader(qrPng))
	pageW, _ := pdf.GetPageSize()
	pdf.ImageOptions("digest", pageW-pdfMargin-pdfQRSize, pdfMargin, pdfQRSize, pdfQRSize, false, imgOptions, 0, "")

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, "Device Tracing Report "+rep.Month, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	meta := []string{
		"Generated: " + rep.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		"Generated by: " + rep.GeneratedBy,
		"Filters: " + string(rep.Filters),
		fmt.Sprintf("Rows: %d", rep.RowCount),
		"SHA-256: " + rep.SHA256,
	}
	for _, line := range meta {
		pdf.CellFormat(0, 5, line, "", 1, "L", false, 0, "")
	}
	pdf.SetY(pdfMargin + pdfQRSize + 4)

	header := func() {
		pdf.SetFont("Arial", "B", 8)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range Header {
			pdf.CellFormat(pdfColumns[i], pdfRowHeight, h, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	header()

	_, pageH := pdf.GetPageSize()
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if pdf.GetY()+pdfRowHeight > pageH-pdfMargin-6 {
			pdf.AddPage()
			header()
		}
		for c, w := range pdfColumns {
			val := ""
			if c < len(row) {
				val = row[c]
			}
			pdf.CellFormat(w, pdfRowHeight, fit(pdf, val, w), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(rows) <= 1 {
		pdf.CellFormat(0, pdfRowHeight, "No distribution entries match these filters.", "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// fit trims s until it fits in a cell of width w
func fit(pdf *gofpdf.Fpdf, s string, w float64) string {
	limit := w - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > limit {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
