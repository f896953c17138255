// Package export produces the point-list spreadsheet for a work order.
package export

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/njagatron/PEPE-DOT/internal/workorder"
)

var baseHeaders = []string{"No.", "Point", "Photo file", "Created"}

var detailHeaders = []string{"Comment", "X", "Y", "Page", "Work order", "Document"}

// Options selects the exported column set. The base columns are sequence
// number, point name, original photo filename and creation date; Detailed
// appends comment, document-space coordinates, page, work order and
// document name.
type Options struct {
	Detailed bool
}

// PointList builds an xlsx workbook with one row per point, in ledger
// order. Coordinates are rounded to two decimals here, at the presentation
// boundary; stored values stay unrounded.
func PointList(order string, points []workorder.PointRecord, opts Options) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Points"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	headers := baseHeaders
	if opts.Detailed {
		headers = append(append([]string{}, baseHeaders...), detailHeaders...)
	}
	for i, h := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, fmt.Errorf("resolving column %d: %w", i+1, err)
		}
		cell := col + "1"
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("writing header %q: %w", h, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("styling header %q: %w", h, err)
		}
	}

	for i, p := range points {
		row := i + 2
		values := []any{
			i + 1,
			p.Name,
			p.OriginalName,
			p.CreatedAt.Format("2006-01-02"),
		}
		if opts.Detailed {
			values = append(values,
				p.Comment,
				math.Round(p.X*100)/100,
				math.Round(p.Y*100)/100,
				p.Page,
				order,
				p.DocumentName,
			)
		}
		for j, v := range values {
			col, err := excelize.ColumnNumberToName(j + 1)
			if err != nil {
				return nil, fmt.Errorf("resolving column %d: %w", j+1, err)
			}
			if err := f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row), v); err != nil {
				return nil, fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	return f, nil
}
