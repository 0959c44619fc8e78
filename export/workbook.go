// Package export renders liability tables and arrears reports as XLSX
// workbooks for the club treasurer.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mouros/motohub/dues"
	"github.com/mouros/motohub/generic"
)

// ContentType is the MIME type of the generated files.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type SheetSpec struct {
	Title  string
	Header []string
	Rows   [][]any
}

// NewWorkbook builds one sheet per spec with a bold, filterable header row.
func NewWorkbook(sheets []SheetSpec) (*excelize.File, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, s := range sheets {
		name := s.Title
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet: %w", err)
		}
		if len(s.Header) == 0 {
			continue
		}

		for col, h := range s.Header {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			if err := f.SetCellStr(name, cell, h); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
		end, _ := excelize.CoordinatesToCellName(len(s.Header), 1)
		_ = f.SetCellStyle(name, "A1", end, bold)
		_ = f.AutoFilter(name, "A1:"+end, nil)

		for r, row := range s.Rows {
			for c, val := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
				if err := f.SetCellValue(name, cell, val); err != nil {
					return nil, fmt.Errorf("set cell %s: %w", cell, err)
				}
			}
		}

		for c := 1; c <= len(s.Header); c++ {
			width := len(s.Header[c-1])
			for r := 0; r < min(50, len(s.Rows)); r++ {
				if c-1 < len(s.Rows[r]) {
					if l := len(fmt.Sprint(s.Rows[r][c-1])); l > width {
						width = l
					}
				}
			}
			col, _ := excelize.ColumnNumberToName(c)
			_ = f.SetColWidth(name, col, col, clamp(float64(width)*0.9, 12, 40))
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Write streams the workbook and closes it.
func Write(w io.Writer, f *excelize.File) error {
	defer f.Close()
	_, err := f.WriteTo(w)
	return err
}

// =============================================================================
// LIABILITY TABLE
// =============================================================================

var liabilityHeader = []string{
	"Year", "Status", "Should pay", "Exempt reason", "Club inactive reason",
	"Paid", "Paid date", "Amount", "Receipt", "Notes",
}

// Liability renders one member's table plus a summary sheet.
func Liability(member generic.Member, entries []dues.DueYearEntry, summary dues.Summary) (*excelize.File, error) {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		row := []any{e.Year, string(e.Status()), yesNo(e.ShouldPay), e.ExemptReason, e.ClubInactiveReason}
		if p := e.Payment; p != nil {
			row = append(row, yesNo(p.Paid), p.PaidDate.String(), p.Amount.Value.InexactFloat64(), p.ReceiptNumber, p.Notes)
		} else {
			row = append(row, yesNo(false), "", "", "", "")
		}
		rows = append(rows, row)
	}

	return NewWorkbook([]SheetSpec{
		{Title: "Dues", Header: liabilityHeader, Rows: rows},
		{
			Title:  "Summary",
			Header: []string{"Field", "Value"},
			Rows: [][]any{
				{"Member", member.Name},
				{"Member number", member.MemberNumber},
				{"Join date", member.JoinDate.String()},
				{"Years", summary.Years},
				{"Owed years", joinYears(summary.OwedYears)},
				{"Paid years", summary.PaidYears},
				{"Exempt years", summary.ExemptYears},
				{"Club inactive years", summary.InactiveYears},
				{"Outstanding", summary.Outstanding.String()},
				{"Paid total", summary.PaidTotal.String()},
			},
		},
	})
}

// =============================================================================
// ARREARS
// =============================================================================

var arrearsHeader = []string{"Member number", "Name", "Email", "Owed years", "Count", "Outstanding", "Currency"}

// Arrears renders the club-wide arrears report.
func Arrears(report dues.ArrearsReport) (*excelize.File, error) {
	rows := make([][]any, 0, len(report.Lines)+1)
	for _, l := range report.Lines {
		rows = append(rows, []any{
			l.Member.MemberNumber,
			l.Member.Name,
			l.Member.Email,
			joinYears(l.Summary.OwedYears),
			len(l.Summary.OwedYears),
			l.Summary.Outstanding.Value.InexactFloat64(),
			string(l.Summary.Outstanding.Currency),
		})
	}
	rows = append(rows, []any{
		"", "Total", "", "", "",
		report.TotalOutstanding.Value.InexactFloat64(),
		string(report.TotalOutstanding.Currency),
	})

	return NewWorkbook([]SheetSpec{{
		Title:  fmt.Sprintf("Arrears %d", report.Year),
		Header: arrearsHeader,
		Rows:   rows,
	}})
}

// helpers

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func joinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ", ")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
