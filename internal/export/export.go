// Package export writes the roster and open tasks as an Excel workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/sswtrack/sswtrack/internal/compliance"
	"github.com/sswtrack/sswtrack/internal/rules"
)

const (
	StaffSheet = "Staff"
	TasksSheet = "Tasks"
)

// Row is one staff member and their evaluated status.
type Row struct {
	Staff       compliance.Staff
	Nationality string
	Facility    string
	Status      compliance.Status
}

var staffHeader = []string{
	"Name", "Nationality", "Sector", "Facility", "Entry Date", "Residence Expiry",
	"Days Left", "Phase", "Urgency", "Status", "Next Action", "Visit Care",
	"Preparation %", "Entry %", "Renewal %",
}

var staffWidths = []float64{20, 14, 10, 20, 14, 16, 10, 12, 10, 10, 22, 10, 14, 10, 12}

var taskHeader = []string{"Urgency", "Staff", "Type", "Message", "Due"}

var taskWidths = []float64{10, 20, 24, 50, 14}

// RosterWorkbook renders rows and tasks into an .xlsx workbook on w.
func RosterWorkbook(w io.Writer, rows []Row, tasks []compliance.Task) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", StaffSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(TasksSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	if err := writeHeader(f, StaffSheet, staffHeader, staffWidths, headerStyle); err != nil {
		return err
	}
	for i, r := range rows {
		if err := writeRow(f, StaffSheet, i+2, staffRow(r)); err != nil {
			return err
		}
	}

	if err := writeHeader(f, TasksSheet, taskHeader, taskWidths, headerStyle); err != nil {
		return err
	}
	for i, t := range tasks {
		if err := writeRow(f, TasksSheet, i+2, taskRow(t)); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []string, widths []float64, style int) error {
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := writeRow(f, sheet, 1, row); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("setting header style: %w", err)
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("setting column width: %w", err)
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freezing header: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, n int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, n, err)
	}
	return nil
}

func staffRow(r Row) []any {
	days := any("")
	if r.Status.DaysUntilExpiry != compliance.NoDate {
		days = r.Status.DaysUntilExpiry
	}
	visitCare := "no"
	if r.Staff.VisitCareReady {
		visitCare = "yes"
	}
	return []any{
		r.Staff.Name,
		r.Nationality,
		string(r.Staff.Sector),
		r.Facility,
		compliance.FormatDate(r.Staff.EntryDate),
		compliance.FormatDate(r.Staff.ResidenceExpiry),
		days,
		string(r.Status.Phase),
		string(r.Status.Urgency),
		string(r.Staff.Status),
		string(r.Status.NextAction),
		visitCare,
		r.Status.Progress[rules.PhasePreparation].Percentage,
		r.Status.Progress[rules.PhaseEntry].Percentage,
		r.Status.Progress[rules.PhaseRenewal].Percentage,
	}
}

func taskRow(t compliance.Task) []any {
	return []any{
		string(t.Urgency),
		t.StaffName,
		string(t.Type),
		t.Message,
		compliance.FormatDate(t.Due),
	}
}
