// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package report renders school audit exports as Excel workbooks.
package report // import "github.com/fieldops/fieldaudit/internal/report"

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the audit rows.
const SheetName = "School Audits"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Headers are the export columns, in order. Each row passed to WriteAudits
// must have one value per header.
var Headers = []string{
	"Audit ID", "Date", "Auditor Email", "School Name", "City", "Latitude", "Longitude",
	"Start Time", "End Time", "Duration (min)", "Promoters Count", "Total Students",
	"Boost Sachets", "Giveaways", "Sessions Completed", "Teacher Count",

	"Session 1 Enabled", "Session 1 Students", "Session 1 Winner", "Session 1 Winner Class",
	"Session 1 Start Selfie URL", "Session 1 End Selfie URL", "Session 1 Winner Photo URL",
	"Session 1 Distribution Photo URL",

	"Session 2 Enabled", "Session 2 Students", "Session 2 Winner", "Session 2 Winner Class",
	"Session 2 Start Selfie URL", "Session 2 End Selfie URL", "Session 2 Winner Photo URL",
	"Session 2 Distribution Photo URL",

	"Session 3 Enabled", "Session 3 Students", "Session 3 Winner", "Session 3 Winner Class",
	"Session 3 Start Selfie URL", "Session 3 End Selfie URL", "Session 3 Winner Photo URL",
	"Session 3 Distribution Photo URL",

	"Auditor Remarks", "Status", "Start Image URL", "End Image URL", "Audit Sheet URL",
}

// Summary is written below the audit rows.
type Summary struct {
	Controller      string
	StartDate       string
	EndDate         string
	TotalAudits     int
	TotalStudents   int
	TotalSachets    int
	CompletedAudits int
}

// column widths as (first, last, width), 1-based and inclusive.
var columnWidths = []struct {
	first, last int
	width       float64
}{
	{1, 1, 25},   // audit id
	{2, 2, 15},   // date
	{3, 3, 25},   // email
	{4, 4, 30},   // school
	{5, 5, 20},   // city
	{6, 7, 12},   // coordinates
	{8, 9, 15},   // times
	{10, 17, 12}, // counters
	{18, 41, 15}, // sessions
	{42, 42, 40}, // remarks
	{43, 43, 12}, // status
	{44, 45, 50}, // image links
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// WriteAudits writes a workbook with a header row, one row per audit and a
// summary block, then streams it to w.
func WriteAudits(w io.Writer, rows [][]any, sum Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"245132"}, Pattern: 1},
		Border:    border,
		Alignment: center,
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{Border: border, Alignment: center})
	if err != nil {
		return fmt.Errorf("cell style: %w", err)
	}

	put := func(col, row int, v any, style int) error {
		c := cell(col, row)
		if err := f.SetCellValue(SheetName, c, v); err != nil {
			return err
		}
		return f.SetCellStyle(SheetName, c, c, style)
	}

	for i, h := range Headers {
		if err := put(i+1, 1, h, headerStyle); err != nil {
			return err
		}
	}
	for r, values := range rows {
		if len(values) != len(Headers) {
			return fmt.Errorf("row %d has %d values, want %d", r+1, len(values), len(Headers))
		}
		for c, v := range values {
			if err := put(c+1, r+2, v, cellStyle); err != nil {
				return err
			}
		}
	}

	controller := sum.Controller
	if controller == "" {
		controller = "All"
	}
	at := len(rows) + 3
	block := []struct {
		col, row int
		v        any
		style    int
	}{
		{1, at, "SUMMARY:", headerStyle},
		{2, at, fmt.Sprintf("Total Audits: %d", sum.TotalAudits), headerStyle},
		{3, at, "Controller: " + controller, headerStyle},
		{4, at, fmt.Sprintf("Date Range: %s to %s", sum.StartDate, sum.EndDate), headerStyle},
		{1, at + 1, "Total Students Reached:", cellStyle},
		{2, at + 1, sum.TotalStudents, cellStyle},
		{3, at + 1, "Total Sachets Distributed:", cellStyle},
		{4, at + 1, sum.TotalSachets, cellStyle},
		{5, at + 1, "Completed Audits:", cellStyle},
		{6, at + 1, sum.CompletedAudits, cellStyle},
	}
	for _, b := range block {
		if err := put(b.col, b.row, b.v, b.style); err != nil {
			return err
		}
	}

	for _, cw := range columnWidths {
		first, _ := excelize.ColumnNumberToName(cw.first)
		last, _ := excelize.ColumnNumberToName(cw.last)
		if err := f.SetColWidth(SheetName, first, last, cw.width); err != nil {
			return err
		}
	}
	return f.Write(w)
}
