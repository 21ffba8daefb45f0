// Package audit renders reservation reports as Excel workbooks.
package audit

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"osteria/internal/models"
)

var columns = []string{"ID", "Date", "Hour", "Duration (h)", "Table", "Guests", "Starters", "Phone", "Address", "External ID"}

// WriteReservations writes one sheet per calendar day to w. Days are
// taken in the order reservations arrive (the store returns them
// sorted by date).
func WriteReservations(w io.Writer, reservations []models.Reservation) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	byDate := make(map[string][]models.Reservation)
	var order []string
	for _, r := range reservations {
		if _, seen := byDate[r.Date]; !seen {
			order = append(order, r.Date)
		}
		byDate[r.Date] = append(byDate[r.Date], r)
	}
	if len(order) == 0 {
		order = []string{"empty"}
	}

	for i, date := range order {
		sheet := sheetName(date)
		if i == 0 {
			f.SetSheetName("Sheet1", sheet)
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("create sheet %s: %w", sheet, err)
			}
		}

		for col, name := range columns {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, name); err != nil {
				return err
			}
		}
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(sheet, start, end, headerStyle)

		for row, r := range byDate[date] {
			values := []interface{}{
				r.ID, r.Date, r.Hour, r.Duration, string(r.Table),
				r.People, strings.Join(r.Starters, ", "), r.Phone, r.Address, r.ExternalID,
			}
			for col, val := range values {
				cell, err := excelize.CoordinatesToCellName(col+1, row+2)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(sheet, cell, val); err != nil {
					return err
				}
			}
		}
	}

	return f.Write(w)
}

// sheetName keeps names inside Excel's 31-char sheet limit.
func sheetName(date string) string {
	if len(date) > 31 {
		return date[:31]
	}
	return date
}
