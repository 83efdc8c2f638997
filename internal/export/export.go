// Package export renders booking data into Excel files for operators who
// want an offline snapshot of the schedule.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lessonbot/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const scheduleSheet = "Расписание"

// BookingSource is the slice of storage the exporter reads.
type BookingSource interface {
	ListBookingsBetween(ctx context.Context, from, to string) ([]*models.Booking, error)
	ClosedDateReason(ctx context.Context, date string) (string, bool, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
}

type Exporter struct {
	source BookingSource
	path   string
	logger *zerolog.Logger
}

func NewExporter(source BookingSource, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{source: source, path: path, logger: logger}
}

// ExportSchedule writes a grid of bookings for the inclusive local date range
// [from, to]: one column per date, one row per lesson time. Returns the path
// of the created file.
func (e *Exporter) ExportSchedule(ctx context.Context, from, to string) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	bookings, err := e.source.ListBookingsBetween(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("error getting bookings: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(scheduleSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(scheduleSheet, "A1", fmt.Sprintf("Период: %s - %s", from, to))

	dates := datesBetween(from, to)
	dateCols := e.writeDateHeaders(ctx, f, dates)
	timeRows := writeTimeRows(f, bookings)
	e.writeBookingCells(f, bookings, dateCols, timeRows)

	_ = f.SetColWidth(scheduleSheet, "A", "A", 10)
	for i := 0; i < len(dates); i++ {
		col, _ := excelize.ColumnNumberToName(i + 2)
		_ = f.SetColWidth(scheduleSheet, col, col, 24)
	}

	lastCol, _ := excelize.ColumnNumberToName(len(dates) + 1)
	_ = f.MergeCell(scheduleSheet, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(scheduleSheet, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("schedule_%s_to_%s.xlsx", from, to)
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Schedule export created")
	return filePath, nil
}

func (e *Exporter) writeDateHeaders(ctx context.Context, f *excelize.File, dates []string) map[string]int {
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	closedStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	cols := make(map[string]int, len(dates))
	for i, date := range dates {
		col := i + 2
		cols[date] = col
		cell, _ := excelize.CoordinatesToCellName(col, 2)

		label := date
		style := headerStyle
		if reason, closed, err := e.source.ClosedDateReason(ctx, date); err == nil && closed {
			style = closedStyle
			if reason != "" {
				label = fmt.Sprintf("%s (%s)", date, reason)
			} else {
				label = date + " (закрыто)"
			}
		}
		_ = f.SetCellValue(scheduleSheet, cell, label)
		_ = f.SetCellStyle(scheduleSheet, cell, cell, style)
	}
	return cols
}

func writeTimeRows(f *excelize.File, bookings []*models.Booking) map[string]int {
	seen := make(map[string]bool)
	var times []string
	for _, b := range bookings {
		if !seen[b.Time] {
			seen[b.Time] = true
			times = append(times, b.Time)
		}
	}
	sort.Strings(times)

	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	rows := make(map[string]int, len(times))
	for i, t := range times {
		row := i + 3
		rows[t] = row
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(scheduleSheet, cell, t)
		_ = f.SetCellStyle(scheduleSheet, cell, cell, style)
	}
	return rows
}

func (e *Exporter) writeBookingCells(f *excelize.File, bookings []*models.Booking, dateCols, timeRows map[string]int) {
	activeStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#C6EFCE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
	})
	cancelledStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFFFFF"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
	})

	for _, b := range bookings {
		col, okCol := dateCols[b.Date]
		row, okRow := timeRows[b.Time]
		if !okCol || !okRow {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(col, row)

		value := fmt.Sprintf("%s ученик %d", statusIcon(b.Status), b.UserID)
		if b.Purpose != "" {
			value += "\n💬 " + b.Purpose
		}
		if b.Branch != "" {
			value += "\n📍 " + b.Branch
		}
		_ = f.SetCellValue(scheduleSheet, cell, value)

		style := activeStyle
		if b.Status != models.StatusActive {
			style = cancelledStyle
		}
		_ = f.SetCellStyle(scheduleSheet, cell, cell, style)
	}
}

// ExportUsers writes every known user into a single-sheet file.
func (e *Exporter) ExportUsers(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	users, err := e.source.ListUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting users: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Пользователи"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"Telegram ID", "Username", "Имя", "Язык", "Дата регистрации"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}

	for i, user := range users {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), user.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), user.Username)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), user.FirstName)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), user.Language)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), user.CreatedAt.Format("02.01.2006 15:04"))
	}

	_ = f.SetColWidth(sheet, "A", "A", 15)
	_ = f.SetColWidth(sheet, "B", "C", 20)
	_ = f.SetColWidth(sheet, "D", "D", 8)
	_ = f.SetColWidth(sheet, "E", "E", 20)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("users_export_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Users export created")
	return filePath, nil
}

func statusIcon(status string) string {
	switch status {
	case models.StatusActive:
		return "✅"
	case models.StatusCancelled:
		return "❌"
	default:
		return "❓"
	}
}

func datesBetween(from, to string) []string {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return nil
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return nil
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format("2006-01-02"))
	}
	return dates
}
