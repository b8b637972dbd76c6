// Package report renders club booking activity as Excel workbooks for club
// and organization administrators.
package report

import (
	"fmt"
	"sort"
	"time"

	"korty/internal/apperr"
	"korty/internal/directory"
	"korty/internal/models"
	"korty/internal/timeutil"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Бронювання"

// Generator turns booking lists into xlsx grids. It only renders; fetching
// and visibility checks stay with the caller.
type Generator struct {
	directory *directory.Registry
	logger    *zerolog.Logger
}

func NewGenerator(dir *directory.Registry, logger *zerolog.Logger) *Generator {
	return &Generator{directory: dir, logger: logger}
}

// ClubBookings lays a date range out as a grid: one column per club-local
// day, one row per court, every booking of that court and day stacked in the
// cell. Days follow the club's wall clock, so a late evening slot lands in
// the local day it was booked for, not the UTC one.
func (g *Generator) ClubBookings(clubID string, from, to time.Time, bookings []*models.Booking) (*excelize.File, error) {
	club, ok := g.directory.Club(clubID)
	if !ok {
		return nil, apperr.NotFound("unknown club: %s", clubID)
	}
	courts := g.directory.CourtsOfClub(clubID)

	localFrom, err := timeutil.FromUTC(from, club.Zone)
	if err != nil {
		return nil, err
	}
	localTo, err := timeutil.FromUTC(to, club.Zone)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	st, err := newStyleSet(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("build styles: %w", err)
	}

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s. Період: %s - %s",
		club.Name, localFrom.Format("02.01.2006"), localTo.Format("02.01.2006")))

	dateCols := writeDateColumns(f, st, localFrom, localTo)
	writeCourtRows(f, st, courts)
	g.writeCells(f, st, club.Zone, courts, dateCols, bookings)

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	if len(dateCols) > 0 {
		last, _ := excelize.ColumnNumberToName(len(dateCols) + 1)
		_ = f.SetColWidth(sheetName, "B", last, 22)
		_ = f.MergeCell(sheetName, "A1", last+"1")
	}
	_ = f.SetCellStyle(sheetName, "A1", "A1", st.title)
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// FileName is the suggested download name for a rendered range.
func FileName(clubID string, from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_%s_to_%s.xlsx",
		clubID, from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
}

// writeDateColumns fills row 2 with one column per local day of [from, to)
// and returns the day-to-column map.
func writeDateColumns(f *excelize.File, st styleSet, localFrom, localTo time.Time) map[string]int {
	cols := make(map[string]int)
	day := time.Date(localFrom.Year(), localFrom.Month(), localFrom.Day(), 0, 0, 0, 0, localFrom.Location())
	lastDay := localTo
	if !localTo.After(localFrom) {
		lastDay = localFrom
	}
	col := 2
	for !day.After(lastDay) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheetName, cell, day.Format("02.01"))
		_ = f.SetCellStyle(sheetName, cell, cell, st.date)
		cols[day.Format("2006-01-02")] = col
		day = day.AddDate(0, 0, 1)
		col++
	}
	return cols
}

func writeCourtRows(f *excelize.File, st styleSet, courts []*models.Court) {
	for i, court := range courts {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(sheetName, cell, court.Name)
		_ = f.SetCellStyle(sheetName, cell, cell, st.court)
	}
}

func (g *Generator) writeCells(
	f *excelize.File, st styleSet, zone string,
	courts []*models.Court, dateCols map[string]int,
	bookings []*models.Booking,
) {
	type cellKey struct {
		courtID string
		day     string
	}
	grouped := make(map[cellKey][]*models.Booking)
	for _, b := range bookings {
		local, err := timeutil.FromUTC(b.StartAt, zone)
		if err != nil {
			g.logger.Error().Err(err).Str("booking_id", b.ID).Msg("booking outside any known zone")
			continue
		}
		key := cellKey{b.CourtID, local.Format("2006-01-02")}
		grouped[key] = append(grouped[key], b)
	}
	for _, cell := range grouped {
		sort.Slice(cell, func(i, j int) bool { return cell[i].StartAt.Before(cell[j].StartAt) })
	}

	for row, court := range courts {
		for day, col := range dateCols {
			cell, _ := excelize.CoordinatesToCellName(col, row+3)
			list := grouped[cellKey{court.ID, day}]
			_ = f.SetCellValue(sheetName, cell, cellText(zone, list))
			_ = f.SetCellStyle(sheetName, cell, cell, cellStyle(st, list))
		}
	}
}

func cellText(zone string, list []*models.Booking) string {
	if len(list) == 0 {
		return "Вільно"
	}
	var text string
	for _, b := range list {
		start, err := timeutil.FromUTC(b.StartAt, zone)
		if err != nil {
			continue
		}
		end, err := timeutil.FromUTC(b.EndAt, zone)
		if err != nil {
			continue
		}
		text += fmt.Sprintf("%s %s - %s %s\n",
			statusIcon(b), start.Format("15:04"), end.Format("15:04"), b.UserID)
	}
	return text
}

func statusIcon(b *models.Booking) string {
	switch {
	case b.BookingStatus == models.BookingStatusCancelled:
		return "❌"
	case b.PaymentStatus == models.PaymentStatusPaid:
		return "✅"
	default:
		return "⏳"
	}
}

type styleSet struct {
	title  int
	date   int
	court  int
	free   int
	unpaid int
	paid   int
}

func newStyleSet(f *excelize.File) (styleSet, error) {
	var st styleSet
	var err error

	st.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return st, err
	}
	st.date, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return st, err
	}
	st.court, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return st, err
	}
	st.free, err = cellFill(f, "#FFFFFF")
	if err != nil {
		return st, err
	}
	st.unpaid, err = cellFill(f, "#FFEB9C")
	if err != nil {
		return st, err
	}
	st.paid, err = cellFill(f, "#C6EFCE")
	return st, err
}

func cellFill(f *excelize.File, color string) (int, error) {
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	})
}

// cellStyle picks the fill: white for an empty day, yellow while any active
// booking is still unpaid, green once every active booking is settled.
func cellStyle(st styleSet, list []*models.Booking) int {
	var active, paid int
	for _, b := range list {
		if !b.Active() {
			continue
		}
		active++
		if b.PaymentStatus == models.PaymentStatusPaid {
			paid++
		}
	}
	switch {
	case active == 0:
		return st.free
	case paid < active:
		return st.unpaid
	default:
		return st.paid
	}
}
