package report

import (
	"io"
	"strings"
	"testing"
	"time"

	"korty/internal/config"
	"korty/internal/directory"
	"korty/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testGenerator(t *testing.T) *Generator {
	t.Helper()
	dir, err := directory.New(&config.DirectoryConfig{
		Organizations: []models.Organization{{ID: "org-1", Name: "Kyiv Padel Group"}},
		Clubs: []models.Club{
			{ID: "club-1", OrganizationID: "org-1", Name: "Padel Central", Zone: "Europe/Kyiv", Currency: "UAH"},
		},
		Courts: []models.Court{
			{ID: "court-1", ClubID: "club-1", Name: "Корт 1", PricePerHour: 60000},
			{ID: "court-2", ClubID: "club-1", Name: "Корт 2", PricePerHour: 80000},
		},
	})
	require.NoError(t, err)
	logger := zerolog.New(io.Discard)
	return NewGenerator(dir, &logger)
}

func booking(id, courtID string, start, end time.Time, userID, bookingStatus, paymentStatus string) *models.Booking {
	return &models.Booking{
		ID:            id,
		CourtID:       courtID,
		ClubID:        "club-1",
		UserID:        userID,
		StartAt:       start,
		EndAt:         end,
		BookingStatus: bookingStatus,
		PaymentStatus: paymentStatus,
	}
}

func TestClubBookingsGrid(t *testing.T) {
	g := testGenerator(t)

	from := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 3, 6, 0, 0, 0, time.UTC)
	bookings := []*models.Booking{
		booking("bk-1", "court-1",
			time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
			time.Date(2026, 6, 1, 11, 30, 0, 0, time.UTC),
			"dasha", models.BookingStatusConfirmed, models.PaymentStatusPaid),
		booking("bk-2", "court-1",
			time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
			time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC),
			"marko", models.BookingStatusConfirmed, models.PaymentStatusUnpaid),
		// Starts 23:30 Kyiv on 02.06, rolls past local midnight.
		booking("bk-3", "court-2",
			time.Date(2026, 6, 2, 20, 30, 0, 0, time.UTC),
			time.Date(2026, 6, 2, 22, 0, 0, 0, time.UTC),
			"olia", models.BookingStatusConfirmed, models.PaymentStatusUnpaid),
		booking("bk-4", "court-2",
			time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
			time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
			"petro", models.BookingStatusCancelled, models.PaymentStatusUnpaid),
	}

	f, err := g.ClubBookings("club-1", from, to, bookings)
	require.NoError(t, err)
	defer f.Close()

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	sheet, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer sheet.Close()

	cell := func(ref string) string {
		v, err := sheet.GetCellValue(sheetName, ref)
		require.NoError(t, err)
		return v
	}

	assert.Contains(t, cell("A1"), "Padel Central")
	assert.Contains(t, cell("A1"), "01.06.2026 - 03.06.2026")

	assert.Equal(t, "01.06", cell("B2"))
	assert.Equal(t, "02.06", cell("C2"))
	assert.Equal(t, "03.06", cell("D2"))

	assert.Equal(t, "Корт 1", cell("A3"))
	assert.Equal(t, "Корт 2", cell("A4"))

	// Court 1 on 01.06: paid 13:00 slot first, then the unpaid 15:00 one.
	day1 := cell("B3")
	assert.Contains(t, day1, "✅ 13:00 - 14:30 dasha")
	assert.Contains(t, day1, "⏳ 15:00 - 16:00 marko")
	assert.Less(t, strings.Index(day1, "dasha"), strings.Index(day1, "marko"))

	// The late slot sits in the local day it started on.
	assert.Contains(t, cell("C4"), "⏳ 23:30 - 01:00 olia")
	assert.Equal(t, "Вільно", cell("D4"))

	assert.Contains(t, cell("B4"), "❌")
	assert.Equal(t, "Вільно", cell("C3"))
}

func TestClubBookingsUnknownClub(t *testing.T) {
	g := testGenerator(t)
	_, err := g.ClubBookings("club-missing", time.Now(), time.Now().Add(24*time.Hour), nil)
	assert.Error(t, err)
}

func TestCellStyleTiers(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	st, err := newStyleSet(f)
	require.NoError(t, err)

	free := cellStyle(st, nil)
	cancelledOnly := cellStyle(st, []*models.Booking{
		{BookingStatus: models.BookingStatusCancelled},
	})
	mixed := cellStyle(st, []*models.Booking{
		{BookingStatus: models.BookingStatusConfirmed, PaymentStatus: models.PaymentStatusPaid},
		{BookingStatus: models.BookingStatusConfirmed, PaymentStatus: models.PaymentStatusUnpaid},
	})
	settled := cellStyle(st, []*models.Booking{
		{BookingStatus: models.BookingStatusConfirmed, PaymentStatus: models.PaymentStatusPaid},
	})

	assert.Equal(t, st.free, free)
	assert.Equal(t, st.free, cancelledOnly)
	assert.Equal(t, st.unpaid, mixed)
	assert.Equal(t, st.paid, settled)
	assert.NotEqual(t, free, mixed)
	assert.NotEqual(t, mixed, settled)
}

func TestFileName(t *testing.T) {
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "bookings_club-1_2026-06-01_to_2026-06-08.xlsx", FileName("club-1", from, to))
}
