package export

import (
	"context"
	"testing"
	"time"

	"lessonbot/internal/database"
	"lessonbot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newExportDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.RunPending(context.Background())
	require.NoError(t, err)
	return db
}

func TestExportSchedule(t *testing.T) {
	db := newExportDB(t)
	logger := zerolog.Nop()
	exporter := NewExporter(db, t.TempDir(), &logger)
	ctx := context.Background()

	booking := &models.Booking{
		UserID:   100,
		Date:     "2026-09-10",
		Time:     "09:00",
		StartsAt: time.Date(2026, 9, 10, 4, 0, 0, 0, time.UTC),
		Purpose:  "вокал",
	}
	require.NoError(t, db.ReserveSlot(ctx, booking))
	require.NoError(t, db.CloseDate(ctx, "2026-09-11", "ремонт"))

	path, err := exporter.ExportSchedule(ctx, "2026-09-10", "2026-09-12")
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue(scheduleSheet, "A1")
	require.NoError(t, err)
	assert.Contains(t, title, "2026-09-10")

	// Column B is the first date, row 3 the only lesson time.
	cell, err := f.GetCellValue(scheduleSheet, "B3")
	require.NoError(t, err)
	assert.Contains(t, cell, "ученик 100")
	assert.Contains(t, cell, "вокал")

	// The closed date header carries its reason.
	header, err := f.GetCellValue(scheduleSheet, "C2")
	require.NoError(t, err)
	assert.Contains(t, header, "ремонт")
}

func TestExportScheduleBadRange(t *testing.T) {
	db := newExportDB(t)
	logger := zerolog.Nop()
	exporter := NewExporter(db, t.TempDir(), &logger)

	_, err := exporter.ExportSchedule(context.Background(), "not-a-date", "2026-09-12")
	assert.Error(t, err)
}

func TestExportUsers(t *testing.T) {
	db := newExportDB(t)
	logger := zerolog.Nop()
	exporter := NewExporter(db, t.TempDir(), &logger)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &models.User{ID: 100, FirstName: "Алия", Username: "aliya", Language: "ru"}))

	path, err := exporter.ExportUsers(ctx)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	id, err := f.GetCellValue("Пользователи", "A2")
	require.NoError(t, err)
	assert.Equal(t, "100", id)

	name, err := f.GetCellValue("Пользователи", "C2")
	require.NoError(t, err)
	assert.Equal(t, "Алия", name)
}
