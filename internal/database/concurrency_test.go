package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReserveSameSlot(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.RunPending(ctx)
	require.NoError(t, err)

	slot := time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			results <- db.ReserveSlot(ctx, testBooking(int64(id+1), slot))
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	takenCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, ErrSlotTaken):
			takenCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Exactly one racer wins the slot.
	assert.Equal(t, 1, successCount, "exactly one reservation should succeed")
	assert.Equal(t, numGoroutines-1, takenCount, "all other reservations should lose with ErrSlotTaken")

	var count int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE status = 'active'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
