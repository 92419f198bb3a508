package trades

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pegbot/internal/domain"
)

func record(id string, status domain.TradeStatus, amount int64, createdAt time.Time) *domain.TradeRecord {
	return &domain.TradeRecord{
		TradeID:     id,
		Action:      domain.ActionBuy,
		InputAmount: decimal.NewFromInt(amount),
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestSaveGetUpdate(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec := record("trade_1", domain.TradeStatusPending, 100, time.Now().UTC())
	require.NoError(t, store.Save(rec))

	got, err := store.Get("trade_1")
	require.NoError(t, err)
	require.Equal(t, domain.TradeStatusPending, got.Status)

	rec.Status = domain.TradeStatusSuccess
	require.NoError(t, store.Update(rec))

	got, err = store.Get("trade_1")
	require.NoError(t, err)
	require.Equal(t, domain.TradeStatusSuccess, got.Status)
	require.Equal(t, 1, store.Count())
}

func TestGetUnknownTrade(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get("trade_missing")
	require.ErrorIs(t, err, domain.ErrTradeNotFound)
}

func TestSaveRejectsEmptyID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	var perr *domain.PersistenceError
	require.ErrorAs(t, store.Save(&domain.TradeRecord{}), &perr)
}

func TestReplayLatestVersionWins(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)

	rec := record("trade_1", domain.TradeStatusPending, 50, time.Now().UTC())
	require.NoError(t, store.Save(rec))
	rec.Status = domain.TradeStatusFailed
	rec.Error = "rpc timeout"
	require.NoError(t, store.Update(rec))
	require.NoError(t, store.Save(record("trade_2", domain.TradeStatusSuccess, 25, time.Now().UTC())))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, 2, reopened.Count())
	got, err := reopened.Get("trade_1")
	require.NoError(t, err)
	require.Equal(t, domain.TradeStatusFailed, got.Status)
	require.Equal(t, "rpc timeout", got.Error)
}

func TestHistoryFilters(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC()
	require.NoError(t, store.Save(record("trade_old", domain.TradeStatusSuccess, 10, now.Add(-48*time.Hour))))
	require.NoError(t, store.Save(record("trade_failed", domain.TradeStatusFailed, 20, now.Add(-2*time.Hour))))
	require.NoError(t, store.Save(record("trade_recent", domain.TradeStatusSuccess, 30, now.Add(-time.Hour))))

	t.Run("no filter returns all newest first", func(t *testing.T) {
		all := store.History(Filter{})
		require.Len(t, all, 3)
		require.Equal(t, "trade_recent", all[0].TradeID)
		require.Equal(t, "trade_old", all[2].TradeID)
	})

	t.Run("status filter", func(t *testing.T) {
		failed := store.History(Filter{Status: domain.TradeStatusFailed})
		require.Len(t, failed, 1)
		require.Equal(t, "trade_failed", failed[0].TradeID)
	})

	t.Run("hours window", func(t *testing.T) {
		recent := store.History(Filter{Hours: 24})
		require.Len(t, recent, 2)
	})

	t.Run("limit", func(t *testing.T) {
		limited := store.History(Filter{Limit: 1})
		require.Len(t, limited, 1)
		require.Equal(t, "trade_recent", limited[0].TradeID)
	})
}

func TestDailyActivityUsesUTCCalendarDay(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	day := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(record("trade_ok", domain.TradeStatusSuccess, 100, day)))
	require.NoError(t, store.Save(record("trade_failed", domain.TradeStatusFailed, 40, day.Add(3*time.Hour))))
	require.NoError(t, store.Save(record("trade_pending", domain.TradeStatusPending, 10, day.Add(6*time.Hour))))
	// 23:59 the day before and 00:00 the day after are outside the window
	require.NoError(t, store.Save(record("trade_prev", domain.TradeStatusSuccess, 500, day.Add(-13*time.Hour))))
	require.NoError(t, store.Save(record("trade_next", domain.TradeStatusSuccess, 500, day.Add(12*time.Hour))))

	activity, err := store.DailyActivity(day)
	require.NoError(t, err)
	require.Equal(t, 3, activity.TradeCount, "every record opened that day counts")
	require.True(t, activity.Volume.Equal(decimal.NewFromInt(100)), "only successful volume counts, got %s", activity.Volume)
}

func TestStatisticsWindow(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC()
	require.NoError(t, store.Save(record("trade_1", domain.TradeStatusSuccess, 100, now.Add(-time.Hour))))
	require.NoError(t, store.Save(record("trade_2", domain.TradeStatusSuccess, 50, now.Add(-time.Hour))))
	require.NoError(t, store.Save(record("trade_3", domain.TradeStatusFailed, 10, now.Add(-time.Hour))))
	require.NoError(t, store.Save(record("trade_4", domain.TradeStatusPending, 10, now.Add(-time.Hour))))
	require.NoError(t, store.Save(record("trade_ancient", domain.TradeStatusSuccess, 999, now.Add(-100*time.Hour))))

	stats := store.Statistics(24 * time.Hour)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 2, stats.Succeeded)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 1, stats.Pending)
	require.True(t, stats.Volume.Equal(decimal.NewFromInt(150)))
	require.True(t, stats.SuccessRate.Equal(decimal.NewFromInt(50)), "got %s", stats.SuccessRate)
}

func TestStalePending(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC()
	require.NoError(t, store.Save(record("trade_stuck", domain.TradeStatusPending, 10, now.Add(-time.Hour))))
	require.NoError(t, store.Save(record("trade_fresh", domain.TradeStatusPending, 10, now)))
	require.NoError(t, store.Save(record("trade_done", domain.TradeStatusSuccess, 10, now.Add(-time.Hour))))

	require.Equal(t, 1, store.StalePending(10*time.Minute))
	require.Equal(t, 0, store.StalePending(2*time.Hour))
}
