package botconfig

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/pegbot/internal/domain"
)

func sampleConfig(identity string, enabled bool) domain.BotConfig {
	return domain.BotConfig{
		Identity:  identity,
		Enabled:   enabled,
		TargetPeg: decimal.NewFromInt(1),
		Limits:    domain.Limits{MaxTradeSize: decimal.NewFromInt(100)},
		Safety:    domain.Safety{MaxConsecutiveErrors: 3},
	}
}

func TestLoadMissingIdentity(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.Load("pegbot-unknown")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(sampleConfig("pegbot-main", true)))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	cfg, found, err := reopened.Load("pegbot-main")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "pegbot-main", cfg.Identity)
	require.True(t, cfg.Enabled)
	require.True(t, cfg.TargetPeg.Equal(decimal.NewFromInt(1)))
}

func TestLastWriteWins(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(sampleConfig("pegbot-main", true)))

	paused := sampleConfig("pegbot-main", false)
	paused.PauseReason = "circuit breaker"
	require.NoError(t, store.Save(paused))

	cfg, found, err := store.Load("pegbot-main")
	require.NoError(t, err)
	require.True(t, found)
	require.False(t, cfg.Enabled)
	require.Equal(t, "circuit breaker", cfg.PauseReason)
}

func TestIdentitiesAreIsolated(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(sampleConfig("pegbot-a", true)))
	require.NoError(t, store.Save(sampleConfig("pegbot-b", false)))

	cfg, found, err := store.Load("pegbot-a")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, cfg.Enabled)
}
