package ledgerstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loyaltyx/demoledger/internal/domain"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	ledger := domain.NewLedger()
	ledger.Points = decimal.NewFromInt(4200)
	ledger.Collateral = decimal.NewFromInt(1500)
	ledger.StablecoinDebt = decimal.NewFromInt(10)

	openedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	pos, err := domain.NewYieldPosition(domain.ProtocolUniswapV3, decimal.NewFromInt(300), openedAt)
	require.NoError(t, err)
	ledger.Positions = append(ledger.Positions, pos)

	require.NoError(t, store.SaveLedger(ledger))

	loaded, err := store.LoadLedger()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.True(t, loaded.Points.Equal(ledger.Points))
	assert.True(t, loaded.Collateral.Equal(ledger.Collateral))
	assert.True(t, loaded.StablecoinDebt.Equal(ledger.StablecoinDebt))
	require.Len(t, loaded.Positions, 1)
	assert.Equal(t, domain.ProtocolUniswapV3, loaded.Positions[0].Protocol)
	assert.True(t, loaded.Positions[0].PrincipalPoints.Equal(decimal.NewFromInt(300)))
	assert.True(t, loaded.Positions[0].ExchangedAmount.Equal(decimal.NewFromInt(3)))
	assert.True(t, loaded.Positions[0].OpenedAt.Equal(openedAt))
}

func TestStore_LoadMissingReturnsNil(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.LoadLedger()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	identity, err := store.LoadIdentity()
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestStore_MissingFieldsDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	// snapshot written by an older schema without staking fields
	payload := []byte(`{"points": "100", "collateral": "50"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.json"), payload, 0o644))

	loaded, err := store.LoadLedger()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.True(t, loaded.Points.Equal(decimal.NewFromInt(100)))
	assert.True(t, loaded.Collateral.Equal(decimal.NewFromInt(50)))
	assert.True(t, loaded.TokenBalance.Equal(domain.DefaultTokenBalance))
	assert.True(t, loaded.StakedTokens.Equal(decimal.Zero))
	assert.Empty(t, loaded.Positions)
}

func TestStore_IdentityRoundTripAndClear(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	identity := domain.Identity{Handle: "0xdeadbeef", Active: true, ExpiresAt: &expires}
	require.NoError(t, store.SaveIdentity(identity))
	require.NoError(t, store.SaveLedger(domain.NewLedger()))

	loaded, err := store.LoadIdentity()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "0xdeadbeef", loaded.Handle)
	assert.True(t, loaded.Active)
	require.NotNil(t, loaded.ExpiresAt)
	assert.True(t, loaded.ExpiresAt.Equal(expires))

	require.NoError(t, store.Clear())

	loaded, err = store.LoadIdentity()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	ledger, err := store.LoadLedger()
	require.NoError(t, err)
	assert.Nil(t, ledger)

	// clearing twice is fine
	require.NoError(t, store.Clear())
}
