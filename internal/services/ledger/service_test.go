package ledger

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loyaltyx/demoledger/internal/domain"
	"github.com/loyaltyx/demoledger/internal/storage/ledgerstate"
)

func newTestService(t *testing.T) (*Service, *ledgerstate.Store) {
	t.Helper()
	store, err := ledgerstate.NewStore(t.TempDir())
	require.NoError(t, err)
	return NewService(store, nil, zap.NewNop()), store
}

func numeric(s string) domain.Numeric {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return domain.Numeric{Value: v, Valid: true}
}

func TestService_Defaults(t *testing.T) {
	svc, _ := newTestService(t)

	assert.True(t, svc.Points().Equal(domain.DefaultPoints))
	assert.True(t, svc.TokenBalance().Equal(domain.DefaultTokenBalance))
	assert.True(t, svc.StakedTokens().Equal(decimal.Zero))
	assert.True(t, svc.Collateral().Equal(decimal.Zero))
	assert.True(t, svc.StablecoinDebt().Equal(decimal.Zero))
	assert.Empty(t, svc.Snapshot().Positions)
}

func TestService_DepositToYield(t *testing.T) {
	svc, _ := newTestService(t)

	receipt, err := svc.DepositToYield(domain.ProtocolAaveV3, decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ID)
	assert.Contains(t, receipt.Message, "10 aUSDC")

	assert.True(t, svc.Points().Equal(decimal.NewFromInt(4000)))

	views := svc.PositionsWithEarnings()
	require.Len(t, views, 1)
	assert.Equal(t, domain.ProtocolAaveV3, views[0].Protocol)
	assert.True(t, views[0].PrincipalPoints.Equal(decimal.NewFromInt(1000)))
	assert.True(t, views[0].ExchangedAmount.Equal(decimal.NewFromInt(10)))
}

func TestService_DepositInsufficientBalanceMutatesNothing(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.DepositToYield(domain.ProtocolUniswapV3, decimal.NewFromInt(5001))
	require.Error(t, err)
	assert.Equal(t, domain.RejectInsufficientBalance, domain.RejectionOf(err))

	assert.True(t, svc.Points().Equal(domain.DefaultPoints))
	assert.Empty(t, svc.Snapshot().Positions)
}

func TestService_DepositThenImmediateWithdrawRoundTrips(t *testing.T) {
	svc, _ := newTestService(t)

	before := svc.Points()
	_, err := svc.DepositToYield(domain.ProtocolUniswapV3, decimal.NewFromInt(1234))
	require.NoError(t, err)

	_, err = svc.WithdrawFromYield(0)
	require.NoError(t, err)

	// zero elapsed time means zero accrual, modulo the microseconds the
	// test itself took
	diff := svc.Points().Sub(before).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(0.001)),
		"points drifted by %s on an immediate round trip", diff)
	assert.Empty(t, svc.Snapshot().Positions)
}

func TestService_WithdrawAfterOneYear(t *testing.T) {
	store, err := ledgerstate.NewStore(t.TempDir())
	require.NoError(t, err)

	// a session persisted a year ago: 10000 points, 1000 deposited to
	// Aave V3 at 8.5% APY
	openedAt := time.Now().Add(-domain.SecondsPerYear * time.Second)
	pos, err := domain.NewYieldPosition(domain.ProtocolAaveV3, decimal.NewFromInt(1000), openedAt)
	require.NoError(t, err)

	ledger := domain.NewLedger()
	ledger.Points = decimal.NewFromInt(9000)
	ledger.Positions = []domain.YieldPosition{pos}
	require.NoError(t, store.SaveLedger(ledger))

	svc := NewService(store, nil, zap.NewNop())
	require.Len(t, svc.Snapshot().Positions, 1)

	_, err = svc.WithdrawFromYield(0)
	require.NoError(t, err)

	// 9000 + 1000 principal + 85 accrued
	diff := svc.Points().Sub(decimal.NewFromInt(10085)).Abs()
	assert.True(t, diff.LessThan(decimal.NewFromFloat(0.001)),
		"expected ~10085 points, got %s", svc.Points())
	assert.Empty(t, svc.Snapshot().Positions)
}

func TestService_WithdrawInvalidIndex(t *testing.T) {
	svc, _ := newTestService(t)

	for _, index := range []int{-1, 0, 5} {
		_, err := svc.WithdrawFromYield(index)
		require.Error(t, err)
		assert.Equal(t, domain.RejectInvalidPosition, domain.RejectionOf(err))
	}
	assert.True(t, svc.Points().Equal(domain.DefaultPoints))
}

func TestService_WithdrawPreservesPositionOrder(t *testing.T) {
	svc, _ := newTestService(t)

	for _, p := range []domain.Protocol{domain.ProtocolUniswapV3, domain.ProtocolAaveV3, domain.ProtocolLoyaltyUSD} {
		_, err := svc.DepositToYield(p, decimal.NewFromInt(100))
		require.NoError(t, err)
	}

	_, err := svc.WithdrawFromYield(1)
	require.NoError(t, err)

	views := svc.PositionsWithEarnings()
	require.Len(t, views, 2)
	assert.Equal(t, domain.ProtocolUniswapV3, views[0].Protocol)
	assert.Equal(t, domain.ProtocolLoyaltyUSD, views[1].Protocol)
}

func TestService_MintRedeemRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	svc.ApplyPatch(domain.LedgerPatch{Points: numeric("20000")})

	_, err := svc.MintStablecoin(decimal.NewFromInt(100))
	require.NoError(t, err)

	// 100 LUSD * 100 mint ratio * 1.5 collateral ratio = 15000 points
	assert.True(t, svc.Points().Equal(decimal.NewFromInt(5000)))
	assert.True(t, svc.Collateral().Equal(decimal.NewFromInt(15000)))
	assert.True(t, svc.StablecoinDebt().Equal(decimal.NewFromInt(100)))

	_, err = svc.RedeemStablecoin(decimal.NewFromInt(100))
	require.NoError(t, err)

	// full round trip leaves no residue
	assert.True(t, svc.Points().Equal(decimal.NewFromInt(20000)))
	assert.True(t, svc.Collateral().Equal(decimal.Zero))
	assert.True(t, svc.StablecoinDebt().Equal(decimal.Zero))
}

func TestService_PartialRedemption(t *testing.T) {
	svc, _ := newTestService(t)
	svc.ApplyPatch(domain.LedgerPatch{Points: numeric("20000")})

	_, err := svc.MintStablecoin(decimal.NewFromInt(100))
	require.NoError(t, err)

	_, err = svc.RedeemStablecoin(decimal.NewFromInt(40))
	require.NoError(t, err)

	// 40% of the debt redeemed releases 40% of 15000 collateral
	assert.True(t, svc.StablecoinDebt().Equal(decimal.NewFromInt(60)))
	assert.True(t, svc.Collateral().Equal(decimal.NewFromInt(9000)), "got %s", svc.Collateral())
	assert.True(t, svc.Points().Equal(decimal.NewFromInt(11000)))
}

func TestService_RedeemWithZeroDebtFails(t *testing.T) {
	svc, _ := newTestService(t)
	snapshot := svc.Snapshot()

	_, err := svc.RedeemStablecoin(decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Equal(t, domain.RejectInsufficientDebt, domain.RejectionOf(err))

	after := svc.Snapshot()
	assert.True(t, after.Points.Equal(snapshot.Points))
	assert.True(t, after.Collateral.Equal(snapshot.Collateral))
	assert.True(t, after.StablecoinDebt.Equal(snapshot.StablecoinDebt))
}

func TestService_MintInsufficientCollateral(t *testing.T) {
	svc, _ := newTestService(t)

	// 5000 default points cannot cover 100 LUSD (needs 15000)
	_, err := svc.MintStablecoin(decimal.NewFromInt(100))
	require.Error(t, err)
	assert.Equal(t, domain.RejectInsufficientCollateral, domain.RejectionOf(err))
	assert.True(t, svc.Points().Equal(domain.DefaultPoints))
	assert.True(t, svc.Collateral().Equal(decimal.Zero))
}

func TestService_StakeUnstakeClaimsAllRewards(t *testing.T) {
	store, err := ledgerstate.NewStore(t.TempDir())
	require.NoError(t, err)

	ledger := domain.NewLedger()
	ledger.StakingRewards = decimal.NewFromFloat(123.45)
	require.NoError(t, store.SaveLedger(ledger))

	svc := NewService(store, nil, zap.NewNop())

	_, err = svc.Stake(decimal.NewFromInt(600))
	require.NoError(t, err)
	assert.True(t, svc.TokenBalance().Equal(decimal.NewFromInt(9400)))
	assert.True(t, svc.StakedTokens().Equal(decimal.NewFromInt(600)))

	// partial unstake still claims 100% of rewards
	_, err = svc.Unstake(decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, svc.TokenBalance().Equal(decimal.NewFromInt(9500)))
	assert.True(t, svc.StakedTokens().Equal(decimal.NewFromInt(500)))
	assert.True(t, svc.StakingRewards().Equal(decimal.Zero))
	assert.True(t, svc.Points().Equal(domain.DefaultPoints.Add(decimal.NewFromFloat(123.45))))
}

func TestService_StakeValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Stake(decimal.NewFromInt(10001))
	require.Error(t, err)
	assert.Equal(t, domain.RejectInsufficientTokens, domain.RejectionOf(err))

	_, err = svc.Unstake(decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Equal(t, domain.RejectInsufficientStake, domain.RejectionOf(err))

	assert.True(t, svc.TokenBalance().Equal(domain.DefaultTokenBalance))
	assert.True(t, svc.StakedTokens().Equal(decimal.Zero))
}

func TestService_NonPositiveAmountsRejected(t *testing.T) {
	svc, _ := newTestService(t)

	ops := []func(decimal.Decimal) (*Receipt, error){
		func(d decimal.Decimal) (*Receipt, error) { return svc.DepositToYield(domain.ProtocolAaveV3, d) },
		svc.MintStablecoin,
		svc.RedeemStablecoin,
		svc.Stake,
		svc.Unstake,
	}

	for _, op := range ops {
		for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
			_, err := op(amount)
			require.Error(t, err)
			assert.Equal(t, domain.RejectInvalidAmount, domain.RejectionOf(err))
		}
	}
}

func TestService_BalancesNeverGoNegative(t *testing.T) {
	svc, _ := newTestService(t)
	svc.ApplyPatch(domain.LedgerPatch{Points: numeric("20000")})

	steps := []func() (*Receipt, error){
		func() (*Receipt, error) { return svc.DepositToYield(domain.ProtocolUniswapV3, decimal.NewFromInt(3000)) },
		func() (*Receipt, error) { return svc.MintStablecoin(decimal.NewFromInt(50)) },
		func() (*Receipt, error) { return svc.Stake(decimal.NewFromInt(10000)) },
		func() (*Receipt, error) { return svc.RedeemStablecoin(decimal.NewFromInt(50)) },
		func() (*Receipt, error) { return svc.Unstake(decimal.NewFromInt(10000)) },
		func() (*Receipt, error) { return svc.WithdrawFromYield(0) },
		// rejected operations interleaved with valid ones
		func() (*Receipt, error) { return svc.MintStablecoin(decimal.NewFromInt(100000)) },
		func() (*Receipt, error) { return svc.Unstake(decimal.NewFromInt(1)) },
		func() (*Receipt, error) { return svc.DepositToYield(domain.ProtocolAaveV3, decimal.NewFromInt(1)) },
	}

	for i, step := range steps {
		_, _ = step()
		ledger := svc.Snapshot()
		for name, v := range map[string]decimal.Decimal{
			"points":          ledger.Points,
			"token balance":   ledger.TokenBalance,
			"staked tokens":   ledger.StakedTokens,
			"staking rewards": ledger.StakingRewards,
			"collateral":      ledger.Collateral,
			"stablecoin debt": ledger.StablecoinDebt,
		} {
			assert.False(t, v.IsNegative(), "step %d drove %s negative: %s", i, name, v)
		}
	}
}

func TestService_ApplyPatchNeverTouchesPositions(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.DepositToYield(domain.ProtocolAaveV3, decimal.NewFromInt(500))
	require.NoError(t, err)

	svc.ApplyPatch(domain.LedgerPatch{
		Points:         numeric("777"),
		TokenBalance:   numeric("888"),
		Collateral:     numeric("0"),
		StablecoinDebt: numeric("0"),
	})

	assert.True(t, svc.Points().Equal(decimal.NewFromInt(777)))
	assert.True(t, svc.TokenBalance().Equal(decimal.NewFromInt(888)))
	require.Len(t, svc.Snapshot().Positions, 1)
	assert.True(t, svc.Snapshot().Positions[0].PrincipalPoints.Equal(decimal.NewFromInt(500)))
}

func TestService_ApplyPatchIgnoresUnsetAndNegative(t *testing.T) {
	svc, _ := newTestService(t)

	svc.ApplyPatch(domain.LedgerPatch{
		Points:       domain.Numeric{}, // unset
		TokenBalance: numeric("-1"),
	})

	assert.True(t, svc.Points().Equal(domain.DefaultPoints))
	assert.True(t, svc.TokenBalance().Equal(domain.DefaultTokenBalance))
}

func TestService_PersistsAfterEveryOperation(t *testing.T) {
	svc, store := newTestService(t)

	_, err := svc.DepositToYield(domain.ProtocolUniswapV3, decimal.NewFromInt(100))
	require.NoError(t, err)

	// a fresh service over the same store sees the committed operation
	restored := NewService(store, nil, zap.NewNop())
	assert.True(t, restored.Points().Equal(decimal.NewFromInt(4900)))
	assert.Len(t, restored.Snapshot().Positions, 1)
}

type failingStore struct{}

func (failingStore) SaveLedger(*domain.Ledger) error     { return errors.New("disk full") }
func (failingStore) LoadLedger() (*domain.Ledger, error) { return nil, nil }

func TestService_PersistenceFailureIsNonFatal(t *testing.T) {
	svc := NewService(failingStore{}, nil, zap.NewNop())

	_, err := svc.Stake(decimal.NewFromInt(10))
	require.NoError(t, err, "a failed snapshot write must not fail the operation")
	assert.True(t, svc.StakedTokens().Equal(decimal.NewFromInt(10)))
}
