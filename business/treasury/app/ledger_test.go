package app

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuelabs/crossarb/business/treasury/domain"
	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/logger"
	"github.com/venuelabs/crossarb/internal/scaled"
)

func testDestinations() []domain.RotationDestination {
	return []domain.RotationDestination{
		{Name: "reinvest", Address: common.HexToAddress("0x11"), PercentageBps: 7000, Active: true},
		{Name: "reserve", Address: common.HexToAddress("0x22"), PercentageBps: 2000, Active: true},
		{Name: "ops", Address: common.HexToAddress("0x33"), PercentageBps: 1000, Active: true},
	}
}

func newTestLedger(t *testing.T, minRotation int64) *Ledger {
	t.Helper()
	l, err := NewLedger(LedgerConfig{
		MinRotationAmount: scaled.FromUnits(minRotation),
		Destinations:      testDestinations(),
	}, nil, logger.Nop())
	require.NoError(t, err)
	return l
}

func TestNewLedgerRejectsBadDestinations(t *testing.T) {
	dests := testDestinations()
	dests[2].PercentageBps = 500 // 9500 total

	_, err := NewLedger(LedgerConfig{Destinations: dests}, nil, logger.Nop())
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidDestinationConfig))
}

func TestRecordProfitRejectsNonPositive(t *testing.T) {
	l := newTestLedger(t, 1)
	_, err := l.RecordProfit(context.Background(), scaled.Zero(), "arb", "tx-1")
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestUnrotatedTotal(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)

	assert.True(t, l.UnrotatedTotal(ctx).IsZero())

	_, err := l.RecordProfit(ctx, scaled.FromUnits(3), "arb", "tx-1")
	require.NoError(t, err)
	_, err = l.RecordProfit(ctx, scaled.FromUnits(7), "arb", "tx-2")
	require.NoError(t, err)

	assert.True(t, scaled.FromUnits(10).Equals(l.UnrotatedTotal(ctx)))
}

func TestProposeRotationBelowMinimum(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 100)

	_, err := l.RecordProfit(ctx, scaled.FromUnits(99), "arb", "tx-1")
	require.NoError(t, err)

	_, err = l.ProposeRotation(ctx)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientAmount))
	assert.True(t, scaled.FromUnits(99).Equals(l.UnrotatedTotal(ctx)), "a failed proposal has no side effects")
}

func TestProposeRotationExactSplit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)

	_, err := l.RecordProfit(ctx, scaled.FromInt64(1_000_000_000), "arb", "tx-1")
	require.NoError(t, err)

	rotation, err := l.ProposeRotation(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.RotationPending, rotation.Status)
	require.Len(t, rotation.Distributions, 3)
	assert.True(t, scaled.FromInt64(700_000_000).Equals(rotation.Distributions[0].Amount))
	assert.True(t, scaled.FromInt64(200_000_000).Equals(rotation.Distributions[1].Amount))
	assert.True(t, scaled.FromInt64(100_000_000).Equals(rotation.Distributions[2].Amount))
	assert.NotEqual(t, common.Hash{}, rotation.ProofHash)

	assert.True(t, l.UnrotatedTotal(ctx).IsZero(), "claimed entries leave the unrotated pool")
}

func TestProposeRotationClaimsOnlyOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)

	_, err := l.RecordProfit(ctx, scaled.FromUnits(10), "arb", "tx-1")
	require.NoError(t, err)
	first, err := l.ProposeRotation(ctx)
	require.NoError(t, err)

	_, err = l.RecordProfit(ctx, scaled.FromUnits(5), "arb", "tx-2")
	require.NoError(t, err)
	second, err := l.ProposeRotation(ctx)
	require.NoError(t, err)

	assert.True(t, scaled.FromUnits(10).Equals(first.TotalAmount))
	assert.True(t, scaled.FromUnits(5).Equals(second.TotalAmount))
	assert.Len(t, second.ProfitIDs, 1)
}

func TestMarkExecutedVerifiesEntries(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)

	entry, err := l.RecordProfit(ctx, scaled.FromUnits(10), "arb", "tx-1")
	require.NoError(t, err)
	rotation, err := l.ProposeRotation(ctx)
	require.NoError(t, err)

	assert.False(t, l.profits[entry.ID].Verified, "entries stay unverified until execution")

	require.NoError(t, l.MarkExecuted(ctx, rotation.ID))
	assert.True(t, l.profits[entry.ID].Verified)

	got, err := l.Rotation(ctx, rotation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RotationExecuted, got.Status)

	err = l.MarkExecuted(ctx, rotation.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidState), "execution is not repeatable")
}

func TestReleaseReturnsEntriesToPool(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)

	_, err := l.RecordProfit(ctx, scaled.FromUnits(10), "arb", "tx-1")
	require.NoError(t, err)
	rotation, err := l.ProposeRotation(ctx)
	require.NoError(t, err)
	require.True(t, l.UnrotatedTotal(ctx).IsZero())

	require.NoError(t, l.Release(ctx, rotation.ID, domain.RotationRejected))
	assert.True(t, scaled.FromUnits(10).Equals(l.UnrotatedTotal(ctx)), "rejected rotations fund a fresh proposal")

	got, err := l.Rotation(ctx, rotation.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RotationRejected, got.Status)

	err = l.Release(ctx, rotation.ID, domain.RotationExpired)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidState))
}

func TestReleaseRejectsBadStatus(t *testing.T) {
	l := newTestLedger(t, 1)
	err := l.Release(context.Background(), "missing", domain.RotationExecuted)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidInput))
}

func TestRotationUnknown(t *testing.T) {
	l := newTestLedger(t, 1)
	_, err := l.Rotation(context.Background(), "missing")
	assert.True(t, apperror.IsCode(err, apperror.CodeUnknownRotation))
}

func TestVerifyDistribution(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, 1)

	_, err := l.RecordProfit(ctx, scaled.FromInt64(1_000_000_000), "arb", "tx-1")
	require.NoError(t, err)
	rotation, err := l.ProposeRotation(ctx)
	require.NoError(t, err)

	for _, dist := range rotation.Distributions {
		assert.NoError(t, l.VerifyDistribution(ctx, rotation.ID, dist))
	}

	tampered := rotation.Distributions[0]
	tampered.Amount = tampered.Amount.Add(scaled.FromInt64(1))
	err = l.VerifyDistribution(ctx, rotation.ID, tampered)
	assert.True(t, apperror.IsCode(err, apperror.CodeProofVerificationFailed))
}
