package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuelabs/crossarb/business/treasury/domain"
	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/logger"
)

func fiveSigners() []domain.Signer {
	signers := make([]domain.Signer, 5)
	for i := range signers {
		signers[i] = domain.Signer{
			ID:      fmt.Sprintf("s%d", i+1),
			Address: common.BigToAddress(common.Big1),
			Role:    domain.RolePrimary,
			Active:  true,
		}
	}
	return signers
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(DefaultCoordinatorConfig(), fiveSigners(), logger.Nop())
	require.NoError(t, err)
	return c
}

func TestNewCoordinatorValidation(t *testing.T) {
	log := logger.Nop()

	cfg := DefaultCoordinatorConfig()
	cfg.RequiredSignatures = 6
	_, err := NewCoordinator(cfg, fiveSigners(), log)
	assert.True(t, apperror.IsCode(err, apperror.CodeConfigurationError), "threshold above active signers")

	cfg = DefaultCoordinatorConfig()
	cfg.EmergencyThreshold = 3
	_, err = NewCoordinator(cfg, fiveSigners(), log)
	assert.True(t, apperror.IsCode(err, apperror.CodeConfigurationError), "emergency must be below normal threshold")

	cfg = DefaultCoordinatorConfig()
	cfg.EmergencyThreshold = 1
	_, err = NewCoordinator(cfg, fiveSigners(), log)
	assert.True(t, apperror.IsCode(err, apperror.CodeConfigurationError), "a single actor is never an emergency quorum")

	dup := fiveSigners()
	dup[1].ID = dup[0].ID
	_, err = NewCoordinator(DefaultCoordinatorConfig(), dup, log)
	assert.True(t, apperror.IsCode(err, apperror.CodeConfigurationError))
}

func TestApprovedOnThirdVoteNotBefore(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t)

	action, err := c.Propose(ctx, domain.ActionRotation, "rot-1")
	require.NoError(t, err)

	got, err := c.Sign(ctx, action.ID, "s1", domain.VoteApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPending, got.Status)

	got, err = c.Sign(ctx, action.ID, "s2", domain.VoteApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPending, got.Status)

	got, err = c.Sign(ctx, action.ID, "s3", domain.VoteApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionApproved, got.Status)
	assert.Equal(t, 3, got.Approvals())
}

func TestRejectionShortCircuit(t *testing.T) {
	// 5 active, 3 required: after 3 rejections only 2 possible
	// approvals remain, so the action dies without waiting for expiry.
	ctx := context.Background()
	c := newTestCoordinator(t)

	action, err := c.Propose(ctx, domain.ActionRotation, "rot-1")
	require.NoError(t, err)

	for _, signer := range []string{"s1", "s2"} {
		got, err := c.Sign(ctx, action.ID, signer, domain.VoteReject, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.ActionPending, got.Status)
	}

	got, err := c.Sign(ctx, action.ID, "s3", domain.VoteReject, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRejected, got.Status)

	_, err = c.Sign(ctx, action.ID, "s4", domain.VoteApprove, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidState), "a rejected action takes no more votes")
}

func TestSignErrors(t *testing.T) {
	ctx := context.Background()

	signers := fiveSigners()
	signers[4].Active = false
	c, err := NewCoordinator(DefaultCoordinatorConfig(), signers, logger.Nop())
	require.NoError(t, err)

	action, err := c.Propose(ctx, domain.ActionRotation, "rot-1")
	require.NoError(t, err)

	_, err = c.Sign(ctx, "missing", "s1", domain.VoteApprove, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnknownAction))

	_, err = c.Sign(ctx, action.ID, "nobody", domain.VoteApprove, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnknownSigner))

	_, err = c.Sign(ctx, action.ID, "s5", domain.VoteApprove, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeInactiveSigner))

	_, err = c.Sign(ctx, action.ID, "s1", domain.VoteApprove, nil)
	require.NoError(t, err)
	_, err = c.Sign(ctx, action.ID, "s1", domain.VoteApprove, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadySigned))

	got, err := c.Action(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Approvals(), "failed signs never mutate the action")
}

func TestLazyExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t)

	action, err := c.Propose(ctx, domain.ActionRotation, "rot-1")
	require.NoError(t, err)

	c.now = func() time.Time { return action.ExpiresAt.Add(time.Second) }

	_, err = c.Sign(ctx, action.ID, "s1", domain.VoteApprove, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeActionExpired))

	got, err := c.Action(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionExpired, got.Status)
}

func TestExecuteLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t)

	action, err := c.Propose(ctx, domain.ActionRotation, "rot-1")
	require.NoError(t, err)

	_, err = c.Execute(ctx, action.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidState), "pending actions cannot execute")

	for _, signer := range []string{"s1", "s2", "s3"} {
		_, err = c.Sign(ctx, action.ID, signer, domain.VoteApprove, nil)
		require.NoError(t, err)
	}

	got, err := c.Execute(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionExecuted, got.Status)

	_, err = c.Execute(ctx, action.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidState), "execution never repeats")
}

func TestExecuteUnknownAction(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.Execute(context.Background(), "missing")
	assert.True(t, apperror.IsCode(err, apperror.CodeUnknownAction))
}

func TestEmergencyAction(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t)

	action, err := c.EmergencyAction(ctx, domain.ActionWithdrawal, "drain", []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionApproved, action.Status)
	assert.Equal(t, 2, action.Approvals())

	got, err := c.Execute(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionExecuted, got.Status)
}

func TestEmergencyActionGuards(t *testing.T) {
	ctx := context.Background()

	signers := fiveSigners()
	signers[1].Active = false
	c, err := NewCoordinator(DefaultCoordinatorConfig(), signers, logger.Nop())
	require.NoError(t, err)

	_, err = c.EmergencyAction(ctx, domain.ActionWithdrawal, "drain", []string{"s1"})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidationError), "below the emergency threshold")

	_, err = c.EmergencyAction(ctx, domain.ActionWithdrawal, "drain", []string{"s1", "s1"})
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadySigned), "duplicate signers are one actor")

	_, err = c.EmergencyAction(ctx, domain.ActionWithdrawal, "drain", []string{"s1", "s2"})
	assert.True(t, apperror.IsCode(err, apperror.CodeInactiveSigner))

	_, err = c.EmergencyAction(ctx, domain.ActionWithdrawal, "drain", []string{"s1", "nobody"})
	assert.True(t, apperror.IsCode(err, apperror.CodeUnknownSigner))
}

func TestConcurrentSignsSingleApproval(t *testing.T) {
	// All five signers race. Exactly three approvals can land before
	// the threshold closes the action; the rest fail with a state
	// error, never a double transition.
	ctx := context.Background()
	c := newTestCoordinator(t)

	action, err := c.Propose(ctx, domain.ActionRotation, "rot-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	approvals := make([]domain.ActionStatus, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := c.Sign(ctx, action.ID, fmt.Sprintf("s%d", i+1), domain.VoteApprove, nil)
			approvals[i] = got.Status
			errs[i] = err
		}(i)
	}
	wg.Wait()

	transitions := 0
	for i := range approvals {
		if errs[i] == nil && approvals[i] == domain.ActionApproved {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions, "exactly one sign call observes the transition")

	got, err := c.Action(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionApproved, got.Status)
	assert.Equal(t, 3, got.Approvals())
}
