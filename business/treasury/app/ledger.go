// Package app implements the treasury application services: the profit
// ledger with rotation proposals and the multisig coordinator gating
// every fund-moving action.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/venuelabs/crossarb/business/treasury/domain"
	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/logger"
	"github.com/venuelabs/crossarb/internal/scaled"
)

const (
	ledgerTracerName = "crossarb/treasury/ledger"
	ledgerMeterName  = "crossarb/treasury/ledger"
)

// LedgerStore is the persistence boundary for ledger state. The ledger
// keeps its own in-process index and hands every mutation to the store;
// a store failure fails the mutation.
type LedgerStore interface {
	SaveProfit(ctx context.Context, entry domain.ProfitEntry) error
	SaveRotation(ctx context.Context, rotation domain.RotationTransaction) error
}

// NopStore discards everything. Useful for tests and dry runs.
type NopStore struct{}

func (NopStore) SaveProfit(context.Context, domain.ProfitEntry) error            { return nil }
func (NopStore) SaveRotation(context.Context, domain.RotationTransaction) error { return nil }

var _ LedgerStore = NopStore{}

// LedgerConfig holds rotation parameters.
type LedgerConfig struct {
	MinRotationAmount scaled.Amount
	Destinations      []domain.RotationDestination
}

type ledgerMetrics struct {
	profitsRecorded   metric.Int64Counter
	rotationsProposed metric.Int64Counter
	rotationsExecuted metric.Int64Counter
	rotationsReleased metric.Int64Counter
}

// Ledger records realized profits and turns them into rotation
// transactions. All state mutations happen under one lock; rotations
// are proposed here but only transition through the coordinator.
type Ledger struct {
	config LedgerConfig
	store  LedgerStore
	logger logger.LoggerInterface

	mu        sync.Mutex
	profits   map[string]*domain.ProfitEntry
	order     []string                                // profit IDs in record order
	rotations map[string]*domain.RotationTransaction
	rotatedBy map[string]string // profit ID -> owning rotation ID

	tracer  trace.Tracer
	metrics *ledgerMetrics
}

// NewLedger creates a ledger. The destination configuration is
// validated here; an invalid one never produces a ledger.
func NewLedger(cfg LedgerConfig, store LedgerStore, log logger.LoggerInterface) (*Ledger, error) {
	if err := domain.ValidateDestinations(cfg.Destinations); err != nil {
		return nil, err
	}
	if store == nil {
		store = NopStore{}
	}

	l := &Ledger{
		config:    cfg,
		store:     store,
		logger:    log,
		profits:   make(map[string]*domain.ProfitEntry),
		rotations: make(map[string]*domain.RotationTransaction),
		rotatedBy: make(map[string]string),
		tracer:    otel.Tracer(ledgerTracerName),
	}
	if err := l.initMetrics(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initMetrics() error {
	meter := otel.Meter(ledgerMeterName)
	var err error

	l.metrics = &ledgerMetrics{}

	l.metrics.profitsRecorded, err = meter.Int64Counter(
		"treasury_profits_recorded_total",
		metric.WithDescription("Profit entries recorded"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	l.metrics.rotationsProposed, err = meter.Int64Counter(
		"treasury_rotations_proposed_total",
		metric.WithDescription("Rotation transactions proposed"),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return err
	}

	l.metrics.rotationsExecuted, err = meter.Int64Counter(
		"treasury_rotations_executed_total",
		metric.WithDescription("Rotation transactions executed"),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return err
	}

	l.metrics.rotationsReleased, err = meter.Int64Counter(
		"treasury_rotations_released_total",
		metric.WithDescription("Rotations released back to the unrotated pool"),
		metric.WithUnit("{rotation}"),
	)
	return err
}

// RecordProfit appends an unverified profit entry.
func (l *Ledger) RecordProfit(ctx context.Context, amount scaled.Amount, source, evidenceRef string) (domain.ProfitEntry, error) {
	if !amount.IsPositive() {
		return domain.ProfitEntry{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("profit amount must be positive"))
	}

	entry := domain.ProfitEntry{
		ID:          uuid.NewString(),
		Amount:      amount,
		Source:      source,
		EvidenceRef: evidenceRef,
		RecordedAt:  time.Now(),
	}
	if err := l.store.SaveProfit(ctx, entry); err != nil {
		return domain.ProfitEntry{}, apperror.Wrap(err, apperror.CodeExternalServiceError, "persisting profit entry")
	}

	l.mu.Lock()
	l.profits[entry.ID] = &entry
	l.order = append(l.order, entry.ID)
	l.mu.Unlock()

	l.metrics.profitsRecorded.Add(ctx, 1)
	l.logger.Info(ctx, "profit recorded", "id", entry.ID, "amount", amount.String(), "source", source)
	return entry, nil
}

// UnrotatedTotal sums entries not yet claimed by any rotation.
func (l *Ledger) UnrotatedTotal(ctx context.Context) scaled.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unrotatedTotalLocked()
}

func (l *Ledger) unrotatedTotalLocked() scaled.Amount {
	total := scaled.Zero()
	for _, id := range l.order {
		if _, claimed := l.rotatedBy[id]; claimed {
			continue
		}
		total = total.Add(l.profits[id].Amount)
	}
	return total
}

// ProposeRotation claims every unrotated entry into a new pending
// rotation with the exact-sum destination split and its distribution
// proof. The claimed entries stay claimed until the rotation executes
// or is released.
func (l *Ledger) ProposeRotation(ctx context.Context) (domain.RotationTransaction, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.propose_rotation")
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.unrotatedTotalLocked()
	if total.LessThan(l.config.MinRotationAmount) {
		return domain.RotationTransaction{}, apperror.New(apperror.CodeInsufficientAmount,
			apperror.WithContext("unrotated total "+total.String()+" below minimum "+l.config.MinRotationAmount.String()))
	}

	var profitIDs []string
	for _, id := range l.order {
		if _, claimed := l.rotatedBy[id]; !claimed {
			profitIDs = append(profitIDs, id)
		}
	}

	distributions := domain.SplitByDestination(total, l.config.Destinations)
	tree, err := domain.NewProofTree(domain.ProofLeaves(distributions, profitIDs))
	if err != nil {
		return domain.RotationTransaction{}, err
	}

	rotation := domain.RotationTransaction{
		ID:            uuid.NewString(),
		ProfitIDs:     profitIDs,
		TotalAmount:   total,
		Distributions: distributions,
		ProofHash:     tree.Root(),
		Status:        domain.RotationPending,
		CreatedAt:     time.Now(),
	}
	if err := l.store.SaveRotation(ctx, rotation); err != nil {
		return domain.RotationTransaction{}, apperror.Wrap(err, apperror.CodeExternalServiceError, "persisting rotation")
	}

	l.rotations[rotation.ID] = &rotation
	for _, id := range profitIDs {
		l.rotatedBy[id] = rotation.ID
	}

	l.metrics.rotationsProposed.Add(ctx, 1)
	l.logger.Info(ctx, "rotation proposed",
		"id", rotation.ID, "total", total.String(), "entries", len(profitIDs))
	return rotation, nil
}

// Rotation returns a rotation by ID.
func (l *Ledger) Rotation(ctx context.Context, rotationID string) (domain.RotationTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rotation, ok := l.rotations[rotationID]
	if !ok {
		return domain.RotationTransaction{}, apperror.New(apperror.CodeUnknownRotation,
			apperror.WithContext("rotation "+rotationID))
	}
	return *rotation, nil
}

// MarkExecuted records a rotation as executed and marks its funding
// entries verified. Only a pending or approved rotation can execute.
func (l *Ledger) MarkExecuted(ctx context.Context, rotationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rotation, ok := l.rotations[rotationID]
	if !ok {
		return apperror.New(apperror.CodeUnknownRotation, apperror.WithContext("rotation "+rotationID))
	}
	if rotation.Status != domain.RotationPending && rotation.Status != domain.RotationApproved {
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithContext("rotation "+rotationID+" is "+string(rotation.Status)))
	}

	rotation.Status = domain.RotationExecuted
	for _, id := range rotation.ProfitIDs {
		l.profits[id].Verified = true
	}
	if err := l.store.SaveRotation(ctx, *rotation); err != nil {
		l.logger.Error(ctx, "persisting executed rotation", "id", rotationID, "error", err)
	}

	l.metrics.rotationsExecuted.Add(ctx, 1)
	l.logger.Info(ctx, "rotation executed", "id", rotationID, "total", rotation.TotalAmount.String())
	return nil
}

// Release marks a rotation rejected or expired and returns its entries
// to the unrotated pool. A released rotation is never resumed; the
// entries fund a fresh proposal instead.
func (l *Ledger) Release(ctx context.Context, rotationID string, status domain.RotationStatus) error {
	if status != domain.RotationRejected && status != domain.RotationExpired {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("release status must be rejected or expired"))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rotation, ok := l.rotations[rotationID]
	if !ok {
		return apperror.New(apperror.CodeUnknownRotation, apperror.WithContext("rotation "+rotationID))
	}
	if rotation.Status != domain.RotationPending && rotation.Status != domain.RotationApproved {
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithContext("rotation "+rotationID+" is "+string(rotation.Status)))
	}

	rotation.Status = status
	for _, id := range rotation.ProfitIDs {
		delete(l.rotatedBy, id)
	}
	if err := l.store.SaveRotation(ctx, *rotation); err != nil {
		l.logger.Error(ctx, "persisting released rotation", "id", rotationID, "error", err)
	}

	l.metrics.rotationsReleased.Add(ctx, 1)
	l.logger.Info(ctx, "rotation released", "id", rotationID, "status", string(status))
	return nil
}

// VerifyDistribution checks one distribution against a rotation's proof
// hash using a freshly generated audit path.
func (l *Ledger) VerifyDistribution(ctx context.Context, rotationID string, dist domain.Distribution) error {
	rotation, err := l.Rotation(ctx, rotationID)
	if err != nil {
		return err
	}

	leaves := domain.ProofLeaves(rotation.Distributions, rotation.ProfitIDs)
	tree, err := domain.NewProofTree(leaves)
	if err != nil {
		return err
	}

	target := domain.ProofLeaves([]domain.Distribution{dist}, nil)[0]
	for i, leaf := range leaves {
		if string(leaf) != string(target) {
			continue
		}
		path, err := tree.Proof(i)
		if err != nil {
			return err
		}
		if domain.VerifyProof(rotation.ProofHash, leaf, path) {
			return nil
		}
		break
	}
	return apperror.New(apperror.CodeProofVerificationFailed,
		apperror.WithContext("distribution to "+dist.Address.Hex()))
}
