package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/venuelabs/crossarb/business/treasury/domain"
	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/logger"
)

const coordinatorMeterName = "crossarb/treasury/coordinator"

// CoordinatorConfig holds the signature thresholds.
type CoordinatorConfig struct {
	RequiredSignatures int
	EmergencyThreshold int
	ActionTTL          time.Duration
}

// DefaultCoordinatorConfig returns a 3-of-5 style configuration with a
// 2-signer emergency path and a 24 hour action window.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		RequiredSignatures: 3,
		EmergencyThreshold: 2,
		ActionTTL:          24 * time.Hour,
	}
}

type coordinatorMetrics struct {
	signaturesRecorded metric.Int64Counter
	actionsApproved    metric.Int64Counter
	actionsRejected    metric.Int64Counter
	actionsExpired     metric.Int64Counter
	actionsExecuted    metric.Int64Counter
}

// actionEntry serializes all access to one pending action. Two
// concurrent Sign calls on the same action can never both observe a
// sub-threshold count.
type actionEntry struct {
	mu     sync.Mutex
	action domain.PendingAction
}

// Coordinator gates treasury-moving actions behind an M-of-N signature
// threshold. Expiry is checked lazily on every access; there is no
// background sweep. A failed or expired action is never resumed.
type Coordinator struct {
	config  CoordinatorConfig
	signers map[string]domain.Signer
	active  int
	logger  logger.LoggerInterface

	mu      sync.Mutex // guards the actions map, not individual actions
	actions map[string]*actionEntry

	metrics *coordinatorMetrics
	now     func() time.Time
}

// NewCoordinator creates a coordinator over a fixed signer set. The
// thresholds must be satisfiable by the active signers.
func NewCoordinator(cfg CoordinatorConfig, signers []domain.Signer, log logger.LoggerInterface) (*Coordinator, error) {
	byID := make(map[string]domain.Signer, len(signers))
	active := 0
	for _, s := range signers {
		if _, dup := byID[s.ID]; dup {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext("duplicate signer "+s.ID))
		}
		byID[s.ID] = s
		if s.Active {
			active++
		}
	}

	if cfg.RequiredSignatures < 1 || cfg.RequiredSignatures > active {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("required signatures must be between 1 and the active signer count"))
	}
	if cfg.EmergencyThreshold < 2 || cfg.EmergencyThreshold >= cfg.RequiredSignatures {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("emergency threshold must be at least 2 and below the normal threshold"))
	}
	if cfg.ActionTTL <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("action ttl must be positive"))
	}

	c := &Coordinator{
		config:  cfg,
		signers: byID,
		active:  active,
		logger:  log,
		actions: make(map[string]*actionEntry),
		now:     time.Now,
	}
	if err := c.initMetrics(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) initMetrics() error {
	meter := otel.Meter(coordinatorMeterName)
	var err error

	c.metrics = &coordinatorMetrics{}

	c.metrics.signaturesRecorded, err = meter.Int64Counter(
		"treasury_signatures_total",
		metric.WithDescription("Signatures recorded on pending actions"),
		metric.WithUnit("{signature}"),
	)
	if err != nil {
		return err
	}

	c.metrics.actionsApproved, err = meter.Int64Counter(
		"treasury_actions_approved_total",
		metric.WithDescription("Actions reaching the signature threshold"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return err
	}

	c.metrics.actionsRejected, err = meter.Int64Counter(
		"treasury_actions_rejected_total",
		metric.WithDescription("Actions rejected by short-circuit"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return err
	}

	c.metrics.actionsExpired, err = meter.Int64Counter(
		"treasury_actions_expired_total",
		metric.WithDescription("Actions expired before reaching a verdict"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return err
	}

	c.metrics.actionsExecuted, err = meter.Int64Counter(
		"treasury_actions_executed_total",
		metric.WithDescription("Approved actions executed"),
		metric.WithUnit("{action}"),
	)
	return err
}

// Propose creates a pending action awaiting signatures.
func (c *Coordinator) Propose(ctx context.Context, kind domain.ActionKind, payload string) (domain.PendingAction, error) {
	now := c.now()
	action := domain.PendingAction{
		ID:                 uuid.NewString(),
		Kind:               kind,
		Payload:            payload,
		RequiredSignatures: c.config.RequiredSignatures,
		CreatedAt:          now,
		ExpiresAt:          now.Add(c.config.ActionTTL),
		Status:             domain.ActionPending,
	}

	c.mu.Lock()
	c.actions[action.ID] = &actionEntry{action: action}
	c.mu.Unlock()

	c.logger.Info(ctx, "action proposed",
		"id", action.ID, "kind", string(kind), "payload", payload, "required", action.RequiredSignatures)
	return action, nil
}

// Sign records one signer's vote. The action transitions to approved
// the instant approvals reach the threshold, and to rejected the moment
// the remaining signers can no longer reach it. No state changes on any
// error.
func (c *Coordinator) Sign(ctx context.Context, actionID, signerID string, vote domain.Vote, payload []byte) (domain.PendingAction, error) {
	entry, err := c.entry(actionID)
	if err != nil {
		return domain.PendingAction{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	action := &entry.action
	if c.expireLocked(ctx, action) {
		return domain.PendingAction{}, apperror.New(apperror.CodeActionExpired,
			apperror.WithContext("action "+actionID))
	}
	if action.Status != domain.ActionPending {
		return domain.PendingAction{}, apperror.New(apperror.CodeInvalidState,
			apperror.WithContext("action "+actionID+" is "+string(action.Status)))
	}

	signer, ok := c.signers[signerID]
	if !ok {
		return domain.PendingAction{}, apperror.New(apperror.CodeUnknownSigner,
			apperror.WithContext("signer "+signerID))
	}
	if !signer.Active {
		return domain.PendingAction{}, apperror.New(apperror.CodeInactiveSigner,
			apperror.WithContext("signer "+signerID))
	}
	if action.HasSigned(signerID) {
		return domain.PendingAction{}, apperror.New(apperror.CodeAlreadySigned,
			apperror.WithContext("signer "+signerID+" on action "+actionID))
	}

	action.Signatures = append(action.Signatures, domain.Signature{
		SignerID: signerID,
		Vote:     vote,
		Payload:  payload,
		SignedAt: c.now(),
	})
	c.metrics.signaturesRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("vote", string(vote))))

	switch {
	case action.Approvals() >= action.RequiredSignatures:
		action.Status = domain.ActionApproved
		c.metrics.actionsApproved.Add(ctx, 1)
		c.logger.Info(ctx, "action approved", "id", actionID, "approvals", action.Approvals())
	case c.active-action.Rejections() < action.RequiredSignatures:
		action.Status = domain.ActionRejected
		c.metrics.actionsRejected.Add(ctx, 1)
		c.logger.Info(ctx, "action rejected", "id", actionID, "rejections", action.Rejections())
	}

	return *action, nil
}

// Execute transitions an approved action to executed. It never
// re-executes: a second call fails with an invalid state error.
func (c *Coordinator) Execute(ctx context.Context, actionID string) (domain.PendingAction, error) {
	entry, err := c.entry(actionID)
	if err != nil {
		return domain.PendingAction{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	action := &entry.action
	if c.expireLocked(ctx, action) {
		return domain.PendingAction{}, apperror.New(apperror.CodeActionExpired,
			apperror.WithContext("action "+actionID))
	}
	if action.Status != domain.ActionApproved {
		return domain.PendingAction{}, apperror.New(apperror.CodeInvalidState,
			apperror.WithContext("action "+actionID+" is "+string(action.Status)))
	}

	action.Status = domain.ActionExecuted
	c.metrics.actionsExecuted.Add(ctx, 1)
	c.logger.Info(ctx, "action executed", "id", actionID, "kind", string(action.Kind))
	return *action, nil
}

// EmergencyAction creates and immediately approves an action under the
// lowered emergency threshold. It still demands that many distinct
// active signers; a single actor can never trigger it.
func (c *Coordinator) EmergencyAction(ctx context.Context, kind domain.ActionKind, payload string, signerIDs []string) (domain.PendingAction, error) {
	if len(signerIDs) < c.config.EmergencyThreshold {
		return domain.PendingAction{}, apperror.New(apperror.CodeValidationError,
			apperror.WithContext("emergency action requires more signers"))
	}

	seen := make(map[string]bool, len(signerIDs))
	for _, id := range signerIDs {
		if seen[id] {
			return domain.PendingAction{}, apperror.New(apperror.CodeAlreadySigned,
				apperror.WithContext("signer "+id+" listed twice"))
		}
		seen[id] = true

		signer, ok := c.signers[id]
		if !ok {
			return domain.PendingAction{}, apperror.New(apperror.CodeUnknownSigner,
				apperror.WithContext("signer "+id))
		}
		if !signer.Active {
			return domain.PendingAction{}, apperror.New(apperror.CodeInactiveSigner,
				apperror.WithContext("signer "+id))
		}
	}

	now := c.now()
	action := domain.PendingAction{
		ID:                 uuid.NewString(),
		Kind:               kind,
		Payload:            payload,
		RequiredSignatures: c.config.EmergencyThreshold,
		CreatedAt:          now,
		ExpiresAt:          now.Add(c.config.ActionTTL),
		Status:             domain.ActionApproved,
	}
	for _, id := range signerIDs {
		action.Signatures = append(action.Signatures, domain.Signature{
			SignerID: id,
			Vote:     domain.VoteApprove,
			SignedAt: now,
		})
	}

	c.mu.Lock()
	c.actions[action.ID] = &actionEntry{action: action}
	c.mu.Unlock()

	c.metrics.actionsApproved.Add(ctx, 1)
	c.logger.Warn(ctx, "emergency action approved",
		"id", action.ID, "kind", string(kind), "signers", len(signerIDs))
	return action, nil
}

// Action returns an action by ID, applying lazy expiry.
func (c *Coordinator) Action(ctx context.Context, actionID string) (domain.PendingAction, error) {
	entry, err := c.entry(actionID)
	if err != nil {
		return domain.PendingAction{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	c.expireLocked(ctx, &entry.action)
	return entry.action, nil
}

func (c *Coordinator) entry(actionID string) (*actionEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.actions[actionID]
	if !ok {
		return nil, apperror.New(apperror.CodeUnknownAction,
			apperror.WithContext("action "+actionID))
	}
	return entry, nil
}

// expireLocked applies lazy expiry. Caller holds the action lock.
func (c *Coordinator) expireLocked(ctx context.Context, action *domain.PendingAction) bool {
	if !action.IsExpired(c.now()) {
		return action.Status == domain.ActionExpired
	}
	action.Status = domain.ActionExpired
	c.metrics.actionsExpired.Add(ctx, 1)
	c.logger.Warn(ctx, "action expired", "id", action.ID, "kind", string(action.Kind))
	return true
}
