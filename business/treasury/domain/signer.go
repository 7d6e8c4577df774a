package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SignerRole classifies a treasury signer.
type SignerRole string

const (
	RolePrimary   SignerRole = "primary"
	RoleBackup    SignerRole = "backup"
	RoleEmergency SignerRole = "emergency"
)

// Signer is one authorized treasury key holder.
type Signer struct {
	ID      string
	Address common.Address
	Role    SignerRole
	Active  bool
}

// Vote is a signer's position on a pending action.
type Vote string

const (
	VoteApprove Vote = "approve"
	VoteReject  Vote = "reject"
)

// Signature is one signer's recorded vote. Signatures are append-only;
// a signer never amends or withdraws one.
type Signature struct {
	SignerID string
	Vote     Vote
	Payload  []byte
	SignedAt time.Time
}

// ActionKind classifies what a pending action moves or changes.
type ActionKind string

const (
	ActionRotation     ActionKind = "rotation"
	ActionConfigChange ActionKind = "config_change"
	ActionWithdrawal   ActionKind = "withdrawal"
)

// ActionStatus is the pending action lifecycle state.
type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionApproved ActionStatus = "approved"
	ActionRejected ActionStatus = "rejected"
	ActionExpired  ActionStatus = "expired"
	ActionExecuted ActionStatus = "executed"
)

// PendingAction is a treasury-moving operation awaiting its signature
// threshold. Payload references the object being acted on, typically a
// rotation transaction ID.
type PendingAction struct {
	ID                 string
	Kind               ActionKind
	Payload            string
	Signatures         []Signature
	RequiredSignatures int
	CreatedAt          time.Time
	ExpiresAt          time.Time
	Status             ActionStatus
}

// HasSigned reports whether the signer already voted on this action.
func (a *PendingAction) HasSigned(signerID string) bool {
	for _, sig := range a.Signatures {
		if sig.SignerID == signerID {
			return true
		}
	}
	return false
}

// Approvals counts approve votes.
func (a *PendingAction) Approvals() int {
	return a.countVotes(VoteApprove)
}

// Rejections counts reject votes.
func (a *PendingAction) Rejections() int {
	return a.countVotes(VoteReject)
}

func (a *PendingAction) countVotes(vote Vote) int {
	n := 0
	for _, sig := range a.Signatures {
		if sig.Vote == vote {
			n++
		}
	}
	return n
}

// IsExpired reports whether the action has outlived its deadline. Only
// actions still pending can expire; terminal states stay terminal.
func (a *PendingAction) IsExpired(now time.Time) bool {
	return a.Status == ActionPending && now.After(a.ExpiresAt)
}
