// Package domain contains the core domain types for the treasury context.
package domain

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/scaled"
)

// ProfitEntry is one realized profit recorded in the ledger. Entries are
// unverified until the rotation that distributes them executes.
type ProfitEntry struct {
	ID          string
	Amount      scaled.Amount
	Source      string
	EvidenceRef string
	RecordedAt  time.Time
	Verified    bool
}

// RotationDestination is a treasury account receiving a fixed share of
// each rotation. Kind tells the settlement side what the account is for
// (operational wallet, reserve, reinvestment).
type RotationDestination struct {
	Name          string
	Address       common.Address
	PercentageBps int64
	Kind          string
	Active        bool
}

// ValidateDestinations checks that the active destinations' shares sum
// to exactly 10000 bps. Rejected configurations never reach the ledger.
func ValidateDestinations(destinations []RotationDestination) error {
	var sum int64
	active := 0
	for _, d := range destinations {
		if d.PercentageBps <= 0 || d.PercentageBps > scaled.BpsDenominator {
			return apperror.New(apperror.CodeInvalidDestinationConfig,
				apperror.WithContext("destination "+d.Name+" has percentage out of range"))
		}
		if !d.Active {
			continue
		}
		active++
		sum += d.PercentageBps
	}
	if active == 0 {
		return apperror.New(apperror.CodeInvalidDestinationConfig,
			apperror.WithContext("no active destinations"))
	}
	if sum != scaled.BpsDenominator {
		return apperror.New(apperror.CodeInvalidDestinationConfig,
			apperror.WithContext("active destination percentages do not sum to 10000 bps"))
	}
	return nil
}

// Distribution is one destination's share of a rotation.
type Distribution struct {
	Name    string
	Address common.Address
	Kind    string
	Amount  scaled.Amount
}

// SplitByDestination divides total across the active destinations by
// their bps shares using integer division. The rounding remainder goes
// to the first active destination so the distributed amounts always sum
// to total exactly.
func SplitByDestination(total scaled.Amount, destinations []RotationDestination) []Distribution {
	var out []Distribution
	distributed := scaled.Zero()
	for _, d := range destinations {
		if !d.Active {
			continue
		}
		share := total.MulBps(d.PercentageBps)
		out = append(out, Distribution{Name: d.Name, Address: d.Address, Kind: d.Kind, Amount: share})
		distributed = distributed.Add(share)
	}
	if len(out) == 0 {
		return nil
	}
	if remainder, err := total.Sub(distributed); err == nil && !remainder.IsZero() {
		out[0].Amount = out[0].Amount.Add(remainder)
	}
	return out
}

// RotationStatus is the rotation lifecycle state.
type RotationStatus string

const (
	RotationPending  RotationStatus = "pending"
	RotationApproved RotationStatus = "approved"
	RotationRejected RotationStatus = "rejected"
	RotationExecuted RotationStatus = "executed"
	RotationExpired  RotationStatus = "expired"
)

// RotationTransaction distributes a batch of profit entries across the
// configured destinations. Status transitions only happen through
// multisig approval, never directly.
type RotationTransaction struct {
	ID            string
	ProfitIDs     []string
	TotalAmount   scaled.Amount
	Distributions []Distribution
	ProofHash     common.Hash
	Status        RotationStatus
	CreatedAt     time.Time
}

// ProofLeaves returns the canonical leaf set committing a rotation:
// one leaf per (address, amount) pair sorted by address, then one leaf
// per contributing profit ID sorted lexicographically. Changing any
// amount, destination, or funding entry changes the root.
func ProofLeaves(distributions []Distribution, profitIDs []string) [][]byte {
	dists := make([]Distribution, len(distributions))
	copy(dists, distributions)
	sort.Slice(dists, func(i, j int) bool {
		return dists[i].Address.Cmp(dists[j].Address) < 0
	})

	ids := make([]string, len(profitIDs))
	copy(ids, profitIDs)
	sort.Strings(ids)

	leaves := make([][]byte, 0, len(dists)+len(ids))
	for _, d := range dists {
		leaf := make([]byte, 0, common.AddressLength+32)
		leaf = append(leaf, d.Address.Bytes()...)
		leaf = append(leaf, common.LeftPadBytes(d.Amount.Raw().Bytes(), 32)...)
		leaves = append(leaves, leaf)
	}
	for _, id := range ids {
		leaves = append(leaves, []byte(id))
	}
	return leaves
}
