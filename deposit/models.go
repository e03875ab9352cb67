package deposit

import (
	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/types"
)

type Type string

const (
	// TypeInitial is an externally funded contribution, including top-ups
	// by existing investors. Its external reference is pre-verified by the
	// funding collaborator before it reaches the ledger.
	TypeInitial Type = "initial"
	// TypeCarryover is the engine-generated seed of a new cycle: an
	// investor's un-withdrawn principal plus their reinvestment share.
	TypeCarryover Type = "carryover"
	// TypeReinvestment is the engine-generated 16% cut of an approved
	// withdrawal, returned to the same cycle.
	TypeReinvestment Type = "reinvestment"
)

// Deposit is an immutable credit of capital to an investor within a cycle.
// Deposits are never updated or deleted; corrections are new entries.
type Deposit struct {
	types.Entity
	ID         id.DepositID  `json:"id"`
	InvestorID id.InvestorID `json:"investor_id"`
	CycleID    id.CycleID    `json:"cycle_id"`
	Amount     types.Money   `json:"amount"`
	Type       Type          `json:"type"`
	// ExternalReference identifies the verified funding transaction for
	// initial deposits; empty for engine-generated entries.
	ExternalReference string `json:"external_reference,omitempty"`
}

// Valid reports whether t is one of the known deposit types.
func (t Type) Valid() bool {
	switch t {
	case TypeInitial, TypeCarryover, TypeReinvestment:
		return true
	}
	return false
}
