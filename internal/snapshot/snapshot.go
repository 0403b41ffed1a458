package snapshot

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// BaseDenom is the chain's base token denomination.
	BaseDenom = "note"
	// DisplayDenom is the human-facing token denomination.
	DisplayDenom = "MLD"
)

// NoteUnitsPerMLD is the fixed conversion between base and display units:
// 1 MLD = 1,000,000 note. All stored amounts are base units; division
// happens only at render time.
var NoteUnitsPerMLD = decimal.NewFromInt(1_000_000)

// Validator identifies a bonded validator and its stake weight.
type Validator struct {
	Address   string
	Moniker   string
	VotePower decimal.Decimal
}

// Feeder carries a validator's oracle feeder delegation. An empty Address
// means no feeder is configured. A nil Balance means the balance is
// unknown for this cycle, which is not the same as zero.
type Feeder struct {
	Address string
	Balance *decimal.Decimal
}

// ValidatorState is the fully joined per-validator row of one snapshot.
type ValidatorState struct {
	Address     string
	Moniker     string
	VotePower   decimal.Decimal
	MissCounter uint64
	Feeder      Feeder
}

// HasFeeder reports whether a feeder address is configured.
func (v ValidatorState) HasFeeder() bool {
	return v.Feeder.Address != ""
}

// ExchangeRate is one oracle exchange-rate quote.
type ExchangeRate struct {
	Denom string
	Rate  decimal.Decimal
}

// Snapshot is one point-in-time joined view of all monitored validators.
// Snapshots are treated as immutable once built.
type Snapshot struct {
	TakenAt    time.Time
	Validators map[string]ValidatorState
	Rates      []ExchangeRate
}

// Size returns the number of validators in the snapshot.
func (s *Snapshot) Size() int {
	if s == nil {
		return 0
	}
	return len(s.Validators)
}
