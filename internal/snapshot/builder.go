package snapshot

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Records holds the raw, independently fetched record sets of one cycle.
// Misses and Feeders are keyed by validator address; Balances is keyed by
// validator address too, resolved through that validator's feeder.
type Records struct {
	Validators []Validator
	Misses     map[string]uint64
	Feeders    map[string]string
	Balances   map[string]decimal.Decimal
	Rates      []ExchangeRate
}

// Build joins the fetched record sets into a snapshot.
//
// A validator without a miss-counter record cannot be classified and is
// dropped with a warning. A miss counter without a matching validator
// record is a data-integrity anomaly and is filtered out. A validator
// without a feeder is retained with an absent feeder; a feeder without a
// balance record is retained with an unknown balance.
func Build(rec Records, at time.Time, logger zerolog.Logger) *Snapshot {
	log := logger.With().Str("component", "snapshot_builder").Logger()

	validators := make(map[string]ValidatorState, len(rec.Validators))
	for _, val := range rec.Validators {
		miss, ok := rec.Misses[val.Address]
		if !ok {
			log.Warn().
				Str("validator", val.Address).
				Str("moniker", val.Moniker).
				Msg("miss counter unavailable, dropping validator from snapshot")
			continue
		}

		state := ValidatorState{
			Address:     val.Address,
			Moniker:     val.Moniker,
			VotePower:   val.VotePower,
			MissCounter: miss,
		}
		if feeder := rec.Feeders[val.Address]; feeder != "" {
			state.Feeder.Address = feeder
			if bal, ok := rec.Balances[val.Address]; ok {
				balance := bal
				state.Feeder.Balance = &balance
			}
		}
		validators[val.Address] = state
	}

	for addr := range rec.Misses {
		if _, ok := validators[addr]; !ok {
			log.Warn().
				Str("validator", addr).
				Msg("miss counter without validator record, filtered")
		}
	}

	rates := make([]ExchangeRate, len(rec.Rates))
	copy(rates, rec.Rates)

	return &Snapshot{
		TakenAt:    at,
		Validators: validators,
		Rates:      rates,
	}
}
