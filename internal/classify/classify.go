package classify

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"oracle-miss-alerts/internal/snapshot"
)

// Category labels the mutually exclusive outcome of classifying one
// validator. The values double as log and metric labels.
type Category string

const (
	CategoryIncreasedMisses  Category = "increased_misses"
	CategoryLowFeederBalance Category = "low_feeder_balance"
	CategoryNoFeeder         Category = "no_feeder"
	CategoryStable           Category = "stable"
)

// Categories lists all categories in fixed report order.
var Categories = []Category{
	CategoryIncreasedMisses,
	CategoryLowFeederBalance,
	CategoryNoFeeder,
	CategoryStable,
}

// Entry is one classified validator. PrevMissCounter and MissDelta are
// populated only for increased-misses entries.
type Entry struct {
	Address         string
	Moniker         string
	VotePower       decimal.Decimal
	MissCounter     uint64
	PrevMissCounter uint64
	MissDelta       uint64
	FeederAddress   string
	FeederBalance   *decimal.Decimal
}

// PowerShare aggregates the vote power held by one category.
type PowerShare struct {
	VotePower  decimal.Decimal
	Percentage decimal.Decimal
}

// Result partitions the current snapshot's validators into categories and
// carries the aggregate vote-power breakdown. Computed fresh each cycle,
// discarded after formatting.
type Result struct {
	GeneratedAt    time.Time
	Increased      []Entry
	LowBalance     []Entry
	NoFeeder       []Entry
	Stable         []Entry
	TotalVotePower decimal.Decimal
	Power          map[Category]PowerShare
}

// Entries returns the validators classified into the given category.
func (r *Result) Entries(cat Category) []Entry {
	switch cat {
	case CategoryIncreasedMisses:
		return r.Increased
	case CategoryLowFeederBalance:
		return r.LowBalance
	case CategoryNoFeeder:
		return r.NoFeeder
	case CategoryStable:
		return r.Stable
	}
	return nil
}

// Size returns the total number of classified validators.
func (r *Result) Size() int {
	return len(r.Increased) + len(r.LowBalance) + len(r.NoFeeder) + len(r.Stable)
}

// Classify compares the current snapshot against the previous one and
// assigns every validator to exactly one category. prev may be nil on the
// first cycle; every validator is then stable by definition.
//
// Pure apart from the warning logged on a miss-counter decrease; no I/O.
func Classify(prev, curr *snapshot.Snapshot, threshold decimal.Decimal, logger zerolog.Logger) Result {
	log := logger.With().Str("component", "classifier").Logger()

	res := Result{
		GeneratedAt:    curr.TakenAt,
		TotalVotePower: decimal.Zero,
	}

	for _, state := range curr.Validators {
		res.TotalVotePower = res.TotalVotePower.Add(state.VotePower)

		entry := Entry{
			Address:       state.Address,
			Moniker:       state.Moniker,
			VotePower:     state.VotePower,
			MissCounter:   state.MissCounter,
			FeederAddress: state.Feeder.Address,
			FeederBalance: state.Feeder.Balance,
		}

		switch categorize(prev, state, threshold, &entry, log) {
		case CategoryNoFeeder:
			res.NoFeeder = append(res.NoFeeder, entry)
		case CategoryLowFeederBalance:
			res.LowBalance = append(res.LowBalance, entry)
		case CategoryIncreasedMisses:
			res.Increased = append(res.Increased, entry)
		default:
			res.Stable = append(res.Stable, entry)
		}
	}

	sortEntries(res.Increased)
	sortEntries(res.LowBalance)
	sortEntries(res.NoFeeder)
	sortEntries(res.Stable)

	res.Power = powerShares(&res)
	return res
}

// categorize applies the precedence ladder: no feeder, low balance,
// increased misses, stable. First match wins.
func categorize(prev *snapshot.Snapshot, state snapshot.ValidatorState, threshold decimal.Decimal, entry *Entry, log zerolog.Logger) Category {
	if !state.HasFeeder() {
		return CategoryNoFeeder
	}

	// Unknown balance must fall through; only a known balance below the
	// threshold qualifies.
	if state.Feeder.Balance != nil && state.Feeder.Balance.LessThan(threshold) {
		return CategoryLowFeederBalance
	}

	if prev != nil {
		if prevState, ok := prev.Validators[state.Address]; ok {
			switch {
			case state.MissCounter > prevState.MissCounter:
				entry.PrevMissCounter = prevState.MissCounter
				entry.MissDelta = state.MissCounter - prevState.MissCounter
				return CategoryIncreasedMisses
			case state.MissCounter < prevState.MissCounter:
				log.Warn().
					Str("validator", state.Address).
					Uint64("previous", prevState.MissCounter).
					Uint64("current", state.MissCounter).
					Msg("miss counter decreased, chain-state discontinuity, treating as stable")
			}
		}
	}

	return CategoryStable
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].VotePower.Equal(entries[j].VotePower) {
			return entries[i].VotePower.GreaterThan(entries[j].VotePower)
		}
		return entries[i].Address < entries[j].Address
	})
}

func powerShares(res *Result) map[Category]PowerShare {
	hundred := decimal.NewFromInt(100)
	shares := make(map[Category]PowerShare, len(Categories))
	for _, cat := range Categories {
		power := decimal.Zero
		for _, entry := range res.Entries(cat) {
			power = power.Add(entry.VotePower)
		}
		share := PowerShare{VotePower: power, Percentage: decimal.Zero}
		if res.TotalVotePower.IsPositive() {
			share.Percentage = power.Div(res.TotalVotePower).Mul(hundred)
		}
		shares[cat] = share
	}
	return shares
}
