package report

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"oracle-miss-alerts/internal/classify"
	"oracle-miss-alerts/internal/snapshot"
)

func plainEntry(moniker string, power int64) classify.Entry {
	return classify.Entry{Address: moniker, Moniker: moniker, VotePower: decimal.NewFromInt(power)}
}

func TestBuildSectionOrder(t *testing.T) {
	balance := decimal.NewFromInt(520_000)
	res := classify.Result{
		GeneratedAt: time.Now().UTC(),
		Increased: []classify.Entry{{
			Moniker: "inc", PrevMissCounter: 10, MissCounter: 15, MissDelta: 5,
			VotePower: decimal.NewFromInt(1),
		}},
		LowBalance: []classify.Entry{{
			Moniker: "low", FeederBalance: &balance, VotePower: decimal.NewFromInt(1),
		}},
		NoFeeder:       []classify.Entry{plainEntry("none", 1)},
		Stable:         []classify.Entry{plainEntry("ok", 1)},
		TotalVotePower: decimal.NewFromInt(4),
		Power:          map[classify.Category]classify.PowerShare{},
	}
	rates := []snapshot.ExchangeRate{{Denom: "uusd", Rate: decimal.RequireFromString("0.5")}}

	msg := Build(res, rates, Options{})

	want := []string{
		"❌ Validators with Increased Misses",
		"⚠️ Low Feeder Balance",
		"🚫 Validators Without Feeder",
		"✅ Stable Validators",
		"💱 Exchange Rates",
		"📊 Vote Power Analysis",
		"📋 Summary",
	}
	if len(msg.Sections) != len(want) {
		t.Fatalf("section count = %d, want %d", len(msg.Sections), len(want))
	}
	for i, title := range want {
		if msg.Sections[i].Title != title {
			t.Fatalf("section %d = %q, want %q", i, msg.Sections[i].Title, title)
		}
	}
	if msg.Healthy {
		t.Fatal("message with increased misses must not be healthy")
	}
}

func TestBuildOmitsEmptySections(t *testing.T) {
	res := classify.Result{
		GeneratedAt:    time.Now().UTC(),
		TotalVotePower: decimal.Zero,
		Power:          map[classify.Category]classify.PowerShare{},
	}

	msg := Build(res, nil, Options{})

	if len(msg.Sections) != 2 {
		t.Fatalf("section count = %d, want 2 (vote power + summary)", len(msg.Sections))
	}
	if msg.Sections[0].Title != "📊 Vote Power Analysis" || msg.Sections[1].Title != "📋 Summary" {
		t.Fatalf("always-on sections wrong: %+v", msg.Sections)
	}
	if !msg.Healthy {
		t.Fatal("message without increased misses must be healthy")
	}
}

func TestIncreasedMissesLineFormat(t *testing.T) {
	res := classify.Result{
		GeneratedAt: time.Now().UTC(),
		Increased: []classify.Entry{{
			Moniker: "validator-one", PrevMissCounter: 10, MissCounter: 15, MissDelta: 5,
			VotePower: decimal.NewFromInt(1),
		}},
		Power: map[classify.Category]classify.PowerShare{},
	}

	msg := Build(res, nil, Options{})

	lines := msg.Sections[0].Lines
	if lines[0] != "• **validator-one**" {
		t.Fatalf("moniker line = %q", lines[0])
	}
	if lines[1] != "  Misses: 10 → 15 (+5)" {
		t.Fatalf("misses line = %q", lines[1])
	}
}

func TestLowBalanceLineUsesDisplayUnits(t *testing.T) {
	balance := decimal.NewFromInt(520_000)
	res := classify.Result{
		GeneratedAt: time.Now().UTC(),
		LowBalance: []classify.Entry{{
			Moniker: "low", FeederBalance: &balance, VotePower: decimal.NewFromInt(1),
		}},
		Power: map[classify.Category]classify.PowerShare{},
	}

	msg := Build(res, nil, Options{})

	if msg.Sections[0].Lines[1] != "  Feeder Balance: 0.52 MLD" {
		t.Fatalf("balance line = %q", msg.Sections[0].Lines[1])
	}
}

func TestSectionTruncation(t *testing.T) {
	entries := make([]classify.Entry, 0, 12)
	for i := 0; i < 12; i++ {
		entries = append(entries, plainEntry(strings.Repeat("v", i+1), int64(12-i)))
	}
	res := classify.Result{
		GeneratedAt: time.Now().UTC(),
		NoFeeder:    entries,
		Power:       map[classify.Category]classify.PowerShare{},
	}

	msg := Build(res, nil, Options{MaxRowsPerSection: 10})

	lines := msg.Sections[0].Lines
	if len(lines) != 11 {
		t.Fatalf("line count = %d, want 10 rows + overflow", len(lines))
	}
	if lines[10] != "… and 2 more" {
		t.Fatalf("overflow line = %q", lines[10])
	}
}

func TestVotePowerAnalysisLines(t *testing.T) {
	res := classify.Result{
		GeneratedAt:    time.Now().UTC(),
		TotalVotePower: decimal.NewFromInt(2_000_000_000_000),
		Power: map[classify.Category]classify.PowerShare{
			classify.CategoryIncreasedMisses: {
				VotePower:  decimal.NewFromInt(250_000_000_000),
				Percentage: decimal.RequireFromString("12.5"),
			},
		},
	}

	msg := Build(res, nil, Options{})

	lines := msg.Sections[0].Lines
	if lines[0] != "Total Vote Power: 2,000,000.00 MLD" {
		t.Fatalf("total line = %q", lines[0])
	}
	if lines[1] != "Increased Misses: 12.50% (250,000.00 MLD)" {
		t.Fatalf("category line = %q", lines[1])
	}
}

func TestRenderText(t *testing.T) {
	res := classify.Result{
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Stable:      []classify.Entry{plainEntry("ok", 1)},
		Power:       map[classify.Category]classify.PowerShare{},
	}

	text := RenderText(Build(res, nil, Options{}))

	for _, want := range []string{
		"🔍 Symphony Oracle Validator Monitor Report",
		"Generated: 2025-06-01T12:00:00Z",
		"✅ Stable Validators",
		"1 validators with no new misses",
		"📋 Summary",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("rendered text missing %q:\n%s", want, text)
		}
	}
}

func TestGroupThousands(t *testing.T) {
	cases := map[string]string{
		"0.00":        "0.00",
		"123.45":      "123.45",
		"1234.50":     "1,234.50",
		"1234567.89":  "1,234,567.89",
		"-1000.00":    "-1,000.00",
		"1000000":     "1,000,000",
		"12345678.00": "12,345,678.00",
	}
	for in, want := range cases {
		if got := groupThousands(in); got != want {
			t.Fatalf("groupThousands(%q) = %q, want %q", in, got, want)
		}
	}
}
