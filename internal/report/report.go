package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"oracle-miss-alerts/internal/classify"
	"oracle-miss-alerts/internal/snapshot"
)

const defaultTitle = "🔍 Symphony Oracle Validator Monitor Report"

// Section is one titled block of report lines.
type Section struct {
	Title string
	Lines []string
}

// Message is the transport-agnostic report handed to the delivery sink.
// Sections appear in fixed order; delivery layers wrap them in their own
// envelope (Discord embed fields, Telegram text) without reordering.
type Message struct {
	Title       string
	GeneratedAt time.Time
	Healthy     bool
	Sections    []Section
}

// Options tune report rendering.
type Options struct {
	Title             string
	MaxRowsPerSection int
}

// Build renders a classification result and the cycle's exchange rates
// into a structured message. Empty sections are omitted except Vote Power
// Analysis and Summary, which always render.
func Build(res classify.Result, rates []snapshot.ExchangeRate, opts Options) Message {
	title := opts.Title
	if title == "" {
		title = defaultTitle
	}
	maxRows := opts.MaxRowsPerSection
	if maxRows <= 0 {
		maxRows = 10
	}

	msg := Message{
		Title:       title,
		GeneratedAt: res.GeneratedAt,
		Healthy:     len(res.Increased) == 0,
	}

	if len(res.Increased) > 0 {
		msg.Sections = append(msg.Sections, Section{
			Title: "❌ Validators with Increased Misses",
			Lines: increasedLines(res.Increased, maxRows),
		})
	}
	if len(res.LowBalance) > 0 {
		msg.Sections = append(msg.Sections, Section{
			Title: "⚠️ Low Feeder Balance",
			Lines: lowBalanceLines(res.LowBalance, maxRows),
		})
	}
	if len(res.NoFeeder) > 0 {
		msg.Sections = append(msg.Sections, Section{
			Title: "🚫 Validators Without Feeder",
			Lines: monikerLines(res.NoFeeder, maxRows),
		})
	}
	if len(res.Stable) > 0 {
		msg.Sections = append(msg.Sections, Section{
			Title: "✅ Stable Validators",
			Lines: []string{fmt.Sprintf("%d validators with no new misses", len(res.Stable))},
		})
	}
	if len(rates) > 0 {
		msg.Sections = append(msg.Sections, Section{
			Title: "💱 Exchange Rates",
			Lines: rateLines(rates),
		})
	}

	msg.Sections = append(msg.Sections, Section{
		Title: "📊 Vote Power Analysis",
		Lines: powerLines(res),
	})
	msg.Sections = append(msg.Sections, Section{
		Title: "📋 Summary",
		Lines: []string{
			fmt.Sprintf("Total Validators: %d", res.Size()),
			fmt.Sprintf("Increased: %d, Low Balance: %d, No Feeder: %d, Stable: %d",
				len(res.Increased), len(res.LowBalance), len(res.NoFeeder), len(res.Stable)),
		},
	})

	return msg
}

// RenderText flattens a message into plain text, one section per block.
func RenderText(msg Message) string {
	builder := strings.Builder{}
	builder.WriteString(msg.Title)
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Generated: %s\n", msg.GeneratedAt.UTC().Format(time.RFC3339)))
	for _, sec := range msg.Sections {
		builder.WriteString("\n")
		builder.WriteString(sec.Title)
		builder.WriteString("\n")
		for _, line := range sec.Lines {
			builder.WriteString(line)
			builder.WriteString("\n")
		}
	}
	return builder.String()
}

func increasedLines(entries []classify.Entry, maxRows int) []string {
	lines := make([]string, 0, maxRows*2+1)
	for i, entry := range entries {
		if i >= maxRows {
			break
		}
		lines = append(lines, fmt.Sprintf("• **%s**", entry.Moniker))
		lines = append(lines, fmt.Sprintf("  Misses: %d → %d (+%d)",
			entry.PrevMissCounter, entry.MissCounter, entry.MissDelta))
	}
	return appendOverflow(lines, len(entries), maxRows)
}

func lowBalanceLines(entries []classify.Entry, maxRows int) []string {
	lines := make([]string, 0, maxRows*2+1)
	for i, entry := range entries {
		if i >= maxRows {
			break
		}
		lines = append(lines, fmt.Sprintf("• **%s**", entry.Moniker))
		// balance is known by construction in this category
		lines = append(lines, fmt.Sprintf("  Feeder Balance: %s", FormatMLD(*entry.FeederBalance)))
	}
	return appendOverflow(lines, len(entries), maxRows)
}

func monikerLines(entries []classify.Entry, maxRows int) []string {
	lines := make([]string, 0, maxRows+1)
	for i, entry := range entries {
		if i >= maxRows {
			break
		}
		lines = append(lines, fmt.Sprintf("• **%s**", entry.Moniker))
	}
	return appendOverflow(lines, len(entries), maxRows)
}

func appendOverflow(lines []string, total, maxRows int) []string {
	if total > maxRows {
		lines = append(lines, fmt.Sprintf("… and %d more", total-maxRows))
	}
	return lines
}

func rateLines(rates []snapshot.ExchangeRate) []string {
	lines := make([]string, 0, len(rates))
	for _, rate := range rates {
		lines = append(lines, fmt.Sprintf("• %s: %s", rate.Denom, rate.Rate.StringFixed(6)))
	}
	return lines
}

func powerLines(res classify.Result) []string {
	lines := make([]string, 0, len(classify.Categories)+1)
	lines = append(lines, fmt.Sprintf("Total Vote Power: %s", FormatMLD(res.TotalVotePower)))
	for _, cat := range classify.Categories {
		share := res.Power[cat]
		lines = append(lines, fmt.Sprintf("%s: %s%% (%s)",
			categoryLabel(cat), share.Percentage.StringFixed(2), FormatMLD(share.VotePower)))
	}
	return lines
}

func categoryLabel(cat classify.Category) string {
	switch cat {
	case classify.CategoryIncreasedMisses:
		return "Increased Misses"
	case classify.CategoryLowFeederBalance:
		return "Low Feeder Balance"
	case classify.CategoryNoFeeder:
		return "No Feeder"
	case classify.CategoryStable:
		return "Stable"
	}
	return string(cat)
}

// FormatMLD renders a base-unit amount in display units with thousands
// separators and two decimals, e.g. 1234567890000 note → "1,234,567.89 MLD".
func FormatMLD(base decimal.Decimal) string {
	display := base.Div(snapshot.NoteUnitsPerMLD)
	return fmt.Sprintf("%s %s", groupThousands(display.StringFixed(2)), snapshot.DisplayDenom)
}

// groupThousands inserts comma separators into the integer part of a
// fixed-point decimal string.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	var out strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(digit)
	}
	if hasFrac {
		out.WriteByte('.')
		out.WriteString(fracPart)
	}
	return sign + out.String()
}
