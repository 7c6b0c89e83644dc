package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"RefreshSentinel/internal/model"
)

// FormatRunSummary formats a finished run for the operator chat.
func FormatRunSummary(sum *model.RunSummary) string {
	if sum == nil {
		return "No run recorded yet."
	}
	var b strings.Builder
	icon := "✅"
	switch sum.Status {
	case model.RunSkipped:
		icon = "⏸"
	case model.RunAborted:
		icon = "⚠️"
	case model.RunFailed:
		icon = "❌"
	}
	b.WriteString(fmt.Sprintf("%s <b>Refresh run %s</b> | %s\n\n", icon, sum.Status, sum.StartedAt.UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Run: <code>%s</code>\n", sum.RunID))
	b.WriteString(fmt.Sprintf("Health: %s\n", sum.Health))
	if sum.Reason != "" {
		b.WriteString(fmt.Sprintf("Reason: %s\n", html.EscapeString(sum.Reason)))
	}
	if sum.Status != model.RunSkipped {
		b.WriteString(fmt.Sprintf("Evaluated: %d\n", sum.Evaluated))
		b.WriteString(fmt.Sprintf("Admitted: %d | Deferred: %d | Skipped: %d | Aborted: %d\n",
			sum.Admitted, sum.Deferred, sum.Skipped, sum.Aborted))
	}
	if len(sum.Symbols) > 0 {
		b.WriteString(fmt.Sprintf("Batch: %s\n", strings.Join(sum.Symbols, ", ")))
	}
	if sum.Error != "" {
		b.WriteString(fmt.Sprintf("\nError: %s\n", html.EscapeString(sum.Error)))
	}
	return b.String()
}

// FormatLostUpdate formats the alert raised when an outcome could not be written.
func FormatLostUpdate(o model.Outcome, err error) string {
	return fmt.Sprintf("⚠️ <b>Lost update</b>\n\nSymbol: %s\nOutcome: %s at %s\nError: %s\n\nRegistry state for this symbol is stale; check it manually.",
		o.Symbol, o.Outcome, o.Timestamp.UTC().Format(time.RFC3339), html.EscapeString(err.Error()))
}

// FormatSymbol formats one registry entry.
func FormatSymbol(s model.SymbolState, effective int, label string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>%s</b>\n\n", s.Symbol))
	b.WriteString(fmt.Sprintf("Priority: %s (effective %d)\n", label, effective))
	b.WriteString(fmt.Sprintf("Status: %s | Failures: %d\n", s.Status, s.FailureCount))
	b.WriteString(fmt.Sprintf("Last refreshed: %s\n", formatTime(s.LastRefreshed)))
	b.WriteString(fmt.Sprintf("Last attempt: %s\n", formatTime(s.LastAttempt)))
	for _, bo := range s.Boosts {
		b.WriteString(fmt.Sprintf("  boost %s +%d until %s (%s)\n", bo.Kind, bo.Weight, bo.ExpiresAt.UTC().Format("2006-01-02 15:04"), bo.Source))
	}
	return b.String()
}

// Help lists the chat commands.
func Help() string {
	return "Commands:\n• /last  last run summary\n• /run  trigger a run now\n• /symbol SYMBOL  show registry state"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
