package telegram

import (
	"fmt"
	"strings"

	"github.com/mtzanidakis/skopos/internal/report"
)

// formatSummary renders an analysis summary as a plain-text chat message.
// Sections with no data are omitted rather than printed empty.
func formatSummary(url string, sum *report.Summary) string {
	var sb strings.Builder

	status := "complete"
	if !sum.Success {
		status = "completed with errors"
	}
	fmt.Fprintf(&sb, "Analysis of %s %s.\n\n", url, status)
	fmt.Fprintf(&sb, "Score: %d/100\n", sum.YourScore)
	if sum.TotalCompetitors > 1 {
		fmt.Fprintf(&sb, "Ranking: #%d of %d\n", sum.YourRanking, sum.TotalCompetitors)
	}
	if sum.RevenueAtRisk > 0 {
		fmt.Fprintf(&sb, "Revenue at risk: $%.0f/mo\n", sum.RevenueAtRisk)
	}
	if sum.PositionQuadrant != "" {
		fmt.Fprintf(&sb, "Market position: %s\n", sum.PositionQuadrant)
	}

	if plan := sum.ActionPlan; plan != nil && plan.ThisWeek != nil {
		fmt.Fprintf(&sb, "\nThis week: %s (+%d points, %s)\n",
			plan.ThisWeek.Action, plan.ThisWeek.ImpactPoints, plan.ThisWeek.EffortHours)
	}
	if sum.ProjectedImprovement > 0 {
		fmt.Fprintf(&sb, "Projected improvement: +%d points\n", sum.ProjectedImprovement)
	}

	if len(sum.Errors) > 0 {
		fmt.Fprintf(&sb, "\nErrors:\n")
		for _, e := range sum.Errors {
			fmt.Fprintf(&sb, "  %s\n", e)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// chunkMessage splits a message into chunks that fit within Telegram's
// message size limit, preferring newline boundaries.
func chunkMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}

	return chunks
}
